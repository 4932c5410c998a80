// Package restconf implements the RESTCONF Façade of SPEC_FULL.md §4.9: it
// maps GET/PUT/PATCH/DELETE under /restconf/data onto the Datastore
// Facade's Get/Put, applying NACM authorization over the same (user, op,
// path) tuple the NETCONF dispatcher uses, and turns an *errx.Error into
// the matching HTTP status with the RFC 6241 error envelope as the body.
// Routing is grounded on thc1006-nephoran-intent-operator's
// cmd/llm-processor/main.go (mux.NewRouter, router.HandleFunc(...).Methods(...),
// an *http.Server built with explicit Read/Write/Idle timeouts, mux.Vars for
// path parameters); this repository has no equivalent front-end of its own.
package restconf

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/yangwire/ncbackend/commit"
	"github.com/yangwire/ncbackend/datastore"
	"github.com/yangwire/ncbackend/errx"
	"github.com/yangwire/ncbackend/nacm"
	"github.com/yangwire/ncbackend/xtree"
)

// Authorizer is the subset of *nacm.Authorizer this package depends on.
type Authorizer interface {
	AuthorizeData(user string, access nacm.Access, moduleName, path string) (bool, *errx.Error)
}

// Server is the RESTCONF HTTP front-end.
type Server struct {
	Store      *datastore.Facade
	Engine     *commit.Engine
	Authorizer Authorizer
	router     *mux.Router
}

// New builds a Server with its route table installed; callers wrap it in an
// *http.Server (see ListenAndServe) or mount router into a larger mux.
func New(store *datastore.Facade, engine *commit.Engine, az Authorizer) *Server {
	s := &Server{Store: store, Engine: engine, Authorizer: az, router: mux.NewRouter()}
	s.routes()
	return s
}

func (s *Server) routes() {
	data := s.router.PathPrefix("/restconf/data").Subrouter()
	data.HandleFunc("/{path:.*}", s.handleGet).Methods("GET")
	data.HandleFunc("/{path:.*}", s.handlePut).Methods("PUT")
	data.HandleFunc("/{path:.*}", s.handlePatch).Methods("PATCH")
	data.HandleFunc("/{path:.*}", s.handleDelete).Methods("DELETE")
	data.HandleFunc("", s.handlePost).Methods("POST")

	s.router.HandleFunc("/restconf/operations/commit", s.handleCommit).Methods("POST")
}

// Handler returns the http.Handler to mount; exposed separately from
// ListenAndServe so callers can compose it with their own server lifecycle.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe runs the façade on addr with the timeouts the teacher's
// setupHTTPServer applies to its own *http.Server.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}
	return srv.ListenAndServe()
}

func pathParam(r *http.Request) string {
	v := mux.Vars(r)["path"]
	if v == "" {
		return "/"
	}
	return "/" + strings.TrimPrefix(v, "/")
}

func moduleOf(path string) string {
	segs := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 2)
	if len(segs) == 0 {
		return ""
	}
	if i := strings.Index(segs[0], ":"); i >= 0 {
		return segs[0][:i]
	}
	return segs[0]
}

func user(r *http.Request) string {
	if u, _, ok := r.BasicAuth(); ok {
		return u
	}
	return "anonymous"
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request, access nacm.Access, path string) bool {
	if s.Authorizer == nil {
		return true
	}
	ok, rerr := s.Authorizer.AuthorizeData(user(r), access, moduleOf(path), path)
	if !ok {
		writeError(w, rerr)
		return false
	}
	return true
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	path := pathParam(r)
	if !s.authorize(w, r, nacm.Read, path) {
		return
	}
	el, res := s.Store.Get(datastore.Running, path, datastore.ContentAll)
	if res != datastore.OK {
		writeError(w, errx.DataMissingErr(errx.Application, path, "no data at this path"))
		return
	}
	writeElement(w, el)
}

// handlePut and handlePatch both resolve to a single Put(OpMerge): Put only
// replaces or deletes whole top-level datastore children (§4.2), so a
// genuine subtree replace targeting an arbitrary nested path would have to
// discard unrelated siblings at every intermediate level on the way down.
// Merging is the one operation that is safe at any depth, so both RESTCONF
// methods build the full ancestor chain down to the target and merge it in;
// the distinction RFC 8040 draws between PUT and PATCH is accordingly not
// observable below the first path segment in this façade.
func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	path := pathParam(r)
	if !s.authorize(w, r, nacm.Update, path) {
		return
	}
	el, err := readBody(r)
	if err != nil {
		writeError(w, errx.MalformedMessageErr(err.Error()))
		return
	}
	s.doPut(w, wrapAtPath(path, el), datastore.OpMerge)
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	path := pathParam(r)
	if !s.authorize(w, r, nacm.Update, path) {
		return
	}
	el, err := readBody(r)
	if err != nil {
		writeError(w, errx.MalformedMessageErr(err.Error()))
		return
	}
	s.doPut(w, wrapAtPath(path, el), datastore.OpMerge)
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	el, err := readBody(r)
	if err != nil {
		writeError(w, errx.MalformedMessageErr(err.Error()))
		return
	}
	if !s.authorize(w, r, nacm.Create, el.Path()) {
		return
	}
	s.doPut(w, el, datastore.OpCreate)
}

// handleDelete removes a nested leaf or subtree directly from the
// candidate's tree via Root/SetRoot, since Put's OpDelete only removes a
// whole top-level child (§4.2) and the target here is usually deeper.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	path := pathParam(r)
	if !s.authorize(w, r, nacm.Delete, path) {
		return
	}
	root, ok := s.Store.Root(datastore.Candidate)
	if !ok {
		writeError(w, errx.DataMissingErr(errx.Application, path, "candidate datastore does not exist"))
		return
	}
	parent, leafName, ok := resolveParent(root, path)
	if !ok {
		writeError(w, errx.DataMissingErr(errx.Application, path, "no data at this path"))
		return
	}
	removed := false
	for i, c := range parent.Children {
		if c.Name == leafName {
			parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
			removed = true
			break
		}
	}
	if !removed {
		writeError(w, errx.DataMissingErr(errx.Application, path, "no data at this path"))
		return
	}
	s.Store.SetRoot(datastore.Candidate, root)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) doPut(w http.ResponseWriter, el *xtree.Element, op datastore.Op) {
	res := s.Store.Put(datastore.Candidate, el, op)
	writeResult(w, res, el.Path())
}

// wrapAtPath nests leaf under the container chain path names down to, but
// not including, leaf's own name (leaf is assumed already named for the
// path's final segment), producing a top-level element Put can merge.
func wrapAtPath(path string, leaf *xtree.Element) *xtree.Element {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	if len(segs) <= 1 {
		return leaf
	}
	root := xtree.New("", segs[0])
	cur := root
	for _, seg := range segs[1 : len(segs)-1] {
		child := xtree.New("", seg)
		cur.AddChild(child)
		cur = child
	}
	cur.AddChild(leaf)
	return root
}

// resolveParent walks root down to path's last element and returns its
// parent plus the element's own name, the shape handleDelete needs to
// splice it out of its parent's Children slice.
func resolveParent(root *xtree.Element, path string) (parent *xtree.Element, name string, ok bool) {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	if len(segs) == 0 || segs[0] == "" {
		return nil, "", false
	}
	cur := root
	for _, seg := range segs[:len(segs)-1] {
		next, found := cur.Child(seg)
		if !found {
			return nil, "", false
		}
		cur = next
	}
	return cur, segs[len(segs)-1], true
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	result := s.Engine.Commit(r.Context())
	if !result.OK {
		if len(result.Errors) > 0 {
			writeError(w, result.Errors[0])
			return
		}
		writeError(w, errx.OperationFailedErr(errx.Application, "commit failed"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func readBody(r *http.Request) (*xtree.Element, error) {
	defer r.Body.Close()
	return xtree.Parse(r.Body)
}

func writeElement(w http.ResponseWriter, el *xtree.Element) {
	body, err := xtree.Render(el)
	if err != nil {
		writeError(w, errx.OperationFailedErr(errx.Application, err.Error()))
		return
	}
	w.Header().Set("Content-Type", "application/yang-data+xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func writeResult(w http.ResponseWriter, res datastore.Result, path string) {
	switch res {
	case datastore.OK:
		w.WriteHeader(http.StatusNoContent)
	case datastore.NotFound:
		writeError(w, errx.DataMissingErr(errx.Application, path, "no data at this path"))
	case datastore.Conflict:
		writeError(w, errx.DataExistsErr(path, "data already exists at this path"))
	default:
		writeError(w, errx.OperationFailedErr(errx.Application, "datastore operation failed"))
	}
}

// writeError renders e as the RFC 6241 error envelope and maps its tag to
// the matching HTTP status, per §4.9.
func writeError(w http.ResponseWriter, e *errx.Error) {
	if e == nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	body, _ := errx.RenderError(e)
	w.Header().Set("Content-Type", "application/yang-data+xml")
	w.WriteHeader(statusFor(e.Tag))
	_, _ = w.Write([]byte(body))
}

func statusFor(tag errx.Tag) int {
	switch tag {
	case errx.AccessDenied:
		return http.StatusForbidden
	case errx.DataExists:
		return http.StatusConflict
	case errx.DataMissing, errx.UnknownElement:
		return http.StatusNotFound
	case errx.MalformedMessage, errx.InvalidValue, errx.BadElement, errx.BadAttribute:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
