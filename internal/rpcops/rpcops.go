// Package rpcops registers the standard NETCONF operation handlers a
// running backend needs beyond the ones internal/dispatch already wires
// in directly (close-session, kill-session, lock, unlock): get,
// get-config, edit-config, copy-config, delete-config, commit,
// discard-changes, validate and cancel-commit. Grounded on
// internal/restconf's handleGet/doPut/handleCommit, generalized from an
// HTTP front-end's request/response shape into dispatch.Handler closures
// bound to the same Datastore Facade, Commit Engine and Confirmed-Commit
// State Machine.
package rpcops

import (
	"context"
	"regexp"
	"time"

	"github.com/yangwire/ncbackend/commit"
	"github.com/yangwire/ncbackend/confirmed"
	"github.com/yangwire/ncbackend/datastore"
	"github.com/yangwire/ncbackend/errx"
	"github.com/yangwire/ncbackend/internal/dispatch"
	"github.com/yangwire/ncbackend/internal/wire"
	"github.com/yangwire/ncbackend/nacm"
	"github.com/yangwire/ncbackend/xtree"
)

// Authorizer is the subset of *nacm.Authorizer these handlers need to gate
// data-level access, kept as an interface for the same reason
// internal/restconf does.
type Authorizer interface {
	AuthorizeData(user string, access nacm.Access, moduleName, path string) (bool, *errx.Error)
}

// Bindings collects the collaborators the standard handlers close over.
type Bindings struct {
	Store      *datastore.Facade
	Engine     *commit.Engine
	Confirmed  *confirmed.SM
	Authorizer Authorizer
}

// Register installs every standard handler on d.
func Register(d *dispatch.Dispatcher, b *Bindings) {
	d.Register("get", b.handleGet(datastore.Running))
	d.Register("get-config", b.handleGetConfig())
	d.Register("edit-config", b.handleEditConfig())
	d.Register("copy-config", b.handleCopyConfig())
	d.Register("delete-config", b.handleDeleteConfig())
	d.Register("validate", b.handleValidate())
	d.Register("commit", b.handleCommit())
	d.Register("discard-changes", b.handleDiscardChanges())
	d.Register("cancel-commit", b.handleCancelCommit())
}

var (
	sourceRE     = regexp.MustCompile(`<source>\s*<(\w+)\s*/?>`)
	targetRE     = regexp.MustCompile(`<target>\s*<(\w+)\s*/?>`)
	filterTopRE  = regexp.MustCompile(`<filter[^>]*>\s*<(\w+)`)
	persistRE    = regexp.MustCompile(`<persist>([^<]+)</persist>`)
	persistIDRE  = regexp.MustCompile(`<persist-id>([^<]+)</persist-id>`)
	timeoutRE    = regexp.MustCompile(`<confirm-timeout>(\d+)</confirm-timeout>`)
	hasConfirmed = regexp.MustCompile(`<confirmed\s*/?>`)
)

func nameFrom(re *regexp.Regexp, body string) datastore.Name {
	m := re.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return datastore.Name(m[1])
}

func (b *Bindings) authorize(user string, access nacm.Access, module, path string) *errx.Error {
	if b.Authorizer == nil {
		return nil
	}
	ok, rerr := b.Authorizer.AuthorizeData(user, access, module, path)
	if !ok {
		return rerr
	}
	return nil
}

func dataReply(el *xtree.Element) (*wire.RPCReply, *errx.Reply) {
	body, err := xtree.Render(el)
	if err != nil {
		return nil, errx.NewReply(errx.OperationFailedErr(errx.Application, err.Error()))
	}
	return &wire.RPCReply{Data: body}, nil
}

func okReply() (*wire.RPCReply, *errx.Reply) {
	return &wire.RPCReply{Ok: true}, nil
}

func (b *Bindings) handleGet(name datastore.Name) dispatch.Handler {
	return func(ctx context.Context, s *dispatch.Session, msgID, opName, body string) (*wire.RPCReply, *errx.Reply) {
		path := "/"
		if m := filterTopRE.FindStringSubmatch(body); m != nil {
			path = "/" + m[1]
		}
		if rerr := b.authorize(s.User(), nacm.Read, "", path); rerr != nil {
			return nil, errx.NewReply(rerr)
		}
		el, res := b.Store.Get(name, path, datastore.ContentAll)
		if res != datastore.OK {
			return nil, errx.NewReply(errx.DataMissingErr(errx.Application, path, "no data at this path"))
		}
		return dataReply(el)
	}
}

func (b *Bindings) handleGetConfig() dispatch.Handler {
	return func(ctx context.Context, s *dispatch.Session, msgID, opName, body string) (*wire.RPCReply, *errx.Reply) {
		source := nameFrom(sourceRE, body)
		if source == "" {
			return nil, errx.NewReply(errx.MissingElementErr(errx.Protocol, "source", "get-config requires a <source>"))
		}
		return b.handleGet(source)(ctx, s, msgID, opName, body)
	}
}

// handleEditConfig applies config's top-level children into target via
// Put, one RFC 6241 §7.2 operation attribute at a time; a child with no
// operation attribute defaults to merge.
func (b *Bindings) handleEditConfig() dispatch.Handler {
	return func(ctx context.Context, s *dispatch.Session, msgID, opName, body string) (*wire.RPCReply, *errx.Reply) {
		target := nameFrom(targetRE, body)
		if target == "" {
			return nil, errx.NewReply(errx.MissingElementErr(errx.Protocol, "target", "edit-config requires a <target>"))
		}
		config, err := configElementIn(body)
		if err != nil {
			return nil, errx.NewReply(errx.MalformedMessageErr(err.Error()))
		}
		for _, child := range config.Children {
			if rerr := b.authorize(s.User(), nacm.Update, "", "/"+child.Name); rerr != nil {
				return nil, errx.NewReply(rerr)
			}
			op := editOperationOf(child)
			if res := b.Store.Put(target, child, op); res != datastore.OK {
				return nil, errx.NewReply(dataErrFor(res, "/"+child.Name))
			}
		}
		return okReply()
	}
}

func (b *Bindings) handleCopyConfig() dispatch.Handler {
	return func(ctx context.Context, s *dispatch.Session, msgID, opName, body string) (*wire.RPCReply, *errx.Reply) {
		source := nameFrom(sourceRE, body)
		target := nameFrom(targetRE, body)
		if source == "" || target == "" {
			return nil, errx.NewReply(errx.MissingElementErr(errx.Protocol, "source/target", "copy-config requires both"))
		}
		if res := b.Store.Copy(source, target); res != datastore.OK {
			return nil, errx.NewReply(dataErrFor(res, string(target)))
		}
		return okReply()
	}
}

func (b *Bindings) handleDeleteConfig() dispatch.Handler {
	return func(ctx context.Context, s *dispatch.Session, msgID, opName, body string) (*wire.RPCReply, *errx.Reply) {
		target := nameFrom(targetRE, body)
		if target == "" {
			return nil, errx.NewReply(errx.MissingElementErr(errx.Protocol, "target", "delete-config requires a <target>"))
		}
		if target == datastore.Running {
			return nil, errx.NewReply(errx.OperationNotSupportedErr(errx.Protocol, "running cannot be deleted"))
		}
		if res := b.Store.Delete(target); res != datastore.OK {
			return nil, errx.NewReply(dataErrFor(res, string(target)))
		}
		return okReply()
	}
}

func (b *Bindings) handleValidate() dispatch.Handler {
	return func(ctx context.Context, s *dispatch.Session, msgID, opName, body string) (*wire.RPCReply, *errx.Reply) {
		source := nameFrom(sourceRE, body)
		if source == "" {
			source = datastore.Candidate
		}
		root, ok := b.Store.Root(source)
		if !ok {
			return nil, errx.NewReply(errx.DataMissingErr(errx.Application, string(source), "datastore does not exist"))
		}
		var errs []*errx.Error
		for _, top := range root.Children {
			errs = append(errs, b.Engine.Validator.Validate(top)...)
		}
		if len(errs) > 0 {
			return nil, &errx.Reply{Errors: errs}
		}
		return okReply()
	}
}

// handleCommit runs an ordinary or confirmed commit depending on whether
// body carries <confirmed/>, following RFC 6241 §8.4's rpc shape.
func (b *Bindings) handleCommit() dispatch.Handler {
	return func(ctx context.Context, s *dispatch.Session, msgID, opName, body string) (*wire.RPCReply, *errx.Reply) {
		if !hasConfirmed.MatchString(body) {
			res := b.Confirmed.Commit(ctx)
			if !res.OK {
				return nil, &errx.Reply{Errors: res.Errors}
			}
			return okReply()
		}
		persistID := ""
		if m := persistRE.FindStringSubmatch(body); m != nil {
			persistID = m[1]
		}
		timeout := confirmed.DefaultTimeout
		if m := timeoutRE.FindStringSubmatch(body); m != nil {
			if secs, err := parseUint(m[1]); err == nil {
				timeout = secondsToDuration(secs)
			}
		}
		res := b.Confirmed.ConfirmedCommit(ctx, s.ID(), persistID, timeout)
		if !res.OK {
			return nil, &errx.Reply{Errors: res.Errors}
		}
		return okReply()
	}
}

func (b *Bindings) handleDiscardChanges() dispatch.Handler {
	return func(ctx context.Context, s *dispatch.Session, msgID, opName, body string) (*wire.RPCReply, *errx.Reply) {
		if res := b.Confirmed.DiscardChanges(); res != datastore.OK {
			return nil, errx.NewReply(dataErrFor(res, string(datastore.Candidate)))
		}
		return okReply()
	}
}

func (b *Bindings) handleCancelCommit() dispatch.Handler {
	return func(ctx context.Context, s *dispatch.Session, msgID, opName, body string) (*wire.RPCReply, *errx.Reply) {
		persistID := ""
		if m := persistIDRE.FindStringSubmatch(body); m != nil {
			persistID = m[1]
		}
		res := b.Confirmed.CancelCommit(ctx, persistID)
		if !res.OK {
			errs := res.Errors
			if len(errs) == 0 && res.Failure != 0 {
				errs = []*errx.Error{errx.RollbackFailedErr(errx.Application, "automatic rollback did not complete cleanly")}
			}
			return nil, &errx.Reply{Errors: errs}
		}
		return okReply()
	}
}

// configElementIn wraps body in a synthetic root so the <config> element's
// innerxml, itself a sibling-list with no single root, can be parsed with
// xtree.Parse, then returns the <config> element itself.
func configElementIn(body string) (*xtree.Element, error) {
	wrapped, err := xtree.ParseString("<_>" + body + "</_>")
	if err != nil {
		return nil, err
	}
	cfg, ok := wrapped.Child("config")
	if !ok {
		return xtree.New("", "config"), nil
	}
	return cfg, nil
}

// editOperationOf reads child's "operation" attribute, defaulting to
// merge per RFC 6241 §7.2.
func editOperationOf(child *xtree.Element) datastore.Op {
	v, ok := child.Attr("operation")
	if !ok {
		return datastore.OpMerge
	}
	return datastore.Op(v)
}

func dataErrFor(res datastore.Result, path string) *errx.Error {
	switch res {
	case datastore.NotFound:
		return errx.DataMissingErr(errx.Application, path, "no data at this path")
	case datastore.Conflict:
		return errx.DataExistsErr(path, "data already exists at this path")
	default:
		return errx.OperationFailedErr(errx.Application, "datastore operation failed")
	}
}

func secondsToDuration(n uint64) time.Duration {
	return time.Duration(n) * time.Second
}

func parseUint(s string) (uint64, error) {
	var n uint64
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, errx.MalformedMessageErr("not a number")
		}
		n = n*10 + uint64(c-'0')
	}
	return n, nil
}
