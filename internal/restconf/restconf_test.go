package restconf_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yangwire/ncbackend/commit"
	"github.com/yangwire/ncbackend/datastore"
	"github.com/yangwire/ncbackend/internal/restconf"
	"github.com/yangwire/ncbackend/nacm"
	"github.com/yangwire/ncbackend/schema"
	"github.com/yangwire/ncbackend/validate"
	"github.com/yangwire/ncbackend/xtree"
)

func exampleSchema() schema.Schema {
	hostname := schema.NewNode("hostname", "", schema.KindLeaf).
		WithType(schema.Type{Name: "string"})
	system := schema.NewNode("system", "", schema.KindContainer).AddChild(hostname)
	top := schema.NewNode("top", "", schema.KindContainer).AddChild(system)
	mod := schema.NewModule("ex", "").AddTop(top)
	return schema.New().Add(mod)
}

func newServer(t *testing.T, az restconf.Authorizer) (*restconf.Server, *datastore.Facade) {
	t.Helper()
	store := datastore.New(datastore.NewMemBacking(), datastore.Options{})
	require.Equal(t, datastore.OK, store.Create(datastore.Candidate))
	require.Equal(t, datastore.OK, store.Create(datastore.Running))

	root := xtree.New("", "config")
	top := xtree.New("", "top")
	sys := xtree.New("", "system")
	host := xtree.New("", "hostname")
	host.Body = "router1"
	sys.AddChild(host)
	top.AddChild(sys)
	root.AddChild(top)
	require.Equal(t, datastore.OK, store.SetRoot(datastore.Running, root))

	v := validate.New(exampleSchema())
	engine := commit.New(store, v)
	return restconf.New(store, engine, az), store
}

func TestGetReturnsExistingData(t *testing.T) {
	srv, _ := newServer(t, nil)

	req := httptest.NewRequest("GET", "/restconf/data/top/system/hostname", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "router1")
}

func TestGetMissingPathReturns404WithDataMissingTag(t *testing.T) {
	srv, _ := newServer(t, nil)

	req := httptest.NewRequest("GET", "/restconf/data/top/system/nope", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "data-missing")
}

func TestPutMergesIntoCandidate(t *testing.T) {
	srv, store := newServer(t, nil)

	body := strings.NewReader(`<hostname>router2</hostname>`)
	req := httptest.NewRequest("PUT", "/restconf/data/top/system/hostname", body)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)

	el, res := store.Get(datastore.Candidate, "/top/system/hostname", datastore.ContentAll)
	require.Equal(t, datastore.OK, res)
	assert.Equal(t, "router2", el.Body)
}

func TestDeleteRemovesLeafFromCandidate(t *testing.T) {
	srv, store := newServer(t, nil)

	seed := xtree.New("", "config")
	seedTop := xtree.New("", "top")
	seedSys := xtree.New("", "system")
	seedHost := xtree.New("", "hostname")
	seedHost.Body = "router1"
	seedSys.AddChild(seedHost)
	seedTop.AddChild(seedSys)
	seed.AddChild(seedTop)
	require.Equal(t, datastore.OK, store.SetRoot(datastore.Candidate, seed))

	req := httptest.NewRequest("DELETE", "/restconf/data/top/system/hostname", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	_, res := store.Get(datastore.Candidate, "/top/system/hostname", datastore.ContentAll)
	assert.Equal(t, datastore.NotFound, res)
}

func TestDeleteMissingPathReturns404(t *testing.T) {
	srv, _ := newServer(t, nil)

	req := httptest.NewRequest("DELETE", "/restconf/data/top/system/nope", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeniedAccessReturns403(t *testing.T) {
	policy := nacm.Policy{
		Enabled:  true,
		Defaults: nacm.Defaults{Read: nacm.Deny, Write: nacm.Deny, Exec: nacm.Deny},
	}
	az := nacm.NewInternal(policy)
	srv, _ := newServer(t, az)

	req := httptest.NewRequest("GET", "/restconf/data/top/system/hostname", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "access-denied")
}

func TestCommitOperationPromotesCandidate(t *testing.T) {
	srv, store := newServer(t, nil)

	body := strings.NewReader(`<hostname>router3</hostname>`)
	req := httptest.NewRequest("PUT", "/restconf/data/top/system/hostname", body)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)

	commitReq := httptest.NewRequest("POST", "/restconf/operations/commit", nil)
	commitW := httptest.NewRecorder()
	srv.Handler().ServeHTTP(commitW, commitReq)
	assert.Equal(t, http.StatusNoContent, commitW.Code)

	el, res := store.Get(datastore.Running, "/top/system/hostname", datastore.ContentAll)
	require.Equal(t, datastore.OK, res)
	assert.Equal(t, "router3", el.Body)
}
