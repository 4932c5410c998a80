package ops

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yangwire/ncbackend/commit"
	"github.com/yangwire/ncbackend/confirmed"
	"github.com/yangwire/ncbackend/datastore"
	"github.com/yangwire/ncbackend/internal/dispatch"
	"github.com/yangwire/ncbackend/internal/rpcops"
	"github.com/yangwire/ncbackend/netconf/client"
	"github.com/yangwire/ncbackend/schema"
	"github.com/yangwire/ncbackend/validate"
)

type pipeTransport struct {
	net.Conn
}

func (pipeTransport) Target() string { return "pipe" }

func newOpsSession(t *testing.T) (OpSession, *datastore.Facade) {
	t.Helper()
	store := datastore.New(datastore.NewMemBacking(), datastore.Options{})
	require.Equal(t, datastore.OK, store.Create(datastore.Candidate))
	require.Equal(t, datastore.OK, store.Create(datastore.Running))

	engine := commit.New(store, validate.New(schema.New()))
	sm := confirmed.New(engine, store)

	d := dispatch.New(store)
	rpcops.Register(d, &rpcops.Bindings{Store: store, Engine: engine, Confirmed: sm})

	serverConn, clientConn := net.Pipe()
	sess := d.NewSession(serverConn, "alice")
	go sess.Serve(context.Background())

	cs, err := client.NewSession(context.Background(), pipeTransport{clientConn}, client.DefaultConfig)
	require.NoError(t, err)
	return &sImpl{Session: cs}, store
}

func TestEditConfigThenCommit(t *testing.T) {
	s, store := newOpsSession(t)
	defer s.Close()

	require.NoError(t, s.EditConfig(CandidateCfg, `<top><hostname>r1</hostname></top>`))
	require.NoError(t, s.Commit())

	got, res := store.Get(datastore.Running, "/top/hostname", datastore.ContentAll)
	require.Equal(t, datastore.OK, res)
	assert.Equal(t, "r1", got.Body)
}

func TestGetConfigSubtreeReturnsRawBody(t *testing.T) {
	s, _ := newOpsSession(t)
	defer s.Close()

	require.NoError(t, s.EditConfig(CandidateCfg, `<top><hostname>r1</hostname></top>`))
	require.NoError(t, s.Commit())

	var result string
	require.NoError(t, s.GetConfigSubtree(`<top/>`, RunningCfg, &result))
	assert.Contains(t, result, "hostname")
}

func TestLockUnlock(t *testing.T) {
	s, _ := newOpsSession(t)
	defer s.Close()

	require.NoError(t, s.Lock(CandidateCfg))
	require.NoError(t, s.Unlock(CandidateCfg))
}

func TestConfirmedCommitThenCancel(t *testing.T) {
	s, _ := newOpsSession(t)
	defer s.Close()

	require.NoError(t, s.EditConfig(CandidateCfg, `<top><x>1</x></top>`))
	require.NoError(t, s.ConfirmedCommit("", 120))
	require.NoError(t, s.CancelCommit(""))
}

func TestDeleteConfigRejectsRunning(t *testing.T) {
	s, _ := newOpsSession(t)
	defer s.Close()

	err := s.DeleteConfig(DsName(RunningCfg))
	assert.Error(t, err)
}
