package client_test

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
	"github.com/yangwire/ncbackend/internal/wire"
	"github.com/yangwire/ncbackend/netconf/client"
	"github.com/yangwire/ncbackend/schema"
	"github.com/yangwire/ncbackend/validate"
)

// pipeTransport adapts a net.Conn (as returned by net.Pipe) to the
// client.Transport interface, so a Session can be driven against a
// dispatch.Dispatcher without a real SSH connection.
type pipeTransport struct {
	net.Conn
}

func (pipeTransport) Target() string { return "pipe" }

func newServerSession(t *testing.T) (net.Conn, *dispatch.Dispatcher) {
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
	return clientConn, d
}

func newTestSession(t *testing.T) client.Session {
	t.Helper()
	conn, _ := newServerSession(t)
	s, err := client.NewSession(context.Background(), pipeTransport{conn}, client.DefaultConfig)
	require.NoError(t, err)
	return s
}

func TestNewSessionCompletesHandshake(t *testing.T) {
	s := newTestSession(t)
	defer s.Close()

	assert.NotZero(t, s.ID())
	assert.Contains(t, s.ServerCapabilities(), "urn:ietf:params:netconf:base:1.0")
}

func TestExecuteGetConfig(t *testing.T) {
	s := newTestSession(t)
	defer s.Close()

	reply, err := s.Execute(`<get-config><source><running/></source></get-config>`)
	require.NoError(t, err)
	assert.NotNil(t, reply)
}

func TestExecuteEditConfigThenCommit(t *testing.T) {
	s := newTestSession(t)
	defer s.Close()

	reply, err := s.Execute(`<edit-config><target><candidate/></target><config><top><hostname>r1</hostname></top></config></edit-config>`)
	require.NoError(t, err)
	assert.True(t, reply.Ok)

	reply, err = s.Execute(`<commit/>`)
	require.NoError(t, err)
	assert.True(t, reply.Ok)
}

func TestExecuteUnknownOperationReturnsError(t *testing.T) {
	s := newTestSession(t)
	defer s.Close()

	_, err := s.Execute(`<bogus-op/>`)
	assert.Error(t, err)
}

func TestExecuteAsyncDeliversReply(t *testing.T) {
	s := newTestSession(t)
	defer s.Close()

	rch := make(chan *wire.RPCReply, 1)
	require.NoError(t, s.ExecuteAsync(`<get-config><source><running/></source></get-config>`, rch))

	reply := <-rch
	require.NotNil(t, reply)
}

func TestWithClientTraceFillsUnsetHooksWithNoOps(t *testing.T) {
	ctx := client.WithClientTrace(context.Background(), &client.ClientTrace{})
	trace := client.ContextClientTrace(ctx)
	assert.NotPanics(t, func() { trace.ConnectStart("x") })
	assert.NotPanics(t, func() { trace.Error("ctx", "target", nil) })
}
