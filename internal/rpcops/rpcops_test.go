package rpcops_test

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
	"github.com/yangwire/ncbackend/internal/wire/codec"
	"github.com/yangwire/ncbackend/schema"
	"github.com/yangwire/ncbackend/validate"
)

type client struct {
	enc *codec.Encoder
	dec *codec.Decoder
}

func newClient(conn net.Conn) *client {
	return &client{enc: codec.NewEncoder(conn), dec: codec.NewDecoder(conn)}
}

func (c *client) hello(t *testing.T) {
	t.Helper()
	var server wire.HelloMessage
	require.NoError(t, c.dec.Decode(&server))
	require.NoError(t, c.enc.Encode(&wire.HelloMessage{Capabilities: []string{wire.CapBase10}}))
}

func (c *client) rpc(t *testing.T, msgID, body string) *wire.RPCReply {
	t.Helper()
	require.NoError(t, c.enc.Encode(&wire.RPCMessage{MessageID: msgID, Body: body}))
	var reply wire.RPCReply
	require.NoError(t, c.dec.Decode(&reply))
	return &reply
}

func newDispatcher(t *testing.T) (*dispatch.Dispatcher, *datastore.Facade, *commit.Engine, *confirmed.SM) {
	t.Helper()
	store := datastore.New(datastore.NewMemBacking(), datastore.Options{})
	require.Equal(t, datastore.OK, store.Create(datastore.Candidate))
	require.Equal(t, datastore.OK, store.Create(datastore.Running))

	engine := commit.New(store, validate.New(schema.New()))
	sm := confirmed.New(engine, store)

	d := dispatch.New(store)
	rpcops.Register(d, &rpcops.Bindings{Store: store, Engine: engine, Confirmed: sm})
	return d, store, engine, sm
}

func TestEditConfigThenCommitAppliesToRunning(t *testing.T) {
	d, store, _, _ := newDispatcher(t)

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()
	sess := d.NewSession(serverConn, "alice")
	go sess.Serve(context.Background())

	c := newClient(clientConn)
	c.hello(t)

	reply := c.rpc(t, "1", `<edit-config><target><candidate/></target><config><top><hostname>router1</hostname></top></config></edit-config>`)
	require.Empty(t, reply.Errors)
	assert.True(t, reply.Ok)

	reply = c.rpc(t, "2", `<commit/>`)
	require.Empty(t, reply.Errors)
	assert.True(t, reply.Ok)

	got, res := store.Get(datastore.Running, "/top/hostname", datastore.ContentAll)
	require.Equal(t, datastore.OK, res)
	assert.Equal(t, "router1", got.Body)
}

func TestGetConfigReturnsMissingSourceError(t *testing.T) {
	d, _, _, _ := newDispatcher(t)

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()
	sess := d.NewSession(serverConn, "alice")
	go sess.Serve(context.Background())

	c := newClient(clientConn)
	c.hello(t)

	reply := c.rpc(t, "1", `<get-config/>`)
	require.Len(t, reply.Errors, 1)
	assert.Equal(t, "missing-element", reply.Errors[0].Tag)
}

func TestDeleteConfigRejectsRunning(t *testing.T) {
	d, _, _, _ := newDispatcher(t)

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()
	sess := d.NewSession(serverConn, "alice")
	go sess.Serve(context.Background())

	c := newClient(clientConn)
	c.hello(t)

	reply := c.rpc(t, "1", `<delete-config><target><running/></target></delete-config>`)
	require.Len(t, reply.Errors, 1)
	assert.Equal(t, "operation-not-supported", reply.Errors[0].Tag)
}

func TestConfirmedCommitThenCancelCommit(t *testing.T) {
	d, _, _, _ := newDispatcher(t)

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()
	sess := d.NewSession(serverConn, "alice")
	go sess.Serve(context.Background())

	c := newClient(clientConn)
	c.hello(t)

	reply := c.rpc(t, "1", `<edit-config><target><candidate/></target><config><top><x>1</x></top></config></edit-config>`)
	require.Empty(t, reply.Errors)

	reply = c.rpc(t, "2", `<commit><confirmed/><confirm-timeout>120</confirm-timeout></commit>`)
	require.Empty(t, reply.Errors)
	assert.True(t, reply.Ok)

	reply = c.rpc(t, "3", `<cancel-commit/>`)
	require.Empty(t, reply.Errors)
	assert.True(t, reply.Ok)
}
