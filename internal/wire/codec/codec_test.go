package codec_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yangwire/ncbackend/internal/wire"
	"github.com/yangwire/ncbackend/internal/wire/codec"
)

func TestEncodeDecodeHelloRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf)
	require.NoError(t, enc.Encode(&wire.HelloMessage{Capabilities: []string{wire.CapBase10}, SessionID: 42}))

	dec := codec.NewDecoder(&buf)
	var got wire.HelloMessage
	require.NoError(t, dec.Decode(&got))
	assert.Equal(t, uint32(42), got.SessionID)
	assert.Equal(t, []string{wire.CapBase10}, got.Capabilities)
}

func TestEncodeDecodeTwoMessagesSequentially(t *testing.T) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf)
	require.NoError(t, enc.Encode(&wire.RPCMessage{MessageID: "1", Body: "<get/>"}))
	require.NoError(t, enc.Encode(&wire.RPCMessage{MessageID: "2", Body: "<close-session/>"}))

	dec := codec.NewDecoder(&buf)
	var first, second wire.RPCMessage
	require.NoError(t, dec.Decode(&first))
	require.NoError(t, dec.Decode(&second))
	assert.Equal(t, "1", first.MessageID)
	assert.Equal(t, "2", second.MessageID)
}

func TestEnableChunkedFramingRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf)
	dec := codec.NewDecoder(&buf)
	codec.EnableChunkedFraming(dec, enc)

	require.NoError(t, enc.Encode(&wire.RPCMessage{MessageID: "1", Body: "<get/>"}))

	var got wire.RPCMessage
	require.NoError(t, dec.Decode(&got))
	assert.Equal(t, "1", got.MessageID)
}
