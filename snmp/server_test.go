package snmp

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	assert "github.com/stretchr/testify/require"
)

type readResult struct {
	data []byte
	err  error
}

// fakePacketConn is a hand-rolled net.PacketConn stand-in replaying a
// scripted sequence of ReadFrom results, which is all serverImpl.listen
// needs to drive its read loop in a test.
type fakePacketConn struct {
	reads    []readResult
	idx      int
	writeErr error
	writes   [][]byte
}

func (f *fakePacketConn) ReadFrom(b []byte) (int, net.Addr, error) {
	if f.idx >= len(f.reads) {
		return 0, nil, errors.New("read failed")
	}
	r := f.reads[f.idx]
	f.idx++
	if r.err != nil {
		return 0, nil, r.err
	}
	return copy(b, r.data), nil, nil
}

func (f *fakePacketConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	f.writes = append(f.writes, append([]byte{}, b...))
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	return len(b), nil
}

func (f *fakePacketConn) Close() error                     { return nil }
func (f *fakePacketConn) LocalAddr() net.Addr               { return nil }
func (f *fakePacketConn) SetDeadline(time.Time) error       { return nil }
func (f *fakePacketConn) SetReadDeadline(time.Time) error   { return nil }
func (f *fakePacketConn) SetWriteDeadline(time.Time) error  { return nil }

func TestHandleTrap(t *testing.T) {
	trap := messageWithType(v2Trap)

	conn := &fakePacketConn{reads: []readResult{{data: trap}}}

	config := defaultServerConfig
	config.trace = NoOpServerHooks
	config.resolveServerHooks()
	h := newHandler()
	h.wg.Add(1)
	s := &serverImpl{config: &config, conn: conn, handler: h}
	defer s.Close()

	s.handleMessages()

	h.wg.Wait()
	assert.NotZero(t, h.pdu.VarbindList[0].TypedValue.Value, "upTime should be defined")
	assert.Equal(t, "1.3.6.1.1.2.3", h.pdu.VarbindList[1].TypedValue.String())
	assert.Equal(t, "123456", h.pdu.VarbindList[2].TypedValue.String())
}

func TestHandleInform(t *testing.T) {
	iMessage := messageWithType(inform)

	conn := &fakePacketConn{reads: []readResult{{data: iMessage}}}

	config := defaultServerConfig
	config.trace = DiagnosticServerHooks
	config.resolveServerHooks()
	h := newHandler()
	h.wg.Add(1)
	s := &serverImpl{config: &config, conn: conn, handler: h}
	defer s.Close()

	s.handleMessages()

	h.wg.Wait()
	assert.NotZero(t, h.pdu.VarbindList[0].TypedValue.Value, "upTime should be defined")
	assert.Equal(t, "1.3.6.1.1.2.3", h.pdu.VarbindList[1].TypedValue.String())
	assert.Equal(t, "123456", h.pdu.VarbindList[2].TypedValue.String())
	assert.Len(t, conn.writes, 1)
	assert.Equal(t, messageWithType(getResponse), conn.writes[0])
}

func TestInformAcknwoledgementFailure(t *testing.T) {
	iMessage := messageWithType(inform)

	conn := &fakePacketConn{reads: []readResult{{data: iMessage}}, writeErr: errors.New("write failure")}

	config := defaultServerConfig
	config.trace = DefaultServerHooks
	config.resolveServerHooks()
	h := newHandler()
	h.wg.Add(1)
	s := &serverImpl{config: &config, conn: conn, handler: h}
	defer s.Close()

	s.handleMessages()

	h.wg.Wait()
	assert.NotZero(t, h.pdu.VarbindList[0].TypedValue.Value, "upTime should be defined")
	assert.Equal(t, "1.3.6.1.1.2.3", h.pdu.VarbindList[1].TypedValue.String())
	assert.Equal(t, "123456", h.pdu.VarbindList[2].TypedValue.String())
}

func TestIgnoringUnsupportedMessageType(t *testing.T) {
	h := newHandler()

	iMessage := messageWithType(getMessage) // Neither trap nor inform...
	conn := &fakePacketConn{reads: []readResult{{data: iMessage}}}

	config := defaultServerConfig
	hooks := *DiagnosticServerHooks
	hooks.Error = func(config *serverConfig, err error) { h.wg.Done() }
	config.trace = &hooks
	h.wg.Add(1)
	s := &serverImpl{config: &config, conn: conn, handler: h}
	defer s.Close()

	s.handleMessages()

	h.wg.Wait()
	assert.Nil(t, h.pdu)
}

func TestMessageParseFailure(t *testing.T) {
	h := newHandler()

	garbageMessage := []byte{0xff, 0xff, 0xff}
	conn := &fakePacketConn{reads: []readResult{{data: garbageMessage}}}

	config := defaultServerConfig
	hooks := *DiagnosticServerHooks
	hooks.Error = func(config *serverConfig, err error) { h.wg.Done() }
	config.trace = &hooks
	h.wg.Add(1)
	s := &serverImpl{config: &config, conn: conn, handler: h}
	defer s.Close()

	s.handleMessages()

	h.wg.Wait()
	assert.Nil(t, h.pdu)
}

func messageWithType(mType byte) []byte {
	trap := []byte{
		// Message Type = Sequence, Length = 82
		0x30, 0x52,
		// Version Type = Integer, Length = 1, Value = 1
		0x02, 0x01, 0x01,
		// Community String Type = Octet String, Length = 6, Value = public
		0x04, 0x06, 0x70, 0x75, 0x62, 0x6c, 0x69, 0x63,
		// PDU Type = mType, Length = 69
		mType, 0x45,
		// Request ID Type = Integer, Length = 4, Value = ...
		0x02, 0x04, 0x3d, 0xcd, 0xa1, 0x06,
		// Error Type = Integer, Length = 1, Value = 0
		0x02, 0x01, 0x00,
		// Error Index Type = Integer, Length = 1, Value = 0
		0x02, 0x01, 0x00,
		// Varbind List Type = Sequence, Length = 55
		0x30, 0x37,
		// Varbind Type = Sequence, Length = 16
		0x30, 0x10,
		// Object Identifier Type = Object Identifier, Length = 8, Value = 1.3.6.1.2.1.1.3.0
		0x06, 0x08, 0x2b, 0x06, 0x01, 0x02, 0x01, 0x01, 0x03, 0x00,
		// Value Type = Time, Length = 4, Value = ...
		0x43, 0x04, 0x03, 0x01, 0x7b, 0x89,
		// Varbind Type = Sequence, Length = 20
		0x30, 0x14,
		// Object Identifier Type = Object Identifier, Length = 10, Value = 1.3.6.1.6.3.1.1.4.1.0
		0x06, 0x0a, 0x2b, 0x06, 0x01, 0x06, 0x03, 0x01, 0x01, 0x04, 0x01, 0x00,
		// Value Type = Object Identifier, Length = 6, Value = 1.3.6.1.1.2.3
		0x06, 0x06, 0x2b, 0x06, 0x01, 0x01, 0x02, 0x03,
		// Varbind Type = Sequence, Length = 13
		0x30, 0x0d,
		// Object Identifier Type = Object Identifier, Length = 6, Value = 1.3.6.1.7.8.9
		0x06, 0x06, 0x2b, 0x06, 0x01, 0x07, 0x08, 0x09,
		// Value Type = Integer, Length = 3, Value = 123456
		0x02, 0x03, 0x01, 0xe2, 0x40,
	}
	return trap
}

type handler struct {
	wg  *sync.WaitGroup
	pdu *PDU
}

func newHandler() *handler {
	return &handler{wg: &sync.WaitGroup{}}
}

func (h *handler) NewMessage(pdu *PDU, isInform bool, addr net.Addr) {
	h.pdu = pdu
	h.wg.Done()
}
