package client

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	uuid "github.com/satori/go.uuid"

	"github.com/yangwire/ncbackend/internal/wire"
	"github.com/yangwire/ncbackend/internal/wire/codec"
)

// The Message layer defines a set of base protocol operations invoked as
// RPC methods with XML-encoded parameters.

// Request is the body of an RPC request: either a pre-built XML string or
// a struct with xml tags, marshalled when the request is sent.
type Request interface{}

// Session represents a NETCONF session to a single server.
type Session interface {
	// Execute executes an RPC request on the server and returns the reply.
	Execute(req Request) (*wire.RPCReply, error)

	// ExecuteAsync submits an RPC request for execution on the server,
	// arranging for the reply to be sent to the supplied channel.
	ExecuteAsync(req Request, rchan chan *wire.RPCReply) error

	// Subscribe issues an RPC request and returns the reply. If
	// successful, notifications are sent to the supplied channel.
	Subscribe(req Request, nchan chan *wire.Notification) (*wire.RPCReply, error)

	// Close closes the session and releases any associated resources.
	Close()

	// ID delivers the server-allocated id of the session.
	ID() uint32

	// ServerCapabilities delivers the server-supplied capabilities.
	ServerCapabilities() []string
}

type sesImpl struct {
	cfg   *Config
	t     Transport
	dec   *codec.Decoder
	enc   *codec.Encoder
	trace *ClientTrace

	pool []chan *wire.RPCReply

	hellochan chan bool
	responseq []chan *wire.RPCReply
	subchan   chan *wire.Notification

	hello   *wire.HelloMessage
	reqLock sync.Mutex
	pchLock sync.Mutex
	rchLock sync.Mutex

	notificationDropCount uint64

	target string
}

// NewSession creates a new NETCONF session over the supplied Transport,
// exchanging hello messages before returning.
func NewSession(ctx context.Context, t Transport, cfg *Config) (Session, error) {
	si := &sesImpl{
		cfg:       cfg,
		t:         t,
		target:    t.Target(),
		dec:       codec.NewDecoder(t),
		enc:       codec.NewEncoder(t),
		trace:     ContextClientTrace(ctx),
		hellochan: make(chan bool),
	}

	// The reader starts before our hello is written, since a peer that also
	// writes its hello first would otherwise block both ends on an
	// unbuffered transport. Holding reqLock keeps handleHello from
	// switching the framing until our hello is fully written.
	si.reqLock.Lock()
	go si.handleIncomingMessages()

	err := si.enc.Encode(&wire.HelloMessage{Capabilities: wire.DefaultCapabilities})
	si.reqLock.Unlock()
	if err != nil {
		si.trace.Error("Failed to encode hello", si.target, err)
		si.Close()
		return nil, err
	}

	if err := si.waitForServerHello(); err != nil {
		si.trace.Error("Failed to receive hello", si.target, err)
		si.Close()
		return nil, err
	}
	return si, nil
}

func (si *sesImpl) Execute(req Request) (reply *wire.RPCReply, err error) {
	si.trace.ExecuteStart(req, false)
	defer func(begin time.Time) {
		si.trace.ExecuteDone(req, false, reply, err, time.Since(begin))
	}(time.Now())

	rchan := si.allocChan()
	defer si.relChan(rchan)

	if err = si.execute(req, rchan); err != nil {
		return nil, err
	}

	reply = <-rchan
	err = mapError(reply)
	return reply, err
}

func (si *sesImpl) ExecuteAsync(req Request, rchan chan *wire.RPCReply) (err error) {
	si.trace.ExecuteStart(req, true)
	defer func(begin time.Time) {
		si.trace.ExecuteDone(req, true, nil, err, time.Since(begin))
	}(time.Now())

	return si.execute(req, rchan)
}

func (si *sesImpl) execute(req Request, rchan chan *wire.RPCReply) (err error) {
	body, err := bodyOf(req)
	if err != nil {
		return err
	}
	msg := &wire.RPCMessage{MessageID: uuid.NewV4().String(), Body: body}

	si.reqLock.Lock()
	defer si.reqLock.Unlock()

	si.pushRespChan(rchan)
	if err = si.enc.Encode(msg); err != nil {
		si.popRespChan()
	}
	return err
}

func (si *sesImpl) Subscribe(req Request, nchan chan *wire.Notification) (*wire.RPCReply, error) {
	si.subchan = nchan
	return si.Execute(req)
}

func (si *sesImpl) Close() {
	if err := si.t.Close(); err != nil {
		si.trace.Error("Session close failed", si.target, err)
	}
}

func (si *sesImpl) ID() uint32 { return si.hello.SessionID }

func (si *sesImpl) ServerCapabilities() []string { return si.hello.Capabilities }

func (si *sesImpl) waitForServerHello() (err error) {
	select {
	case <-si.hellochan:
	case <-time.After(time.Duration(si.cfg.SetupTimeoutSecs) * time.Second):
		err = fmt.Errorf("failed to get hello from server")
	}
	return err
}

func (si *sesImpl) handleIncomingMessages() {
	defer si.closeChannels()

	for {
		token, err := si.dec.Token()
		if err != nil {
			break
		}
		if err = si.handleToken(token); err != nil {
			return
		}
	}
}

func (si *sesImpl) handleToken(token xml.Token) (err error) {
	start, ok := token.(xml.StartElement)
	if !ok {
		return nil
	}
	switch start.Name {
	case wire.NameHello:
		err = si.handleHello(start)
	case wire.NameRPCReply:
		err = si.handleRPCReply(start)
	case wire.NameNotification:
		err = si.handleNotification(start)
	}
	return err
}

func (si *sesImpl) handleHello(token xml.StartElement) (err error) {
	if err = si.decodeElement(&si.hello, &token); err != nil {
		si.hellochan <- false
		return err
	}

	if wire.PeerSupportsChunkedFraming(si.hello.Capabilities) {
		si.reqLock.Lock()
		codec.EnableChunkedFraming(si.dec, si.enc)
		si.reqLock.Unlock()
	}

	si.hellochan <- true
	si.trace.HelloDone(si.hello)
	return nil
}

func (si *sesImpl) handleRPCReply(token xml.StartElement) (err error) {
	reply := wire.RPCReply{}
	if err = si.decodeElement(&reply, &token); err != nil {
		return err
	}

	respch := si.popRespChan()
	go func(ch chan *wire.RPCReply, r *wire.RPCReply) {
		ch <- r
	}(respch, &reply)
	return nil
}

func (si *sesImpl) handleNotification(token xml.StartElement) (err error) {
	n := &wire.Notification{}
	if err = si.decodeElement(n, &token); err != nil {
		return err
	}

	if si.subchan != nil {
		si.trace.NotificationReceived(n)
		select {
		case si.subchan <- n:
		default:
			atomic.AddUint64(&si.notificationDropCount, 1)
			si.trace.NotificationDropped(n)
		}
	}
	return nil
}

func (si *sesImpl) decodeElement(v interface{}, start *xml.StartElement) (err error) {
	if err = si.dec.DecodeElement(v, start); err != nil {
		si.trace.Error(fmt.Sprintf("DecodeElement token:%s", start.Name.Local), si.target, err)
	}
	return err
}

func (si *sesImpl) closeChannels() {
	close(si.hellochan)
	if si.subchan != nil {
		close(si.subchan)
	}
	si.closeAllResponseChannels()
}

func (si *sesImpl) closeAllResponseChannels() {
	for {
		if ch := si.popRespChan(); ch != nil {
			close(ch)
		} else {
			return
		}
	}
}

func (si *sesImpl) allocChan() (ch chan *wire.RPCReply) {
	si.pchLock.Lock()
	defer si.pchLock.Unlock()

	l := len(si.pool)
	if l == 0 {
		return make(chan *wire.RPCReply)
	}
	si.pool, ch = si.pool[:l-1], si.pool[l-1]
	return ch
}

func (si *sesImpl) relChan(ch chan *wire.RPCReply) {
	si.pchLock.Lock()
	defer si.pchLock.Unlock()
	si.pool = append(si.pool, ch)
}

func (si *sesImpl) pushRespChan(ch chan *wire.RPCReply) {
	si.rchLock.Lock()
	defer si.rchLock.Unlock()
	si.responseq = append(si.responseq, ch)
}

func (si *sesImpl) popRespChan() (ch chan *wire.RPCReply) {
	si.rchLock.Lock()
	defer si.rchLock.Unlock()
	if len(si.responseq) > 0 {
		si.responseq, ch = si.responseq[1:], si.responseq[0]
	}
	return ch
}

// mapError maps an RPC reply to an error, if the reply is nil or contains
// an error-severity rpc-error.
func mapError(r *wire.RPCReply) error {
	if r == nil {
		return io.ErrUnexpectedEOF
	}
	for i := range r.Errors {
		if r.Errors[i].Severity == "error" {
			return &r.Errors[i]
		}
	}
	return nil
}

// bodyOf renders req as the innerxml body of an <rpc> element: req is used
// verbatim if it is already a string, otherwise it is XML-marshalled.
func bodyOf(req Request) (string, error) {
	if s, ok := req.(string); ok {
		return s, nil
	}
	b, err := xml.Marshal(req)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
