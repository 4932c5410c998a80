package client

import (
	"context"
	"log"
	"time"

	"github.com/imdario/mergo"
	"golang.org/x/crypto/ssh"

	"github.com/yangwire/ncbackend/internal/wire"
)

// unique type to prevent assignment.
type clientEventContextKey struct{}

// ContextClientTrace returns the Trace associated with the provided
// context, with any unset hooks filled in from NoOpLoggingHooks so
// callers never need a nil check before invoking one.
func ContextClientTrace(ctx context.Context) *ClientTrace {
	trace, _ := ctx.Value(clientEventContextKey{}).(*ClientTrace)
	if trace == nil {
		trace = NoOpLoggingHooks
	} else {
		_ = mergo.Merge(trace, NoOpLoggingHooks)
	}
	return trace
}

// WithClientTrace returns a new context based on the provided parent
// ctx. Netconf client requests made with the returned context will use
// the provided trace hooks.
func WithClientTrace(ctx context.Context, trace *ClientTrace) context.Context {
	return context.WithValue(ctx, clientEventContextKey{}, trace)
}

// ClientTrace defines a structure for handling trace events.
//nolint: golint
type ClientTrace struct {
	ConnectStart func(target string)
	ConnectDone  func(target string, err error, d time.Duration)

	DialStart func(clientConfig *ssh.ClientConfig, target string)
	DialDone  func(clientConfig *ssh.ClientConfig, target string, err error, d time.Duration)

	HelloDone func(msg *wire.HelloMessage)

	ConnectionClosed func(target string, err error)

	ReadStart func(buf []byte)
	ReadDone  func(buf []byte, c int, err error, d time.Duration)

	WriteStart func(buf []byte)
	WriteDone  func(buf []byte, c int, err error, d time.Duration)

	Error func(context, target string, err error)

	NotificationReceived func(m *wire.Notification)
	NotificationDropped  func(m *wire.Notification)

	ExecuteStart func(req Request, async bool)
	ExecuteDone  func(req Request, async bool, res *wire.RPCReply, err error, d time.Duration)
}

// DefaultLoggingHooks provides a default logging hook to report errors.
var DefaultLoggingHooks = &ClientTrace{
	Error: func(context, target string, err error) {
		log.Printf("NETCONF-Error context:%s target:%s err:%v\n", context, target, err)
	},
}

// MetricLoggingHooks provides a set of hooks that log network metrics.
var MetricLoggingHooks = &ClientTrace{
	ConnectDone: func(target string, err error, d time.Duration) {
		log.Printf("NETCONF-ConnectDone target:%s err:%v took:%dms\n", target, err, d.Milliseconds())
	},
	DialDone: func(clientConfig *ssh.ClientConfig, target string, err error, d time.Duration) {
		log.Printf("NETCONF-DialDone target:%s err:%v took:%dms\n", target, err, d.Milliseconds())
	},
	ReadDone: func(p []byte, c int, err error, d time.Duration) {
		log.Printf("NETCONF-ReadDone len:%d err:%v took:%dms\n", c, err, d.Milliseconds())
	},
	WriteDone: func(p []byte, c int, err error, d time.Duration) {
		log.Printf("NETCONF-WriteDone len:%d err:%v took:%dms\n", c, err, d.Milliseconds())
	},
	Error: DefaultLoggingHooks.Error,
	ExecuteDone: func(req Request, async bool, res *wire.RPCReply, err error, d time.Duration) {
		log.Printf("NETCONF-ExecuteDone async:%v err:%v took:%dms\n", async, err, d.Milliseconds())
	},
}

// DiagnosticLoggingHooks provides a set of verbose diagnostic hooks.
var DiagnosticLoggingHooks = &ClientTrace{
	ConnectStart: func(target string) {
		log.Printf("NETCONF-ConnectStart target:%s\n", target)
	},
	ConnectDone: MetricLoggingHooks.ConnectDone,
	DialStart: func(clientConfig *ssh.ClientConfig, target string) {
		log.Printf("NETCONF-DialStart target:%s\n", target)
	},
	DialDone: MetricLoggingHooks.DialDone,
	ConnectionClosed: func(target string, err error) {
		log.Printf("NETCONF-ConnectionClosed target:%s err:%v\n", target, err)
	},
	ReadStart: func(p []byte) {
		log.Printf("NETCONF-ReadStart capacity:%d\n", len(p))
	},
	ReadDone: MetricLoggingHooks.ReadDone,
	WriteStart: func(p []byte) {
		log.Printf("NETCONF-WriteStart len:%d\n", len(p))
	},
	WriteDone: MetricLoggingHooks.WriteDone,
	Error:     DefaultLoggingHooks.Error,
	NotificationReceived: func(n *wire.Notification) {
		log.Printf("NETCONF-NotificationReceived %s\n", n.XMLName.Local)
	},
	NotificationDropped: func(n *wire.Notification) {
		log.Printf("NETCONF-NotificationDropped %s\n", n.XMLName.Local)
	},
	ExecuteStart: func(req Request, async bool) {
		log.Printf("NETCONF-ExecuteStart async:%v\n", async)
	},
	ExecuteDone: func(req Request, async bool, res *wire.RPCReply, err error, d time.Duration) {
		log.Printf("NETCONF-ExecuteDone async:%v err:%v took:%dms\n", async, err, d.Milliseconds())
	},
}

// NoOpLoggingHooks is a set of hooks that do nothing, used by
// ContextClientTrace to fill any hook a caller left nil.
var NoOpLoggingHooks = &ClientTrace{
	ConnectStart:         func(target string) {},
	ConnectDone:          func(target string, err error, d time.Duration) {},
	DialStart:            func(clientConfig *ssh.ClientConfig, target string) {},
	DialDone:             func(clientConfig *ssh.ClientConfig, target string, err error, d time.Duration) {},
	ConnectionClosed:     func(target string, err error) {},
	HelloDone:            func(msg *wire.HelloMessage) {},
	ReadStart:            func(p []byte) {},
	ReadDone:             func(p []byte, c int, err error, d time.Duration) {},
	WriteStart:           func(p []byte) {},
	WriteDone:            func(p []byte, c int, err error, d time.Duration) {},
	Error:                func(context, target string, err error) {},
	NotificationReceived: func(n *wire.Notification) {},
	NotificationDropped:  func(n *wire.Notification) {},
	ExecuteStart:         func(req Request, async bool) {},
	ExecuteDone:          func(req Request, async bool, res *wire.RPCReply, err error, d time.Duration) {},
}
