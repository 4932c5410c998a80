// Package wire defines the NETCONF PDU shapes exchanged over the session
// transport: hello, rpc, rpc-reply and notification, plus the namespace
// and capability constants RFC 6241/6242 fix. Adapted from the teacher's
// netconf/common/model.go, generalized from an RPC client's outbound
// request envelope into the bidirectional shape a server-side dispatcher
// both decodes requests from and encodes replies/notifications to.
package wire

import (
	"encoding/xml"
	"fmt"
)

// HelloMessage is exchanged by both peers immediately after transport
// setup, before any rpc is sent, per RFC 6241 §8.1.
type HelloMessage struct {
	XMLName      xml.Name `xml:"urn:ietf:params:xml:ns:netconf:base:1.0 hello"`
	Capabilities []string `xml:"capabilities>capability"`
	SessionID    uint32   `xml:"session-id,omitempty"`
}

// RPCMessage is a client-to-server request envelope. Body carries the
// operation-specific innerxml, decoded further by the dispatcher once it
// knows which operation name it saw.
type RPCMessage struct {
	XMLName   xml.Name `xml:"urn:ietf:params:xml:ns:netconf:base:1.0 rpc"`
	MessageID string   `xml:"message-id,attr"`
	Body      string   `xml:",innerxml"`
}

// RPCReply is a server-to-client reply envelope. Exactly one of Errors,
// Data or Ok should be set, matching RFC 6241 §4.2's "either <ok/>, one or
// more <rpc-error>, or operation-specific data" rule.
type RPCReply struct {
	XMLName   xml.Name   `xml:"urn:ietf:params:xml:ns:netconf:base:1.0 rpc-reply"`
	MessageID string     `xml:"message-id,attr"`
	Errors    []RPCError `xml:"rpc-error,omitempty"`
	Data      string     `xml:",innerxml"`
	Ok        bool       `xml:"ok,omitempty"`
}

// RPCError is the wire shape of one RFC 6241 Appendix A rpc-error; the
// errx package is the canonical in-memory representation and source of
// truth, this is only what travels over the wire.
type RPCError struct {
	Type     string `xml:"error-type"`
	Tag      string `xml:"error-tag"`
	Severity string `xml:"error-severity"`
	AppTag   string `xml:"error-app-tag,omitempty"`
	Path     string `xml:"error-path,omitempty"`
	Message  string `xml:"error-message,omitempty"`
	Info     string `xml:",innerxml"`
}

func (re *RPCError) Error() string {
	return fmt.Sprintf("netconf rpc-error [%s/%s] %s", re.Type, re.Tag, re.Message)
}

// Notification is a server-pushed event, per RFC 5277.
type Notification struct {
	XMLName   xml.Name `xml:"urn:ietf:params:xml:ns:netconf:notification:1.0 notification"`
	EventTime string   `xml:"eventTime"`
	Event     string   `xml:",innerxml"`
}

// Namespace and capability URNs fixed by RFC 6241/6242.
const (
	NetconfNS       = "urn:ietf:params:xml:ns:netconf:base:1.0"
	NetconfNotifyNS = "urn:ietf:params:xml:ns:netconf:notification:1.0"
	CapBase10       = "urn:ietf:params:netconf:base:1.0"
	CapBase11       = "urn:ietf:params:netconf:base:1.1"
	CapWritableRunning = "urn:ietf:params:netconf:capability:writable-running:1.0"
	CapCandidate    = "urn:ietf:params:netconf:capability:candidate:1.0"
	CapConfirmedCommit = "urn:ietf:params:netconf:capability:confirmed-commit:1.1"
	CapRollbackOnErr = "urn:ietf:params:netconf:capability:rollback-on-error:1.0"
	CapStartup      = "urn:ietf:params:netconf:capability:startup:1.0"
	CapXpath        = "urn:ietf:params:netconf:capability:xpath:1.0"
	CapNotification = "urn:ietf:params:netconf:capability:notification:1.0"
	NacmNS          = "urn:ietf:params:xml:ns:yang:ietf-netconf-acm"
)

// DefaultCapabilities is the capability set this backend advertises in its
// own <hello>.
var DefaultCapabilities = []string{
	CapBase10,
	CapBase11,
	CapWritableRunning,
	CapCandidate,
	CapConfirmedCommit,
	CapRollbackOnErr,
	CapStartup,
	CapXpath,
	CapNotification,
}

// Well-known xml.Name values for the top-level elements a decoder must
// recognize before it knows which Go type to decode into.
var (
	NameHello        = xml.Name{Space: NetconfNS, Local: "hello"}
	NameRPC          = xml.Name{Space: NetconfNS, Local: "rpc"}
	NameRPCReply     = xml.Name{Space: NetconfNS, Local: "rpc-reply"}
	NameNotification = xml.Name{Space: NetconfNotifyNS, Local: "notification"}
)

// PeerSupportsChunkedFraming reports whether caps includes base:1.1,
// meaning both ends may switch the transport to chunked framing.
func PeerSupportsChunkedFraming(caps []string) bool {
	for _, c := range caps {
		if c == CapBase11 {
			return true
		}
	}
	return false
}
