// Package errx builds RFC 6241 Appendix A rpc-error artifacts.
//
// Every constructor returns a *Error, the canonical in-memory tree form. Render
// turns that tree into the serialized <rpc-reply> text a transport can write
// directly to a client. There is exactly one code path from tree to text;
// nothing in this package formats XML by hand a second time.
package errx

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// Type is the NETCONF error-type, one of the four RFC 6241 layers at which
// a request can fail.
type Type string

const (
	Transport  Type = "transport"
	RPC        Type = "rpc"
	Protocol   Type = "protocol"
	Application Type = "application"
)

// Tag is an RFC 6241 Appendix A error-tag.
type Tag string

const (
	InUse                Tag = "in-use"
	InvalidValue         Tag = "invalid-value"
	TooBig               Tag = "too-big"
	MissingAttribute     Tag = "missing-attribute"
	BadAttribute         Tag = "bad-attribute"
	UnknownAttribute     Tag = "unknown-attribute"
	MissingElement       Tag = "missing-element"
	BadElement           Tag = "bad-element"
	UnknownElement       Tag = "unknown-element"
	UnknownNamespace     Tag = "unknown-namespace"
	AccessDenied         Tag = "access-denied"
	LockDenied           Tag = "lock-denied"
	ResourceDenied       Tag = "resource-denied"
	RollbackFailed       Tag = "rollback-failed"
	DataExists           Tag = "data-exists"
	DataMissing          Tag = "data-missing"
	OperationNotSupported Tag = "operation-not-supported"
	OperationFailed      Tag = "operation-failed"
	MalformedMessage     Tag = "malformed-message"
	DataNotUnique        Tag = "data-not-unique"
	TooManyElements      Tag = "too-many-elements"
	TooFewElements       Tag = "too-few-elements"
)

const severityError = "error"

// Info carries the optional bad-attribute/bad-element/bad-namespace/session-id
// detail RFC 6241 defines for specific tags, plus the non-unique list of
// paths that data-not-unique carries and the single missing-choice value
// that missing-choice carries.
type Info struct {
	XMLName      xml.Name `xml:"error-info"`
	BadAttribute string   `xml:"bad-attribute,omitempty"`
	BadElement   string   `xml:"bad-element,omitempty"`
	BadNamespace string   `xml:"bad-namespace,omitempty"`
	SessionID    uint32   `xml:"session-id,omitempty"`
	NonUnique    []string `xml:"non-unique,omitempty"`
	MissingChoice string  `xml:"missing-choice,omitempty"`
}

func (i *Info) empty() bool {
	return i == nil || (i.BadAttribute == "" && i.BadElement == "" && i.BadNamespace == "" &&
		i.SessionID == 0 && len(i.NonUnique) == 0 && i.MissingChoice == "")
}

// Error is the canonical tree form of a single rpc-error. Message is stored
// unescaped; Render (and MarshalXML) escape it on the way out, so callers
// never need to pre-escape free-form text.
type Error struct {
	Type     Type
	Tag      Tag
	Severity string
	AppTag   string
	Path     string
	Info     *Info
	Message  string
}

// wireError is the XML-marshalable shape of Error; kept private so callers
// only ever construct Error values through this package's constructors.
type wireError struct {
	XMLName  xml.Name `xml:"rpc-error"`
	Type     Type     `xml:"error-type"`
	Tag      Tag      `xml:"error-tag"`
	Severity string   `xml:"error-severity"`
	AppTag   string   `xml:"error-app-tag,omitempty"`
	Path     string   `xml:"error-path,omitempty"`
	Info     *Info    `xml:"error-info,omitempty"`
	Message  string   `xml:"error-message,omitempty"`
}

func (e *Error) wire() *wireError {
	w := &wireError{Type: e.Type, Tag: e.Tag, Severity: e.Severity, AppTag: e.AppTag, Path: e.Path, Message: e.Message}
	if !e.Info.empty() {
		w.Info = e.Info
	}
	if w.Severity == "" {
		w.Severity = severityError
	}
	return w
}

// Error implements the standard error interface so an *Error can be returned
// and propagated like any other Go error throughout the backend.
func (e *Error) Error() string {
	return fmt.Sprintf("netconf rpc-error [%s/%s] %s", e.Type, e.Tag, e.Message)
}

// Reply is the canonical tree form of an <rpc-reply> carrying one or more
// rpc-error children, per RFC 6241 Appendix A.
type Reply struct {
	XMLName xml.Name `xml:"rpc-reply"`
	Errors  []*Error
}

// MarshalXML flattens Reply.Errors into wireError values at marshal time,
// the one place this package touches encoding/xml for errors.
func (r *Reply) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name = xml.Name{Local: "rpc-reply"}
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	for _, er := range r.Errors {
		if err := e.Encode(er.wire()); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

// NewReply wraps one or more errors in a canonical <rpc-reply>.
func NewReply(errs ...*Error) *Reply {
	return &Reply{Errors: errs}
}

// Render serializes the tree form to text. The tree is always the source of
// truth; this is the only function in the package that produces bytes.
func Render(r *Reply) (string, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderError is a convenience for the common single-error case.
func RenderError(e *Error) (string, error) {
	return Render(NewReply(e))
}

// --- constructors, one per RFC 6241 Appendix A tag --------------------------

func InUseErr(t Type, message string) *Error {
	return &Error{Type: t, Tag: InUse, Message: message}
}

func InvalidValueErr(t Type, message string) *Error {
	return &Error{Type: t, Tag: InvalidValue, Message: message}
}

func TooBigErr(t Type, message string) *Error {
	return &Error{Type: t, Tag: TooBig, Message: message}
}

func MissingAttributeErr(t Type, attr, elem, message string) *Error {
	return &Error{Type: t, Tag: MissingAttribute, Message: message, Info: &Info{BadAttribute: attr, BadElement: elem}}
}

func BadAttributeErr(t Type, attr, elem, message string) *Error {
	return &Error{Type: t, Tag: BadAttribute, Message: message, Info: &Info{BadAttribute: attr, BadElement: elem}}
}

func UnknownAttributeErr(t Type, attr, elem, message string) *Error {
	return &Error{Type: t, Tag: UnknownAttribute, Message: message, Info: &Info{BadAttribute: attr, BadElement: elem}}
}

func MissingElementErr(t Type, elem, message string) *Error {
	return &Error{Type: t, Tag: MissingElement, Message: message, Info: &Info{BadElement: elem}}
}

func BadElementErr(t Type, elem, message string) *Error {
	return &Error{Type: t, Tag: BadElement, Message: message, Info: &Info{BadElement: elem}}
}

func UnknownElementErr(t Type, elem, message string) *Error {
	return &Error{Type: t, Tag: UnknownElement, Message: message, Info: &Info{BadElement: elem}}
}

func UnknownNamespaceErr(t Type, elem, ns, message string) *Error {
	return &Error{Type: t, Tag: UnknownNamespace, Message: message, Info: &Info{BadElement: elem, BadNamespace: ns}}
}

// AccessDeniedErr implements §4.6: application for data access, protocol for
// RPC authorization.
func AccessDeniedErr(t Type, path, message string) *Error {
	return &Error{Type: t, Tag: AccessDenied, Path: path, Message: message}
}

// LockDeniedErr is always type=protocol, per §4.1. holder is the session id
// that currently holds the lock, reported in error-info/session-id.
func LockDeniedErr(holder uint32, message string) *Error {
	return &Error{Type: Protocol, Tag: LockDenied, Message: message, Info: &Info{SessionID: holder}}
}

func ResourceDeniedErr(t Type, message string) *Error {
	return &Error{Type: t, Tag: ResourceDenied, Message: message}
}

func RollbackFailedErr(t Type, message string) *Error {
	return &Error{Type: t, Tag: RollbackFailed, Message: message}
}

// DataExistsErr is always type=application, per §4.1.
func DataExistsErr(path, message string) *Error {
	return &Error{Type: Application, Tag: DataExists, Path: path, Message: message}
}

func DataMissingErr(t Type, path, message string) *Error {
	return &Error{Type: t, Tag: DataMissing, Path: path, Message: message}
}

func OperationNotSupportedErr(t Type, message string) *Error {
	return &Error{Type: t, Tag: OperationNotSupported, Message: message}
}

func OperationFailedErr(t Type, message string) *Error {
	return &Error{Type: t, Tag: OperationFailed, Message: message}
}

// MalformedMessageErr is always type=rpc, per §4.1.
func MalformedMessageErr(message string) *Error {
	return &Error{Type: RPC, Tag: MalformedMessage, Message: message}
}

// DataNotUniqueErr carries the offending sibling paths in error-info/non-unique,
// per §4.1 and §4.3 rule 5. Tag is operation-failed with error-app-tag
// data-not-unique, matching the sibling TooManyElementsErr/TooFewElementsErr
// constructors below.
func DataNotUniqueErr(path string, siblings []string, message string) *Error {
	return &Error{
		Type: Application, Tag: OperationFailed, AppTag: string(DataNotUnique), Path: path,
		Info: &Info{NonUnique: siblings}, Message: message,
	}
}

func TooManyElementsErr(path, message string) *Error {
	return &Error{Type: Application, Tag: OperationFailed, AppTag: string(TooManyElements), Path: path, Message: message}
}

func TooFewElementsErr(path, message string) *Error {
	return &Error{Type: Application, Tag: OperationFailed, AppTag: string(TooFewElements), Path: path, Message: message}
}

// MissingChoiceErr reports a mandatory-choice violation per §4.3 rule 3.
func MissingChoiceErr(path, choiceName, message string) *Error {
	return &Error{
		Type: Application, Tag: DataMissing, AppTag: "missing-choice", Path: path,
		Info: &Info{MissingChoice: choiceName}, Message: message,
	}
}

// MergeResult classifies the outcome of MergeInto.
type MergeResult int

const (
	MergeOK MergeResult = iota
	MergeRecoverable
	MergeFatal
)

// MergeInto installs src's errors on dst, trimming dst.Errors first and
// appending an operation-failed error if src carries none of its own (a
// merge that fails validation but produced no specific error is still a
// failure the caller must see). Mirrors the clixon source's merge helper
// that trims a target tree and installs an operation-failed on the caller's
// output root when a merge fails.
func MergeInto(dst *Reply, src *Reply, cause error) MergeResult {
	if dst == nil {
		return MergeFatal
	}
	dst.Errors = dst.Errors[:0]
	if src != nil && len(src.Errors) > 0 {
		dst.Errors = append(dst.Errors, src.Errors...)
		return MergeRecoverable
	}
	msg := "merge failed"
	if cause != nil {
		msg = cause.Error()
	}
	dst.Errors = append(dst.Errors, OperationFailedErr(Application, msg))
	return MergeRecoverable
}
