// Package schema defines the opaque YANG schema API the validator and
// datastore facade consume. The YANG parser and schema representation
// themselves are out of scope for this repository (see SPEC_FULL.md §1);
// this package only states the shape a real schema implementation must
// have, plus (in memschema.go) a minimal in-memory implementation used to
// drive this repository's own tests.
package schema

// Kind classifies a schema node the way YANG does, restricted to the
// subset the validator needs to reason about.
type Kind int

const (
	KindContainer Kind = iota
	KindLeaf
	KindLeafList
	KindList
	KindChoice
	KindCase
)

// Type describes the constraints on a leaf's value space.
type Type struct {
	Name     string // e.g. "string", "uint32", "leafref", "enumeration"
	Pattern  string // regexp, for "string" types with a YANG pattern statement
	MinRange int64
	MaxRange int64
	HasRange bool
	Path     string // leafref path-statement target, when Name == "leafref"
	Enum     []string
}

// Node is one schema tree node: a container, leaf, leaf-list, list, choice
// or case. Implementations are expected to be immutable after the schema
// is loaded.
type Node interface {
	// Name is the node's local (unprefixed) name.
	Name() string
	// Namespace is the YANG module namespace the node belongs to.
	Namespace() string
	Kind() Kind
	// Type returns the node's type; only meaningful for KindLeaf/KindLeafList.
	Type() Type
	Mandatory() bool
	// MinElements/MaxElements apply to KindList/KindLeafList; MaxElements
	// of 0 means unbounded.
	MinElements() int
	MaxElements() int
	// Unique returns the list of "unique" constraint statements for a
	// KindList node; each entry is a space-separated set of descendant
	// leaf names that together must be unique across sibling instances.
	Unique() [][]string
	// Keys returns the key leaf names for a KindList node, in schema order.
	Keys() []string
	// When/Must return the node's XPath constraint expressions, if any.
	When() string
	Must() []MustExpr
	// Child looks up an immediate child schema node by local name; ok is
	// false if no such child is defined.
	Child(name string) (Node, bool)
	Children() []Node
}

// MustExpr pairs a must-statement's XPath expression with the optional
// error-app-tag/error-message it carries, per RFC 7950 §7.5.3.
type MustExpr struct {
	XPath        string
	ErrorAppTag  string
	ErrorMessage string
}

// Module is a loaded YANG module's top-level schema nodes.
type Module interface {
	Name() string
	Namespace() string
	Node(name string) (Node, bool)
	Nodes() []Node
}

// Schema is the complete loaded set of YANG modules a backend validates
// configuration against.
type Schema interface {
	Module(name string) (Module, bool)
	Modules() []Module
	// Resolve walks an absolute slash-separated path (e.g. "/ex:top/ex:leaf")
	// to the schema node covering it, the way the validator needs to link
	// every ConfigTree element to a schema node (§3 invariant).
	Resolve(path string) (Node, bool)
}
