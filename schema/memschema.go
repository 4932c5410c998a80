package schema

import "strings"

// node is the in-memory Node implementation used by memschema and by this
// repository's own tests. Built with NewNode/WithChild rather than struct
// literals so call sites read like schema definitions.
type node struct {
	name      string
	namespace string
	kind      Kind
	typ       Type
	mandatory bool
	minElem   int
	maxElem   int
	unique    [][]string
	keys      []string
	when      string
	must      []MustExpr
	children  map[string]Node
	order     []string
}

// NewNode constructs a schema node. namespace may be "" for a child that
// inherits its parent module's namespace (the caller is expected to set it
// explicitly when it differs, exactly as YANG augmentations do).
func NewNode(name, namespace string, kind Kind) *node {
	return &node{name: name, namespace: namespace, kind: kind, children: map[string]Node{}}
}

func (n *node) Name() string      { return n.name }
func (n *node) Namespace() string { return n.namespace }
func (n *node) Kind() Kind        { return n.kind }
func (n *node) Type() Type        { return n.typ }
func (n *node) Mandatory() bool   { return n.mandatory }
func (n *node) MinElements() int  { return n.minElem }
func (n *node) MaxElements() int  { return n.maxElem }
func (n *node) Unique() [][]string { return n.unique }
func (n *node) Keys() []string    { return n.keys }
func (n *node) When() string      { return n.when }
func (n *node) Must() []MustExpr  { return n.must }

func (n *node) Child(name string) (Node, bool) {
	c, ok := n.children[name]
	return c, ok
}

func (n *node) Children() []Node {
	out := make([]Node, 0, len(n.order))
	for _, name := range n.order {
		out = append(out, n.children[name])
	}
	return out
}

// WithType, WithMandatory, ... return the receiver for chaining, matching
// the builder style the rest of this repository uses for option structs.

func (n *node) WithType(t Type) *node        { n.typ = t; return n }
func (n *node) WithMandatory() *node         { n.mandatory = true; return n }
func (n *node) WithElements(min, max int) *node {
	n.minElem, n.maxElem = min, max
	return n
}
func (n *node) WithUnique(groups ...[]string) *node { n.unique = groups; return n }
func (n *node) WithKeys(keys ...string) *node       { n.keys = keys; return n }
func (n *node) WithWhen(xpath string) *node         { n.when = xpath; return n }
func (n *node) WithMust(exprs ...MustExpr) *node     { n.must = exprs; return n }

func (n *node) AddChild(c *node) *node {
	if c.namespace == "" {
		c.namespace = n.namespace
	}
	if _, exists := n.children[c.name]; !exists {
		n.order = append(n.order, c.name)
	}
	n.children[c.name] = c
	return n
}

// module is the in-memory Module implementation.
type module struct {
	name      string
	namespace string
	nodes     map[string]Node
	order     []string
}

// NewModule constructs an empty module; use AddTop to populate it.
func NewModule(name, namespace string) *module {
	return &module{name: name, namespace: namespace, nodes: map[string]Node{}}
}

func (m *module) Name() string      { return m.name }
func (m *module) Namespace() string { return m.namespace }

func (m *module) Node(name string) (Node, bool) {
	n, ok := m.nodes[name]
	return n, ok
}

func (m *module) Nodes() []Node {
	out := make([]Node, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.nodes[name])
	}
	return out
}

// AddTop registers a top-level schema node in the module.
func (m *module) AddTop(n *node) *module {
	if n.namespace == "" {
		n.namespace = m.namespace
	}
	if _, exists := m.nodes[n.name]; !exists {
		m.order = append(m.order, n.name)
	}
	m.nodes[n.name] = n
	return m
}

// memschema is the in-memory Schema implementation.
type memschema struct {
	modules map[string]Module
	order   []string
}

// New constructs an empty Schema; use Add to register modules.
func New() *memschema {
	return &memschema{modules: map[string]Module{}}
}

func (s *memschema) Add(m *module) *memschema {
	if _, exists := s.modules[m.name]; !exists {
		s.order = append(s.order, m.name)
	}
	s.modules[m.name] = m
	return s
}

func (s *memschema) Module(name string) (Module, bool) {
	m, ok := s.modules[name]
	return m, ok
}

func (s *memschema) Modules() []Module {
	out := make([]Module, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.modules[name])
	}
	return out
}

// Resolve walks a path of the form "/module:top/child/grandchild" to its
// schema node. Only the first path segment carries a module prefix, per
// YANG's "inherit the parent's namespace" rule for unprefixed descendants.
func (s *memschema) Resolve(path string) (Node, bool) {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	if len(segs) == 0 || segs[0] == "" {
		return nil, false
	}
	modName, top, ok := splitPrefix(segs[0])
	if !ok {
		return nil, false
	}
	mod, ok := s.Module(modName)
	if !ok {
		return nil, false
	}
	cur, ok := mod.Node(top)
	if !ok {
		return nil, false
	}
	for _, seg := range segs[1:] {
		_, local, _ := splitPrefix(seg)
		if local == "" {
			local = seg
		}
		cur, ok = cur.Child(local)
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func splitPrefix(seg string) (prefix, local string, ok bool) {
	i := strings.IndexByte(seg, ':')
	if i < 0 {
		return "", seg, true
	}
	return seg[:i], seg[i+1:], true
}
