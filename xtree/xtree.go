// Package xtree implements the DOM-like XML tree the validator, datastore
// facade and commit engine operate on. A real XML tree library and XPath
// evaluator are out of scope for this repository (SPEC_FULL.md §1); this
// is a minimal namespace-aware tree sufficient to drive those components,
// built over encoding/xml because no DOM/XPath package appears anywhere in
// the retrieved corpus (see DESIGN.md).
package xtree

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Attr is a single namespace-qualified attribute.
type Attr struct {
	Namespace string
	Name      string
	Value     string
}

// Element is one node of a ConfigTree: a namespace, a local name, an
// ordered attribute list, a list of children (a leaf has none), and a text
// body (meaningful only for leaves and leaf-lists). SchemaPath records the
// schema path this element was resolved against, filled in by the
// validator; an empty SchemaPath after validation means the element is
// unlinked and must be rejected (§3 invariant).
type Element struct {
	Namespace  string
	Name       string
	Attrs      []Attr
	Body       string
	Children   []*Element
	Parent     *Element
	SchemaPath string
}

// New creates a detached element.
func New(namespace, name string) *Element {
	return &Element{Namespace: namespace, Name: name}
}

// AddChild appends c as a child of e and sets its parent pointer.
func (e *Element) AddChild(c *Element) *Element {
	c.Parent = e
	e.Children = append(e.Children, c)
	return e
}

// Attr returns the named attribute's value and whether it was present.
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Child returns the first child matching local name, regardless of namespace.
func (e *Element) Child(name string) (*Element, bool) {
	for _, c := range e.Children {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// ChildrenNamed returns every child matching local name, preserving
// document order; used to find sibling instances of a YANG list/leaf-list.
func (e *Element) ChildrenNamed(name string) []*Element {
	var out []*Element
	for _, c := range e.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Path renders the element's ancestor-qualified path, namespace-prefixed
// at the root, the way RFC 6241 error-path values are reported.
func (e *Element) Path() string {
	var segs []string
	for cur := e; cur != nil; cur = cur.Parent {
		if cur.Namespace != "" && cur.Parent == nil {
			segs = append(segs, fmt.Sprintf("%s[xmlns=%s]", cur.Name, cur.Namespace))
		} else {
			segs = append(segs, cur.Name)
		}
	}
	// segs was built root-last; reverse.
	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
	return "/" + strings.Join(segs, "/")
}

// Clone deep-copies e and its subtree, detached from any parent. Used
// wherever the spec requires a datastore to be "copied by value on
// transactions" (§3).
func (e *Element) Clone() *Element {
	if e == nil {
		return nil
	}
	clone := &Element{
		Namespace: e.Namespace,
		Name:      e.Name,
		Attrs:     append([]Attr(nil), e.Attrs...),
		Body:      e.Body,
		SchemaPath: e.SchemaPath,
	}
	for _, c := range e.Children {
		clone.AddChild(c.Clone())
	}
	return clone
}

// Equal reports whether e and other have the same shape and content,
// ignoring SchemaPath and Parent (used by property tests comparing
// candidate and running after a commit, §8).
func Equal(a, b *Element) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Namespace != b.Namespace || a.Name != b.Name || a.Body != b.Body {
		return false
	}
	if len(a.Attrs) != len(b.Attrs) || len(a.Children) != len(b.Children) {
		return false
	}
	for i := range a.Attrs {
		if a.Attrs[i] != b.Attrs[i] {
			return false
		}
	}
	for i := range a.Children {
		if !Equal(a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}

// Parse decodes an XML document into an Element tree rooted at the
// document's single top-level element.
func Parse(r io.Reader) (*Element, error) {
	dec := xml.NewDecoder(r)
	var root, cur *Element
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			el := New(t.Name.Space, t.Name.Local)
			for _, a := range t.Attr {
				// namespace declarations are carried by Element.Namespace,
				// not kept as attributes.
				if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
					continue
				}
				el.Attrs = append(el.Attrs, Attr{Namespace: a.Name.Space, Name: a.Name.Local, Value: a.Value})
			}
			if cur == nil {
				root = el
			} else {
				cur.AddChild(el)
			}
			cur = el
		case xml.EndElement:
			if cur != nil && cur.Parent != nil {
				cur = cur.Parent
			}
		case xml.CharData:
			if cur != nil {
				cur.Body += string(t)
			}
		}
	}
	if root == nil {
		return nil, fmt.Errorf("xtree: empty document")
	}
	trimLeaves(root)
	return root, nil
}

// ParseString is a convenience wrapper around Parse for literal XML text.
func ParseString(s string) (*Element, error) {
	return Parse(strings.NewReader(s))
}

// trimLeaves trims surrounding whitespace from leaf bodies; container
// elements never carry meaningful Body text so their whitespace-only
// indentation text is simply dropped.
func trimLeaves(e *Element) {
	if len(e.Children) == 0 {
		e.Body = strings.TrimSpace(e.Body)
	} else {
		e.Body = ""
	}
	for _, c := range e.Children {
		trimLeaves(c)
	}
}

// Render serializes e back to XML text.
func Render(e *Element) (string, error) {
	var buf bytes.Buffer
	if err := render(&buf, e); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func render(buf *bytes.Buffer, e *Element) error {
	buf.WriteByte('<')
	buf.WriteString(e.Name)
	if e.Namespace != "" {
		buf.WriteString(` xmlns="`)
		xml.EscapeText(buf, []byte(e.Namespace)) // nolint: errcheck
		buf.WriteByte('"')
	}
	for _, a := range e.Attrs {
		buf.WriteByte(' ')
		buf.WriteString(a.Name)
		buf.WriteString(`="`)
		xml.EscapeText(buf, []byte(a.Value)) // nolint: errcheck
		buf.WriteByte('"')
	}
	if len(e.Children) == 0 && e.Body == "" {
		buf.WriteString("/>")
		return nil
	}
	buf.WriteByte('>')
	if e.Body != "" {
		if err := xml.EscapeText(buf, []byte(e.Body)); err != nil {
			return err
		}
	}
	for _, c := range e.Children {
		if err := render(buf, c); err != nil {
			return err
		}
	}
	buf.WriteString("</")
	buf.WriteString(e.Name)
	buf.WriteByte('>')
	return nil
}
