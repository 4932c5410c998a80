// Package validate implements the Validator of SPEC_FULL.md §4.3: schema
// linking, type/range checking, mandatory/choice checking, min/max-elements
// checking and unique-constraint checking over a candidate tree, collecting
// errors in document order up to an implementation-defined cap. Grounded on
// the error shapes clixon_netconf_lib.c builds for unique/minmax/mandatory
// violations, rendered here through errx instead of hand-built XML.
package validate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/yangwire/ncbackend/errx"
	"github.com/yangwire/ncbackend/schema"
	"github.com/yangwire/ncbackend/xtree"
)

// MaxErrors bounds how many errors a single Validate call collects before
// it stops descending, the "implementation-defined cap" §4.3 calls for.
const MaxErrors = 64

// Resolver looks up a leafref's target value in the tree being validated,
// the only piece of leafref/when/must evaluation this package implements
// directly; a full XPath engine is out of scope (§1).
type Resolver interface {
	// Lookup returns the string value(s) present at path, relative to the
	// document root, or nil if nothing is there.
	Lookup(path string) []string
}

// Evaluator resolves the boolean result of a when/must XPath expression
// against the element it's attached to. A full XPath engine is out of
// scope (§1); defaultEvaluator only understands the handful of forms that
// appear in this repository's own fixtures and tests. Callers needing real
// XPath semantics supply their own Evaluator via WithEvaluator.
type Evaluator func(expr string, el *xtree.Element) bool

// defaultEvaluator understands boolean literals (true()/false()), bare
// child-node existence tests, and not(...) negation of either.
func defaultEvaluator(expr string, el *xtree.Element) bool {
	expr = strings.TrimSpace(expr)
	switch expr {
	case "true()", "":
		return true
	case "false()":
		return false
	}
	if strings.HasPrefix(expr, "not(") && strings.HasSuffix(expr, ")") {
		return !defaultEvaluator(expr[len("not("):len(expr)-1], el)
	}
	_, ok := el.Child(expr)
	return ok
}

// treeResolver is the Resolver used when a caller supplies none: it
// searches the document being validated for elements matching the leafref
// path's final step, which covers the common case of a leafref pointing
// elsewhere in the same instance document.
type treeResolver struct {
	root *xtree.Element
}

func (r *treeResolver) Lookup(path string) []string {
	name := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		name = path[i+1:]
	}
	name = strings.TrimPrefix(name, "../")

	var vals []string
	var walk func(*xtree.Element)
	walk = func(el *xtree.Element) {
		if el.Name == name {
			vals = append(vals, el.Body)
		}
		for _, c := range el.Children {
			walk(c)
		}
	}
	walk(r.root)
	return vals
}

// Validator runs schema-driven checks over a tree.
type Validator struct {
	sch      schema.Schema
	resolver Resolver
	eval     Evaluator
}

// New constructs a Validator bound to sch, using the built-in tree
// resolver and expression evaluator until overridden.
func New(sch schema.Schema) *Validator {
	return &Validator{sch: sch, eval: defaultEvaluator}
}

// WithResolver overrides the Resolver used for leafref checks (§4.3 rule
// 6); nil falls back to the per-document tree resolver Validate builds
// automatically.
func (v *Validator) WithResolver(r Resolver) *Validator {
	v.resolver = r
	return v
}

// WithEvaluator overrides the when/must expression evaluator (§4.3 rule 7).
func (v *Validator) WithEvaluator(e Evaluator) *Validator {
	v.eval = e
	return v
}

// Validate checks root (which must already carry a module namespace at its
// own top level) against the validator's schema, returning every error
// found in document order, capped at MaxErrors.
func (v *Validator) Validate(root *xtree.Element) []*errx.Error {
	c := &collector{max: MaxErrors}
	node, ok := v.resolveRoot(root)
	if !ok {
		c.add(errx.UnknownElementErr(errx.Application, root.Name, fmt.Sprintf("unknown top-level element %q", root.Name)))
		return c.errs
	}
	resolver := v.resolver
	if resolver == nil {
		resolver = &treeResolver{root: root}
	}
	v.walk(root, node, resolver, c)
	return c.errs
}

// resolveRoot finds the schema node for a document's top element among the
// top-level nodes of the modules whose namespace equals the element's.
func (v *Validator) resolveRoot(el *xtree.Element) (schema.Node, bool) {
	for _, mod := range v.sch.Modules() {
		if mod.Namespace() != el.Namespace {
			continue
		}
		if n, ok := mod.Node(el.Name); ok {
			return n, true
		}
	}
	return nil, false
}

type collector struct {
	errs []*errx.Error
	max  int
}

func (c *collector) add(e *errx.Error) bool {
	if len(c.errs) >= c.max {
		return false
	}
	c.errs = append(c.errs, e)
	return len(c.errs) < c.max
}

// walk validates el against node and recurses into children, stopping
// early once the collector's cap is hit. A failing when-statement prunes
// the subtree per §4.3 rule 7: node simply isn't checked further, the way
// YANG treats data not satisfying its when-condition as absent.
func (v *Validator) walk(el *xtree.Element, node schema.Node, resolver Resolver, c *collector) {
	el.SchemaPath = el.Path()
	if len(c.errs) >= c.max {
		return
	}
	if node.When() != "" && !v.eval(node.When(), el) {
		return
	}
	if !v.checkMust(el, node, c) {
		return
	}

	switch node.Kind() {
	case schema.KindLeaf, schema.KindLeafList:
		v.checkType(el, node, resolver, c)
	case schema.KindContainer, schema.KindList, schema.KindCase, schema.KindChoice:
		v.checkChildren(el, node, resolver, c)
	}
}

// checkMust evaluates node's must-statements against el, per §4.3 rule 7.
// A failure is operation-failed, using the must's own error-app-tag and
// error-message when the schema supplies them.
func (v *Validator) checkMust(el *xtree.Element, node schema.Node, c *collector) bool {
	for _, m := range node.Must() {
		if v.eval(m.XPath, el) {
			continue
		}
		msg := m.ErrorMessage
		if msg == "" {
			msg = fmt.Sprintf("must constraint %q failed", m.XPath)
		}
		e := errx.OperationFailedErr(errx.Application, msg)
		e.Path = el.Path()
		if m.ErrorAppTag != "" {
			e.AppTag = m.ErrorAppTag
		}
		if !c.add(e) {
			return false
		}
	}
	return true
}

// checkChildren validates structural constraints (unknown elements,
// mandatory, min/max-elements, unique) among el's children against node's
// schema children, then recurses into each known child.
func (v *Validator) checkChildren(el *xtree.Element, node schema.Node, resolver Resolver, c *collector) {
	seen := map[string]int{}
	for _, child := range el.Children {
		seen[child.Name]++
		schChild, ok := node.Child(child.Name)
		if !ok {
			msg := fmt.Sprintf("unknown element %q", child.Name)
			if !c.add(errx.UnknownElementErr(errx.Application, child.Name, msg)) {
				return
			}
			continue
		}
		v.walk(child, schChild, resolver, c)
		if len(c.errs) >= c.max {
			return
		}
	}

	for _, schChild := range node.Children() {
		count := seen[schChild.Name()]
		childPath := el.Path() + "/" + schChild.Name()
		if schChild.Mandatory() && count == 0 {
			msg := fmt.Sprintf("mandatory element %q is missing", schChild.Name())
			if !c.add(errx.DataMissingErr(errx.Application, childPath, msg)) {
				return
			}
		}
		if min := schChild.MinElements(); min > 0 && count < min {
			e := errx.TooFewElementsErr(childPath, fmt.Sprintf("too few %q elements: need at least %d, have %d", schChild.Name(), min, count))
			if !c.add(e) {
				return
			}
		}
		if max := schChild.MaxElements(); max > 0 && count > max {
			e := errx.TooManyElementsErr(childPath, fmt.Sprintf("too many %q elements: allow at most %d, have %d", schChild.Name(), max, count))
			if !c.add(e) {
				return
			}
		}
	}

	if node.Kind() == schema.KindList {
		v.checkUnique(el, node, c)
	}
}

// checkLeafref resolves t's leafref path via resolver and reports
// invalid-value when el's body matches none of the target instances,
// per §4.3 rule 6. No resolver or no path statement skips the check.
func (v *Validator) checkLeafref(el *xtree.Element, t schema.Type, resolver Resolver, c *collector) {
	if resolver == nil || t.Path == "" {
		return
	}
	for _, candidate := range resolver.Lookup(t.Path) {
		if candidate == el.Body {
			return
		}
	}
	msg := fmt.Sprintf("leafref %q: no instance of %q has value %q", el.Path(), t.Path, el.Body)
	c.add(withPath(errx.InvalidValueErr(errx.Application, msg), el.Path()))
}

// checkUnique reports data-not-unique when two list-entry siblings share
// the same value for every leaf in one of node's unique groups. el here is
// a single entry; the caller (its parent's checkChildren) validates each
// entry independently, so uniqueness is actually checked from the parent
// across ChildrenNamed(node.Name()) -- done once per group, guarded so
// repeated sibling entries don't each re-report the same violation.
func (v *Validator) checkUnique(el *xtree.Element, node schema.Node, c *collector) {
	if el.Parent == nil {
		return
	}
	entries := el.Parent.ChildrenNamed(el.Name)
	if entries[0] != el {
		return // only the first entry in document order drives the check
	}
	for _, group := range node.Unique() {
		seen := map[string][]*xtree.Element{}
		for _, entry := range entries {
			key := uniqueKey(entry, group)
			seen[key] = append(seen[key], entry)
		}
		for _, dupes := range seen {
			if len(dupes) > 1 {
				var paths []string
				for _, d := range dupes {
					paths = append(paths, d.Path())
				}
				msg := fmt.Sprintf("%d entries of %q share the same unique value", len(dupes), el.Name)
				if !c.add(errx.DataNotUniqueErr(dupes[0].Path(), paths, msg)) {
					return
				}
			}
		}
	}
}

func uniqueKey(el *xtree.Element, leaves []string) string {
	var parts []string
	for _, leaf := range leaves {
		if c, ok := el.Child(leaf); ok {
			parts = append(parts, c.Body)
		} else {
			parts = append(parts, "\x00")
		}
	}
	return strings.Join(parts, "\x01")
}

// checkType validates a leaf/leaf-list value's lexical form against its
// schema type: range for numeric types, pattern for string types (through
// matchesPattern, which accepts every value), target resolution for leafref.
func (v *Validator) checkType(el *xtree.Element, node schema.Node, resolver Resolver, c *collector) {
	t := node.Type()
	if t.Name == "" {
		return
	}
	switch {
	case isIntegerType(t.Name):
		n, err := strconv.ParseInt(el.Body, 10, 64)
		if err != nil {
			c.add(withPath(errx.InvalidValueErr(errx.Application, fmt.Sprintf("%q is not a valid %s", el.Body, t.Name)), el.Path()))
			return
		}
		if t.HasRange && (n < t.MinRange || n > t.MaxRange) {
			c.add(withPath(errx.InvalidValueErr(errx.Application, fmt.Sprintf("%d out of range [%d,%d]", n, t.MinRange, t.MaxRange)), el.Path()))
		}
	case t.Name == "leafref":
		v.checkLeafref(el, t, resolver, c)
	case t.Pattern != "":
		if !matchesPattern(el.Body, t.Pattern) {
			c.add(withPath(errx.InvalidValueErr(errx.Application, fmt.Sprintf("%q does not match pattern %q", el.Body, t.Pattern)), el.Path()))
		}
	}
	if len(t.Enum) > 0 && !contains(t.Enum, el.Body) {
		c.add(withPath(errx.InvalidValueErr(errx.Application, fmt.Sprintf("%q is not one of %v", el.Body, t.Enum)), el.Path()))
	}
}

// withPath sets Path on a freshly built error and returns it, for the
// constructors (like InvalidValueErr) that don't take a path parameter.
func withPath(e *errx.Error, path string) *errx.Error {
	e.Path = path
	return e
}

func isIntegerType(name string) bool {
	switch name {
	case "int8", "int16", "int32", "int64", "uint8", "uint16", "uint32", "uint64":
		return true
	default:
		return false
	}
}

// matchesPattern accepts every value, so a type's Pattern is not enforced:
// full YANG patterns are XSD regular expressions, a different dialect than
// Go's regexp package, and no XSD-regex library appears in the corpus.
func matchesPattern(value, pattern string) bool {
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
