// Package datastore implements the typed key/value facade over named
// configuration instances described in SPEC_FULL.md §4.2: candidate,
// running, startup, tmp and failsafe. Grounded on the datastore name and
// edit-config operation constants in the teacher's netconf/ops/model.go,
// generalized from an RPC-client's request builder into the server-side
// store those requests ultimately act on.
package datastore

import (
	"sync"

	"github.com/yangwire/ncbackend/xtree"
)

// Name identifies one of the well-known datastores.
type Name string

const (
	Candidate Name = "candidate"
	Running   Name = "running"
	Startup   Name = "startup"
	Tmp       Name = "tmp"
	Failsafe  Name = "failsafe"
)

// Op is an edit-config operation, per RFC 6241 §7.2.
type Op string

const (
	OpMerge   Op = "merge"
	OpReplace Op = "replace"
	OpCreate  Op = "create"
	OpDelete  Op = "delete"
	OpRemove  Op = "remove"
	OpNone    Op = "none"
)

// Content selects which parts of a datastore a get() returns.
type Content int

const (
	ContentConfig Content = iota
	ContentNonConfig
	ContentAll
)

// Result classifies the outcome of a facade operation.
type Result int

const (
	OK Result = iota
	NotFound
	Conflict
	Fatal
)

func (r Result) String() string {
	switch r {
	case OK:
		return "ok"
	case NotFound:
		return "not-found"
	case Conflict:
		return "conflict"
	default:
		return "fatal"
	}
}

// Backing is the persistence collaborator a datastore is written through;
// the default implementation (memBacking) is in-memory only. A real
// deployment supplies one that writes the configured per-datastore file
// under the datastore directory (§6 Persisted state), atomically at the
// file level as §5 requires.
type Backing interface {
	Load(name Name) (*xtree.Element, bool)
	Save(name Name, root *xtree.Element) error
	Remove(name Name) error
}

type memBacking struct {
	mu    sync.Mutex
	trees map[Name]*xtree.Element
}

// NewMemBacking returns an in-memory Backing; every Facade in this
// repository's tests uses one.
func NewMemBacking() Backing {
	return &memBacking{trees: map[Name]*xtree.Element{}}
}

func (b *memBacking) Load(name Name) (*xtree.Element, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.trees[name]
	return t, ok
}

func (b *memBacking) Save(name Name, root *xtree.Element) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trees[name] = root
	return nil
}

func (b *memBacking) Remove(name Name) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.trees, name)
	return nil
}

// store is one named configuration instance: its tree, dirty bit, and an
// optional cached rendering of the tree (invalidated write-through, §4.2).
type store struct {
	root  *xtree.Element
	dirty bool
	cache string
	cacheOK bool
}

// Options are the setopt() toggles §4.2 lists.
type Options struct {
	CacheEnabled bool
	PrettyPrint  bool
	Format       string // "xml" | "compact"
	NacmMode     string // "internal" | "external"
	NacmTree     *xtree.Element
}

// DefaultOptions matches the teacher's DefaultConfig/DefaultTransportConfig
// pattern: a package-level zero-value-plus-sane-defaults struct, merged
// with caller overrides by mergeOptions at construction time.
var DefaultOptions = Options{CacheEnabled: true, Format: "xml"}

// Facade is the Datastore Facade of SPEC_FULL.md §4.2.
type Facade struct {
	mu      sync.RWMutex
	stores  map[Name]*store
	backing Backing
	opts    Options
	locks   map[Name]uint32 // datastore -> holding session id
}

// New constructs an empty Facade backed by b, with the given options
// merged over DefaultOptions.
func New(b Backing, opts Options) *Facade {
	resolved := opts
	mergeOptions(&resolved, DefaultOptions)
	return &Facade{
		stores:  map[Name]*store{},
		backing: b,
		opts:    resolved,
		locks:   map[Name]uint32{},
	}
}

// mergeOptions fills zero-valued fields in dst from src, the same
// "caller value wins, defaults fill the gaps" rule mergo.Merge applies
// throughout the teacher library.
func mergeOptions(dst *Options, src Options) {
	if !dst.CacheEnabled && src.CacheEnabled {
		dst.CacheEnabled = src.CacheEnabled
	}
	if dst.Format == "" {
		dst.Format = src.Format
	}
}

// Exists reports whether name has been created in this process.
func (f *Facade) Exists(name Name) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.stores[name]
	return ok
}

// Create makes a new, empty datastore; Conflict if it already exists.
func (f *Facade) Create(name Name) Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.stores[name]; ok {
		return Conflict
	}
	f.stores[name] = &store{root: xtree.New("", "config")}
	return OK
}

// Delete removes name; NotFound if it doesn't exist.
func (f *Facade) Delete(name Name) Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.stores[name]; !ok {
		return NotFound
	}
	delete(f.stores, name)
	if f.backing != nil {
		_ = f.backing.Remove(name)
	}
	return OK
}

// Copy atomically replaces dst's tree with a clone of src's, per §4.2:
// observers of dst see either the old tree or the new one, never a
// partially-copied one, because the swap happens under the facade's
// single write lock with no partial mutation in between.
func (f *Facade) Copy(src, dst Name) Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.stores[src]
	if !ok {
		return NotFound
	}
	d, ok := f.stores[dst]
	if !ok {
		d = &store{}
		f.stores[dst] = d
	}
	d.root = s.root.Clone()
	d.dirty = true
	d.cacheOK = false
	f.persist(dst, d)
	return OK
}

// Get returns the subtree of name matching filter (an xpath-ish selector
// limited to a slash path in this implementation; the real XPath evaluator
// is out of scope, §1). An empty filter returns the whole datastore.
// content is not applied: config and non-config nodes are returned alike.
func (f *Facade) Get(name Name, filter string, content Content) (*xtree.Element, Result) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, ok := f.stores[name]
	if !ok {
		return nil, NotFound
	}
	if filter == "" || filter == "/" {
		return s.root.Clone(), OK
	}
	node, ok := resolvePath(s.root, filter)
	if !ok {
		return nil, NotFound
	}
	return node.Clone(), OK
}

// Put applies op to name at the path of cfg (cfg's own root element names
// the target node; its existing position in the tree, if any, is replaced
// or merged according to op). Semantics per §4.2.
func (f *Facade) Put(name Name, cfg *xtree.Element, op Op) Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.stores[name]
	if !ok {
		return NotFound
	}

	// Top-level elements are module-top containers, matched by name and
	// namespace alone, so merging <top><b/></top> into an existing
	// <top><a/></top> updates it instead of adding a second <top>.
	var existing *xtree.Element
	found := false
	for _, c := range s.root.ChildrenNamed(cfg.Name) {
		if c.Namespace == cfg.Namespace {
			existing, found = c, true
			break
		}
	}

	switch op {
	case OpCreate:
		if found {
			return Conflict
		}
		s.root.AddChild(cfg.Clone())
	case OpDelete:
		if !found {
			return NotFound
		}
		removeChild(s.root, existing)
	case OpRemove:
		if found {
			removeChild(s.root, existing)
		}
	case OpReplace:
		if found {
			removeChild(s.root, existing)
		}
		s.root.AddChild(cfg.Clone())
	case OpNone:
		// no-op by definition
	case OpMerge, "":
		if found {
			mergeInto(existing, cfg)
		} else {
			s.root.AddChild(cfg.Clone())
		}
	default:
		return Fatal
	}

	s.dirty = true
	s.cacheOK = false
	f.persist(name, s)
	return OK
}

// Lock attempts to take the advisory lock on name for session. Per §4.7
// this lock is logical, enforced by the dispatcher calling here; the
// facade only tracks holder identity.
func (f *Facade) Lock(name Name, session uint32) (holder uint32, result Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if h, ok := f.locks[name]; ok {
		return h, Conflict
	}
	f.locks[name] = session
	return session, OK
}

// Unlock releases name's lock if held by session; NotFound if session
// doesn't hold it (including if nobody does).
func (f *Facade) Unlock(name Name, session uint32) Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	if h, ok := f.locks[name]; !ok || h != session {
		return NotFound
	}
	delete(f.locks, name)
	return OK
}

// LockHolder reports the session currently holding name's lock, if any.
func (f *Facade) LockHolder(name Name) (uint32, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	h, ok := f.locks[name]
	return h, ok
}

// ReleaseSessionLocks drops every lock held by session, the action taken
// on session termination per §3's lock invariant (released even if the
// session crashed).
func (f *Facade) ReleaseSessionLocks(session uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for name, holder := range f.locks {
		if holder == session {
			delete(f.locks, name)
		}
	}
}

// SetOpt applies one of the §4.2 setopt() toggles.
func (f *Facade) SetOpt(key, val string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch key {
	case "cache":
		f.opts.CacheEnabled = val == "on"
	case "pretty-print":
		f.opts.PrettyPrint = val == "on"
	case "format":
		f.opts.Format = val
	case "nacm-mode":
		f.opts.NacmMode = val
	}
}

// Render returns the cached serialized form of name if caching is enabled
// and the cache is valid, (re)computing and caching it otherwise.
func (f *Facade) Render(name Name) (string, Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.stores[name]
	if !ok {
		return "", NotFound
	}
	if f.opts.CacheEnabled && s.cacheOK {
		return s.cache, OK
	}
	text, err := xtree.Render(s.root)
	if err != nil {
		return "", Fatal
	}
	if f.opts.CacheEnabled {
		s.cache, s.cacheOK = text, true
	}
	return text, OK
}

// persist writes a dirty store through Backing, the write-through policy
// §4.2 specifies; cache invalidation already happened at the call site.
func (f *Facade) persist(name Name, s *store) {
	if f.backing != nil {
		_ = f.backing.Save(name, s.root)
	}
}

// Root returns the live (not cloned) root of name, for callers inside this
// package family (validator, commit engine) that need read access without
// the clone overhead of Get. External callers should use Get.
func (f *Facade) Root(name Name) (*xtree.Element, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, ok := f.stores[name]
	if !ok {
		return nil, false
	}
	return s.root, true
}

// SetRoot replaces name's tree wholesale, used by the commit engine to
// promote candidate into running and to restore a rollback image. Like
// Put/Lock, it requires name to already exist: it is NotFound, not a
// silent re-creation, that surfaces a deleted-out-from-under-it datastore
// to callers such as confirmed.SM's rollback path.
func (f *Facade) SetRoot(name Name, root *xtree.Element) Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.stores[name]
	if !ok {
		return NotFound
	}
	s.root = root
	s.dirty = true
	s.cacheOK = false
	f.persist(name, s)
	return OK
}

func resolvePath(root *xtree.Element, path string) (*xtree.Element, bool) {
	cur := root
	for _, seg := range splitPath(path) {
		next, ok := cur.Child(seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func splitPath(path string) []string {
	var segs []string
	for _, s := range trimSplit(path, '/') {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

func trimSplit(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

// findChild locates the existing element among root's children with cfg's
// local name (namespaces are not compared): for a leaf cfg, the first one;
// otherwise the first whose leaf children all have the same values in cfg
// (see sameIdentity), so an element whose leaf values differ from cfg's
// is not matched.
func findChild(root, cfg *xtree.Element) (*xtree.Element, bool) {
	candidates := root.ChildrenNamed(cfg.Name)
	if len(candidates) == 0 {
		return nil, false
	}
	if len(cfg.Children) == 0 {
		// leaf: first (and only meaningful) match.
		return candidates[0], true
	}
	for _, c := range candidates {
		if sameIdentity(c, cfg) {
			return c, true
		}
	}
	return nil, false
}

// sameIdentity reports whether a and b denote the same list entry, by
// comparing every leaf child a has against b's (a stand-in for true
// schema-driven key comparison, since the schema is an opaque collaborator
// here).
func sameIdentity(a, b *xtree.Element) bool {
	for _, ac := range a.Children {
		if len(ac.Children) != 0 {
			continue
		}
		bc, ok := b.Child(ac.Name)
		if !ok || bc.Body != ac.Body {
			return false
		}
	}
	return true
}

func removeChild(root, target *xtree.Element) {
	for i, c := range root.Children {
		if c == target {
			root.Children = append(root.Children[:i], root.Children[i+1:]...)
			return
		}
	}
}

// mergeInto adds or updates dst's children from src without removing
// dst's other siblings, per the merge semantics of §4.2.
func mergeInto(dst, src *xtree.Element) {
	if len(src.Children) == 0 {
		dst.Body = src.Body
		return
	}
	for _, sc := range src.Children {
		if dc, ok := findChild(dst, sc); ok {
			mergeInto(dc, sc)
		} else {
			dst.AddChild(sc.Clone())
		}
	}
}
