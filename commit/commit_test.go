package commit_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yangwire/ncbackend/commit"
	"github.com/yangwire/ncbackend/datastore"
	"github.com/yangwire/ncbackend/schema"
	"github.com/yangwire/ncbackend/validate"
	"github.com/yangwire/ncbackend/xtree"
)

// recordingCallback is a hand-written stand-in for a gomock-generated
// mock; golang/mock's mockgen can't be run in this environment, so the
// expectation bookkeeping is done by hand in the teacher's own test style.
type recordingCallback struct {
	precommits, commits, commitDones, aborts int
	failPreCommit, failCommit                bool
}

func (r *recordingCallback) PreCommit(ctx context.Context, d commit.Diff) error {
	r.precommits++
	if r.failPreCommit {
		return assert.AnError
	}
	return nil
}

func (r *recordingCallback) Commit(ctx context.Context, d commit.Diff) error {
	r.commits++
	if r.failCommit {
		return assert.AnError
	}
	return nil
}

func (r *recordingCallback) CommitDone(ctx context.Context, d commit.Diff) { r.commitDones++ }
func (r *recordingCallback) Abort(ctx context.Context, d commit.Diff)      { r.aborts++ }

func exampleSchema() schema.Schema {
	x := schema.NewNode("x", "", schema.KindLeaf).WithType(schema.Type{Name: "uint32"})
	top := schema.NewNode("top", "urn:ex", schema.KindContainer).AddChild(x)
	mod := schema.NewModule("ex", "urn:ex").AddTop(top)
	return schema.New().Add(mod)
}

func newEngine(t *testing.T) (*commit.Engine, *datastore.Facade) {
	t.Helper()
	store := datastore.New(datastore.NewMemBacking(), datastore.Options{})
	require.Equal(t, datastore.OK, store.Create(datastore.Running))
	require.Equal(t, datastore.OK, store.Create(datastore.Candidate))
	v := validate.New(exampleSchema())
	return commit.New(store, v), store
}

func TestCommitPromotesCandidateIntoRunning(t *testing.T) {
	e, store := newEngine(t)
	top := xtree.New("urn:ex", "top")
	top.AddChild(&xtree.Element{Name: "x", Body: "5"})
	require.Equal(t, datastore.OK, store.Put(datastore.Candidate, top, datastore.OpMerge))

	res := e.Commit(context.Background())
	require.True(t, res.OK)

	running, _ := store.Get(datastore.Running, "/top", datastore.ContentAll)
	x, ok := running.Child("x")
	require.True(t, ok)
	assert.Equal(t, "5", x.Body)
}

func TestCommitIsNoopWhenNothingChanged(t *testing.T) {
	e, _ := newEngine(t)
	cb := &recordingCallback{}
	e.Register(cb)

	res := e.Commit(context.Background())
	require.True(t, res.OK)
	assert.Zero(t, cb.precommits)
}

func TestCommitRunsCallbacksInOrder(t *testing.T) {
	e, store := newEngine(t)
	cb1 := &recordingCallback{}
	cb2 := &recordingCallback{}
	e.Register(cb1)
	e.Register(cb2)

	top := xtree.New("urn:ex", "top")
	top.AddChild(&xtree.Element{Name: "x", Body: "1"})
	require.Equal(t, datastore.OK, store.Put(datastore.Candidate, top, datastore.OpMerge))

	res := e.Commit(context.Background())
	require.True(t, res.OK)
	assert.Equal(t, 1, cb1.precommits)
	assert.Equal(t, 1, cb1.commits)
	assert.Equal(t, 1, cb1.commitDones)
	assert.Equal(t, 1, cb2.precommits)
}

func TestCommitAbortsOnPreCommitFailure(t *testing.T) {
	e, store := newEngine(t)
	cb1 := &recordingCallback{}
	cb2 := &recordingCallback{failPreCommit: true}
	e.Register(cb1)
	e.Register(cb2)

	top := xtree.New("urn:ex", "top")
	top.AddChild(&xtree.Element{Name: "x", Body: "1"})
	require.Equal(t, datastore.OK, store.Put(datastore.Candidate, top, datastore.OpMerge))

	res := e.Commit(context.Background())
	require.False(t, res.OK)
	require.NotEmpty(t, res.Errors)
	// no commit callback ran, so none is aborted.
	assert.Equal(t, 0, cb1.aborts)
	assert.Equal(t, 0, cb2.aborts)

	_, res2 := store.Get(datastore.Running, "/top/x", datastore.ContentAll)
	assert.Equal(t, datastore.NotFound, res2)
}

func TestCommitRejectsInvalidCandidate(t *testing.T) {
	e, store := newEngine(t)
	top := xtree.New("urn:ex", "top")
	top.AddChild(&xtree.Element{Name: "x", Body: "not-a-number"})
	require.Equal(t, datastore.OK, store.Put(datastore.Candidate, top, datastore.OpMerge))

	res := e.Commit(context.Background())
	require.False(t, res.OK)
	require.NotEmpty(t, res.Errors)
}

func TestLoadStartupInitLeavesRunningEmpty(t *testing.T) {
	e, store := newEngine(t)
	status := e.LoadStartup(context.Background(), commit.StartupInit)
	assert.Equal(t, commit.StartupOK, status)

	running, _ := store.Get(datastore.Running, "/", datastore.ContentAll)
	assert.Empty(t, running.Children)
}

func TestLoadStartupFromStartupDatastore(t *testing.T) {
	e, store := newEngine(t)
	require.Equal(t, datastore.OK, store.Create(datastore.Startup))
	top := xtree.New("urn:ex", "top")
	top.AddChild(&xtree.Element{Name: "x", Body: "3"})
	require.Equal(t, datastore.OK, store.Put(datastore.Startup, top, datastore.OpMerge))

	status := e.LoadStartup(context.Background(), commit.StartupStartup)
	assert.Equal(t, commit.StartupOK, status)

	running, _ := store.Get(datastore.Running, "/top", datastore.ContentAll)
	x, ok := running.Child("x")
	require.True(t, ok)
	assert.Equal(t, "3", x.Body)
}

func TestLoadStartupMissingStartupIsErr(t *testing.T) {
	e, _ := newEngine(t)
	status := e.LoadStartup(context.Background(), commit.StartupStartup)
	assert.Equal(t, commit.StartupErr, status)
}

func TestLoadStartupRunningRevalidatesRunning(t *testing.T) {
	e, store := newEngine(t)
	top := xtree.New("urn:ex", "top")
	top.AddChild(&xtree.Element{Name: "x", Body: "7"})
	require.Equal(t, datastore.OK, store.SetRoot(datastore.Running, xtree.New("", "config").AddChild(top)))

	status := e.LoadStartup(context.Background(), commit.StartupRunning)
	assert.Equal(t, commit.StartupOK, status)

	running, _ := store.Get(datastore.Running, "/top", datastore.ContentAll)
	x, ok := running.Child("x")
	require.True(t, ok)
	assert.Equal(t, "7", x.Body)
}

func TestLoadStartupRunningRejectsInvalidRunning(t *testing.T) {
	e, store := newEngine(t)
	top := xtree.New("urn:ex", "top")
	top.AddChild(&xtree.Element{Name: "x", Body: "not-a-number"})
	require.Equal(t, datastore.OK, store.SetRoot(datastore.Running, xtree.New("", "config").AddChild(top)))

	status := e.LoadStartup(context.Background(), commit.StartupRunning)
	assert.Equal(t, commit.StartupErr, status)
}
