package datastore_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yangwire/ncbackend/datastore"
	"github.com/yangwire/ncbackend/xtree"
)

func TestFileBackingRoundTripsSavedTree(t *testing.T) {
	dir := t.TempDir()
	backing, err := datastore.NewFileBacking(dir)
	require.NoError(t, err)

	top := xtree.New("", "top")
	leaf := xtree.New("", "hostname")
	leaf.Body = "router1"
	top.AddChild(leaf)

	require.NoError(t, backing.Save(datastore.Running, top))

	loaded, ok := backing.Load(datastore.Running)
	require.True(t, ok)
	assert.True(t, xtree.Equal(top, loaded))
	assert.FileExists(t, filepath.Join(dir, "running.xml"))
}

func TestFileBackingLoadMissingReturnsNotOK(t *testing.T) {
	dir := t.TempDir()
	backing, err := datastore.NewFileBacking(dir)
	require.NoError(t, err)

	_, ok := backing.Load(datastore.Startup)
	assert.False(t, ok)
}

func TestFileBackingRemoveThenLoadIsNotOK(t *testing.T) {
	dir := t.TempDir()
	backing, err := datastore.NewFileBacking(dir)
	require.NoError(t, err)

	top := xtree.New("", "top")
	require.NoError(t, backing.Save(datastore.Candidate, top))
	require.NoError(t, backing.Remove(datastore.Candidate))

	_, ok := backing.Load(datastore.Candidate)
	assert.False(t, ok)
}

func TestFileBackingFacadeIntegration(t *testing.T) {
	dir := t.TempDir()
	backing, err := datastore.NewFileBacking(dir)
	require.NoError(t, err)

	f := datastore.New(backing, datastore.Options{})
	require.Equal(t, datastore.OK, f.Create(datastore.Running))

	leaf := xtree.New("", "x")
	leaf.Body = "7"
	top := xtree.New("", "top")
	top.AddChild(leaf)
	require.Equal(t, datastore.OK, f.Put(datastore.Running, top, datastore.OpCreate))

	got, res := f.Get(datastore.Running, "/top/x", datastore.ContentAll)
	require.Equal(t, datastore.OK, res)
	assert.Equal(t, "7", got.Body)
}
