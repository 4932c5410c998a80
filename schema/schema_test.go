package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yangwire/ncbackend/schema"
)

func exampleSchema() schema.Schema {
	leaf := schema.NewNode("x", "", schema.KindLeaf).WithType(schema.Type{Name: "uint32"}).WithMandatory()
	top := schema.NewNode("top", "urn:ex", schema.KindContainer).AddChild(leaf)
	mod := schema.NewModule("ex", "urn:ex").AddTop(top)
	return schema.New().Add(mod)
}

func TestResolveTopLevelAndChild(t *testing.T) {
	s := exampleSchema()

	top, ok := s.Resolve("/ex:top")
	require.True(t, ok)
	assert.Equal(t, "top", top.Name())
	assert.Equal(t, "urn:ex", top.Namespace())

	leaf, ok := s.Resolve("/ex:top/x")
	require.True(t, ok)
	assert.Equal(t, "x", leaf.Name())
	assert.True(t, leaf.Mandatory())
	assert.Equal(t, "uint32", leaf.Type().Name)
}

func TestResolveUnknownPathFails(t *testing.T) {
	s := exampleSchema()
	_, ok := s.Resolve("/ex:top/nosuch")
	assert.False(t, ok)
}

func TestChildInheritsParentNamespace(t *testing.T) {
	leaf := schema.NewNode("x", "", schema.KindLeaf)
	top := schema.NewNode("top", "urn:ex", schema.KindContainer).AddChild(leaf)
	child, ok := top.Child("x")
	require.True(t, ok)
	assert.Equal(t, "urn:ex", child.Namespace())
}
