package validate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yangwire/ncbackend/errx"
	"github.com/yangwire/ncbackend/schema"
	"github.com/yangwire/ncbackend/validate"
	"github.com/yangwire/ncbackend/xtree"
)

func exampleSchema() schema.Schema {
	x := schema.NewNode("x", "", schema.KindLeaf).
		WithType(schema.Type{Name: "uint32", HasRange: true, MinRange: 0, MaxRange: 10}).
		WithMandatory()
	entry := schema.NewNode("entry", "", schema.KindList).
		WithKeys("k").
		WithUnique([]string{"v"})
	entry.AddChild(schema.NewNode("k", "", schema.KindLeaf).WithType(schema.Type{Name: "string"}))
	entry.AddChild(schema.NewNode("v", "", schema.KindLeaf).WithType(schema.Type{Name: "string"}))
	top := schema.NewNode("top", "urn:ex", schema.KindContainer).
		AddChild(x).
		AddChild(entry)
	mod := schema.NewModule("ex", "urn:ex").AddTop(top)
	return schema.New().Add(mod)
}

func tagsOf(errs []*errx.Error) []errx.Tag {
	var out []errx.Tag
	for _, e := range errs {
		out = append(out, e.Tag)
	}
	return out
}

func TestValidateAcceptsWellFormedTree(t *testing.T) {
	root, err := xtree.ParseString(`<top xmlns="urn:ex"><x>5</x></top>`)
	require.NoError(t, err)

	v := validate.New(exampleSchema())
	errs := v.Validate(root)
	assert.Empty(t, errs)
}

func TestValidateRejectsUnknownElement(t *testing.T) {
	root, err := xtree.ParseString(`<top xmlns="urn:ex"><x>5</x><bogus>1</bogus></top>`)
	require.NoError(t, err)

	v := validate.New(exampleSchema())
	errs := v.Validate(root)
	require.Len(t, errs, 1)
	assert.Equal(t, errx.UnknownElement, errs[0].Tag)
}

func TestValidateRejectsMissingMandatory(t *testing.T) {
	root, err := xtree.ParseString(`<top xmlns="urn:ex"></top>`)
	require.NoError(t, err)

	v := validate.New(exampleSchema())
	errs := v.Validate(root)
	require.Len(t, errs, 1)
	assert.Equal(t, errx.DataMissing, errs[0].Tag)
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	root, err := xtree.ParseString(`<top xmlns="urn:ex"><x>99</x></top>`)
	require.NoError(t, err)

	v := validate.New(exampleSchema())
	errs := v.Validate(root)
	require.Len(t, errs, 1)
	assert.Equal(t, errx.InvalidValue, errs[0].Tag)
}

func TestValidateRejectsNonUniqueSiblings(t *testing.T) {
	root, err := xtree.ParseString(`<top xmlns="urn:ex">
		<x>1</x>
		<entry><k>a</k><v>dup</v></entry>
		<entry><k>b</k><v>dup</v></entry>
	</top>`)
	require.NoError(t, err)

	v := validate.New(exampleSchema())
	errs := v.Validate(root)
	require.Len(t, errs, 1)
	assert.Equal(t, errx.OperationFailed, errs[0].Tag)
	assert.Equal(t, string(errx.DataNotUnique), errs[0].AppTag)
	assert.Len(t, errs[0].Info.NonUnique, 2)
}

func TestValidateStopsAtCap(t *testing.T) {
	xml := `<top xmlns="urn:ex"><x>1</x>`
	for i := 0; i < validate.MaxErrors+10; i++ {
		xml += `<bogus>1</bogus>`
	}
	xml += `</top>`
	root, err := xtree.ParseString(xml)
	require.NoError(t, err)

	v := validate.New(exampleSchema())
	errs := v.Validate(root)
	assert.LessOrEqual(t, len(errs), validate.MaxErrors)
}

func TestValidateUnknownTopLevel(t *testing.T) {
	root, err := xtree.ParseString(`<nosuch xmlns="urn:other"/>`)
	require.NoError(t, err)

	v := validate.New(exampleSchema())
	errs := v.Validate(root)
	require.Len(t, errs, 1)
	assert.Equal(t, errx.UnknownElement, errs[0].Tag)
}

func leafrefSchema() schema.Schema {
	k := schema.NewNode("k", "", schema.KindLeaf).WithType(schema.Type{Name: "string"})
	entry := schema.NewNode("entry", "", schema.KindList).WithKeys("k").AddChild(k)
	ref := schema.NewNode("ref", "", schema.KindLeaf).
		WithType(schema.Type{Name: "leafref", Path: "/top/entry/k"})
	top := schema.NewNode("top", "urn:ex", schema.KindContainer).AddChild(entry).AddChild(ref)
	mod := schema.NewModule("ex", "urn:ex").AddTop(top)
	return schema.New().Add(mod)
}

func TestValidateAcceptsLeafrefMatchingTarget(t *testing.T) {
	root, err := xtree.ParseString(`<top xmlns="urn:ex"><entry><k>a</k></entry><ref>a</ref></top>`)
	require.NoError(t, err)

	v := validate.New(leafrefSchema())
	assert.Empty(t, v.Validate(root))
}

func TestValidateRejectsLeafrefWithNoTarget(t *testing.T) {
	root, err := xtree.ParseString(`<top xmlns="urn:ex"><entry><k>a</k></entry><ref>z</ref></top>`)
	require.NoError(t, err)

	v := validate.New(leafrefSchema())
	errs := v.Validate(root)
	require.Len(t, errs, 1)
	assert.Equal(t, errx.InvalidValue, errs[0].Tag)
}

func mustSchema() schema.Schema {
	v := schema.NewNode("v", "", schema.KindLeaf).WithType(schema.Type{Name: "string"})
	entry := schema.NewNode("entry", "", schema.KindContainer).
		WithMust(schema.MustExpr{XPath: "v", ErrorAppTag: "need-v", ErrorMessage: "entry needs v"}).
		AddChild(v)
	top := schema.NewNode("top", "urn:ex", schema.KindContainer).AddChild(entry)
	mod := schema.NewModule("ex", "urn:ex").AddTop(top)
	return schema.New().Add(mod)
}

func TestValidateRejectsFailingMust(t *testing.T) {
	root, err := xtree.ParseString(`<top xmlns="urn:ex"><entry></entry></top>`)
	require.NoError(t, err)

	v := validate.New(mustSchema())
	errs := v.Validate(root)
	require.Len(t, errs, 1)
	assert.Equal(t, errx.OperationFailed, errs[0].Tag)
	assert.Equal(t, "need-v", errs[0].AppTag)
	assert.Equal(t, "entry needs v", errs[0].Message)
}

func TestValidateAcceptsSatisfiedMust(t *testing.T) {
	root, err := xtree.ParseString(`<top xmlns="urn:ex"><entry><v>x</v></entry></top>`)
	require.NoError(t, err)

	v := validate.New(mustSchema())
	assert.Empty(t, v.Validate(root))
}

func whenSchema() schema.Schema {
	inner := schema.NewNode("inner", "", schema.KindLeaf).WithType(schema.Type{Name: "string"}).WithMandatory()
	flag := schema.NewNode("flag", "", schema.KindLeaf).WithType(schema.Type{Name: "string"})
	entry := schema.NewNode("entry", "", schema.KindContainer).WithWhen("flag").AddChild(inner).AddChild(flag)
	top := schema.NewNode("top", "urn:ex", schema.KindContainer).AddChild(entry)
	mod := schema.NewModule("ex", "urn:ex").AddTop(top)
	return schema.New().Add(mod)
}

func TestValidateSkipsSubtreeWhenWhenFails(t *testing.T) {
	root, err := xtree.ParseString(`<top xmlns="urn:ex"><entry></entry></top>`)
	require.NoError(t, err)

	v := validate.New(whenSchema())
	assert.Empty(t, v.Validate(root), "entry's missing mandatory child should be skipped: its when-condition (flag) is absent")
}

func TestValidateChecksSubtreeWhenWhenHolds(t *testing.T) {
	root, err := xtree.ParseString(`<top xmlns="urn:ex"><entry><flag>1</flag></entry></top>`)
	require.NoError(t, err)

	v := validate.New(whenSchema())
	errs := v.Validate(root)
	require.Len(t, errs, 1)
	assert.Equal(t, errx.DataMissing, errs[0].Tag)
}
