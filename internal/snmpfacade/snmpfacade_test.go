package snmpfacade_test

import (
	"encoding/asn1"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yangwire/ncbackend/datastore"
	"github.com/yangwire/ncbackend/internal/snmpfacade"
)

func rawInteger(v int64) *asn1.RawValue {
	data, _ := asn1.Marshal(v)
	data[0] = 0x02 // universal INTEGER
	var raw asn1.RawValue
	_, _ = asn1.Unmarshal(data, &raw)
	raw.FullBytes = data
	return &raw
}

func TestDecodeVariableInteger(t *testing.T) {
	tv, err := snmpfacade.DecodeVariable(rawInteger(42))
	require.NoError(t, err)
	assert.Equal(t, snmpfacade.Integer, tv.Type)
	assert.Equal(t, "42", tv.String())
	assert.True(t, tv.Present())
}

func TestTypedValuePresentIsFalseForSentinels(t *testing.T) {
	tv := &snmpfacade.TypedValue{Type: snmpfacade.EndOfMib}
	assert.False(t, tv.Present())
	tv2 := &snmpfacade.TypedValue{Type: snmpfacade.NoSuchInstance}
	assert.False(t, tv2.Present())
}

func newStore(t *testing.T) *datastore.Facade {
	t.Helper()
	store := datastore.New(datastore.NewMemBacking(), datastore.Options{})
	require.Equal(t, datastore.OK, store.Create(datastore.Running))
	return store
}

func TestApplyWritesResolvedBindingIntoDatastore(t *testing.T) {
	store := newStore(t)

	resolver := func(oid asn1.ObjectIdentifier) (string, map[string]string, bool) {
		if oid.Equal(asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 1, 1}) {
			return "/system/uptime", nil, true
		}
		return "", nil, false
	}

	var skips []string
	f := snmpfacade.New(store, resolver, func(oid asn1.ObjectIdentifier, reason string) {
		skips = append(skips, reason)
	})

	bindings := []snmpfacade.Binding{
		{OID: asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 1, 1}, Value: &snmpfacade.TypedValue{Type: snmpfacade.Integer, Value: int64(99)}},
	}

	applied, skipped := f.Apply(datastore.Running, bindings)
	assert.Equal(t, 1, applied)
	assert.Equal(t, 0, skipped)
	assert.Empty(t, skips)

	root, res := store.Get(datastore.Running, "/system/uptime", datastore.ContentAll)
	require.Equal(t, datastore.OK, res)
	assert.Equal(t, "99", root.Body)
}

func TestApplySkipsUnmappedOIDAndLogsReason(t *testing.T) {
	store := newStore(t)

	resolver := func(oid asn1.ObjectIdentifier) (string, map[string]string, bool) {
		return "", nil, false
	}

	var reasons []string
	f := snmpfacade.New(store, resolver, func(oid asn1.ObjectIdentifier, reason string) {
		reasons = append(reasons, reason)
	})

	bindings := []snmpfacade.Binding{
		{OID: asn1.ObjectIdentifier{1, 3, 6, 1, 99}, Value: &snmpfacade.TypedValue{Type: snmpfacade.Integer, Value: int64(1)}},
	}
	applied, skipped := f.Apply(datastore.Running, bindings)
	assert.Equal(t, 0, applied)
	assert.Equal(t, 1, skipped)
	require.Len(t, reasons, 1)
	assert.Contains(t, reasons[0], "no schema mapping")
}

func TestApplySkipsAbsentValueWithoutCallingResolver(t *testing.T) {
	store := newStore(t)

	called := false
	resolver := func(oid asn1.ObjectIdentifier) (string, map[string]string, bool) {
		called = true
		return "", nil, false
	}

	f := snmpfacade.New(store, resolver, nil)
	bindings := []snmpfacade.Binding{
		{OID: asn1.ObjectIdentifier{1, 3, 6, 1, 99, 1}, Value: &snmpfacade.TypedValue{Type: snmpfacade.NoSuchInstance}},
	}
	applied, skipped := f.Apply(datastore.Running, bindings)
	assert.Equal(t, 0, applied)
	assert.Equal(t, 1, skipped)
	assert.False(t, called)
}

func TestApplyWritesListEntryIndexLeaves(t *testing.T) {
	store := newStore(t)

	resolver := func(oid asn1.ObjectIdentifier) (string, map[string]string, bool) {
		return "/interfaces/interface/oper-status", map[string]string{"name": "eth0"}, true
	}
	f := snmpfacade.New(store, resolver, nil)

	bindings := []snmpfacade.Binding{
		{OID: asn1.ObjectIdentifier{1, 3, 6, 1, 2, 1, 2, 2, 1, 8, 1}, Value: &snmpfacade.TypedValue{Type: snmpfacade.Integer, Value: int64(1)}},
	}
	applied, _ := f.Apply(datastore.Running, bindings)
	assert.Equal(t, 1, applied)

	nameLeaf, res := store.Get(datastore.Running, "/interfaces/interface/name", datastore.ContentAll)
	require.Equal(t, datastore.OK, res)
	assert.Equal(t, "eth0", nameLeaf.Body)
}
