package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/logsync/internal/ir"
)

func TestResolvePKSingleField(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("lists", "id"))

	got, err := r.ResolvePK("lists", ir.IRString("list-one"))
	require.NoError(t, err)
	assert.True(t, ir.Equal(ir.IRObject{"id": ir.IRString("list-one")}, got))
}

func TestResolvePKCompound(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("listEntry", "list", "pos"))

	got, err := r.ResolvePK("listEntry", ir.IRArray{ir.IRString("list-one"), ir.IRInt(3)})
	require.NoError(t, err)
	assert.True(t, ir.Equal(ir.IRObject{
		"list": ir.IRString("list-one"),
		"pos":  ir.IRInt(3),
	}, got))
}

func TestResolvePKCompoundMismatch(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("listEntry", "list", "pos"))

	tests := []struct {
		name string
		pk   ir.IRValue
		msg  string
	}{
		{"scalar", ir.IRString("list-one"), "expected a tuple of 2 elements"},
		{"short tuple", ir.IRArray{ir.IRString("list-one")}, "expected 2 key elements, got 1"},
		{"long tuple", ir.IRArray{ir.IRString("a"), ir.IRInt(1), ir.IRInt(2)}, "expected 2 key elements, got 3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.ResolvePK("listEntry", tt.pk)
			require.Error(t, err)
			assert.True(t, IsResolveError(err))
			assert.Contains(t, err.Error(), tt.msg)
			assert.Contains(t, err.Error(), "listEntry")
		})
	}
}

func TestResolvePKUnknownCollection(t *testing.T) {
	got, err := NewRegistry().ResolvePK("lists", ir.IRString("list-one"))
	require.NoError(t, err)
	assert.True(t, ir.Equal(ir.IRObject{DefaultPKField: ir.IRString("list-one")}, got))

	_, err = NewRegistry(WithStrict()).ResolvePK("lists", ir.IRString("list-one"))
	require.Error(t, err)
	assert.True(t, IsResolveError(err))
	assert.Contains(t, err.Error(), "unknown collection")
}

func TestPKFields(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("listEntry", "list", "pos"))

	fields := r.PKFields("listEntry")
	assert.Equal(t, []string{"list", "pos"}, fields)

	fields[0] = "mutated"
	assert.Equal(t, []string{"list", "pos"}, r.PKFields("listEntry"))

	assert.Equal(t, []string{DefaultPKField}, r.PKFields("lists"))
	assert.Nil(t, NewRegistry(WithStrict()).PKFields("lists"))
}

func TestRegisterRejectsInvalidDeclarations(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register("", "id"))
	assert.Error(t, r.Register("lists"))
	assert.Error(t, r.Register("lists", ""))
	assert.Error(t, r.Register("lists", "id", "id"))
	assert.Empty(t, r.Collections())
}

func TestCollectionsSorted(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("notes", "id"))
	require.NoError(t, r.Register("lists", "id"))
	assert.Equal(t, []string{"lists", "notes"}, r.Collections())
}
