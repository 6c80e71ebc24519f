package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/logsync/internal/ir"
)

func TestClassifyGroupsByCollectionAndKey(t *testing.T) {
	entries := []ir.LogEntry{
		del(1, nil),
		ir.DeleteEntry{EntryHeader: header("notes", ir.IRString("list-one"), 2, nil)},
		modify(3, nil, "title", ir.IRString("x")),
		ir.DeleteEntry{EntryHeader: header("lists", ir.IRString("list-two"), 4, nil)},
	}

	b := Classify(entries)

	require.Len(t, b.Collections, 2)
	assert.Equal(t, "lists", b.Collections[0].Name)
	assert.Equal(t, "notes", b.Collections[1].Name)
	assert.Equal(t, 3, b.Len())

	lists := b.Collections[0]
	require.Len(t, lists.Objects, 2)
	assert.Equal(t, ir.IRString("list-one"), lists.Objects[0].PK)
	assert.Equal(t, []int{0, 2}, lists.Objects[0].Indices)
	assert.Equal(t, ir.KindDelete, lists.Objects[0].Entries[0].Kind())
	assert.Equal(t, ir.KindModify, lists.Objects[0].Entries[1].Kind())
	assert.Equal(t, ir.IRString("list-two"), lists.Objects[1].PK)
}

func TestClassifyCompoundKeys(t *testing.T) {
	pkA := ir.IRArray{ir.IRString("list-one"), ir.IRInt(3)}
	pkB := ir.IRArray{ir.IRString("list-one"), ir.IRInt(3)}
	entries := []ir.LogEntry{
		ir.DeleteEntry{EntryHeader: header("listEntry", pkA, 1, nil)},
		ir.DeleteEntry{EntryHeader: header("listEntry", pkB, 2, nil)},
	}

	b := Classify(entries)

	require.Len(t, b.Collections, 1)
	require.Len(t, b.Collections[0].Objects, 1)
	assert.Len(t, b.Lookup("listEntry", ir.IRArray{ir.IRString("list-one"), ir.IRInt(3)}), 2)
	assert.Nil(t, b.Lookup("listEntry", ir.IRArray{ir.IRString("list-one"), ir.IRInt(4)}))
	assert.Nil(t, b.Lookup("lists", pkA))
}

func TestClassifyEmpty(t *testing.T) {
	b := Classify(nil)
	assert.Empty(t, b.Collections)
	assert.Equal(t, 0, b.Len())
}
