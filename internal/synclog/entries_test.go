package synclog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/logsync/internal/ir"
	"github.com/roach88/logsync/internal/testutil"
)

func listOne() ir.IRValue { return ir.IRString("list-one") }

func registerDevices(t *testing.T, l *Log, userID string, n int) []string {
	t.Helper()
	ids := make([]string, n)
	for i := range ids {
		id, err := l.CreateDeviceRecord(context.Background(), userID, 0)
		require.NoError(t, err)
		ids[i] = id
	}
	return ids
}

func TestAppendEntries_StampsSharedOn(t *testing.T) {
	l, _ := openTestLog(t)
	ctx := context.Background()
	devices := registerDevices(t, l, "user-1", 1)
	w := testutil.NewEntryWriter(nil)

	shared, err := l.AppendEntries(ctx, []ir.LogEntry{
		w.Create("lists", listOne(), ir.IRObject{"pk": listOne(), "title": ir.IRString("first")}),
		w.Modify("lists", listOne(), "title", ir.IRString("second")),
	}, "user-1", devices[0])
	require.NoError(t, err)
	require.Len(t, shared, 2)
	assert.Equal(t, int64(1), shared[0].SharedOn)
	assert.Equal(t, int64(2), shared[1].SharedOn)
	assert.Equal(t, devices[0], shared[0].DeviceID)

	shared, err = l.AppendEntries(ctx, []ir.LogEntry{w.Delete("lists", listOne())}, "user-1", devices[0])
	require.NoError(t, err)
	assert.Equal(t, int64(3), shared[0].SharedOn)
}

func TestAppendEntries_ClockResumesAfterReopen(t *testing.T) {
	l, path := openTestLog(t)
	ctx := context.Background()
	devices := registerDevices(t, l, "user-1", 1)
	w := testutil.NewEntryWriter(nil)

	_, err := l.AppendEntries(ctx, []ir.LogEntry{w.Delete("lists", listOne()), w.Delete("lists", listOne())}, "user-1", devices[0])
	require.NoError(t, err)
	require.NoError(t, l.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	shared, err := reopened.AppendEntries(ctx, []ir.LogEntry{w.Delete("lists", listOne())}, "user-1", devices[0])
	require.NoError(t, err)
	assert.Equal(t, int64(3), shared[0].SharedOn)
}

func TestAppendEntries_Rejects(t *testing.T) {
	l, _ := openTestLog(t)
	ctx := context.Background()
	devices := registerDevices(t, l, "user-1", 1)
	w := testutil.NewEntryWriter(nil)
	valid := w.Delete("lists", listOne())

	t.Run("unknown device", func(t *testing.T) {
		_, err := l.AppendEntries(ctx, []ir.LogEntry{valid}, "user-1", "missing")
		assert.True(t, errors.Is(err, ErrDeviceNotFound))
	})

	t.Run("other user's device", func(t *testing.T) {
		_, err := l.AppendEntries(ctx, []ir.LogEntry{valid}, "user-2", devices[0])
		assert.ErrorContains(t, err, "belongs to another user")
	})

	t.Run("invalid entry appends nothing", func(t *testing.T) {
		invalid := ir.ModifyEntry{EntryHeader: ir.EntryHeader{Collection: "lists", PK: listOne(), CreatedOn: 9}}
		_, err := l.AppendEntries(ctx, []ir.LogEntry{valid, invalid}, "user-1", devices[0])
		assert.ErrorContains(t, err, "entry 1")

		entries, err := l.FetchUnsyncedEntries(ctx, devices[0])
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestFetchUnsyncedEntries(t *testing.T) {
	l, _ := openTestLog(t)
	ctx := context.Background()
	devices := registerDevices(t, l, "user-1", 2)
	other, err := l.CreateDeviceRecord(ctx, "user-2", 0)
	require.NoError(t, err)
	w := testutil.NewEntryWriter(nil)

	compound := ir.IRArray{ir.IRString("list-one"), ir.IRInt(3)}
	_, err = l.AppendEntries(ctx, []ir.LogEntry{
		w.Create("lists", listOne(), ir.IRObject{"pk": listOne(), "prio": ir.IRInt(5), "note": ir.IRNull{}}),
		w.Modify("lists", listOne(), "title", ir.IRNull{}),
	}, "user-1", devices[0])
	require.NoError(t, err)
	_, err = l.AppendEntries(ctx, []ir.LogEntry{w.Delete("listEntry", compound)}, "user-1", devices[1])
	require.NoError(t, err)
	_, err = l.AppendEntries(ctx, []ir.LogEntry{w.Delete("lists", ir.IRString("foreign"))}, "user-2", other)
	require.NoError(t, err)

	entries, err := l.FetchUnsyncedEntries(ctx, devices[1])
	require.NoError(t, err)
	require.Len(t, entries, 3, "only the device user's entries")

	assert.Equal(t, []int64{1, 2, 3}, []int64{entries[0].SharedOn, entries[1].SharedOn, entries[2].SharedOn})

	create, ok := entries[0].Entry.(ir.CreateEntry)
	require.True(t, ok)
	assert.True(t, ir.Equal(ir.IRObject{"pk": listOne(), "prio": ir.IRInt(5), "note": ir.IRNull{}}, create.Value))
	assert.Equal(t, int64(1), create.CreatedOn)
	assert.False(t, create.IsSynced())

	modify, ok := entries[1].Entry.(ir.ModifyEntry)
	require.True(t, ok)
	assert.Equal(t, "title", modify.Field)
	assert.Equal(t, ir.IRNull{}, modify.Value)

	del, ok := entries[2].Entry.(ir.DeleteEntry)
	require.True(t, ok)
	assert.True(t, ir.Equal(compound, del.PK))
	assert.Equal(t, devices[1], entries[2].DeviceID)

	synced := entries[2].Synced()
	require.True(t, synced.Header().IsSynced())
	assert.Equal(t, int64(3), *synced.Header().SyncedOn)

	require.NoError(t, l.AdvanceHighWaterMark(ctx, devices[1], 2))
	entries, err = l.FetchUnsyncedEntries(ctx, devices[1])
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(3), entries[0].SharedOn)

	require.NoError(t, l.AdvanceHighWaterMark(ctx, devices[1], 3))
	entries, err = l.FetchUnsyncedEntries(ctx, devices[1])
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = l.FetchUnsyncedEntries(ctx, "missing")
	assert.True(t, errors.Is(err, ErrDeviceNotFound))
}

func TestFetchDeviceEntries(t *testing.T) {
	l, _ := openTestLog(t)
	ctx := context.Background()
	devices := registerDevices(t, l, "user-1", 2)
	w := testutil.NewEntryWriter(nil)

	_, err := l.AppendEntries(ctx, []ir.LogEntry{
		w.Modify("lists", listOne(), "title", ir.IRString("mine")),
		w.Modify("lists", ir.IRString("list-two"), "title", ir.IRString("unrelated")),
		w.Modify("notes", listOne(), "title", ir.IRString("other collection")),
	}, "user-1", devices[0])
	require.NoError(t, err)
	_, err = l.AppendEntries(ctx, []ir.LogEntry{
		w.Modify("lists", listOne(), "title", ir.IRString("theirs")),
	}, "user-1", devices[1])
	require.NoError(t, err)
	_, err = l.AppendEntries(ctx, []ir.LogEntry{
		w.Delete("lists", listOne()),
	}, "user-1", devices[0])
	require.NoError(t, err)

	refs := []ObjectRef{
		{Collection: "lists", PK: listOne()},
		{Collection: "lists", PK: listOne()},
	}
	entries, err := l.FetchDeviceEntries(ctx, devices[0], refs)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].SharedOn)
	assert.Equal(t, int64(5), entries[1].SharedOn)
	assert.Equal(t, ir.KindDelete, entries[1].Entry.Kind())

	entries, err = l.FetchDeviceEntries(ctx, devices[0], nil)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = l.FetchDeviceEntries(ctx, "missing", refs)
	assert.True(t, errors.Is(err, ErrDeviceNotFound))
}

func TestFetchDeviceEntriesManyObjects(t *testing.T) {
	l, _ := openTestLog(t)
	ctx := context.Background()
	devices := registerDevices(t, l, "user-1", 1)
	w := testutil.NewEntryWriter(nil)

	n := objectsPerQuery + 50
	batch := make([]ir.LogEntry, 0, n+1)
	refs := make([]ObjectRef, 0, n)
	for i := range n {
		pk := ir.IRInt(int64(i))
		batch = append(batch, w.Modify("lists", pk, "title", ir.IRString(fmt.Sprintf("list %d", i))))
		refs = append(refs, ObjectRef{Collection: "lists", PK: pk})
	}
	batch = append(batch, w.Modify("notes", ir.IRInt(0), "title", ir.IRString("not requested")))
	_, err := l.AppendEntries(ctx, batch, "user-1", devices[0])
	require.NoError(t, err)

	// Requested in reverse so results cannot simply follow refs order.
	slices.Reverse(refs)
	entries, err := l.FetchDeviceEntries(ctx, devices[0], refs)
	require.NoError(t, err)
	require.Len(t, entries, n)
	for i, e := range entries {
		assert.Equal(t, int64(i+1), e.SharedOn)
		assert.Equal(t, "lists", e.Entry.Header().Collection)
	}
}

func TestEntriesPreserveStrings(t *testing.T) {
	l, _ := openTestLog(t)
	ctx := context.Background()
	devices := registerDevices(t, l, "user-1", 1)
	w := testutil.NewEntryWriter(nil)

	decomposed := ir.IRString("cafe\u0301")
	value := ir.IRObject{"cafe\u0301": ir.IRString("na\u0303o")}
	_, err := l.AppendEntries(ctx, []ir.LogEntry{
		w.Create("lists", decomposed, value),
	}, "user-1", devices[0])
	require.NoError(t, err)

	entries, err := l.FetchDeviceEntries(ctx, devices[0], []ObjectRef{{Collection: "lists", PK: decomposed}})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	created, ok := entries[0].Entry.(ir.CreateEntry)
	require.True(t, ok)
	assert.True(t, ir.Equal(decomposed, created.PK))
	assert.True(t, ir.Equal(value, created.Value))

	entries, err = l.FetchDeviceEntries(ctx, devices[0], []ObjectRef{{Collection: "lists", PK: ir.IRString("caf\u00e9")}})
	require.NoError(t, err)
	assert.Empty(t, entries)
}
