package syncer

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/logsync/internal/ir"
	"github.com/roach88/logsync/internal/objstore"
	"github.com/roach88/logsync/internal/reconcile"
	"github.com/roach88/logsync/internal/schema"
	"github.com/roach88/logsync/internal/synclog"
	tu "github.com/roach88/logsync/internal/testutil"
)

const userID = "user-1"

type device struct {
	id      string
	objects *objstore.Store
	syncer  *Syncer
	writer  *tu.EntryWriter
}

type fixture struct {
	log      *synclog.Log
	registry *schema.Registry
	clock    *tu.DeterministicClock
	logs     *bytes.Buffer
	dir      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	l, err := synclog.Open(filepath.Join(dir, "shared.db"), synclog.WithIDGenerator(tu.NewSequentialIDGenerator("")))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return &fixture{
		log:      l,
		registry: schema.NewRegistry(),
		clock:    tu.NewDeterministicClock(),
		logs:     &bytes.Buffer{},
		dir:      dir,
	}
}

func (f *fixture) device(t *testing.T, reg prometheus.Registerer) *device {
	t.Helper()
	id, err := f.log.CreateDeviceRecord(context.Background(), userID, 0)
	require.NoError(t, err)

	objects, err := objstore.Open(filepath.Join(f.dir, id+".db"), f.registry)
	require.NoError(t, err)
	t.Cleanup(func() { objects.Close() })

	logger := slog.New(slog.NewTextHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return &device{
		id:      id,
		objects: objects,
		syncer:  New(f.log, objects, f.registry, WithLogger(logger), WithRegisterer(reg)),
		writer:  tu.NewEntryWriter(f.clock),
	}
}

func (d *device) push(t *testing.T, entries ...ir.LogEntry) {
	t.Helper()
	_, err := d.syncer.Push(context.Background(), d.id, userID, entries)
	require.NoError(t, err)
}

func listOne() ir.IRValue { return ir.IRString("list-one") }

func TestSyncRound_AppliesRemoteCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	phone := f.device(t, nil)
	laptop := f.device(t, nil)

	phone.push(t,
		phone.writer.Create("lists", listOne(), ir.IRObject{"pk": listOne(), "title": ir.IRString("first")}),
		phone.writer.Modify("lists", listOne(), "title", ir.IRString("second")),
	)

	round, err := laptop.syncer.SyncRound(ctx, laptop.id)
	require.NoError(t, err)
	assert.Equal(t, 2, round.Fetched)
	assert.Equal(t, 0, round.Context)
	assert.Equal(t, int64(2), round.SharedUntil)
	require.Len(t, round.Operations, 1)
	assert.Equal(t, ir.OpCreateObject, round.Operations[0].Kind)
	assert.Equal(t, objstore.Result{Created: 1}, round.Executed)

	doc, found, err := laptop.objects.Get(ctx, "lists", ir.IRObject{"pk": listOne()})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ir.IRString("second"), doc["title"])

	d, err := f.log.Device(ctx, laptop.id)
	require.NoError(t, err)
	assert.Equal(t, int64(2), d.SharedUntil)

	round, err = laptop.syncer.SyncRound(ctx, laptop.id)
	require.NoError(t, err)
	assert.Equal(t, 0, round.Fetched)
	assert.Empty(t, round.Operations)
}

func TestSyncRound_OwnHistoryWinsOverOlderRemoteWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	phone := f.device(t, nil)
	laptop := f.device(t, nil)

	phone.push(t, phone.writer.Create("lists", listOne(), ir.IRObject{"pk": listOne(), "title": ir.IRString("first")}))
	_, err := laptop.syncer.SyncRound(ctx, laptop.id)
	require.NoError(t, err)

	offline := phone.writer.Modify("lists", listOne(), "title", ir.IRString("phone"))
	laptop.push(t, laptop.writer.Modify("lists", listOne(), "title", ir.IRString("laptop")))
	phone.push(t, offline)

	round, err := laptop.syncer.SyncRound(ctx, laptop.id)
	require.NoError(t, err)
	assert.Equal(t, 1, round.Fetched)
	assert.Equal(t, 1, round.Context)
	assert.Empty(t, round.Operations, "the newer local write is already applied")
	assert.Equal(t, int64(3), round.SharedUntil)

	round, err = phone.syncer.SyncRound(ctx, phone.id)
	require.NoError(t, err)
	require.Len(t, round.Operations, 1)
	assert.Equal(t, ir.OpUpdateOneObject, round.Operations[0].Kind)
	assert.Equal(t, ir.IRString("laptop"), round.Operations[0].Patch["title"])
}

func TestSyncRound_LaggingClockLosesFieldWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	phone := f.device(t, nil)
	laptop := f.device(t, nil)

	phone.push(t, phone.writer.Create("lists", listOne(), ir.IRObject{"pk": listOne(), "title": ir.IRString("first")}))
	_, err := laptop.syncer.SyncRound(ctx, laptop.id)
	require.NoError(t, err)

	// The laptop's clock runs behind: its write reaches the log last but
	// carries the older created_on.
	lagging := tu.NewDeterministicClock()
	lagging.Set(4)
	laptop.writer = tu.NewEntryWriter(lagging)
	f.clock.Set(10)

	phone.push(t, phone.writer.Modify("lists", listOne(), "title", ir.IRString("phone")))
	laptop.push(t, laptop.writer.Modify("lists", listOne(), "title", ir.IRString("laptop")))
	assert.Equal(t, int64(5), lagging.Current())
	assert.Equal(t, int64(11), f.clock.Current())

	round, err := laptop.syncer.SyncRound(ctx, laptop.id)
	require.NoError(t, err)
	assert.Equal(t, 1, round.Fetched)
	require.Len(t, round.Operations, 1)
	assert.Equal(t, ir.IRString("phone"), round.Operations[0].Patch["title"])

	round, err = phone.syncer.SyncRound(ctx, phone.id)
	require.NoError(t, err)
	assert.Equal(t, 1, round.Fetched)
	assert.Empty(t, round.Operations)
}

func TestSyncRound_OwnEntriesOnlyAdvanceMark(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	phone := f.device(t, nil)

	phone.push(t, phone.writer.Delete("lists", listOne()))

	round, err := phone.syncer.SyncRound(ctx, phone.id)
	require.NoError(t, err)
	assert.Equal(t, 0, round.Fetched)

	d, err := f.log.Device(ctx, phone.id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.SharedUntil)
}

func TestSyncRound_AnomalyHaltsRound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	phone := f.device(t, nil)
	laptop := f.device(t, nil)
	tablet := f.device(t, reg)

	phone.push(t, phone.writer.Create("lists", listOne(), ir.IRObject{"pk": listOne(), "title": ir.IRString("groceries")}))
	laptop.push(t, laptop.writer.Create("lists", listOne(), ir.IRObject{"pk": listOne(), "title": ir.IRString("chores")}))

	round, err := tablet.syncer.SyncRound(ctx, tablet.id)
	assert.Nil(t, round)
	require.Error(t, err)
	assert.True(t, reconcile.IsDoubleCreate(err))

	docs, err := tablet.objects.List(ctx, "lists")
	require.NoError(t, err)
	assert.Empty(t, docs, "nothing is executed")

	d, err := f.log.Device(ctx, tablet.id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), d.SharedUntil, "high-water mark stays put")

	m := tablet.syncer.metrics
	assert.Equal(t, 1.0, testutil.ToFloat64(m.anomalies.WithLabelValues(string(reconcile.ErrCodeDoubleCreate))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rounds.WithLabelValues(resultAnomaly)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.rounds.WithLabelValues(resultOK)))

	assert.Contains(t, f.logs.String(), "sync round halted by anomaly")
	assert.Contains(t, f.logs.String(), "from_device="+laptop.id)
}

func TestSyncRound_UnknownDevice(t *testing.T) {
	f := newFixture(t)
	d := f.device(t, nil)

	_, err := d.syncer.SyncRound(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, synclog.ErrDeviceNotFound))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.syncer.metrics.rounds.WithLabelValues(resultError)))
}

func TestSyncRound_Metrics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	phone := f.device(t, reg)
	laptop := f.device(t, nil)

	phone.push(t,
		phone.writer.Modify("lists", listOne(), "title", ir.IRString("a")),
		phone.writer.Modify("lists", listOne(), "prio", ir.IRInt(2)),
		phone.writer.Delete("lists", ir.IRString("list-two")),
	)
	laptop.push(t, laptop.writer.Delete("lists", ir.IRString("list-three")))

	_, err := phone.syncer.SyncRound(ctx, phone.id)
	require.NoError(t, err)
	_, err = phone.syncer.SyncRound(ctx, phone.id)
	require.NoError(t, err)

	m := phone.syncer.metrics
	assert.Equal(t, 3.0, testutil.ToFloat64(m.pushed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues(string(ir.OpDeleteOneObject))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rounds.WithLabelValues(resultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rounds.WithLabelValues(resultEmpty)))

	count, err := testutil.GatherAndCount(reg, "logsync_syncer_rounds_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
