// Package syncer runs sync rounds: it pulls unsynced entries from the shared
// log, reconciles them and applies the resulting operations to a backend.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/logsync/internal/ir"
	"github.com/roach88/logsync/internal/objstore"
	"github.com/roach88/logsync/internal/reconcile"
	"github.com/roach88/logsync/internal/synclog"
)

// Log is the part of the shared sync log a Syncer uses.
// *synclog.Log implements it.
type Log interface {
	AppendEntries(ctx context.Context, entries []ir.LogEntry, userID, deviceID string) ([]synclog.SharedEntry, error)
	FetchUnsyncedEntries(ctx context.Context, deviceID string) ([]synclog.SharedEntry, error)
	FetchDeviceEntries(ctx context.Context, deviceID string, objects []synclog.ObjectRef) ([]synclog.SharedEntry, error)
	AdvanceHighWaterMark(ctx context.Context, deviceID string, until int64) error
}

// Backend executes reconciled operations. *objstore.Store implements it.
type Backend interface {
	Execute(ctx context.Context, ops []ir.Operation) (objstore.Result, error)
}

// Round describes one completed sync round.
type Round struct {
	// Fetched is the number of entries of other devices pulled from the log.
	Fetched int
	// Context is the number of the device's own shared entries added as
	// already-synced history.
	Context     int
	Operations  []ir.Operation
	Executed    objstore.Result
	SharedUntil int64
}

// Syncer orchestrates sync rounds for devices.
type Syncer struct {
	log     Log
	backend Backend
	keys    reconcile.KeyResolver
	logger  *slog.Logger
	metrics *metrics
}

// Option configures a Syncer.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	registerer prometheus.Registerer
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRegisterer registers the syncer's metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// New creates a Syncer.
func New(log Log, backend Backend, keys reconcile.KeyResolver, opts ...Option) *Syncer {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Syncer{
		log:     log,
		backend: backend,
		keys:    keys,
		logger:  o.logger,
		metrics: newMetrics(o.registerer),
	}
}

// Push appends locally recorded entries to the shared log.
func (s *Syncer) Push(ctx context.Context, deviceID, userID string, entries []ir.LogEntry) ([]synclog.SharedEntry, error) {
	shared, err := s.log.AppendEntries(ctx, entries, userID, deviceID)
	if err != nil {
		return nil, fmt.Errorf("push: %w", err)
	}
	s.metrics.pushed.Add(float64(len(shared)))
	if len(shared) > 0 {
		s.logger.Info("entries pushed",
			"device", deviceID,
			"count", len(shared),
			"last_shared_on", shared[len(shared)-1].SharedOn)
	}
	return shared, nil
}

// SyncRound pulls every entry other devices shared since deviceID's
// high-water mark, reconciles them and applies the result.
//
// The device's own shared modifications and deletions of the same objects
// join the batch as already-synced history so that older remote writes do
// not override newer local ones. Its own creations are left out: the object
// already exists locally.
//
// An anomaly halts the round: nothing is executed, the high-water mark stays
// put and the *reconcile.AnomalyError is returned.
func (s *Syncer) SyncRound(ctx context.Context, deviceID string) (*Round, error) {
	round, err := s.syncRound(ctx, deviceID)
	switch {
	case err == nil && round.Fetched == 0:
		s.metrics.rounds.WithLabelValues(resultEmpty).Inc()
	case err == nil:
		s.metrics.rounds.WithLabelValues(resultOK).Inc()
	case reconcile.IsAnomaly(err):
		s.metrics.rounds.WithLabelValues(resultAnomaly).Inc()
	default:
		s.metrics.rounds.WithLabelValues(resultError).Inc()
	}
	return round, err
}

func (s *Syncer) syncRound(ctx context.Context, deviceID string) (*Round, error) {
	fetched, err := s.log.FetchUnsyncedEntries(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("sync round: %w", err)
	}

	round := &Round{}
	var remote []synclog.SharedEntry
	var refs []synclog.ObjectRef
	for _, e := range fetched {
		if e.SharedOn > round.SharedUntil {
			round.SharedUntil = e.SharedOn
		}
		if e.DeviceID == deviceID {
			continue
		}
		remote = append(remote, e)
		h := e.Entry.Header()
		refs = append(refs, synclog.ObjectRef{Collection: h.Collection, PK: h.PK})
	}
	round.Fetched = len(remote)

	if len(remote) == 0 {
		if len(fetched) > 0 {
			if err := s.log.AdvanceHighWaterMark(ctx, deviceID, round.SharedUntil); err != nil {
				return nil, fmt.Errorf("sync round: %w", err)
			}
		}
		s.logger.Debug("nothing to sync", "device", deviceID)
		return round, nil
	}

	own, err := s.log.FetchDeviceEntries(ctx, deviceID, refs)
	if err != nil {
		return nil, fmt.Errorf("sync round: %w", err)
	}

	batch := make([]synclog.SharedEntry, 0, len(own)+len(remote))
	for _, e := range own {
		if e.Entry.Kind() == ir.KindCreate {
			continue
		}
		batch = append(batch, synclog.SharedEntry{
			SharedOn: e.SharedOn,
			UserID:   e.UserID,
			DeviceID: e.DeviceID,
			Entry:    e.Synced(),
		})
		round.Context++
	}
	batch = append(batch, remote...)
	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].SharedOn < batch[j].SharedOn
	})

	entries := make([]ir.LogEntry, len(batch))
	for i, e := range batch {
		entries[i] = e.Entry
	}

	ops, err := reconcile.Reconcile(entries, s.keys)
	if err != nil {
		var anomaly *reconcile.AnomalyError
		if errors.As(err, &anomaly) {
			s.metrics.anomalies.WithLabelValues(string(anomaly.Code)).Inc()
			s.logger.Error("sync round halted by anomaly",
				"device", deviceID,
				"code", anomaly.Code,
				"collection", anomaly.Collection,
				"pk", ir.FormatPK(anomaly.PK),
				"shared_on", batch[anomaly.Index].SharedOn,
				"from_device", batch[anomaly.Index].DeviceID)
		}
		return nil, fmt.Errorf("sync round: %w", err)
	}
	round.Operations = ops

	res, err := s.backend.Execute(ctx, ops)
	if err != nil {
		return nil, fmt.Errorf("sync round: %w", err)
	}
	round.Executed = res
	for _, op := range ops {
		s.metrics.operations.WithLabelValues(string(op.Kind)).Inc()
	}

	if err := s.log.AdvanceHighWaterMark(ctx, deviceID, round.SharedUntil); err != nil {
		return nil, fmt.Errorf("sync round: %w", err)
	}

	s.logger.Info("sync round complete",
		"device", deviceID,
		"fetched", round.Fetched,
		"context", round.Context,
		"operations", len(ops),
		"skipped", res.Skipped,
		"shared_until", round.SharedUntil)
	return round, nil
}
