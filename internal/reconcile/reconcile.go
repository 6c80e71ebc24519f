package reconcile

import (
	"errors"
	"fmt"

	"github.com/roach88/logsync/internal/ir"
)

// KeyResolver maps a primary-key value to the named key fields a storage
// backend addresses. Compound keys resolve to several fields.
type KeyResolver interface {
	ResolvePK(collection string, pk ir.IRValue) (ir.IRObject, error)
}

// KeyResolverFunc adapts a function to KeyResolver.
type KeyResolverFunc func(collection string, pk ir.IRValue) (ir.IRObject, error)

// ResolvePK implements KeyResolver.
func (f KeyResolverFunc) ResolvePK(collection string, pk ir.IRValue) (ir.IRObject, error) {
	return f(collection, pk)
}

// Reconcile converts a batch of log entries into storage operations.
//
// Operations are ordered by first appearance of their collection, then of
// their object, in the input. Any anomaly aborts the batch: no operations are
// returned, and the error is the anomaly whose offending entry comes first in
// the input.
func Reconcile(entries []ir.LogEntry, keys KeyResolver) ([]ir.Operation, error) {
	for i, e := range entries {
		if err := ir.ValidateEntry(e); err != nil {
			return nil, &EntryError{Index: i, Err: err}
		}
	}

	batch := Classify(entries)

	type folded struct {
		collection string
		pk         ir.IRValue
		state      *ObjectState
	}
	states := make([]folded, 0, batch.Len())
	var first *AnomalyError

	for _, c := range batch.Collections {
		for _, o := range c.Objects {
			state, err := Fold(o.Entries)
			if err != nil {
				var anomaly *AnomalyError
				if !errors.As(err, &anomaly) {
					return nil, err
				}
				anomaly.Index = o.Indices[anomaly.Index]
				if first == nil || anomaly.Index < first.Index {
					first = anomaly
				}
				continue
			}
			states = append(states, folded{collection: c.Name, pk: o.PK, state: state})
		}
	}
	if first != nil {
		return nil, first
	}

	ops := make([]ir.Operation, 0, len(states))
	for _, f := range states {
		keyFields, err := keys.ResolvePK(f.collection, f.pk)
		if err != nil {
			return nil, fmt.Errorf("reconcile: resolve pk %s in %s: %w", ir.FormatPK(f.pk), f.collection, err)
		}
		ops = append(ops, Emit(f.collection, f.state, keyFields)...)
	}
	return ops, nil
}
