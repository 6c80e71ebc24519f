// Package reconcile turns a batch of sync log entries into the minimal set of
// storage operations that brings a local store to its final state.
//
// Reconciliation is a three-stage pipeline:
//
//  1. Classify groups entries by (collection, primary key), keeping
//     first-seen order for collections and objects.
//  2. Fold applies one object's entries in input order to an ObjectState,
//     resolving field conflicts last-writer-wins and detecting anomalies.
//  3. Emit maps each terminal ObjectState to zero or more operations.
//
// The pipeline is pure and synchronous. Each call owns its accumulators and
// discards them once the operation list is built, so concurrent Reconcile
// calls are safe. Entries of one batch must not be interleaved across calls:
// the fold is order-sensitive.
//
// Anomalies (double creation, modification before creation) abort the whole
// batch. They indicate a primary-key collision between devices or corrupted
// log data, which cannot be repaired by guessing intent.
package reconcile
