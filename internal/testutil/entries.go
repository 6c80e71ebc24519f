package testutil

import "github.com/roach88/logsync/internal/ir"

// EntryWriter builds local log entries stamped from a DeterministicClock,
// the way a single device would record them.
type EntryWriter struct {
	clock *DeterministicClock
}

// NewEntryWriter creates a writer. A nil clock gets a fresh one.
func NewEntryWriter(clock *DeterministicClock) *EntryWriter {
	if clock == nil {
		clock = NewDeterministicClock()
	}
	return &EntryWriter{clock: clock}
}

// Create records the creation of an object.
func (w *EntryWriter) Create(collection string, pk ir.IRValue, value ir.IRObject) ir.LogEntry {
	return ir.CreateEntry{EntryHeader: w.header(collection, pk), Value: value}
}

// Modify records a write to one field.
func (w *EntryWriter) Modify(collection string, pk ir.IRValue, field string, value ir.IRValue) ir.LogEntry {
	return ir.ModifyEntry{EntryHeader: w.header(collection, pk), Field: field, Value: value}
}

// Delete records the deletion of an object.
func (w *EntryWriter) Delete(collection string, pk ir.IRValue) ir.LogEntry {
	return ir.DeleteEntry{EntryHeader: w.header(collection, pk)}
}

func (w *EntryWriter) header(collection string, pk ir.IRValue) ir.EntryHeader {
	return ir.EntryHeader{Collection: collection, PK: pk, CreatedOn: w.clock.Next()}
}
