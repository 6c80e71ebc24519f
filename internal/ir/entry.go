package ir

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// EntryKind names the three kinds of log entry.
type EntryKind string

const (
	KindCreate EntryKind = "create"
	KindModify EntryKind = "modify"
	KindDelete EntryKind = "delete"
)

// EntryHeader carries the fields every log entry has.
//
// SyncedOn, when set, is the logical time at which the entry became known to
// the shared log. A nil SyncedOn marks a purely local, unconfirmed entry.
type EntryHeader struct {
	Collection string
	PK         IRValue
	CreatedOn  int64
	SyncedOn   *int64
}

// Header returns the common entry fields.
func (h EntryHeader) Header() EntryHeader { return h }

// IsSynced reports whether the entry is already known to the shared log.
func (h EntryHeader) IsSynced() bool { return h.SyncedOn != nil }

// LogEntry is a sealed union of CreateEntry, ModifyEntry and DeleteEntry.
type LogEntry interface {
	logEntry()
	Kind() EntryKind
	Header() EntryHeader
}

// CreateEntry records the creation of an object with its initial fields.
type CreateEntry struct {
	EntryHeader
	Value IRObject
}

func (CreateEntry) logEntry()       {}
func (CreateEntry) Kind() EntryKind { return KindCreate }

// ModifyEntry records a write to a single field.
type ModifyEntry struct {
	EntryHeader
	Field string
	Value IRValue
}

func (ModifyEntry) logEntry()       {}
func (ModifyEntry) Kind() EntryKind { return KindModify }

// DeleteEntry records the deletion of an object.
type DeleteEntry struct {
	EntryHeader
}

func (DeleteEntry) logEntry()       {}
func (DeleteEntry) Kind() EntryKind { return KindDelete }

// Synced returns a pointer to ts, for use as EntryHeader.SyncedOn.
func Synced(ts int64) *int64 {
	return &ts
}

// ValidateEntry checks the structural requirements of an entry:
// a collection name, a non-null pk, and the kind-specific payload.
func ValidateEntry(e LogEntry) error {
	if e == nil {
		return errors.New("entry is nil")
	}
	h := e.Header()
	if h.Collection == "" {
		return errors.New("collection is required")
	}
	switch h.PK.(type) {
	case nil, IRNull:
		return errors.New("pk is required")
	}

	switch entry := e.(type) {
	case CreateEntry:
		if entry.Value == nil {
			return errors.New("create entry requires a value object")
		}
	case ModifyEntry:
		if entry.Field == "" {
			return errors.New("modify entry requires a field")
		}
		if entry.Value == nil {
			return errors.New("modify entry requires a value")
		}
	}
	return nil
}

// WireEntry is the serialized form of a LogEntry, shared by JSON and YAML.
//
//	{operation: modify, collection: lists, pk: list-one, field: title,
//	 value: second, created_on: 2, synced_on: 3}
type WireEntry struct {
	Operation  EntryKind `json:"operation" yaml:"operation"`
	Collection string    `json:"collection" yaml:"collection"`
	PK         any       `json:"pk" yaml:"pk"`
	Field      string    `json:"field,omitempty" yaml:"field,omitempty"`
	Value      any       `json:"value,omitempty" yaml:"value,omitempty"`
	CreatedOn  int64     `json:"created_on" yaml:"created_on"`
	SyncedOn   *int64    `json:"synced_on,omitempty" yaml:"synced_on,omitempty"`
}

// Decode converts the wire form into a LogEntry.
func (w WireEntry) Decode() (LogEntry, error) {
	pk, err := FromGo(w.PK)
	if err != nil {
		return nil, fmt.Errorf("pk: %w", err)
	}
	value, err := FromGo(w.Value)
	if err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}

	h := EntryHeader{
		Collection: w.Collection,
		PK:         pk,
		CreatedOn:  w.CreatedOn,
		SyncedOn:   w.SyncedOn,
	}

	switch w.Operation {
	case KindCreate:
		obj, ok := value.(IRObject)
		if !ok {
			return nil, fmt.Errorf("create value must be an object, got %T", value)
		}
		return CreateEntry{EntryHeader: h, Value: obj}, nil
	case KindModify:
		return ModifyEntry{EntryHeader: h, Field: w.Field, Value: value}, nil
	case KindDelete:
		return DeleteEntry{EntryHeader: h}, nil
	default:
		return nil, fmt.Errorf("unknown operation %q", w.Operation)
	}
}

// EncodeEntry converts a LogEntry into its wire form.
func EncodeEntry(e LogEntry) WireEntry {
	h := e.Header()
	w := WireEntry{
		Operation:  e.Kind(),
		Collection: h.Collection,
		PK:         ToGo(h.PK),
		CreatedOn:  h.CreatedOn,
		SyncedOn:   h.SyncedOn,
	}
	switch entry := e.(type) {
	case CreateEntry:
		w.Value = ToGo(entry.Value)
	case ModifyEntry:
		w.Field = entry.Field
		w.Value = ToGo(entry.Value)
	}
	return w
}

// DecodeEntries parses a JSON array of wire entries.
// Numbers are decoded exactly; floats and unknown fields are rejected.
func DecodeEntries(data []byte) ([]LogEntry, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()

	var wire []WireEntry
	if err := dec.Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode entries: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("decode entries: trailing data after array")
	}
	return DecodeWireEntries(wire)
}

// DecodeWireEntries converts a slice of wire entries, reporting the index of
// the first one that fails.
func DecodeWireEntries(wire []WireEntry) ([]LogEntry, error) {
	entries := make([]LogEntry, 0, len(wire))
	for i, w := range wire {
		e, err := w.Decode()
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// WithSyncedOn returns a copy of e whose SyncedOn is set to syncedOn.
func WithSyncedOn(e LogEntry, syncedOn *int64) LogEntry {
	switch entry := e.(type) {
	case CreateEntry:
		entry.SyncedOn = syncedOn
		return entry
	case ModifyEntry:
		entry.SyncedOn = syncedOn
		return entry
	case DeleteEntry:
		entry.SyncedOn = syncedOn
		return entry
	default:
		return e
	}
}
