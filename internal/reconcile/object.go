package reconcile

import "github.com/roach88/logsync/internal/ir"

// FieldState is the latest known value of one field and the entry
// timestamps it came from.
type FieldState struct {
	Value     ir.IRValue
	CreatedOn int64
	SyncedOn  *int64
}

// IsSynced reports whether the winning write is already known to the shared log.
func (f FieldState) IsSynced() bool {
	return f.SyncedOn != nil
}

// ObjectState is the terminal state of one object after folding its entries.
//
// CreatedOn is meaningful only when ShouldBeCreated is true. IsDeleted
// reflects the last folded delete (or the first modify when no delete was
// folded): it does not compare delete timestamps.
type ObjectState struct {
	ShouldBeCreated bool
	CreatedOn       int64
	IsDeleted       bool
	ShouldBeDeleted bool

	fields map[string]FieldState
	order  []string
}

func newObjectState() *ObjectState {
	return &ObjectState{fields: make(map[string]FieldState)}
}

// Field returns the state of a single field.
func (s *ObjectState) Field(name string) (FieldState, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// FieldNames returns field names in first-insertion order.
func (s *ObjectState) FieldNames() []string {
	return append([]string(nil), s.order...)
}

// Values returns every field's latest value.
func (s *ObjectState) Values() ir.IRObject {
	out := make(ir.IRObject, len(s.fields))
	for name, f := range s.fields {
		out[name] = f.Value
	}
	return out
}

func (s *ObjectState) setField(name string, f FieldState) {
	if _, exists := s.fields[name]; !exists {
		s.order = append(s.order, name)
	}
	s.fields[name] = f
}

func (s *ObjectState) clearFields() {
	s.fields = make(map[string]FieldState)
	s.order = nil
}

// Fold applies the entries of one object in input order and returns its
// terminal state. Entries are never sorted: timestamps decide field
// precedence inside the fold, not processing order.
//
// The first anomaly stops the fold and is returned as an *AnomalyError whose
// Index is the offending entry's position in entries.
// Fold returns nil, nil for an empty entry list.
func Fold(entries []ir.LogEntry) (*ObjectState, error) {
	var s *ObjectState
	for i, e := range entries {
		var anomaly *AnomalyError
		switch entry := e.(type) {
		case ir.CreateEntry:
			s, anomaly = foldCreate(s, entry)
		case ir.ModifyEntry:
			s, anomaly = foldModify(s, entry)
		case ir.DeleteEntry:
			s = foldDelete(s, entry)
		}
		if anomaly != nil {
			anomaly.Index = i
			return nil, anomaly
		}
	}
	return s, nil
}

func foldCreate(s *ObjectState, e ir.CreateEntry) (*ObjectState, *AnomalyError) {
	stamp := func(v ir.IRValue) FieldState {
		return FieldState{Value: v, CreatedOn: e.CreatedOn, SyncedOn: copyTime(e.SyncedOn)}
	}

	if s == nil {
		s = newObjectState()
		for _, name := range e.Value.SortedKeys() {
			s.setField(name, stamp(e.Value[name]))
		}
		s.ShouldBeCreated = true
		s.CreatedOn = e.CreatedOn
		return s, nil
	}

	if s.ShouldBeCreated {
		return nil, newAnomaly(ErrCodeDoubleCreate, e.EntryHeader)
	}

	// Earlier-folded modifications are valid only if they happened after
	// this creation.
	for _, name := range e.Value.SortedKeys() {
		existing, ok := s.fields[name]
		if !ok {
			s.setField(name, stamp(e.Value[name]))
			continue
		}
		if existing.CreatedOn < e.CreatedOn {
			return nil, newAnomaly(ErrCodeModificationBeforeCreation, e.EntryHeader)
		}
	}
	s.ShouldBeCreated = true
	s.CreatedOn = e.CreatedOn
	return s, nil
}

func foldModify(s *ObjectState, e ir.ModifyEntry) (*ObjectState, *AnomalyError) {
	update := FieldState{Value: e.Value, CreatedOn: e.CreatedOn, SyncedOn: copyTime(e.SyncedOn)}

	if s == nil {
		s = newObjectState()
		s.IsDeleted = e.IsSynced()
		s.setField(e.Field, update)
		return s, nil
	}

	if s.ShouldBeCreated && s.CreatedOn > e.CreatedOn {
		return nil, newAnomaly(ErrCodeModificationBeforeCreation, e.EntryHeader)
	}

	existing, ok := s.fields[e.Field]
	if !ok || e.CreatedOn > existing.CreatedOn {
		s.setField(e.Field, update)
	}
	return s, nil
}

// foldDelete replaces the deletion flags and discards accumulated fields.
// Creation flags survive so that create+delete in one batch cancels out.
func foldDelete(s *ObjectState, e ir.DeleteEntry) *ObjectState {
	if s == nil {
		s = newObjectState()
	}
	s.IsDeleted = e.IsSynced()
	s.ShouldBeDeleted = true
	s.clearFields()
	return s
}

func copyTime(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
