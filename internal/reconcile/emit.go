package reconcile

import "github.com/roach88/logsync/internal/ir"

// Emit maps a terminal object state to its operations. keyFields are the
// resolved primary-key fields of the object.
//
// Decision order:
//  1. ShouldBeDeleted: one delete, unless the object is already deleted
//     upstream or was also created in this batch (both net to nothing).
//  2. ShouldBeCreated: one create carrying key fields plus all field values.
//  3. Otherwise: one single-field update per field not yet synced, in
//     field insertion order.
func Emit(collection string, s *ObjectState, keyFields ir.IRObject) []ir.Operation {
	if s == nil {
		return nil
	}

	if s.ShouldBeDeleted {
		if !s.IsDeleted && !s.ShouldBeCreated {
			return []ir.Operation{ir.DeleteOneObject(collection, keyFields)}
		}
		return nil
	}

	if s.ShouldBeCreated {
		object := keyFields.Clone()
		for name, value := range s.Values() {
			object[name] = value
		}
		return []ir.Operation{ir.CreateObject(collection, object)}
	}

	var ops []ir.Operation
	for _, name := range s.order {
		f := s.fields[name]
		if f.IsSynced() {
			continue
		}
		ops = append(ops, ir.UpdateOneObject(collection, keyFields, name, f.Value))
	}
	return ops
}
