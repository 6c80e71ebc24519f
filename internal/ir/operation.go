package ir

import "fmt"

// OpKind names an executable storage operation.
type OpKind string

const (
	OpCreateObject    OpKind = "createObject"
	OpUpdateOneObject OpKind = "updateOneObject"
	OpDeleteOneObject OpKind = "deleteOneObject"
)

// Operation is one storage operation produced by reconciliation.
//
// Field usage by kind:
//   - createObject: Object holds the primary-key fields merged with every field value
//   - updateOneObject: Where holds the primary-key fields, Patch exactly one field
//   - deleteOneObject: Where holds the primary-key fields
type Operation struct {
	Kind       OpKind   `json:"operation"`
	Collection string   `json:"collection"`
	Object     IRObject `json:"object,omitempty"`
	Where      IRObject `json:"where,omitempty"`
	Patch      IRObject `json:"patch,omitempty"`
}

// CreateObject builds a createObject operation.
func CreateObject(collection string, object IRObject) Operation {
	return Operation{Kind: OpCreateObject, Collection: collection, Object: object}
}

// UpdateOneObject builds an updateOneObject operation patching a single field.
func UpdateOneObject(collection string, where IRObject, field string, value IRValue) Operation {
	return Operation{
		Kind:       OpUpdateOneObject,
		Collection: collection,
		Where:      where,
		Patch:      IRObject{field: value},
	}
}

// DeleteOneObject builds a deleteOneObject operation.
func DeleteOneObject(collection string, where IRObject) Operation {
	return Operation{Kind: OpDeleteOneObject, Collection: collection, Where: where}
}

// String renders the operation in a compact, human-readable form, e.g.
// updateOneObject(lists, {"pk":"list-one"}, {"title":"second"}).
func (op Operation) String() string {
	switch op.Kind {
	case OpCreateObject:
		return fmt.Sprintf("%s(%s, %s)", op.Kind, op.Collection, formatObject(op.Object))
	case OpUpdateOneObject:
		return fmt.Sprintf("%s(%s, %s, %s)", op.Kind, op.Collection, formatObject(op.Where), formatObject(op.Patch))
	default:
		return fmt.Sprintf("%s(%s, %s)", op.Kind, op.Collection, formatObject(op.Where))
	}
}

// CanonicalMap converts the operation to an IRObject for snapshots.
func (op Operation) CanonicalMap() IRObject {
	out := IRObject{
		"operation":  IRString(op.Kind),
		"collection": IRString(op.Collection),
	}
	if op.Object != nil {
		out["object"] = op.Object
	}
	if op.Where != nil {
		out["where"] = op.Where
	}
	if op.Patch != nil {
		out["patch"] = op.Patch
	}
	return out
}

func formatObject(obj IRObject) string {
	data, err := MarshalIRValue(obj)
	if err != nil {
		return fmt.Sprintf("%v", map[string]IRValue(obj))
	}
	return string(data)
}
