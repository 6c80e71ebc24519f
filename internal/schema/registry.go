package schema

import (
	"fmt"
	"sort"

	"github.com/roach88/logsync/internal/ir"
)

// DefaultPKField is the key field used for collections the registry does not
// know, unless the registry is strict.
const DefaultPKField = "pk"

// Registry maps collection names to their ordered primary-key field names.
// A Registry is read-only after construction and safe for concurrent use.
type Registry struct {
	collections map[string][]string
	strict      bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithStrict makes ResolvePK fail for undeclared collections instead of
// falling back to DefaultPKField.
func WithStrict() Option {
	return func(r *Registry) {
		r.strict = true
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{collections: make(map[string][]string)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register declares the pk fields of a collection. Declaring the same
// collection twice replaces the earlier declaration.
func (r *Registry) Register(collection string, fields ...string) error {
	if collection == "" {
		return fmt.Errorf("register: collection name is required")
	}
	if len(fields) == 0 {
		return fmt.Errorf("register %s: at least one pk field is required", collection)
	}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f == "" {
			return fmt.Errorf("register %s: empty pk field name", collection)
		}
		if seen[f] {
			return fmt.Errorf("register %s: duplicate pk field %q", collection, f)
		}
		seen[f] = true
	}
	r.collections[collection] = append([]string(nil), fields...)
	return nil
}

// Strict reports whether undeclared collections are rejected.
func (r *Registry) Strict() bool {
	return r.strict
}

// Collections returns the declared collection names, sorted.
func (r *Registry) Collections() []string {
	names := make([]string, 0, len(r.collections))
	for name := range r.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PKFields returns the pk field names of a collection. Undeclared collections
// report DefaultPKField, or nil when the registry is strict.
func (r *Registry) PKFields(collection string) []string {
	if fields, ok := r.collections[collection]; ok {
		return append([]string(nil), fields...)
	}
	if r.strict {
		return nil
	}
	return []string{DefaultPKField}
}

// ResolvePK maps a pk value to the collection's named key fields.
//
// A single-field collection maps the whole pk to that field. A compound
// collection requires the pk to be a tuple of the same arity.
func (r *Registry) ResolvePK(collection string, pk ir.IRValue) (ir.IRObject, error) {
	fields := r.PKFields(collection)
	if fields == nil {
		return nil, &ResolveError{Collection: collection, PK: pk, Message: "unknown collection"}
	}

	if len(fields) == 1 {
		return ir.IRObject{fields[0]: pk}, nil
	}

	tuple, ok := pk.(ir.IRArray)
	if !ok {
		return nil, &ResolveError{
			Collection: collection,
			PK:         pk,
			Message:    fmt.Sprintf("expected a tuple of %d elements", len(fields)),
		}
	}
	if len(tuple) != len(fields) {
		return nil, &ResolveError{
			Collection: collection,
			PK:         pk,
			Message:    fmt.Sprintf("expected %d key elements, got %d", len(fields), len(tuple)),
		}
	}

	out := make(ir.IRObject, len(fields))
	for i, name := range fields {
		out[name] = tuple[i]
	}
	return out, nil
}
