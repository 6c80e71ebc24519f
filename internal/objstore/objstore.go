// Package objstore is a SQLite storage backend that executes the operations
// produced by reconciliation.
//
// Objects are stored as canonical JSON documents keyed by collection and the
// canonical JSON of their primary-key fields.
package objstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/logsync/internal/ir"
	"github.com/roach88/logsync/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// KeyFields reports the primary-key field names of a collection.
// *schema.Registry implements it.
type KeyFields interface {
	PKFields(collection string) []string
}

// Result counts what one Execute call changed.
type Result struct {
	Created int
	Updated int
	Deleted int
	Skipped int
}

// Store executes operations against a SQLite database.
type Store struct {
	store  *store.Store
	keys   KeyFields
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for skipped operations.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open creates or opens the object database at path. keys maps created
// objects to their storage key.
func Open(path string, keys KeyFields, opts ...Option) (*Store, error) {
	if keys == nil {
		return nil, errors.New("open object store: key fields are required")
	}
	st, err := store.Open(path, schemaSQL)
	if err != nil {
		return nil, fmt.Errorf("open object store: %w", err)
	}
	s := &Store{store: st, keys: keys, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.store.Close()
}

// Execute applies ops in order inside one transaction. Creating an object
// that exists, or updating or deleting one that does not, is skipped so that
// re-applying a batch is harmless. Any other failure rolls back every op.
func (s *Store) Execute(ctx context.Context, ops []ir.Operation) (Result, error) {
	var res Result
	err := s.store.InTx(ctx, func(tx *sql.Tx) error {
		for i, op := range ops {
			applied, err := s.apply(ctx, tx, op)
			if err != nil {
				return fmt.Errorf("op %d %s: %w", i, op.Kind, err)
			}
			if !applied {
				res.Skipped++
				s.logger.Debug("operation skipped", "index", i, "op", op.String())
				continue
			}
			switch op.Kind {
			case ir.OpCreateObject:
				res.Created++
			case ir.OpUpdateOneObject:
				res.Updated++
			case ir.OpDeleteOneObject:
				res.Deleted++
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("execute: %w", err)
	}
	return res, nil
}

func (s *Store) apply(ctx context.Context, tx *sql.Tx, op ir.Operation) (bool, error) {
	switch op.Kind {
	case ir.OpCreateObject:
		return s.create(ctx, tx, op)
	case ir.OpUpdateOneObject:
		return s.update(ctx, tx, op)
	case ir.OpDeleteOneObject:
		return s.delete(ctx, tx, op)
	default:
		return false, fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}

func (s *Store) create(ctx context.Context, tx *sql.Tx, op ir.Operation) (bool, error) {
	fields := s.keys.PKFields(op.Collection)
	if len(fields) == 0 {
		return false, fmt.Errorf("unknown collection %q", op.Collection)
	}
	where := make(ir.IRObject, len(fields))
	for _, f := range fields {
		v, ok := op.Object[f]
		if !ok {
			return false, fmt.Errorf("object is missing key field %q", f)
		}
		where[f] = v
	}

	key, err := encodeKey(where)
	if err != nil {
		return false, err
	}
	doc, err := ir.MarshalIRValue(op.Object)
	if err != nil {
		return false, fmt.Errorf("marshal object: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO objects (collection, key, doc)
		VALUES (?, ?, ?)
		ON CONFLICT(collection, key) DO NOTHING
	`, op.Collection, key, string(doc))
	if err != nil {
		return false, fmt.Errorf("insert object: %w", err)
	}
	return rowsAffected(res)
}

func (s *Store) update(ctx context.Context, tx *sql.Tx, op ir.Operation) (bool, error) {
	key, err := encodeKey(op.Where)
	if err != nil {
		return false, err
	}

	doc, found, err := loadDoc(ctx, tx, op.Collection, key)
	if err != nil || !found {
		return false, err
	}
	for field, v := range op.Patch {
		doc[field] = v
	}
	data, err := ir.MarshalIRValue(doc)
	if err != nil {
		return false, fmt.Errorf("marshal object: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE objects SET doc = ? WHERE collection = ? AND key = ?
	`, string(data), op.Collection, key)
	if err != nil {
		return false, fmt.Errorf("update object: %w", err)
	}
	return rowsAffected(res)
}

func (s *Store) delete(ctx context.Context, tx *sql.Tx, op ir.Operation) (bool, error) {
	key, err := encodeKey(op.Where)
	if err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, `
		DELETE FROM objects WHERE collection = ? AND key = ?
	`, op.Collection, key)
	if err != nil {
		return false, fmt.Errorf("delete object: %w", err)
	}
	return rowsAffected(res)
}

// Get returns the object stored under the given key fields.
func (s *Store) Get(ctx context.Context, collection string, where ir.IRObject) (ir.IRObject, bool, error) {
	key, err := encodeKey(where)
	if err != nil {
		return nil, false, fmt.Errorf("get: %w", err)
	}
	doc, found, err := loadDoc(ctx, s.store.DB(), collection, key)
	if err != nil {
		return nil, false, fmt.Errorf("get: %w", err)
	}
	return doc, found, nil
}

// List returns every object of a collection ordered by key.
func (s *Store) List(ctx context.Context, collection string) ([]ir.IRObject, error) {
	rows, err := s.store.DB().QueryContext(ctx, `
		SELECT doc FROM objects
		WHERE collection = ?
		ORDER BY key COLLATE BINARY ASC
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	out := []ir.IRObject{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("list %s: %w", collection, err)
		}
		doc, err := decodeDoc(data)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", collection, err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	return out, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadDoc(ctx context.Context, q querier, collection, key string) (ir.IRObject, bool, error) {
	var data string
	err := q.QueryRowContext(ctx, `
		SELECT doc FROM objects WHERE collection = ? AND key = ?
	`, collection, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load object: %w", err)
	}
	doc, err := decodeDoc(data)
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

func decodeDoc(data string) (ir.IRObject, error) {
	v, err := ir.UnmarshalIRValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	doc, ok := v.(ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("decode object: expected object, got %T", v)
	}
	return doc, nil
}

func encodeKey(where ir.IRObject) (string, error) {
	if len(where) == 0 {
		return "", errors.New("key fields are required")
	}
	data, err := ir.MarshalIRValue(where)
	if err != nil {
		return "", fmt.Errorf("marshal key: %w", err)
	}
	return string(data), nil
}

func rowsAffected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
