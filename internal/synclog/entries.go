package synclog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/logsync/internal/ir"
)

// SharedEntry is a log entry as stored in the shared log.
//
// Entry carries the SyncedOn it had when read back (always nil); use Synced
// to view it as confirmed at SharedOn.
type SharedEntry struct {
	SharedOn int64
	UserID   string
	DeviceID string
	Entry    ir.LogEntry
}

// Synced returns the entry marked as known to the shared log at SharedOn.
func (s SharedEntry) Synced() ir.LogEntry {
	return ir.WithSyncedOn(s.Entry, ir.Synced(s.SharedOn))
}

// ObjectRef addresses one object of a collection.
type ObjectRef struct {
	Collection string
	PK         ir.IRValue
}

// AppendEntries appends entries written by deviceID on behalf of userID.
// All entries are stamped with increasing shared_on values and written in
// one transaction; either all are appended or none.
func (l *Log) AppendEntries(ctx context.Context, entries []ir.LogEntry, userID, deviceID string) ([]SharedEntry, error) {
	rows := make([]entryRow, 0, len(entries))
	for i, e := range entries {
		if err := ir.ValidateEntry(e); err != nil {
			return nil, fmt.Errorf("append entries: entry %d: %w", i, err)
		}
		row, err := encodeEntry(e)
		if err != nil {
			return nil, fmt.Errorf("append entries: entry %d: %w", i, err)
		}
		rows = append(rows, row)
	}

	var shared []SharedEntry
	err := l.store.InTx(ctx, func(tx *sql.Tx) error {
		device, err := loadDevice(ctx, tx, deviceID)
		if err != nil {
			return err
		}
		if device.UserID != userID {
			return fmt.Errorf("device %s belongs to another user", deviceID)
		}

		last, err := maxSharedOn(ctx, tx)
		if err != nil {
			return err
		}
		l.clock.Observe(last)

		shared = make([]SharedEntry, 0, len(rows))
		for i, row := range rows {
			sharedOn := l.clock.Next()
			_, err := tx.ExecContext(ctx, `
				INSERT INTO entries
				(shared_on, user_id, device_id, operation, collection, pk, pk_key, field, value, created_on)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`,
				sharedOn,
				userID,
				deviceID,
				string(row.operation),
				row.collection,
				row.pk,
				row.pkKey,
				row.field,
				row.value,
				row.createdOn,
			)
			if err != nil {
				return fmt.Errorf("insert entry %d: %w", i, err)
			}
			shared = append(shared, SharedEntry{
				SharedOn: sharedOn,
				UserID:   userID,
				DeviceID: deviceID,
				Entry:    ir.WithSyncedOn(entries[i], nil),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("append entries: %w", err)
	}
	return shared, nil
}

// FetchUnsyncedEntries returns every entry of the device's user whose
// shared_on is greater than the device's high-water mark, ascending by
// shared_on. Entries written by the device itself are included.
func (l *Log) FetchUnsyncedEntries(ctx context.Context, deviceID string) ([]SharedEntry, error) {
	device, err := loadDevice(ctx, l.store.DB(), deviceID)
	if err != nil {
		return nil, fmt.Errorf("fetch unsynced entries: %w", err)
	}

	rows, err := l.store.DB().QueryContext(ctx, `
		SELECT shared_on, user_id, device_id, operation, collection, pk, field, value, created_on
		FROM entries
		WHERE user_id = ? AND shared_on > ?
		ORDER BY shared_on ASC
	`, device.UserID, device.SharedUntil)
	if err != nil {
		return nil, fmt.Errorf("fetch unsynced entries: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, fmt.Errorf("fetch unsynced entries: %w", err)
	}
	return entries, nil
}

// objectsPerQuery bounds the row values bound into one FetchDeviceEntries
// query, keeping it under SQLite's host parameter limit.
const objectsPerQuery = 400

// FetchDeviceEntries returns the entries deviceID has appended for the given
// objects, ascending by shared_on.
func (l *Log) FetchDeviceEntries(ctx context.Context, deviceID string, objects []ObjectRef) ([]SharedEntry, error) {
	if _, err := loadDevice(ctx, l.store.DB(), deviceID); err != nil {
		return nil, fmt.Errorf("fetch device entries: %w", err)
	}

	type objectKey struct {
		collection string
		pkKey      string
	}
	keys := make([]objectKey, 0, len(objects))
	seen := make(map[objectKey]bool, len(objects))
	for _, obj := range objects {
		k := objectKey{collection: obj.Collection, pkKey: ir.KeyOf(obj.PK).String()}
		if seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}

	out := []SharedEntry{}
	for start := 0; start < len(keys); start += objectsPerQuery {
		chunk := keys[start:min(start+objectsPerQuery, len(keys))]

		args := make([]any, 0, 1+2*len(chunk))
		args = append(args, deviceID)
		for _, k := range chunk {
			args = append(args, k.collection, k.pkKey)
		}
		query := `
			SELECT shared_on, user_id, device_id, operation, collection, pk, field, value, created_on
			FROM entries
			WHERE device_id = ? AND (collection, pk_key) IN (VALUES ` +
			strings.TrimSuffix(strings.Repeat("(?, ?), ", len(chunk)), ", ") + `)
			ORDER BY shared_on ASC
		`

		rows, err := l.store.DB().QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("fetch device entries: %w", err)
		}
		entries, err := scanEntries(rows)
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("fetch device entries: %w", err)
		}
		out = append(out, entries...)
	}
	if len(keys) > objectsPerQuery {
		sortBySharedOn(out)
	}
	return out, nil
}

type entryRow struct {
	operation  ir.EntryKind
	collection string
	pk         string
	pkKey      string
	field      sql.NullString
	value      sql.NullString
	createdOn  int64
}

func encodeEntry(e ir.LogEntry) (entryRow, error) {
	h := e.Header()
	pk, err := ir.MarshalIRValue(h.PK)
	if err != nil {
		return entryRow{}, fmt.Errorf("marshal pk: %w", err)
	}
	row := entryRow{
		operation:  e.Kind(),
		collection: h.Collection,
		pk:         string(pk),
		pkKey:      ir.KeyOf(h.PK).String(),
		createdOn:  h.CreatedOn,
	}

	var value ir.IRValue
	switch entry := e.(type) {
	case ir.CreateEntry:
		value = entry.Value
	case ir.ModifyEntry:
		row.field = sql.NullString{String: entry.Field, Valid: true}
		value = entry.Value
	}
	if value != nil {
		data, err := ir.MarshalIRValue(value)
		if err != nil {
			return entryRow{}, fmt.Errorf("marshal value: %w", err)
		}
		row.value = sql.NullString{String: string(data), Valid: true}
	}
	return row, nil
}

func scanEntries(rows *sql.Rows) ([]SharedEntry, error) {
	var out []SharedEntry
	for rows.Next() {
		var (
			s     SharedEntry
			op    string
			coll  string
			pk    string
			field sql.NullString
			value sql.NullString
			at    int64
		)
		if err := rows.Scan(&s.SharedOn, &s.UserID, &s.DeviceID, &op, &coll, &pk, &field, &value, &at); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e, err := decodeEntry(ir.EntryKind(op), coll, pk, field, value, at)
		if err != nil {
			return nil, fmt.Errorf("decode entry %d: %w", s.SharedOn, err)
		}
		s.Entry = e
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	if out == nil {
		out = []SharedEntry{}
	}
	return out, nil
}

func decodeEntry(op ir.EntryKind, collection, pkJSON string, field, value sql.NullString, createdOn int64) (ir.LogEntry, error) {
	pk, err := ir.UnmarshalIRValue([]byte(pkJSON))
	if err != nil {
		return nil, fmt.Errorf("pk: %w", err)
	}
	h := ir.EntryHeader{Collection: collection, PK: pk, CreatedOn: createdOn}

	var v ir.IRValue
	if value.Valid {
		if v, err = ir.UnmarshalIRValue([]byte(value.String)); err != nil {
			return nil, fmt.Errorf("value: %w", err)
		}
	}

	switch op {
	case ir.KindCreate:
		obj, ok := v.(ir.IRObject)
		if !ok {
			return nil, errors.New("create value is not an object")
		}
		return ir.CreateEntry{EntryHeader: h, Value: obj}, nil
	case ir.KindModify:
		if v == nil {
			return nil, errors.New("modify entry has no value")
		}
		return ir.ModifyEntry{EntryHeader: h, Field: field.String, Value: v}, nil
	case ir.KindDelete:
		return ir.DeleteEntry{EntryHeader: h}, nil
	default:
		return nil, fmt.Errorf("unknown operation %q", op)
	}
}

func sortBySharedOn(entries []SharedEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].SharedOn < entries[j].SharedOn
	})
}
