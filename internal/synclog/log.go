package synclog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/logsync/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on entries(user_id, shared_on) for unsynced scans
var migrations = []store.Migration{
	{
		Version: 1,
		Name:    "entries user/shared_on index",
		SQL: `CREATE INDEX IF NOT EXISTS idx_entries_user_shared_on
			ON entries(user_id, shared_on)`,
	},
}

// IDGenerator produces device identifiers.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 device IDs.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Device is a registered device and its high-water mark.
type Device struct {
	ID          string
	UserID      string
	SharedUntil int64
}

// Log is the shared sync log.
type Log struct {
	store *store.Store
	clock *Clock
	ids   IDGenerator
}

// Option configures a Log.
type Option func(*Log)

// WithIDGenerator overrides the device ID generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(l *Log) {
		l.ids = g
	}
}

// Open creates or opens the sync log database at path. The logical clock
// resumes from the greatest persisted shared_on.
func Open(path string, opts ...Option) (*Log, error) {
	s, err := store.Open(path, schemaSQL, migrations...)
	if err != nil {
		return nil, fmt.Errorf("open sync log: %w", err)
	}

	l := &Log{store: s, ids: UUIDv7Generator{}}
	for _, opt := range opts {
		opt(l)
	}

	last, err := maxSharedOn(context.Background(), s.DB())
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("open sync log: %w", err)
	}
	l.clock = NewClockAt(last)
	return l, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.store.Close()
}

// CreateDeviceRecord registers a new device for userID with the given
// initial high-water mark and returns its ID.
func (l *Log) CreateDeviceRecord(ctx context.Context, userID string, sharedUntil int64) (string, error) {
	if userID == "" {
		return "", errors.New("create device record: user id is required")
	}
	id := l.ids.Generate()
	_, err := l.store.DB().ExecContext(ctx, `
		INSERT INTO devices (id, user_id, shared_until)
		VALUES (?, ?, ?)
	`, id, userID, sharedUntil)
	if err != nil {
		return "", fmt.Errorf("create device record: %w", err)
	}
	return id, nil
}

// Device returns a registered device.
func (l *Log) Device(ctx context.Context, deviceID string) (Device, error) {
	return loadDevice(ctx, l.store.DB(), deviceID)
}

// AdvanceHighWaterMark records that every entry up to until has been
// delivered to the device. The mark never moves backwards.
func (l *Log) AdvanceHighWaterMark(ctx context.Context, deviceID string, until int64) error {
	res, err := l.store.DB().ExecContext(ctx, `
		UPDATE devices SET shared_until = MAX(shared_until, ?)
		WHERE id = ?
	`, until, deviceID)
	if err != nil {
		return fmt.Errorf("advance high-water mark: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("advance high-water mark: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("advance high-water mark %s: %w", deviceID, ErrDeviceNotFound)
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadDevice(ctx context.Context, q querier, deviceID string) (Device, error) {
	var d Device
	err := q.QueryRowContext(ctx, `
		SELECT id, user_id, shared_until FROM devices WHERE id = ?
	`, deviceID).Scan(&d.ID, &d.UserID, &d.SharedUntil)
	if errors.Is(err, sql.ErrNoRows) {
		return Device{}, fmt.Errorf("device %s: %w", deviceID, ErrDeviceNotFound)
	}
	if err != nil {
		return Device{}, fmt.Errorf("load device %s: %w", deviceID, err)
	}
	return d, nil
}

func maxSharedOn(ctx context.Context, q querier) (int64, error) {
	var last int64
	if err := q.QueryRowContext(ctx, `SELECT COALESCE(MAX(shared_on), 0) FROM entries`).Scan(&last); err != nil {
		return 0, fmt.Errorf("read last shared_on: %w", err)
	}
	return last, nil
}
