package state

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// SQLiteStore keeps records in an in-memory SQLite database. The pool is
// pinned to one connection because every ":memory:" connection would
// otherwise see its own empty database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite creates the in-memory database and applies the schema.
func OpenSQLite(ctx context.Context) (*SQLiteStore, error) {
	ctx = ensureContext(ctx)
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragma: %w", err)
	}

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil || !isSQLiteBusy(lastErr) {
			return lastErr
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *SQLiteStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	return res, err
}

func (s *SQLiteStore) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func (s *SQLiteStore) ensureRecord(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	_, err := s.exec(ctx,
		"INSERT OR IGNORE INTO records (key, updated_at) VALUES (?, ?)",
		key, s.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("ensure record %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) update(ctx context.Context, key, setClause string, args ...any) (int64, error) {
	if err := s.ensureRecord(ctx, key); err != nil {
		return 0, err
	}
	query := "UPDATE records SET " + setClause + ", updated_at = ? WHERE key = ?"
	args = append(args, s.timestamp(), key)
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update record %q: %w", key, err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

// GetOrCreate implements Store.
func (s *SQLiteStore) GetOrCreate(ctx context.Context, key string) (Record, error) {
	if err := s.ensureRecord(ctx, key); err != nil {
		return Record{}, err
	}
	row := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT key, cursor, total, status, last_collection_key, updated_at FROM records WHERE key = ?",
		key,
	)
	return scanRecord(row)
}

// Reset implements Store.
func (s *SQLiteStore) Reset(ctx context.Context, key string) error {
	_, err := s.update(ctx, key, "cursor = 0, status = ?", string(StatusIdle))
	return err
}

// SetTotal implements Store.
func (s *SQLiteStore) SetTotal(ctx context.Context, key string, total int) error {
	if total < 0 {
		return fmt.Errorf("total must be >= 0, got %d", total)
	}
	_, err := s.update(ctx, key, "total = CASE WHEN cursor = 0 THEN ? ELSE total END", total)
	return err
}

// Advance implements Store.
func (s *SQLiteStore) Advance(ctx context.Context, key string) error {
	_, err := s.update(ctx, key, "cursor = CASE WHEN cursor < total THEN cursor + 1 ELSE cursor END")
	return err
}

// Wrap implements Store.
func (s *SQLiteStore) Wrap(ctx context.Context, key string) error {
	_, err := s.update(ctx, key, "cursor = 0")
	return err
}

// Seek implements Store.
func (s *SQLiteStore) Seek(ctx context.Context, key string, offset int) error {
	if err := s.ensureRecord(ctx, key); err != nil {
		return err
	}
	res, err := s.exec(ctx,
		"UPDATE records SET cursor = ?, updated_at = ? WHERE key = ? AND ? >= 0 AND ? <= total",
		offset, s.timestamp(), key, offset, offset,
	)
	if err != nil {
		return fmt.Errorf("seek record %q: %w", key, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		rec, getErr := s.GetOrCreate(ctx, key)
		if getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: %d not in [0, %d]", ErrInvalidOffset, offset, rec.Total)
	}
	return nil
}

// SetStatus implements Store.
func (s *SQLiteStore) SetStatus(ctx context.Context, key string, status Status) error {
	if _, ok := statusSet[status]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	_, err := s.update(ctx, key, "status = ?", string(status))
	return err
}

// DetectCollectionChange implements Store.
func (s *SQLiteStore) DetectCollectionChange(ctx context.Context, lane, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	ctx = ensureContext(ctx)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin lane tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var previous string
	seen := true
	err = tx.QueryRowContext(ctx, "SELECT collection_key FROM lanes WHERE lane = ?", lane).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) {
		seen = false
	} else if err != nil {
		return false, fmt.Errorf("read lane %q: %w", lane, err)
	}

	now := s.timestamp()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO lanes (lane, collection_key, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(lane) DO UPDATE SET collection_key = excluded.collection_key, updated_at = excluded.updated_at`,
		lane, key, now,
	); err != nil {
		return false, fmt.Errorf("record lane %q: %w", lane, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO records (key, last_collection_key, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET last_collection_key = excluded.last_collection_key`,
		key, key, now,
	); err != nil {
		return false, fmt.Errorf("record last collection for %q: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit lane tx: %w", err)
	}
	return seen && previous != key, nil
}

// Records implements Store.
func (s *SQLiteStore) Records(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT key, cursor, total, status, last_collection_key, updated_at FROM records ORDER BY key",
	)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// ClearAll implements Store.
func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	if _, err := s.exec(ctx, "DELETE FROM records"); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	if _, err := s.exec(ctx, "DELETE FROM lanes"); err != nil {
		return fmt.Errorf("clear lanes: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec       Record
		status    string
		updatedAt string
	)
	if err := row.Scan(&rec.Key, &rec.Offset, &rec.Total, &status, &rec.LastCollectionKey, &updatedAt); err != nil {
		return Record{}, fmt.Errorf("scan record: %w", err)
	}
	parsed, ok := ParseStatus(status)
	if !ok {
		return Record{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	rec.Status = parsed
	if ts, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		rec.UpdatedAt = ts
	}
	return rec, nil
}
