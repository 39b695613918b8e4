package state

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status represents the lifecycle of a sequence.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
	StatusInterrupted Status = "interrupted"
)

var statusSet = map[Status]struct{}{
	StatusIdle:        {},
	StatusInProgress:  {},
	StatusCompleted:   {},
	StatusInterrupted: {},
}

// ParseStatus converts a stored string into a Status.
func ParseStatus(value string) (Status, bool) {
	status := Status(value)
	_, ok := statusSet[status]
	return status, ok
}

// Terminal reports whether the status ends a sequence until it is reset.
func (s Status) Terminal() bool {
	return s == StatusInterrupted
}

var (
	// ErrInvalidKey is returned when a collection key is empty after trimming.
	ErrInvalidKey = errors.New("collection key must not be empty")
	// ErrInvalidOffset is returned by Seek for offsets outside [0, total].
	ErrInvalidOffset = errors.New("offset out of range")
	// ErrInvalidStatus is returned by SetStatus for unknown statuses.
	ErrInvalidStatus = errors.New("unknown status")
)

// Record is the persisted cursor for one collection key.
type Record struct {
	Key               string    `json:"key"`
	Offset            int       `json:"offset"`
	Total             int       `json:"total"`
	Status            Status    `json:"status"`
	LastCollectionKey string    `json:"last_collection_key,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Complete reports whether the cursor has consumed the snapshot.
func (r Record) Complete() bool {
	return r.Total > 0 && r.Offset >= r.Total
}

// Store persists iteration records. Implementations must be safe for
// concurrent use; callers serialize per-key read-modify-write sequences with
// KeyLocks.
type Store interface {
	// GetOrCreate returns the record for key, creating an idle zero record
	// when none exists.
	GetOrCreate(ctx context.Context, key string) (Record, error)
	// Reset sets offset to 0 and status to idle, keeping total.
	Reset(ctx context.Context, key string) error
	// SetTotal records the snapshot size. Ignored unless offset is 0.
	SetTotal(ctx context.Context, key string, total int) error
	// Advance moves the cursor forward by one. No-op once offset >= total.
	Advance(ctx context.Context, key string) error
	// Wrap returns the cursor to 0 after completion.
	Wrap(ctx context.Context, key string) error
	// Seek overrides the offset. Offsets outside [0, total] fail with ErrInvalidOffset.
	Seek(ctx context.Context, key string, offset int) error
	// SetStatus updates the lifecycle status.
	SetStatus(ctx context.Context, key string, status Status) error
	// DetectCollectionChange compares key with the lane's previous key. It
	// reports true only when a previous key exists and differs, and always
	// records key as the lane's latest.
	DetectCollectionChange(ctx context.Context, lane, key string) (bool, error)
	// Records returns a snapshot of every record ordered by key.
	Records(ctx context.Context) ([]Record, error)
	// ClearAll drops every record and lane.
	ClearAll(ctx context.Context) error
	Close() error
}

// Open constructs a store for the named backend ("memory" or "sqlite").
func Open(backend string) (Store, error) {
	switch backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return OpenSQLite(context.Background())
	default:
		return nil, fmt.Errorf("unknown state backend %q", backend)
	}
}

func validateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	return nil
}
