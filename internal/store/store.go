package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DefaultTTL is the freshness window used when a call site does not set its own.
const DefaultTTL = 600 * time.Second

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store closed")

// Entry is a cached upstream payload.
type Entry struct {
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Store is a persistent key/value cache of upstream payloads.
// File, SQLite and memory implementations satisfy this interface.
type Store interface {
	// Get returns the entry for key, or nil, nil when there is none.
	// Staleness is not checked here; see IsFresh.
	Get(ctx context.Context, key string) (*Entry, error)

	// Put atomically replaces the entry for key, stamping it with the current
	// time. FetchedAt never moves backwards for a key.
	Put(ctx context.Context, key string, payload json.RawMessage) error

	// Prune deletes entries fetched before olderThan and reports how many went.
	// The fetch path never calls it; it exists for external cleanup.
	Prune(ctx context.Context, olderThan time.Time) (int, error)

	Close() error
}

// IsFresh reports whether now - entry.FetchedAt < ttl.
func IsFresh(entry *Entry, ttl time.Duration, now time.Time) bool {
	if entry == nil {
		return false
	}
	return now.Sub(entry.FetchedAt) < ttl
}

// Open returns the store for driver. location is a directory for "file", a
// database path for "sqlite" and ignored for "memory".
func Open(driver, location string) (Store, error) {
	switch driver {
	case "file":
		return NewFileStore(location)
	case "sqlite":
		return NewSQLiteStore(location)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", driver)
	}
}

// stamp returns now, or prev when a clock step would move FetchedAt backwards.
func stamp(prev, now time.Time) time.Time {
	if prev.After(now) {
		return prev
	}
	return now
}
