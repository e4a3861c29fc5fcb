package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const tempPrefix = ".tmp-"

// FileStore keeps one JSON file per key under a root directory. Writes go to a
// temp file in the same directory and are renamed into place, so a crash
// mid-write leaves the previous entry intact.
type FileStore struct {
	dir string

	mu     sync.Mutex
	closed bool

	now    func() time.Time
	rename func(oldpath, newpath string) error
}

// fileRecord is the on-disk layout. Payload is stored as bytes (base64 in JSON)
// so it round-trips byte for byte.
type fileRecord struct {
	Key       string    `json:"key"`
	FetchedAt time.Time `json:"fetched_at"`
	Payload   []byte    `json:"payload"`
}

// NewFileStore creates dir with 0700 permissions if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &FileStore{
		dir:    dir,
		now:    time.Now,
		rename: os.Rename,
	}, nil
}

// Dir returns the cache root.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+".json")
}

func (s *FileStore) Get(ctx context.Context, key string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.read(key)
}

func (s *FileStore) read(key string) (*Entry, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache entry: %w", err)
	}

	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding cache entry: %w", err)
	}
	if rec.Key != key {
		return nil, nil
	}
	return &Entry{Key: rec.Key, Payload: rec.Payload, FetchedAt: rec.FetchedAt}, nil
}

func (s *FileStore) Put(ctx context.Context, key string, payload json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	fetchedAt := s.now().UTC()
	// An unreadable previous record is about to be replaced anyway.
	if prev, err := s.read(key); err == nil && prev != nil {
		fetchedAt = stamp(prev.FetchedAt, fetchedAt)
	}

	data, err := json.Marshal(fileRecord{Key: key, FetchedAt: fetchedAt, Payload: payload})
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}
	if err := s.writeAtomic(s.path(key), data); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

func (s *FileStore) writeAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(s.dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0600); err != nil {
		return err
	}
	return s.rename(tmp.Name(), path)
}

// Prune removes entries fetched before olderThan, and temp files abandoned by
// an interrupted write that were last modified before it.
func (s *FileStore) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("listing cache directory: %w", err)
	}

	removed := 0
	for _, de := range dirents {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if de.IsDir() {
			continue
		}
		name := de.Name()
		full := filepath.Join(s.dir, name)

		switch {
		case strings.HasPrefix(name, tempPrefix):
			info, err := de.Info()
			if err != nil || !info.ModTime().Before(olderThan) {
				continue
			}
		case strings.HasSuffix(name, ".json"):
			data, err := os.ReadFile(full)
			if err != nil {
				continue
			}
			var rec fileRecord
			if err := json.Unmarshal(data, &rec); err == nil && !rec.FetchedAt.Before(olderThan) {
				continue
			}
		default:
			continue
		}

		if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("removing %s: %w", name, err)
		}
		removed++
	}
	return removed, nil
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
