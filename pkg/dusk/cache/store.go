package cache

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jamesainslie/dusk/pkg/dusk/logging"
)

var logger = logging.Get("cache")

// Errors describing why a cache could not be used. Callers of Store.Load
// never see them; they only explain a nil snapshot.
var (
	ErrNoCache           = errors.New("no cache")
	ErrCorrupt           = errors.New("cache corrupt")
	ErrVersionMismatch   = errors.New("cache version mismatch")
	ErrRootMismatch      = errors.New("cache belongs to another root")
	ErrExpired           = errors.New("cache expired")
	ErrUnknownBackend    = errors.New("unknown cache backend")
	ErrInvalidVerifyMode = errors.New("invalid cache verify mode")
)

// Backend persists snapshots.
type Backend interface {
	Load(root string) (*Snapshot, error)
	Save(root string, snap *Snapshot) error
	Reserve(root string) error
	Remove(root string) error
	Location(root string) string
	Close() error
}

// OpenBackend opens the named backend ("file" or "badger") rooted at the
// user cache directory dir.
func OpenBackend(name, dir string) (Backend, error) {
	switch name {
	case "", "file":
		return NewFileBackend(dir), nil
	case "badger":
		return OpenBadger(filepath.Join(dir, "badger"))
	default:
		return nil, fmt.Errorf("%w: %q (valid: file, badger)", ErrUnknownBackend, name)
	}
}

// Store applies the freshness policy on top of a Backend.
type Store struct {
	backend     Backend
	ttl         time.Duration
	toolVersion string
	now         func() time.Time
}

// StoreOptions configures a Store.
type StoreOptions struct {
	// TTL discards a whole cache older than this. Zero disables expiry.
	TTL time.Duration
	// ToolVersion is recorded in every saved header.
	ToolVersion string
}

// NewStore wraps backend.
func NewStore(backend Backend, opts StoreOptions) *Store {
	return &Store{backend: backend, ttl: opts.TTL, toolVersion: opts.ToolVersion, now: time.Now}
}

// Backend returns the underlying backend.
func (s *Store) Backend() Backend { return s.backend }

// Inspect loads the cache for root and explains why it is unusable.
func (s *Store) Inspect(root string) (*Snapshot, error) {
	snap, err := s.backend.Load(root)
	if err != nil {
		return nil, err
	}
	if snap.Header.Root != root {
		return snap, fmt.Errorf("%w: %q", ErrRootMismatch, snap.Header.Root)
	}
	if s.ttl > 0 && snap.Age(s.now()) > s.ttl {
		return snap, fmt.Errorf("%w: written %s ago, ttl %s", ErrExpired, snap.Age(s.now()).Round(time.Second), s.ttl)
	}
	return snap, nil
}

// Load returns the usable cache for root, or nil. The TTL gate applies to
// the whole cache before any per-directory comparison.
func (s *Store) Load(root string) *Snapshot {
	snap, err := s.Inspect(root)
	if err != nil {
		if errors.Is(err, ErrNoCache) {
			logger.Debug("no cache", "root", root)
		} else {
			logger.Warn("ignoring cache", "root", root, "error", err)
		}
		return nil
	}
	logger.Debug("cache loaded", "root", root, "entries", snap.Len(), "age", snap.Age(s.now()).Round(time.Second))
	return snap
}

// Reserve prepares the cache location for root.
func (s *Store) Reserve(root string) {
	if err := s.backend.Reserve(root); err != nil {
		logger.Debug("reserving cache location failed", "root", root, "error", err)
	}
}

// Save persists snap for root, stamping the header.
func (s *Store) Save(root string, snap *Snapshot) error {
	snap.Header.Version = FormatVersion
	snap.Header.Root = root
	snap.Header.ToolVersion = s.toolVersion
	snap.Header.WrittenAt = s.now()
	if err := s.backend.Save(root, snap); err != nil {
		return fmt.Errorf("saving cache for %s: %w", root, err)
	}
	logger.Debug("cache saved", "root", root, "entries", snap.Len(), "location", s.backend.Location(root))
	return nil
}

// Remove deletes the cache for root.
func (s *Store) Remove(root string) error {
	return s.backend.Remove(root)
}

// Location returns where the cache for root lives.
func (s *Store) Location(root string) string {
	return s.backend.Location(root)
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
