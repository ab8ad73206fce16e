package cache

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// Key layout in the shared database:
//
//	h\x00<root>             -> gob Header
//	e\x00<root>\x00<rel>    -> gob Entry
const (
	headerTag = "h\x00"
	entryTag  = "e\x00"
	keySep    = "\x00"
)

// BadgerBackend keeps the caches of every root in one badger database
// under the user cache directory.
type BadgerBackend struct {
	dir string
	db  *badger.DB
}

// OpenBadger opens or creates the database in dir.
func OpenBadger(dir string) (*BadgerBackend, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	return &BadgerBackend{dir: dir, db: db}, nil
}

func headerKey(root string) []byte {
	return []byte(headerTag + root)
}

func entryPrefix(root string) []byte {
	return []byte(entryTag + root + keySep)
}

func entryKey(root, path string) []byte {
	rel := ""
	if path != root {
		rel = strings.TrimPrefix(path, root+string(filepath.Separator))
	}
	return append(entryPrefix(root), rel...)
}

// Location returns the database directory.
func (b *BadgerBackend) Location(string) string {
	return b.dir
}

// Reserve is a no-op; the database lives outside the tree.
func (b *BadgerBackend) Reserve(string) error { return nil }

// Load reads every entry recorded for root.
func (b *BadgerBackend) Load(root string) (*Snapshot, error) {
	snap := &Snapshot{Entries: make(map[string]Entry)}
	prefix := entryPrefix(root)

	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(headerKey(root))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNoCache
		}
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return gob.NewDecoder(bytes.NewReader(val)).Decode(&snap.Header)
		}); err != nil {
			return fmt.Errorf("%w: header: %v", ErrCorrupt, err)
		}
		if snap.Header.Version != FormatVersion {
			return fmt.Errorf("%w: header %d", ErrVersionMismatch, snap.Header.Version)
		}

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			rel := string(item.Key()[len(prefix):])
			path := root
			if rel != "" {
				path = filepath.Join(root, rel)
			}
			var e Entry
			if err := item.Value(e.Decode); err != nil {
				return fmt.Errorf("%w: entry %s: %v", ErrCorrupt, path, err)
			}
			snap.Entries[path] = e
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Save replaces every entry recorded for root.
func (b *BadgerBackend) Save(root string, snap *Snapshot) error {
	if err := b.db.DropPrefix(entryPrefix(root)); err != nil {
		return fmt.Errorf("dropping old entries: %w", err)
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	for path, e := range snap.Entries {
		value, err := e.Encode()
		if err != nil {
			return err
		}
		if err := wb.Set(entryKey(root, path), value); err != nil {
			return err
		}
	}

	var header bytes.Buffer
	if err := gob.NewEncoder(&header).Encode(snap.Header); err != nil {
		return err
	}
	if err := wb.Set(headerKey(root), header.Bytes()); err != nil {
		return err
	}
	return wb.Flush()
}

// Remove deletes root's header and entries.
func (b *BadgerBackend) Remove(root string) error {
	if err := b.db.DropPrefix(entryPrefix(root)); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(headerKey(root))
	})
}

// Roots lists every root with a stored cache.
func (b *BadgerBackend) Roots() ([]string, error) {
	var roots []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(headerTag)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			roots = append(roots, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	return roots, err
}

// Clear removes the caches of every root and returns how many there were.
func (b *BadgerBackend) Clear() (int, error) {
	roots, err := b.Roots()
	if err != nil {
		return 0, err
	}
	for i, root := range roots {
		if err := b.Remove(root); err != nil {
			return i, err
		}
	}
	return len(roots), nil
}

// Close closes the database.
func (b *BadgerBackend) Close() error {
	return b.db.Close()
}
