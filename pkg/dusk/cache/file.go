package cache

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
)

// FileName is the name of the cache file kept at the top of a scanned tree.
const FileName = ".dusk-cache"

// fileMagic opens every cache file.
var fileMagic = [8]byte{'D', 'U', 'S', 'K', 'C', 'A', 'C', 'H'}

const fileHeaderLen = len(fileMagic) + 4

// FileBackend stores one cache file per root: inside the root when it is
// writable, otherwise under a user-level directory.
type FileBackend struct {
	// UserDir holds cache files for roots that cannot hold their own.
	UserDir string
}

// NewFileBackend returns a FileBackend with the given fallback directory.
func NewFileBackend(userDir string) *FileBackend {
	return &FileBackend{UserDir: userDir}
}

// PrimaryPath returns the in-tree cache path for root.
func (b *FileBackend) PrimaryPath(root string) string {
	return filepath.Join(root, FileName)
}

// FallbackPath returns the user-level cache path for root.
func (b *FileBackend) FallbackPath(root string) string {
	return filepath.Join(b.UserDir, fmt.Sprintf("%016x.cache", xxhash.Sum64String(root)))
}

// Location returns the path the cache for root is read from.
func (b *FileBackend) Location(root string) string {
	primary := b.PrimaryPath(root)
	if info, err := os.Stat(primary); err == nil && info.Size() > 0 {
		return primary
	}
	fallback := b.FallbackPath(root)
	if _, err := os.Stat(fallback); err == nil {
		return fallback
	}
	if writable(primary) {
		return primary
	}
	return fallback
}

// Reserve makes sure the in-tree cache file exists before the scan reads
// the root's metadata, so that a later save rewrites an existing file and
// leaves the root's modification time alone.
func (b *FileBackend) Reserve(root string) error {
	primary := b.PrimaryPath(root)
	if _, err := os.Stat(primary); err == nil {
		return nil
	}
	f, err := os.OpenFile(primary, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		logger.Debug("tree not writable, using user cache", "root", root, "error", err)
		return nil
	}
	return f.Close()
}

// Load reads and decodes the cache for root.
func (b *FileBackend) Load(root string) (*Snapshot, error) {
	path := b.Location(root)
	data, release, err := readMapped(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCache
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	defer release()

	return decodeFile(data)
}

// Save writes snap for root. The in-tree file is rewritten in place; the
// user-level file is replaced through a rename.
func (b *FileBackend) Save(root string, snap *Snapshot) error {
	payload, err := encodeFile(snap)
	if err != nil {
		return err
	}

	primary := b.PrimaryPath(root)
	if writable(primary) {
		err := writeInPlace(primary, payload)
		if err == nil {
			return nil
		}
		logger.Debug("in-tree cache write failed", "path", primary, "error", err)
	}

	if err := os.MkdirAll(b.UserDir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	return writeReplace(b.FallbackPath(root), payload)
}

// Remove deletes both cache locations for root.
func (b *FileBackend) Remove(root string) error {
	var firstErr error
	for _, path := range []string{b.PrimaryPath(root), b.FallbackPath(root)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Clear removes every user-level cache file and returns how many were
// removed. In-tree files are only found by Remove.
func (b *FileBackend) Clear() (int, error) {
	matches, err := filepath.Glob(filepath.Join(b.UserDir, "*.cache"))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, path := range matches {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Close is a no-op.
func (b *FileBackend) Close() error { return nil }

func encodeFile(snap *Snapshot) ([]byte, error) {
	body, err := encodeSnapshot(snap)
	if err != nil {
		return nil, fmt.Errorf("encoding cache: %w", err)
	}
	out := make([]byte, fileHeaderLen, fileHeaderLen+len(body))
	copy(out, fileMagic[:])
	binary.LittleEndian.PutUint32(out[len(fileMagic):], FormatVersion)
	return append(out, body...), nil
}

func decodeFile(data []byte) (*Snapshot, error) {
	if len(data) == 0 {
		return nil, ErrNoCache
	}
	if len(data) < fileHeaderLen || !bytes.Equal(data[:len(fileMagic)], fileMagic[:]) {
		return nil, ErrCorrupt
	}
	if v := binary.LittleEndian.Uint32(data[len(fileMagic):]); v != FormatVersion {
		return nil, fmt.Errorf("%w: file %d, want %d", ErrVersionMismatch, v, FormatVersion)
	}
	snap, err := decodeSnapshot(data[fileHeaderLen:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if snap.Header.Version != FormatVersion {
		return nil, fmt.Errorf("%w: header %d", ErrVersionMismatch, snap.Header.Version)
	}
	return snap, nil
}

// mappedWrite is the memory-mapped write path. Saves fall back to
// writeBuffered when it fails.
var mappedWrite = writeMapped

// writeInPlace overwrites an existing file, trying a memory-mapped write
// before buffered I/O.
func writeInPlace(path string, payload []byte) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	if err := mappedWrite(f, payload); err != nil {
		logger.Debug("mapped write failed, using buffered write", "path", path, "error", err)
		if err := writeBuffered(f, payload); err != nil {
			_ = f.Close()
			return err
		}
	}
	return f.Close()
}

// writeReplace writes a sibling temp file and renames it over path.
func writeReplace(path string, payload []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := mappedWrite(tmp, payload); err != nil {
		if err := writeBuffered(tmp, payload); err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
			return err
		}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming cache file: %w", err)
	}
	return nil
}

func writeBuffered(f *os.File, payload []byte) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	w := bufio.NewWriterSize(f, 1<<16)
	if _, err := w.Write(payload); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

// writable reports whether path exists and can be opened for writing.
func writable(path string) bool {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}
