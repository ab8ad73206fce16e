// Package cache persists per-path scan results between runs and decides
// which directories can be reused without being walked again.
package cache

import (
	"bytes"
	"encoding/gob"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/jamesainslie/dusk/pkg/dusk/types"
)

// FormatVersion is bumped whenever the encoded layout changes. Files
// written with another version are ignored.
const FormatVersion uint32 = 3

// Entry is the last known state of one path.
type Entry struct {
	Inode   uint64
	Size    int64 // disk usage in bytes
	ModTime int64 // Unix nanoseconds
	Nlink   uint64
	UID     uint32
	Kind    types.Kind

	// Aggregate holds the directory totals; zero for files.
	Aggregate types.AggregatedDirectory
}

// NewEntry builds an entry from live metadata.
func NewEntry(kind types.Kind, meta types.Metadata) Entry {
	return Entry{
		Inode:   meta.Inode,
		Size:    meta.DiskUsage,
		ModTime: meta.ModTime,
		Nlink:   meta.Nlink,
		UID:     meta.UID,
		Kind:    kind,
	}
}

// Matches reports whether meta has the recorded modification time and
// link count.
func (e Entry) Matches(meta types.Metadata) bool {
	return e.ModTime == meta.ModTime && e.Nlink == meta.Nlink
}

// Encode serialises the entry with gob.
func (e *Entry) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode is the inverse of Encode.
func (e *Entry) Decode(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(e)
}

// Header describes a snapshot.
type Header struct {
	Version     uint32
	ToolVersion string
	Root        string
	WrittenAt   time.Time
	RootModTime int64
	// Fingerprint identifies the exclusion set the snapshot was taken
	// with. A scan with another fingerprint must not reuse it.
	Fingerprint uint64
}

// Snapshot is the path to Entry mapping for one root. A loaded snapshot
// is read-only.
type Snapshot struct {
	Header  Header
	Entries map[string]Entry

	sortOnce sync.Once
	sorted   []string
}

// Get returns the entry for path.
func (s *Snapshot) Get(path string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	e, ok := s.Entries[path]
	return e, ok
}

// Len returns the number of entries.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Entries)
}

// Age returns how long ago the snapshot was written.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.Header.WrittenAt)
}

func (s *Snapshot) keys() []string {
	s.sortOnce.Do(func() {
		s.sorted = make([]string, 0, len(s.Entries))
		for path := range s.Entries {
			s.sorted = append(s.sorted, path)
		}
		sort.Strings(s.sorted)
	})
	return s.sorted
}

// Descendants returns every recorded path strictly below dir, in sorted
// order.
func (s *Snapshot) Descendants(dir string) []string {
	if s == nil {
		return nil
	}
	keys := s.keys()
	prefix := dir + string(filepath.Separator)
	if dir == string(filepath.Separator) {
		prefix = dir
	}
	// Every path below dir sorts between prefix and prefix with its last
	// byte incremented.
	upper := prefix[:len(prefix)-1] + string(rune(prefix[len(prefix)-1]+1))
	lo := sort.SearchStrings(keys, prefix)
	hi := sort.SearchStrings(keys, upper)
	return keys[lo:hi]
}

// Directories returns every recorded directory path.
func (s *Snapshot) Directories() []string {
	var dirs []string
	for _, path := range s.keys() {
		if s.Entries[path].Kind == types.KindDirectory {
			dirs = append(dirs, path)
		}
	}
	return dirs
}

func encodeSnapshot(snap *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snapshotWire{Header: snap.Header, Entries: snap.Entries}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeSnapshot(data []byte) (*Snapshot, error) {
	var wire snapshotWire
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&wire); err != nil {
		return nil, err
	}
	if wire.Entries == nil {
		wire.Entries = make(map[string]Entry)
	}
	return &Snapshot{Header: wire.Header, Entries: wire.Entries}, nil
}

// snapshotWire is the encoded form; Snapshot carries unexported state.
type snapshotWire struct {
	Header  Header
	Entries map[string]Entry
}
