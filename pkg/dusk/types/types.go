// Package types provides the core data types shared by the dusk scan engine,
// its cache, and the output layer.
package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies a filesystem entry.
type Kind uint8

const (
	// KindFile is a regular file.
	KindFile Kind = iota
	// KindDirectory is a directory.
	KindDirectory
	// KindOther covers symlinks, sockets, devices and pipes.
	KindOther
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "dir"
	default:
		return "other"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Metadata is the raw stat information captured for one entry.
type Metadata struct {
	// DiskUsage is allocated storage in bytes (blocks * 512), not logical length.
	DiskUsage int64
	// Size is the logical length in bytes.
	Size int64
	// ModTime is the modification time in Unix nanoseconds.
	ModTime int64
	Nlink   uint64
	Inode   uint64
	UID     uint32
	GID     uint32
}

// FilesystemEntry is a read-only snapshot of one entry taken during traversal.
type FilesystemEntry struct {
	Path  string
	Kind  Kind
	Depth int
	Meta  Metadata
}

// ScanJob is one unit of aggregation work. Ancestors lists the directories
// the job contributes to, nearest first, ending with the scan root. The
// slice is shared between siblings and must not be modified.
type ScanJob struct {
	Path      string
	IsFile    bool
	Bytes     int64
	Ancestors []string
}

// AggregatedDirectory holds the accumulated totals for one directory.
type AggregatedDirectory struct {
	// Bytes is the disk usage of every file below the directory.
	Bytes int64 `json:"bytes"`
	// Files is the number of regular files below the directory.
	Files int64 `json:"files"`
	// Children is the number of direct entries.
	Children int64 `json:"children"`
	// Inodes is the number of entries of any kind below the directory.
	Inodes int64 `json:"inodes"`
}

// Add merges other into a. Merging is commutative and associative.
func (a *AggregatedDirectory) Add(other AggregatedDirectory) {
	a.Bytes += other.Bytes
	a.Files += other.Files
	a.Children += other.Children
	a.Inodes += other.Inodes
}

// InodeMode selects which count is reported alongside a directory.
type InodeMode uint8

const (
	// InodesTotal reports every entry below the directory.
	InodesTotal InodeMode = iota
	// InodesDirect reports only direct children.
	InodesDirect
)

// ErrInvalidInodeMode is returned by ParseInodeMode for unknown names.
var ErrInvalidInodeMode = errors.New("invalid inode mode")

// ParseInodeMode parses "total" or "direct".
func ParseInodeMode(s string) (InodeMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "total":
		return InodesTotal, nil
	case "direct":
		return InodesDirect, nil
	default:
		return InodesTotal, fmt.Errorf("%w: %q (valid: total, direct)", ErrInvalidInodeMode, s)
	}
}

// String returns the configuration name of the mode.
func (m InodeMode) String() string {
	if m == InodesDirect {
		return "direct"
	}
	return "total"
}

// Count picks the count the mode reports from an aggregate.
func (m InodeMode) Count(a AggregatedDirectory) int64 {
	if m == InodesDirect {
		return a.Children
	}
	return a.Inodes
}

// MemoryLimitStatus is the state reported by the memory monitor.
type MemoryLimitStatus uint8

const (
	// MemoryOk means usage is below 95% of the limit.
	MemoryOk MemoryLimitStatus = iota
	// MemoryNearing means usage is between 95% and 100% of the limit.
	MemoryNearing
	// MemoryExceeded means usage is at or above the limit.
	MemoryExceeded
	// MemoryUnsupported means usage cannot be measured or no limit is set.
	MemoryUnsupported
)

// String returns the status name.
func (s MemoryLimitStatus) String() string {
	switch s {
	case MemoryOk:
		return "ok"
	case MemoryNearing:
		return "nearing"
	case MemoryExceeded:
		return "exceeded"
	default:
		return "unsupported"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s MemoryLimitStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *MemoryLimitStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "ok":
		*s = MemoryOk
	case "nearing":
		*s = MemoryNearing
	case "exceeded":
		*s = MemoryExceeded
	case "unsupported":
		*s = MemoryUnsupported
	default:
		return fmt.Errorf("unknown memory status %q", text)
	}
	return nil
}

func (s MemoryLimitStatus) severity() int {
	switch s {
	case MemoryNearing:
		return 2
	case MemoryExceeded:
		return 3
	case MemoryOk:
		return 1
	default:
		return 0
	}
}

// Escalate returns the worse of s and next. Status never improves within a scan.
func (s MemoryLimitStatus) Escalate(next MemoryLimitStatus) MemoryLimitStatus {
	if next.severity() > s.severity() {
		return next
	}
	return s
}

// ResultEntry is one row handed to output formatters.
type ResultEntry struct {
	Path   string `json:"path"`
	Kind   Kind   `json:"type"`
	Depth  int    `json:"depth"`
	Bytes  int64  `json:"size"`
	Files  int64  `json:"files,omitempty"`
	Inodes int64  `json:"inodes,omitempty"`
	UID    uint32 `json:"-"`
	Owner  string `json:"owner,omitempty"`
}

// ScanWarning records a recoverable per-entry error.
type ScanWarning struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// PhaseTiming is the wall time spent in one scan phase.
type PhaseTiming struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
}

// ScanStats contains counters gathered while scanning.
type ScanStats struct {
	DirsScanned  int64         `json:"dirs_scanned"`
	FilesScanned int64         `json:"files_scanned"`
	CacheHits    int64         `json:"cache_hits"`
	CacheMisses  int64         `json:"cache_misses"`
	LargeDirs    int64         `json:"large_dirs,omitempty"`
	Strategy     string        `json:"strategy"`
	Workers      int           `json:"workers"`
	PeakRSS      int64         `json:"peak_rss,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	Phases       []PhaseTiming `json:"phases,omitempty"`
}

// CacheHitRate returns hits as a fraction of all cache decisions.
func (s ScanStats) CacheHitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

// ScanResult is the outcome of one scan.
type ScanResult struct {
	ID   string `json:"id"`
	Root string `json:"root"`

	// Memory is the worst memory status observed during the scan.
	Memory MemoryLimitStatus `json:"memory_status"`

	// Partial is set when the scan stopped early because the memory
	// limit was exceeded. Aggregates cover only what was visited.
	Partial bool `json:"partial"`

	// Directories maps every visited directory to its totals.
	Directories map[string]AggregatedDirectory `json:"-"`

	// Entries are the rows selected for output, unsorted.
	Entries []ResultEntry `json:"entries"`

	Warnings []ScanWarning `json:"warnings,omitempty"`
	Stats    ScanStats     `json:"stats"`
}

// Total returns the aggregate for the scan root.
func (r *ScanResult) Total() AggregatedDirectory {
	return r.Directories[r.Root]
}
