package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jamesainslie/dusk/pkg/dusk/logging"
	"github.com/jamesainslie/dusk/pkg/dusk/types"
)

var logger = logging.Get("history")

// ErrNotFound is returned by Get for unknown IDs.
var ErrNotFound = errors.New("history record not found")

// Log stores records as individual JSON files in one directory.
type Log struct {
	dir string
	mu  sync.Mutex
}

// New creates a Log rooted at dir. The directory is created on first write.
func New(dir string) (*Log, error) {
	if dir == "" {
		return nil, errors.New("history directory cannot be empty")
	}
	return &Log{dir: dir}, nil
}

// Dir returns the directory holding the records.
func (l *Log) Dir() string {
	return l.dir
}

// Append records a scan result and returns the stored record.
func (l *Log) Append(r *types.ScanResult) (*Record, error) {
	rec := FromResult(r)
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	if err := l.write(&rec); err != nil {
		return nil, fmt.Errorf("failed to write history record: %w", err)
	}
	logger.Debug("recorded scan", "id", rec.ID, "root", rec.Root, "partial", rec.Partial)
	return &rec, nil
}

func (l *Log) write(rec *Record) error {
	path := filepath.Join(l.dir, filename(rec))

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// filename sorts lexically by time.
func filename(rec *Record) string {
	return fmt.Sprintf("%s-%s.json", rec.Timestamp.UTC().Format("20060102T150405.000000000"), rec.ID)
}

// List returns records newest first. A limit of zero or less returns all.
func (l *Log) List(limit int) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.readAll()
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].rec.Timestamp.After(records[j].rec.Timestamp)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = r.rec
	}
	return out, nil
}

// Get returns the record with the given ID. A unique prefix of at least
// four characters is accepted.
func (l *Log) Get(id string) (*Record, error) {
	if id == "" {
		return nil, errors.New("record ID cannot be empty")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.readAll()
	if err != nil {
		return nil, err
	}

	var match *Record
	for _, r := range records {
		if r.rec.ID == id {
			rec := r.rec
			return &rec, nil
		}
		if len(id) >= 4 && strings.HasPrefix(r.rec.ID, id) {
			if match != nil {
				return nil, fmt.Errorf("ambiguous record ID prefix %q", id)
			}
			rec := r.rec
			match = &rec
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return match, nil
}

// Clean removes records older than retentionDays and returns how many
// were removed. A retention of zero or less removes nothing.
func (l *Log) Clean(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	return l.cleanBefore(time.Now().AddDate(0, 0, -retentionDays))
}

func (l *Log) cleanBefore(cutoff time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.readAll()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, r := range records {
		if !r.rec.Timestamp.Before(cutoff) {
			continue
		}
		if err := os.Remove(r.path); err != nil {
			logger.Warn("failed to remove history record", "path", r.path, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

type stored struct {
	path string
	rec  Record
}

// readAll parses every record file. Unparseable files are skipped.
func (l *Log) readAll() ([]stored, error) {
	files, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read history directory: %w", err)
	}

	var records []stored
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		path := filepath.Join(l.dir, f.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			logger.Debug("skipping unreadable history record", "path", path, "error", err)
			continue
		}
		records = append(records, stored{path: path, rec: rec})
	}
	return records, nil
}
