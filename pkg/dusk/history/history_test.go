package history

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/dusk/pkg/dusk/types"
)

func scanAt(id string, started time.Time) *types.ScanResult {
	return &types.ScanResult{
		ID:     id,
		Root:   "/data",
		Memory: types.MemoryNearing,
		Directories: map[string]types.AggregatedDirectory{
			"/data": {Bytes: 4096, Files: 1, Children: 1, Inodes: 1},
		},
		Warnings: []types.ScanWarning{{Path: "/data/x", Error: "denied"}},
		Stats: types.ScanStats{
			StartedAt:   started,
			CacheHits:   2,
			CacheMisses: 1,
			Duration:    time.Second,
		},
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := New("")
	require.Error(t, err)

	l, err := New(t.TempDir())
	require.NoError(t, err)
	assert.NotEmpty(t, l.Dir())
}

func TestAppendAndGet(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "history")
	l, err := New(dir)
	require.NoError(t, err)

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec, err := l.Append(scanAt("5d2e8a40-aaaa", started))
	require.NoError(t, err)
	assert.Equal(t, started, rec.Timestamp)
	assert.Equal(t, 1, rec.Warnings)
	assert.Equal(t, int64(4096), rec.Total.Bytes)

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)

	got, err := l.Get("5d2e8a40-aaaa")
	require.NoError(t, err)
	assert.Equal(t, "/data", got.Root)
	assert.Equal(t, types.MemoryNearing, got.Memory)
	assert.Equal(t, int64(2), got.Stats.CacheHits)
	assert.Equal(t, time.Second, got.Stats.Duration)

	byPrefix, err := l.Get("5d2e")
	require.NoError(t, err)
	assert.Equal(t, "5d2e8a40-aaaa", byPrefix.ID)
}

func TestGetErrors(t *testing.T) {
	t.Parallel()
	l, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = l.Get("")
	require.Error(t, err)

	_, err = l.Get("missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	now := time.Now()
	_, err = l.Append(scanAt("abcd-1", now))
	require.NoError(t, err)
	_, err = l.Append(scanAt("abcd-2", now.Add(time.Second)))
	require.NoError(t, err)

	_, err = l.Get("abcd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")
}

func TestListNewestFirst(t *testing.T) {
	t.Parallel()
	l, err := New(t.TempDir())
	require.NoError(t, err)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"first", "second", "third"} {
		_, err := l.Append(scanAt(id, base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(l.Dir(), "junk.json"), []byte("{"), 0o644))

	all, err := l.List(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "third", all[0].ID)
	assert.Equal(t, "first", all[2].ID)

	limited, err := l.List(2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "second", limited[1].ID)
}

func TestListMissingDirectory(t *testing.T) {
	t.Parallel()
	l, err := New(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)

	records, err := l.List(0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestClean(t *testing.T) {
	t.Parallel()
	l, err := New(t.TempDir())
	require.NoError(t, err)

	now := time.Now().UTC()
	_, err = l.Append(scanAt("old", now.AddDate(0, 0, -40)))
	require.NoError(t, err)
	_, err = l.Append(scanAt("recent", now.AddDate(0, 0, -1)))
	require.NoError(t, err)

	removed, err := l.Clean(0)
	require.NoError(t, err)
	assert.Zero(t, removed)

	removed, err = l.Clean(30)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	records, err := l.List(0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "recent", records[0].ID)
}
