package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jamesainslie/dusk/pkg/dusk/pool"
	"github.com/jamesainslie/dusk/pkg/dusk/types"
	"github.com/jamesainslie/dusk/pkg/dusk/walk"
)

// VerifyMode selects which cached paths the validator re-stats.
type VerifyMode int

const (
	// VerifyFiles re-stats every cached entry. A touched file anywhere in a
	// subtree invalidates that subtree.
	VerifyFiles VerifyMode = iota
	// VerifyDirs re-stats cached directories only. Added, removed and
	// renamed entries are detected; in-place file changes are not.
	VerifyDirs
)

// ParseVerifyMode parses "files" or "dirs".
func ParseVerifyMode(s string) (VerifyMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "files", "all":
		return VerifyFiles, nil
	case "dirs", "directories":
		return VerifyDirs, nil
	default:
		return VerifyFiles, fmt.Errorf("%w: %q (valid: files, dirs)", ErrInvalidVerifyMode, s)
	}
}

// String returns the configuration name.
func (m VerifyMode) String() string {
	if m == VerifyDirs {
		return "dirs"
	}
	return "files"
}

// StatFunc returns live metadata for path without following symlinks.
type StatFunc func(path string) (types.Metadata, error)

// LstatMetadata is the default StatFunc.
func LstatMetadata(path string) (types.Metadata, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return types.Metadata{}, err
	}
	return walk.MetadataOf(info), nil
}

// Validator checks a snapshot against the filesystem before a scan and
// reports which cached directories have an entirely unchanged subtree.
// A directory is clean only if it and every recorded path below it still
// match; any change marks the changed path's whole parent chain dirty.
type Validator struct {
	Mode VerifyMode
	Stat StatFunc
}

// Clean re-stats the snapshot's paths on p and returns the set of clean
// directories.
func (v *Validator) Clean(ctx context.Context, p *pool.Pool, snap *Snapshot) (map[string]bool, error) {
	if snap.Len() == 0 {
		return map[string]bool{}, nil
	}
	stat := v.Stat
	if stat == nil {
		stat = LstatMetadata
	}

	var paths []string
	for path, e := range snap.Entries {
		if v.Mode == VerifyFiles || e.Kind == types.KindDirectory {
			paths = append(paths, path)
		}
	}

	var mu sync.Mutex
	var changed []string
	err := pool.ForEach(ctx, p, paths, func(path string) {
		e := snap.Entries[path]
		meta, err := stat(path)
		if err == nil && e.Matches(meta) {
			return
		}
		mu.Lock()
		changed = append(changed, path)
		mu.Unlock()
	})
	if err != nil {
		return nil, err
	}

	root := snap.Header.Root
	dirty := make(map[string]bool, len(changed))
	for _, path := range changed {
		for p := path; ; p = filepath.Dir(p) {
			if dirty[p] {
				break
			}
			dirty[p] = true
			if p == root || filepath.Dir(p) == p {
				break
			}
		}
	}

	clean := make(map[string]bool)
	for path, e := range snap.Entries {
		if e.Kind == types.KindDirectory && !dirty[path] {
			clean[path] = true
		}
	}
	logger.Debug("cache validated", "checked", len(paths), "changed", len(changed), "clean_dirs", len(clean))
	return clean, nil
}
