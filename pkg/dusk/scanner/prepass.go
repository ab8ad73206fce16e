package scanner

import (
	"io/fs"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/charlievieth/fastwalk"
)

// findLargeDirs counts the direct children of every directory below the
// root without stat'ing them and returns the directories holding more than
// LargeDirThreshold entries. Subtrees the cache validator found clean are
// not entered.
func (r *run) findLargeDirs() map[string]bool {
	var counts sync.Map // dir -> *atomic.Int64

	conf := fastwalk.Config{
		Follow:     false,
		NumWorkers: r.pool.Width(),
	}
	err := fastwalk.Walk(&conf, r.root, func(path string, d fs.DirEntry, err error) error {
		if r.ctx.Err() != nil {
			return r.ctx.Err()
		}
		if err != nil || path == r.root {
			return nil
		}

		isDir := d.IsDir()
		if r.exclude(path, isDir) {
			if isDir {
				return fastwalk.SkipDir
			}
			return nil
		}

		parent := filepath.Dir(path)
		v, ok := counts.Load(parent)
		if !ok {
			v, _ = counts.LoadOrStore(parent, new(atomic.Int64))
		}
		v.(*atomic.Int64).Add(1)

		if isDir && r.clean[path] {
			return fastwalk.SkipDir
		}
		return nil
	})
	if err != nil {
		logger.Debug("large directory pre-pass incomplete", "error", err)
	}

	threshold := int64(r.opts.LargeDirThreshold)
	large := make(map[string]bool)
	counts.Range(func(k, v any) bool {
		dir := k.(string)
		if n := v.(*atomic.Int64).Load(); dir != r.root && n > threshold {
			large[dir] = true
			logger.Debug("large directory", "path", dir, "entries", n)
		}
		return true
	})
	return large
}
