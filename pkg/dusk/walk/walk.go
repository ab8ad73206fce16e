// Package walk implements the entry source: a parallel traversal of a
// directory tree that yields one FilesystemEntry per entry without
// following symbolic links.
package walk

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charlievieth/fastwalk"

	"github.com/jamesainslie/dusk/pkg/dusk/logging"
	"github.com/jamesainslie/dusk/pkg/dusk/types"
)

var logger = logging.Get("walk")

// Action tells the source what to do after an entry has been visited.
type Action int

const (
	// Continue descends into directories and keeps walking.
	Continue Action = iota
	// SkipDir does not descend into the visited directory.
	SkipDir
	// Stop ends the walk. Callbacks already running still complete.
	Stop
)

// VisitFunc receives each entry. It may be called from several goroutines
// at once.
type VisitFunc func(entry types.FilesystemEntry) Action

// ExcludeFunc reports whether path should be dropped. For directories a
// true result prunes the whole subtree before it is stat'ed.
type ExcludeFunc func(path string, isDir bool) bool

// Options configures a Source.
type Options struct {
	// Root is the scan root. Entry depths are relative to it.
	Root string

	// Workers is the traversal parallelism. Zero lets fastwalk decide.
	Workers int

	Exclude ExcludeFunc

	// OnError is called for entries that could not be read. The entry is
	// skipped and traversal continues.
	OnError func(path string, err error)
}

// Source produces filesystem entries below a root.
type Source struct {
	opts Options
}

// errStopWalk aborts fastwalk. It never escapes Walk.
var errStopWalk = errors.New("walk stopped")

// New returns a Source for opts.
func New(opts Options) *Source {
	opts.Root = filepath.Clean(opts.Root)
	return &Source{opts: opts}
}

// Walk visits every entry below start, which must be the root or a
// directory beneath it. start itself is not visited. Walk returns nil when
// the walk finishes or is stopped, and ctx.Err() if ctx ends first.
func (s *Source) Walk(ctx context.Context, start string, visit VisitFunc) error {
	start = filepath.Clean(start)
	conf := fastwalk.Config{
		Follow:     false,
		NumWorkers: s.opts.Workers,
	}

	err := fastwalk.Walk(&conf, start, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return errStopWalk
		}
		if err != nil {
			// A directory that could not be read has already been
			// visited; there is nothing left to skip.
			s.warn(path, err)
			return nil
		}
		if path == start {
			return nil
		}

		isDir := d.IsDir()
		if s.opts.Exclude != nil && s.opts.Exclude(path, isDir) {
			if isDir {
				return fastwalk.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			s.warn(path, err)
			if isDir {
				return fastwalk.SkipDir
			}
			return nil
		}

		entry := types.FilesystemEntry{
			Path:  path,
			Kind:  KindOf(info),
			Depth: s.Depth(path),
			Meta:  MetadataOf(info),
		}

		switch visit(entry) {
		case SkipDir:
			if isDir {
				return fastwalk.SkipDir
			}
		case Stop:
			return errStopWalk
		}
		return nil
	})

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil && !errors.Is(err, errStopWalk) {
		return err
	}
	return nil
}

// Depth returns the number of path elements between the root and path.
func (s *Source) Depth(path string) int {
	return Depth(s.opts.Root, path)
}

func (s *Source) warn(path string, err error) {
	logger.Debug("skipping unreadable entry", "path", path, "error", err)
	if s.opts.OnError != nil {
		s.opts.OnError(path, err)
	}
}

// Depth returns the depth of path below root; root itself has depth 0.
func Depth(root, path string) int {
	if path == root {
		return 0
	}
	rel := strings.TrimPrefix(path, root)
	rel = strings.TrimPrefix(rel, string(filepath.Separator))
	if rel == "" {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

// KindOf classifies info without following symlinks.
func KindOf(info fs.FileInfo) types.Kind {
	switch {
	case info.Mode().IsRegular():
		return types.KindFile
	case info.IsDir():
		return types.KindDirectory
	default:
		return types.KindOther
	}
}

// Stat returns the entry for path using lstat.
func Stat(root, path string) (types.FilesystemEntry, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return types.FilesystemEntry{}, err
	}
	return types.FilesystemEntry{
		Path:  path,
		Kind:  KindOf(info),
		Depth: Depth(root, path),
		Meta:  MetadataOf(info),
	}, nil
}
