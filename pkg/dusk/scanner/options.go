// Package scanner is the scan engine. It drives the entry source, consults
// the cache before descending into a directory, dispatches aggregation
// jobs across a pool and watches memory at bounded checkpoints.
package scanner

import (
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/jamesainslie/dusk/pkg/dusk/cache"
	"github.com/jamesainslie/dusk/pkg/dusk/config"
	"github.com/jamesainslie/dusk/pkg/dusk/memory"
	"github.com/jamesainslie/dusk/pkg/dusk/pool"
	"github.com/jamesainslie/dusk/pkg/dusk/types"
	"github.com/jamesainslie/dusk/pkg/dusk/walk"
)

// Configuration errors. They are returned before any traversal starts.
var (
	ErrInvalidOptions   = errors.New("invalid scan options")
	ErrRootNotDirectory = errors.New("scan root is not a directory")
	ErrRootUnreadable   = errors.New("scan root is not readable")
)

const (
	// DefaultLargeDirThreshold is the direct-child count above which the
	// work-stealing strategy walks a directory as its own unit.
	DefaultLargeDirThreshold = 10000

	// DefaultCheckEvery is how many entries pass between memory checks.
	DefaultCheckEvery = 1024
)

// OwnerResolver maps a uid to a user name.
type OwnerResolver interface {
	Lookup(uid uint32) (string, bool)
}

// Options configures a scan.
type Options struct {
	// Root is the directory to scan.
	Root string

	// MaxDepth limits which entries appear in the result; aggregation
	// always covers the whole tree. Zero is the root only, -1 unlimited.
	MaxDepth int

	// ShowFiles adds file rows to the result.
	ShowFiles bool

	// Exclude drops matching entries. Excluded directories are never
	// entered.
	Exclude walk.ExcludeFunc

	// ExcludeKey identifies the exclusion set, typically the joined
	// patterns behind Exclude. A cache written under another key is
	// ignored.
	ExcludeKey string

	// Owners resolves uids for the owner column. Nil leaves it empty.
	Owners OwnerResolver

	// Strategy and Width select the pool when Pool is nil.
	Strategy pool.Strategy
	Width    int

	// Pool overrides Strategy and Width.
	Pool *pool.Pool

	// Cache enables incremental scanning. Nil scans everything.
	Cache *cache.Store

	// Verify selects how much of the cache is re-checked before the walk.
	Verify cache.VerifyMode

	// MemoryLimit in bytes; zero or less means unlimited.
	MemoryLimit int64

	// CheckInterval throttles resident memory reads.
	CheckInterval time.Duration

	// Monitor replaces the resident-set monitor built from MemoryLimit.
	Monitor memory.Sampler

	// CheckEvery is the number of entries between memory checkpoints.
	CheckEvery int

	// LargeDirThreshold applies to the work-stealing strategy.
	LargeDirThreshold int

	// InodeMode selects the count reported per directory.
	InodeMode types.InodeMode
}

// DefaultOptions returns options with the documented defaults.
func DefaultOptions() Options {
	return Options{
		Root:              config.DefaultPath,
		MaxDepth:          config.DefaultDepth,
		Strategy:          pool.Default,
		Verify:            cache.VerifyFiles,
		CheckInterval:     config.DefaultCheckInterval,
		CheckEvery:        DefaultCheckEvery,
		LargeDirThreshold: DefaultLargeDirThreshold,
		InodeMode:         types.InodesTotal,
	}
}

// Validate rejects impossible values and fills in defaults.
func (o *Options) Validate() error {
	if o.Root == "" {
		o.Root = config.DefaultPath
	}
	if o.MaxDepth < -1 {
		return fmt.Errorf("%w: depth %d (use -1 for unlimited)", ErrInvalidOptions, o.MaxDepth)
	}
	if o.Width < 0 {
		return fmt.Errorf("%w: width %d: %w", ErrInvalidOptions, o.Width, pool.ErrInvalidWidth)
	}
	if o.CheckEvery <= 0 {
		o.CheckEvery = DefaultCheckEvery
	}
	if o.LargeDirThreshold <= 0 {
		o.LargeDirThreshold = DefaultLargeDirThreshold
	}
	if o.CheckInterval <= 0 {
		o.CheckInterval = config.DefaultCheckInterval
	}
	return nil
}

func (o *Options) fingerprint() uint64 {
	return xxhash.Sum64String(o.ExcludeKey)
}
