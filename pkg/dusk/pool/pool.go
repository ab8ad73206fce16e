// Package pool builds the bounded execution context a scan runs on.
//
// A Pool caps how many units of work run at once. The process-wide default
// pool is shared by every scan that asks for the default strategy without
// an explicit width; any other configuration gets a private pool owned by
// the caller.
package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/jamesainslie/dusk/pkg/dusk/logging"
	"github.com/jamesainslie/dusk/pkg/dusk/tuner"
)

var logger = logging.Get("pool")

// Strategy selects how the pool width is chosen and how work is scheduled.
type Strategy int

const (
	// Default uses the runtime's parallelism (GOMAXPROCS).
	Default Strategy = iota
	// Fixed uses exactly the requested width.
	Fixed
	// NumCpusMinus1 leaves one CPU free.
	NumCpusMinus1
	// IOHeavy oversubscribes CPUs two to one for I/O bound trees.
	IOHeavy
	// WorkStealingUneven sizes like Default or Fixed and tells the scanner
	// to run very large directories as independent units.
	WorkStealingUneven
)

var strategyNames = map[Strategy]string{
	Default:            "default",
	Fixed:              "fixed",
	NumCpusMinus1:      "cpus-minus-one",
	IOHeavy:            "io-heavy",
	WorkStealingUneven: "work-stealing",
}

// String returns the configuration name of the strategy.
func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// Errors returned when building a pool.
var (
	ErrInvalidWidth    = errors.New("invalid pool width")
	ErrUnknownStrategy = errors.New("unknown thread pool strategy")
)

// ParseStrategy parses a strategy name. Underscores and a few aliases
// are accepted.
func ParseStrategy(s string) (Strategy, error) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	switch name {
	case "", "default":
		return Default, nil
	case "fixed":
		return Fixed, nil
	case "cpus-minus-one", "num-cpus-minus-1", "num-cpus-minus-one":
		return NumCpusMinus1, nil
	case "io-heavy", "io":
		return IOHeavy, nil
	case "work-stealing", "work-stealing-uneven":
		return WorkStealingUneven, nil
	default:
		return Default, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// Pool bounds concurrent units of work. It is safe for concurrent use.
type Pool struct {
	strategy Strategy
	width    int
	local    bool
	sem      *semaphore.Weighted
}

var (
	sharedOnce sync.Once
	shared     *Pool
)

// Shared returns the process-wide default pool.
func Shared() *Pool {
	sharedOnce.Do(func() {
		width := runtime.GOMAXPROCS(0)
		shared = &Pool{strategy: Default, width: width, sem: semaphore.NewWeighted(int64(width))}
	})
	return shared
}

// ConfigureFor builds a pool for strategy on a machine described by res.
//
// Fixed requires requested >= 1. Default and WorkStealingUneven use
// requested when it is positive and the runtime default otherwise.
// NumCpusMinus1 and IOHeavy derive their width from the CPU count and
// ignore requested.
func ConfigureFor(strategy Strategy, requested int, res tuner.SystemResources) (*Pool, error) {
	if requested < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWidth, requested)
	}
	cpus := max(res.CPUCores, 1)

	var width int
	switch strategy {
	case Fixed:
		if requested < 1 {
			return nil, fmt.Errorf("%w: fixed strategy needs a width of at least 1", ErrInvalidWidth)
		}
		width = requested
	case Default, WorkStealingUneven:
		if requested == 0 {
			if strategy == Default {
				return Shared(), nil
			}
			width = Shared().width
		} else {
			width = requested
		}
	case NumCpusMinus1:
		width = max(1, cpus-1)
	case IOHeavy:
		width = cpus * 2
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownStrategy, strategy)
	}

	if requested > 0 && (strategy == NumCpusMinus1 || strategy == IOHeavy) {
		logger.Debug("explicit width ignored", "strategy", strategy, "requested", requested, "width", width)
	}

	return &Pool{
		strategy: strategy,
		width:    width,
		local:    true,
		sem:      semaphore.NewWeighted(int64(width)),
	}, nil
}

// Width returns the maximum number of concurrent units.
func (p *Pool) Width() int { return p.width }

// Strategy returns the strategy the pool was built for.
func (p *Pool) Strategy() Strategy { return p.strategy }

// Local reports whether the pool is private to its owner.
func (p *Pool) Local() bool { return p.local }

// WorkStealing reports whether large directories should be scheduled as
// independent units.
func (p *Pool) WorkStealing() bool { return p.strategy == WorkStealingUneven }

// Group is a set of units running on a pool. The first error cancels the
// group's context.
type Group struct {
	pool *Pool
	eg   *errgroup.Group
	ctx  context.Context
}

// Group starts an empty group bound to ctx.
func (p *Pool) Group(ctx context.Context) *Group {
	eg, gctx := errgroup.WithContext(ctx)
	return &Group{pool: p, eg: eg, ctx: gctx}
}

// Go schedules fn. It waits for a free slot on the pool before running.
func (g *Group) Go(fn func(ctx context.Context) error) {
	g.eg.Go(func() error {
		if err := g.pool.sem.Acquire(g.ctx, 1); err != nil {
			return err
		}
		defer g.pool.sem.Release(1)
		return fn(g.ctx)
	})
}

// Wait blocks until every unit finished and returns the first error.
func (g *Group) Wait() error {
	return g.eg.Wait()
}

// Run executes units on the pool and waits for all of them.
func (p *Pool) Run(ctx context.Context, units ...func(ctx context.Context) error) error {
	g := p.Group(ctx)
	for _, unit := range units {
		g.Go(unit)
	}
	return g.Wait()
}

// ForEach calls fn for every item, splitting items into one chunk per slot.
func ForEach[T any](ctx context.Context, p *Pool, items []T, fn func(T)) error {
	if len(items) == 0 {
		return nil
	}
	chunks := min(p.width, len(items))
	size := (len(items) + chunks - 1) / chunks

	units := make([]func(context.Context) error, 0, chunks)
	for start := 0; start < len(items); start += size {
		part := items[start:min(start+size, len(items))]
		units = append(units, func(ctx context.Context) error {
			for i, item := range part {
				if i%256 == 0 && ctx.Err() != nil {
					return ctx.Err()
				}
				fn(item)
			}
			return nil
		})
	}
	return p.Run(ctx, units...)
}
