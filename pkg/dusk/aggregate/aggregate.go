// Package aggregate accumulates per-directory totals from concurrent
// workers. Every update is a commutative sum, so the final totals do not
// depend on the order in which workers run.
package aggregate

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/jamesainslie/dusk/pkg/dusk/types"
)

const shardCount = 64

type counters struct {
	bytes    atomic.Int64
	files    atomic.Int64
	children atomic.Int64
	inodes   atomic.Int64
}

func (c *counters) load() types.AggregatedDirectory {
	return types.AggregatedDirectory{
		Bytes:    c.bytes.Load(),
		Files:    c.files.Load(),
		Children: c.children.Load(),
		Inodes:   c.inodes.Load(),
	}
}

type shard struct {
	mu sync.RWMutex
	m  map[string]*counters
}

// Aggregator maps directory paths to accumulated totals. Records are
// created under a per-shard lock; the counters themselves are atomic.
type Aggregator struct {
	shards [shardCount]shard
}

// New returns an empty Aggregator.
func New() *Aggregator {
	a := &Aggregator{}
	for i := range a.shards {
		a.shards[i].m = make(map[string]*counters)
	}
	return a
}

func (a *Aggregator) shard(dir string) *shard {
	return &a.shards[xxhash.Sum64String(dir)%shardCount]
}

func (a *Aggregator) record(dir string) *counters {
	s := a.shard(dir)
	s.mu.RLock()
	c, ok := s.m[dir]
	s.mu.RUnlock()
	if ok {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok = s.m[dir]; !ok {
		c = &counters{}
		s.m[dir] = c
	}
	return c
}

// Ensure creates an empty record for dir so that directories without
// files report zero rather than being absent.
func (a *Aggregator) Ensure(dir string) {
	a.record(dir)
}

// Contribute applies one job to every directory in its ancestor chain
// exactly once. Files add their bytes and a file count; every entry adds
// an inode, and the nearest ancestor gains a child.
func (a *Aggregator) Contribute(job types.ScanJob) {
	for i, dir := range job.Ancestors {
		c := a.record(dir)
		if job.IsFile {
			c.bytes.Add(job.Bytes)
			c.files.Add(1)
		}
		c.inodes.Add(1)
		if i == 0 {
			c.children.Add(1)
		}
	}
}

// Fold contributes a whole subtree whose totals are already known, as if
// it were a single entry: its bytes and files plus its inodes and itself.
func (a *Aggregator) Fold(ancestors []string, sub types.AggregatedDirectory) {
	for i, dir := range ancestors {
		c := a.record(dir)
		c.bytes.Add(sub.Bytes)
		c.files.Add(sub.Files)
		c.inodes.Add(sub.Inodes + 1)
		if i == 0 {
			c.children.Add(1)
		}
	}
}

// Restore records a directory's totals verbatim. It must only be used for
// directories whose contents are not being contributed by jobs.
func (a *Aggregator) Restore(dir string, agg types.AggregatedDirectory) {
	c := a.record(dir)
	c.bytes.Add(agg.Bytes)
	c.files.Add(agg.Files)
	c.children.Add(agg.Children)
	c.inodes.Add(agg.Inodes)
}

// get returns the totals for dir.
func (a *Aggregator) get(dir string) (types.AggregatedDirectory, bool) {
	s := a.shard(dir)
	s.mu.RLock()
	c, ok := s.m[dir]
	s.mu.RUnlock()
	if !ok {
		return types.AggregatedDirectory{}, false
	}
	return c.load(), true
}

// Len returns the number of directories recorded.
func (a *Aggregator) Len() int {
	n := 0
	for i := range a.shards {
		s := &a.shards[i]
		s.mu.RLock()
		n += len(s.m)
		s.mu.RUnlock()
	}
	return n
}

// Snapshot copies every record. Call it after all workers have finished.
func (a *Aggregator) Snapshot() map[string]types.AggregatedDirectory {
	out := make(map[string]types.AggregatedDirectory, a.Len())
	for i := range a.shards {
		s := &a.shards[i]
		s.mu.RLock()
		for dir, c := range s.m {
			out[dir] = c.load()
		}
		s.mu.RUnlock()
	}
	return out
}
