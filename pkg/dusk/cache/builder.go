package cache

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/jamesainslie/dusk/pkg/dusk/types"
)

const builderShards = 32

// Builder collects the entries of the next snapshot while a scan runs.
// It is safe for concurrent use. Once disabled it drops every write.
type Builder struct {
	disabled atomic.Bool
	shards   [builderShards]struct {
		mu sync.Mutex
		m  map[string]Entry
	}
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	b := &Builder{}
	for i := range b.shards {
		b.shards[i].m = make(map[string]Entry)
	}
	return b
}

// Put records entry for path.
func (b *Builder) Put(path string, entry Entry) {
	if b.disabled.Load() {
		return
	}
	s := &b.shards[xxhash.Sum64String(path)%builderShards]
	s.mu.Lock()
	s.m[path] = entry
	s.mu.Unlock()
}

// Carry copies dir's recorded descendants from prev, so that a subtree
// reused from cache stays cached.
func (b *Builder) Carry(prev *Snapshot, dir string) {
	for _, path := range prev.Descendants(dir) {
		if b.disabled.Load() {
			return
		}
		b.Put(path, prev.Entries[path])
	}
}

// Disable stops the builder from accepting entries and releases what it
// holds.
func (b *Builder) Disable() {
	if b.disabled.Swap(true) {
		return
	}
	for i := range b.shards {
		s := &b.shards[i]
		s.mu.Lock()
		s.m = make(map[string]Entry)
		s.mu.Unlock()
	}
}

// Disabled reports whether Disable was called.
func (b *Builder) Disabled() bool {
	return b.disabled.Load()
}

// Snapshot assembles the recorded entries. Directory entries take their
// Aggregate from aggs.
func (b *Builder) Snapshot(header Header, aggs map[string]types.AggregatedDirectory) *Snapshot {
	total := 0
	for i := range b.shards {
		total += len(b.shards[i].m)
	}
	entries := make(map[string]Entry, total)
	for i := range b.shards {
		s := &b.shards[i]
		s.mu.Lock()
		for path, e := range s.m {
			if e.Kind == types.KindDirectory {
				if agg, ok := aggs[path]; ok {
					e.Aggregate = agg
				}
			}
			entries[path] = e
		}
		s.mu.Unlock()
	}
	header.Version = FormatVersion
	return &Snapshot{Header: header, Entries: entries}
}
