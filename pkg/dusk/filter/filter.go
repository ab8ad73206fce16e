package filter

import (
	"cmp"
	"slices"

	"github.com/jamesainslie/dusk/pkg/dusk/types"
)

// Filter selects, orders and limits result rows.
type Filter struct {
	// MaxDepth keeps rows at most this deep. -1 means unlimited.
	MaxDepth int

	// Files keeps file rows; directories are always kept.
	Files bool

	// MinSize drops rows smaller than this many bytes. The root row is
	// always kept.
	MinSize int64

	SortBy SortField

	// Limit is the maximum number of rows to return. 0 means unlimited.
	Limit int
}

// Option is a functional option for configuring a Filter.
type Option func(*Filter)

// New creates a Filter. Defaults: unlimited depth, directories only,
// sorted by size, no limit.
func New(opts ...Option) *Filter {
	f := &Filter{MaxDepth: -1, SortBy: SortSize}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WithMaxDepth sets the maximum depth. Values below -1 become -1.
func WithMaxDepth(depth int) Option {
	return func(f *Filter) {
		f.MaxDepth = max(depth, -1)
	}
}

// WithFiles keeps file rows.
func WithFiles(show bool) Option {
	return func(f *Filter) {
		f.Files = show
	}
}

// WithMinSize drops rows below size bytes.
func WithMinSize(size int64) Option {
	return func(f *Filter) {
		f.MinSize = max(size, 0)
	}
}

// WithSortBy sets the sort order.
func WithSortBy(field SortField) Option {
	return func(f *Filter) {
		f.SortBy = field
	}
}

// WithLimit caps the number of rows. Negative values become 0.
func WithLimit(limit int) Option {
	return func(f *Filter) {
		f.Limit = max(limit, 0)
	}
}

// Match reports whether e passes the depth, kind and size criteria.
func (f *Filter) Match(e types.ResultEntry) bool {
	if f.MaxDepth >= 0 && e.Depth > f.MaxDepth {
		return false
	}
	if e.Kind != types.KindDirectory && !f.Files {
		return false
	}
	return e.Depth == 0 || e.Bytes >= f.MinSize
}

// Sort returns a sorted copy of entries.
func (f *Filter) Sort(entries []types.ResultEntry) []types.ResultEntry {
	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b types.ResultEntry) int {
		if f.SortBy == SortSize {
			if c := cmp.Compare(b.Bytes, a.Bytes); c != 0 {
				return c
			}
		}
		return cmp.Compare(a.Path, b.Path)
	})
	return sorted
}

// Apply runs Match, Sort and Limit.
func (f *Filter) Apply(entries []types.ResultEntry) []types.ResultEntry {
	var matched []types.ResultEntry
	for _, e := range entries {
		if f.Match(e) {
			matched = append(matched, e)
		}
	}
	sorted := f.Sort(matched)
	if f.Limit > 0 && len(sorted) > f.Limit {
		return sorted[:f.Limit]
	}
	return sorted
}
