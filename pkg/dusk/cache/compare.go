package cache

import "github.com/jamesainslie/dusk/pkg/dusk/types"

// Decision is the comparator's verdict for one directory.
type Decision int

const (
	// Miss means the directory must be walked and its aggregate recomputed.
	Miss Decision = iota
	// Hit means the cached aggregate can be reused without descending.
	Hit
)

// String returns "hit" or "miss".
func (d Decision) String() string {
	if d == Hit {
		return "hit"
	}
	return "miss"
}

// Compare decides whether a directory with live metadata meta can reuse
// cached. Only an exact match of modification time and link count on a
// recorded directory is a Hit.
func Compare(meta types.Metadata, cached *Entry) Decision {
	if cached == nil || cached.Kind != types.KindDirectory {
		return Miss
	}
	if !cached.Matches(meta) {
		return Miss
	}
	return Hit
}
