package aggregate

import (
	"path/filepath"
	"sync"
)

// Chains hands out ancestor chains: a directory followed by each of its
// parents up to and including the scan root. A chain is built once per
// directory and then shared by every entry beneath it, so callers must
// treat returned slices as read-only.
type Chains struct {
	root  string
	cache sync.Map // dir -> []string
}

// NewChains returns a chain cache for root.
func NewChains(root string) *Chains {
	return &Chains{root: filepath.Clean(root)}
}

// Of returns the chain starting at dir.
func (c *Chains) Of(dir string) []string {
	if v, ok := c.cache.Load(dir); ok {
		return v.([]string)
	}

	var chain []string
	parent := filepath.Dir(dir)
	if dir == c.root || parent == dir || len(dir) < len(c.root) {
		chain = []string{dir}
	} else {
		up := c.Of(parent)
		chain = make([]string, 0, len(up)+1)
		chain = append(chain, dir)
		chain = append(chain, up...)
	}

	v, _ := c.cache.LoadOrStore(dir, chain)
	return v.([]string)
}

// size returns the number of cached chains.
func (c *Chains) size() int {
	n := 0
	c.cache.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}
