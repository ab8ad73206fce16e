// Package owner resolves numeric user ids to user names.
package owner

import (
	"os/user"
	"strconv"
	"sync"

	"github.com/jamesainslie/dusk/pkg/dusk/logging"
)

var logger = logging.Get("owner")

// Resolver maps uids to user names. Each uid is looked up once; failed
// lookups are remembered too. It is safe for concurrent use.
type Resolver struct {
	lookup func(uid string) (string, error)

	mu    sync.Mutex
	names map[uint32]string
	found map[uint32]bool
}

// NewResolver returns a Resolver backed by the system user database.
func NewResolver() *Resolver {
	return newResolver(func(uid string) (string, error) {
		u, err := user.LookupId(uid)
		if err != nil {
			return "", err
		}
		return u.Username, nil
	})
}

func newResolver(lookup func(uid string) (string, error)) *Resolver {
	return &Resolver{
		lookup: lookup,
		names:  make(map[uint32]string),
		found:  make(map[uint32]bool),
	}
}

// Lookup returns the user name for uid, or false when it has none.
func (r *Resolver) Lookup(uid uint32) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name, ok := r.names[uid]; ok {
		return name, r.found[uid]
	}

	id := strconv.FormatUint(uint64(uid), 10)
	name, err := r.lookup(id)
	if err != nil || name == "" {
		logger.Debug("uid has no user name", "uid", uid, "error", err)
		r.names[uid] = id
		return id, false
	}
	r.names[uid] = name
	r.found[uid] = true
	return name, true
}

// Name returns the user name for uid, falling back to the number.
func (r *Resolver) Name(uid uint32) string {
	name, _ := r.Lookup(uid)
	return name
}
