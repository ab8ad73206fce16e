// Package memory watches the process's resident memory against a limit.
package memory

import (
	"sync"
	"time"

	"github.com/jamesainslie/dusk/pkg/dusk/logging"
	"github.com/jamesainslie/dusk/pkg/dusk/types"
)

var logger = logging.Get("memory")

// DefaultInterval is the minimum time between two resident-set reads.
const DefaultInterval = 200 * time.Millisecond

// nearingPercent is where Ok turns into Nearing.
const nearingPercent = 95

// Sampler reports the current memory status. The scan engine only depends
// on this interface.
type Sampler interface {
	Sample() types.MemoryLimitStatus
}

// Monitor is a Sampler backed by the process's resident set size. Reads
// are throttled to one per interval; between reads the previous status is
// returned. The status only ever gets worse.
type Monitor struct {
	limit    int64
	interval time.Duration
	read     func() (int64, bool)

	mu     sync.Mutex
	last   time.Time
	status types.MemoryLimitStatus
	peak   int64
}

// New returns a monitor for limit bytes. A limit of zero or less, or a
// platform without resident-set measurement, yields a monitor that always
// reports Unsupported.
func New(limit int64, interval time.Duration) *Monitor {
	return newMonitor(limit, interval, ResidentSetSize)
}

func newMonitor(limit int64, interval time.Duration, read func() (int64, bool)) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	m := &Monitor{limit: limit, interval: interval, read: read, status: types.MemoryOk}
	if limit <= 0 {
		m.status = types.MemoryUnsupported
		return m
	}
	if _, ok := read(); !ok {
		logger.Debug("resident memory not measurable; limit ignored", "limit", limit)
		m.status = types.MemoryUnsupported
	}
	return m
}

// Sample implements Sampler.
func (m *Monitor) Sample() types.MemoryLimitStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status == types.MemoryUnsupported || m.status == types.MemoryExceeded {
		return m.status
	}
	now := time.Now()
	if !m.last.IsZero() && now.Sub(m.last) < m.interval {
		return m.status
	}
	m.last = now

	rss, ok := m.read()
	if !ok {
		return m.status
	}
	m.peak = max(m.peak, rss)

	next := m.status.Escalate(Classify(rss, m.limit))
	if next != m.status {
		logger.Info("memory status changed", "from", m.status, "to", next, "rss", types.FormatSize(rss), "limit", types.FormatSize(m.limit))
	}
	m.status = next
	return m.status
}

// Peak returns the largest resident size observed, or zero.
func (m *Monitor) Peak() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}

// Classify maps used bytes against limit: below 95% is Ok, from 95% up to
// the limit is Nearing, at or above the limit is Exceeded.
func Classify(used, limit int64) types.MemoryLimitStatus {
	switch {
	case limit <= 0:
		return types.MemoryUnsupported
	case used >= limit:
		return types.MemoryExceeded
	case used*100 >= limit*nearingPercent:
		return types.MemoryNearing
	default:
		return types.MemoryOk
	}
}
