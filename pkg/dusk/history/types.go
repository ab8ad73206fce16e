// Package history keeps a log of completed scans, one JSON record per scan.
package history

import (
	"time"

	"github.com/jamesainslie/dusk/pkg/dusk/types"
)

// Record summarises one scan.
type Record struct {
	ID        string                    `json:"id"`
	Timestamp time.Time                 `json:"timestamp"`
	Root      string                    `json:"root"`
	Memory    types.MemoryLimitStatus   `json:"memory_status"`
	Partial   bool                      `json:"partial"`
	Total     types.AggregatedDirectory `json:"total"`
	Stats     types.ScanStats           `json:"stats"`
	Warnings  int                       `json:"warnings"`
}

// FromResult builds the record for a scan result.
func FromResult(r *types.ScanResult) Record {
	return Record{
		ID:        r.ID,
		Timestamp: r.Stats.StartedAt.UTC(),
		Root:      r.Root,
		Memory:    r.Memory,
		Partial:   r.Partial,
		Total:     r.Total(),
		Stats:     r.Stats,
		Warnings:  len(r.Warnings),
	}
}
