package output

import (
	"time"

	"github.com/jamesainslie/dusk/pkg/dusk/types"
)

// document is the structure shared by the json and yaml formats.
type document struct {
	ID       string         `json:"id" yaml:"id"`
	Root     string         `json:"root" yaml:"root"`
	Status   documentStatus `json:"status" yaml:"status"`
	Total    documentTotal  `json:"total" yaml:"total"`
	Entries  []Row          `json:"entries" yaml:"entries"`
	Warnings []docWarning   `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Stats    documentStats  `json:"stats" yaml:"stats"`
}

type documentStatus struct {
	Memory  string `json:"memory" yaml:"memory"`
	Partial bool   `json:"partial" yaml:"partial"`
}

type documentTotal struct {
	Size      int64  `json:"size" yaml:"size"`
	SizeHuman string `json:"size_human" yaml:"size_human"`
	Files     int64  `json:"files" yaml:"files"`
	Inodes    int64  `json:"inodes" yaml:"inodes"`
}

type docWarning struct {
	Path  string `json:"path" yaml:"path"`
	Error string `json:"error" yaml:"error"`
}

type documentStats struct {
	DirsScanned  int64             `json:"dirs_scanned" yaml:"dirs_scanned"`
	FilesScanned int64             `json:"files_scanned" yaml:"files_scanned"`
	CacheHits    int64             `json:"cache_hits" yaml:"cache_hits"`
	CacheMisses  int64             `json:"cache_misses" yaml:"cache_misses"`
	CacheHitRate float64           `json:"cache_hit_rate" yaml:"cache_hit_rate"`
	LargeDirs    int64             `json:"large_dirs,omitempty" yaml:"large_dirs,omitempty"`
	Strategy     string            `json:"strategy" yaml:"strategy"`
	Workers      int               `json:"workers" yaml:"workers"`
	PeakRSS      int64             `json:"peak_rss,omitempty" yaml:"peak_rss,omitempty"`
	StartedAt    time.Time         `json:"started_at" yaml:"started_at"`
	Duration     string            `json:"duration" yaml:"duration"`
	Phases       map[string]string `json:"phases,omitempty" yaml:"phases,omitempty"`
}

func buildDocument(r *Result) document {
	rows := r.Rows
	if rows == nil {
		rows = []Row{}
	}

	doc := document{
		ID:   r.ID,
		Root: r.Root,
		Status: documentStatus{
			Memory:  r.Memory.String(),
			Partial: r.Partial,
		},
		Total: documentTotal{
			Size:      r.Total.Bytes,
			SizeHuman: types.FormatSize(r.Total.Bytes),
			Files:     r.Total.Files,
			Inodes:    r.Total.Inodes,
		},
		Entries: rows,
		Stats: documentStats{
			DirsScanned:  r.Stats.DirsScanned,
			FilesScanned: r.Stats.FilesScanned,
			CacheHits:    r.Stats.CacheHits,
			CacheMisses:  r.Stats.CacheMisses,
			CacheHitRate: r.Stats.CacheHitRate(),
			LargeDirs:    r.Stats.LargeDirs,
			Strategy:     r.Stats.Strategy,
			Workers:      r.Stats.Workers,
			PeakRSS:      r.Stats.PeakRSS,
			StartedAt:    r.Stats.StartedAt,
			Duration:     r.Stats.Duration.String(),
		},
	}

	for _, w := range r.Warnings {
		doc.Warnings = append(doc.Warnings, docWarning(w))
	}
	if len(r.Stats.Phases) > 0 {
		doc.Stats.Phases = make(map[string]string, len(r.Stats.Phases))
		for _, p := range r.Stats.Phases {
			doc.Stats.Phases[p.Name] = p.Duration.String()
		}
	}
	return doc
}
