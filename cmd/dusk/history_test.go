package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/dusk/pkg/dusk/history"
	"github.com/jamesainslie/dusk/pkg/dusk/types"
)

func sampleResult(id string, partial bool) *types.ScanResult {
	return &types.ScanResult{
		ID:      id,
		Root:    "/data",
		Partial: partial,
		Directories: map[string]types.AggregatedDirectory{
			"/data": {Bytes: 3 * types.MiB, Files: 12, Inodes: 15},
		},
		Stats: types.ScanStats{
			StartedAt:   time.Now(),
			Duration:    1500 * time.Millisecond,
			CacheHits:   3,
			CacheMisses: 1,
		},
	}
}

// withHistory points the command handlers at a fresh history directory.
func withHistory(t *testing.T) *history.Log {
	t.Helper()
	prev := cfg
	cfg = testConfig(t)
	cfg.History.Path = t.TempDir()
	t.Cleanup(func() { cfg = prev })

	log, err := history.New(cfg.History.Path)
	if err != nil {
		t.Fatalf("history.New() error = %v", err)
	}
	return log
}

func runWithOutput(t *testing.T, fn func(*cobra.Command, []string) error, args ...string) string {
	t.Helper()
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	if err := fn(cmd, args); err != nil {
		t.Fatalf("command error = %v", err)
	}
	return buf.String()
}

func TestHistoryListEmpty(t *testing.T) {
	withHistory(t)
	out := runWithOutput(t, runHistory)
	if !strings.Contains(out, "No scans recorded.") {
		t.Errorf("output = %q", out)
	}
}

func TestHistoryListAndShow(t *testing.T) {
	log := withHistory(t)
	if _, err := log.Append(sampleResult("7f3a9c21-aaaa-bbbb-cccc-000000000001", false)); err != nil {
		t.Fatal(err)
	}
	if _, err := log.Append(sampleResult("0b41d2e8-aaaa-bbbb-cccc-000000000002", true)); err != nil {
		t.Fatal(err)
	}

	out := runWithOutput(t, runHistory)
	for _, want := range []string{"7f3a9c21", "0b41d2e8", "3.0 MiB", "75%", "partial", "complete"} {
		if !strings.Contains(out, want) {
			t.Errorf("list output missing %q:\n%s", want, out)
		}
	}

	out = runWithOutput(t, runHistoryShow, "7f3a")
	for _, want := range []string{"7f3a9c21-aaaa-bbbb-cccc-000000000001", "complete", "12 files", "3 hits, 1 misses"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}
}

func TestHistoryShowUnknownID(t *testing.T) {
	withHistory(t)
	err := runHistoryShow(&cobra.Command{}, []string{"ffff"})
	if err == nil {
		t.Fatal("runHistoryShow() error = nil, want not found")
	}
}

func TestSummaryLine(t *testing.T) {
	line := summaryLine(sampleResult("id", false), 4)
	for _, want := range []string{"/data", "3.0 MiB in 12 files", "4 changes", "3 hits / 1 misses", "1.5s"} {
		if !strings.Contains(line, want) {
			t.Errorf("summaryLine() = %q, missing %q", line, want)
		}
	}
	if strings.Contains(line, "PARTIAL") {
		t.Errorf("complete scan flagged partial: %q", line)
	}

	if line := summaryLine(sampleResult("id", true), 1); !strings.HasSuffix(line, "PARTIAL") {
		t.Errorf("summaryLine() = %q, want PARTIAL suffix", line)
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"abc", 8, "abc"},
		{"7f3a9c21-aaaa", 8, "7f3a9c21"},
		{"", 8, ""},
	}
	for _, tt := range tests {
		if got := truncateString(tt.in, tt.max); got != tt.want {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
