package types

import (
	"errors"
	"testing"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr error
	}{
		{name: "plain bytes", input: "1024", want: 1024},
		{name: "zero", input: "0", want: 0},
		{name: "byte suffix", input: "512B", want: 512},
		{name: "kilobytes", input: "100K", want: 100 * KiB},
		{name: "kilobytes with iB", input: "100KiB", want: 100 * KiB},
		{name: "megabytes lowercase", input: "50m", want: 50 * MiB},
		{name: "gigabytes with B", input: "2GB", want: 2 * GiB},
		{name: "terabytes", input: "1T", want: TiB},
		{name: "space before unit", input: "4 GiB", want: 4 * GiB},
		{name: "decimal truncated", input: "1.5G", want: 1610612736},
		{name: "whitespace", input: "  100M  ", want: 100 * MiB},
		{name: "petabytes via humanize", input: "1PiB", want: 1 << 50},
		{name: "empty", input: "", wantErr: ErrInvalidSize},
		{name: "negative", input: "-100M", wantErr: ErrNegativeSize},
		{name: "letters only", input: "abc", wantErr: ErrInvalidSize},
		{name: "trailing junk", input: "100M100", wantErr: ErrInvalidSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseSize(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSize(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1024, "1.0 KiB"},
		{1536 * 1024, "1.5 MiB"},
		{-1024, "-1.0 KiB"},
	}
	for _, tt := range tests {
		if got := FormatSize(tt.in); got != tt.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMemoryLimitStatusEscalate(t *testing.T) {
	tests := []struct {
		name string
		from MemoryLimitStatus
		next MemoryLimitStatus
		want MemoryLimitStatus
	}{
		{"ok to nearing", MemoryOk, MemoryNearing, MemoryNearing},
		{"nearing to exceeded", MemoryNearing, MemoryExceeded, MemoryExceeded},
		{"exceeded never improves", MemoryExceeded, MemoryOk, MemoryExceeded},
		{"nearing never improves", MemoryNearing, MemoryOk, MemoryNearing},
		{"unsupported sample keeps ok", MemoryOk, MemoryUnsupported, MemoryOk},
		{"unsupported stays unsupported", MemoryUnsupported, MemoryUnsupported, MemoryUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.Escalate(tt.next); got != tt.want {
				t.Errorf("%s.Escalate(%s) = %s, want %s", tt.from, tt.next, got, tt.want)
			}
		})
	}
}

func TestInodeMode(t *testing.T) {
	agg := AggregatedDirectory{Bytes: 10, Files: 3, Children: 2, Inodes: 5}

	mode, err := ParseInodeMode("direct")
	if err != nil {
		t.Fatalf("ParseInodeMode: %v", err)
	}
	if got := mode.Count(agg); got != 2 {
		t.Errorf("direct count = %d, want 2", got)
	}

	mode, err = ParseInodeMode("")
	if err != nil {
		t.Fatalf("ParseInodeMode empty: %v", err)
	}
	if got := mode.Count(agg); got != 5 {
		t.Errorf("total count = %d, want 5", got)
	}

	if _, err := ParseInodeMode("bogus"); !errors.Is(err, ErrInvalidInodeMode) {
		t.Errorf("expected ErrInvalidInodeMode, got %v", err)
	}
}

func TestAggregatedDirectoryAdd(t *testing.T) {
	a := AggregatedDirectory{Bytes: 4096, Files: 1, Children: 1, Inodes: 1}
	b := AggregatedDirectory{Bytes: 8192, Files: 2, Children: 3, Inodes: 4}

	ab, ba := a, b
	ab.Add(b)
	ba.Add(a)
	if ab != ba {
		t.Errorf("Add is not commutative: %+v vs %+v", ab, ba)
	}
	if ab.Bytes != 12288 || ab.Files != 3 || ab.Inodes != 5 {
		t.Errorf("unexpected sum %+v", ab)
	}
}

func TestCacheHitRate(t *testing.T) {
	if got := (ScanStats{}).CacheHitRate(); got != 0 {
		t.Errorf("empty hit rate = %v, want 0", got)
	}
	s := ScanStats{CacheHits: 3, CacheMisses: 1}
	if got := s.CacheHitRate(); got != 0.75 {
		t.Errorf("hit rate = %v, want 0.75", got)
	}
}
