package scanner_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jamesainslie/dusk/pkg/dusk/cache"
	"github.com/jamesainslie/dusk/pkg/dusk/pool"
	"github.com/jamesainslie/dusk/pkg/dusk/scanner"
)

func createBenchTree(b *testing.B, numFiles int) string {
	b.Helper()
	root := b.TempDir()

	// Files spread across 26 directories, every tenth one larger.
	for i := range numFiles {
		dir := filepath.Join(root, "dir"+string(rune('a'+i%26)), fmt.Sprintf("sub%d", i%7))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			b.Fatalf("failed to create dir: %v", err)
		}

		size := 100
		if i%10 == 0 {
			size = 10 * 1024
		}
		if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("file%d.txt", i)), make([]byte, size), 0o644); err != nil {
			b.Fatalf("failed to write file: %v", err)
		}
	}
	return root
}

func benchScan(b *testing.B, numFiles int, strategy pool.Strategy) {
	root := createBenchTree(b, numFiles)
	opts := scanner.DefaultOptions()
	opts.Root = root
	opts.Strategy = strategy

	for b.Loop() {
		if _, err := scanner.Scan(context.Background(), opts); err != nil {
			b.Fatalf("scan failed: %v", err)
		}
	}
}

func BenchmarkScan(b *testing.B) {
	benchScan(b, 1000, pool.Default)
}

func BenchmarkScan_Large(b *testing.B) {
	benchScan(b, 5000, pool.Default)
}

func BenchmarkScan_WorkStealing(b *testing.B) {
	benchScan(b, 5000, pool.WorkStealingUneven)
}

func BenchmarkScan_Cached(b *testing.B) {
	root := createBenchTree(b, 5000)
	store := cache.NewStore(cache.NewFileBackend(b.TempDir()), cache.StoreOptions{TTL: time.Hour})

	opts := scanner.DefaultOptions()
	opts.Root = root
	opts.Cache = store
	if _, err := scanner.Scan(context.Background(), opts); err != nil {
		b.Fatalf("warm-up scan failed: %v", err)
	}

	b.ResetTimer()
	for b.Loop() {
		if _, err := scanner.Scan(context.Background(), opts); err != nil {
			b.Fatalf("scan failed: %v", err)
		}
	}
}
