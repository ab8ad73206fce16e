package walk

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/jamesainslie/dusk/pkg/dusk/types"
)

// createTestTree builds:
//
//	root/
//	  top.txt
//	  a/file1
//	  a/deep/file3
//	  b/file2
//	  link -> a
func createTestTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	files := map[string]string{
		"top.txt":      "top",
		"a/file1":      "one",
		"a/deep/file3": "three",
		"b/file2":      "two",
	}
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := os.Symlink(filepath.Join(root, "a"), filepath.Join(root, "link")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	return root
}

func collect(t *testing.T, src *Source, start string, visit func(types.FilesystemEntry) Action) map[string]types.FilesystemEntry {
	t.Helper()
	var mu sync.Mutex
	seen := make(map[string]types.FilesystemEntry)
	err := src.Walk(context.Background(), start, func(e types.FilesystemEntry) Action {
		mu.Lock()
		rel, _ := filepath.Rel(src.opts.Root, e.Path)
		seen[filepath.ToSlash(rel)] = e
		mu.Unlock()
		if visit != nil {
			return visit(e)
		}
		return Continue
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	return seen
}

func keys(m map[string]types.FilesystemEntry) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestWalkVisitsEverythingOnce(t *testing.T) {
	root := createTestTree(t)
	src := New(Options{Root: root, Workers: 4})

	seen := collect(t, src, root, nil)

	want := []string{"a", "a/deep", "a/deep/file3", "a/file1", "b", "b/file2", "link", "top.txt"}
	got := keys(seen)
	if len(got) != len(want) {
		t.Fatalf("visited %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("visited %v, want %v", got, want)
		}
	}

	if seen["a"].Kind != types.KindDirectory {
		t.Errorf("a kind = %v, want dir", seen["a"].Kind)
	}
	if seen["a/file1"].Kind != types.KindFile {
		t.Errorf("a/file1 kind = %v, want file", seen["a/file1"].Kind)
	}
	if seen["link"].Kind != types.KindOther {
		t.Errorf("symlink kind = %v, want other", seen["link"].Kind)
	}
	if seen["a/deep/file3"].Depth != 3 {
		t.Errorf("a/deep/file3 depth = %d, want 3", seen["a/deep/file3"].Depth)
	}
	if seen["a/file1"].Meta.ModTime == 0 {
		t.Error("expected a modification time")
	}
}

func TestWalkExcludePrunesDirectories(t *testing.T) {
	root := createTestTree(t)

	var mu sync.Mutex
	var asked []string
	src := New(Options{
		Root: root,
		Exclude: func(path string, isDir bool) bool {
			mu.Lock()
			asked = append(asked, path)
			mu.Unlock()
			return filepath.Base(path) == "a" && isDir
		},
	})

	seen := collect(t, src, root, nil)
	for _, k := range []string{"a", "a/file1", "a/deep", "a/deep/file3"} {
		if _, ok := seen[k]; ok {
			t.Errorf("excluded entry %q was visited", k)
		}
	}
	if _, ok := seen["b/file2"]; !ok {
		t.Error("b/file2 should be visited")
	}
	for _, p := range asked {
		if filepath.Dir(p) == filepath.Join(root, "a") {
			t.Errorf("predicate consulted below pruned directory: %s", p)
		}
	}
}

func TestWalkSkipDir(t *testing.T) {
	root := createTestTree(t)
	src := New(Options{Root: root})

	seen := collect(t, src, root, func(e types.FilesystemEntry) Action {
		if e.Kind == types.KindDirectory && filepath.Base(e.Path) == "b" {
			return SkipDir
		}
		return Continue
	})

	if _, ok := seen["b"]; !ok {
		t.Error("skipped directory itself should be visited")
	}
	if _, ok := seen["b/file2"]; ok {
		t.Error("children of a skipped directory should not be visited")
	}
}

func TestWalkFromSubdirectory(t *testing.T) {
	root := createTestTree(t)
	src := New(Options{Root: root})

	seen := collect(t, src, filepath.Join(root, "a"), nil)
	if _, ok := seen["a"]; ok {
		t.Error("start directory should not be visited")
	}
	if e, ok := seen["a/deep/file3"]; !ok || e.Depth != 3 {
		t.Errorf("depth should be measured from the scan root, got %+v", e)
	}
}

func TestWalkStop(t *testing.T) {
	root := createTestTree(t)
	src := New(Options{Root: root, Workers: 1})

	err := src.Walk(context.Background(), root, func(types.FilesystemEntry) Action {
		return Stop
	})
	if err != nil {
		t.Fatalf("Stop should not surface as an error: %v", err)
	}
}

func TestWalkCanceled(t *testing.T) {
	root := createTestTree(t)
	src := New(Options{Root: root})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := src.Walk(ctx, root, func(types.FilesystemEntry) Action { return Continue }); err == nil {
		t.Fatal("expected context error")
	}
}

func TestDepth(t *testing.T) {
	root := filepath.FromSlash("/data/root")
	tests := []struct {
		path string
		want int
	}{
		{root, 0},
		{filepath.Join(root, "a"), 1},
		{filepath.Join(root, "a", "b", "c"), 3},
	}
	for _, tt := range tests {
		if got := Depth(root, tt.path); got != tt.want {
			t.Errorf("Depth(%q) = %d, want %d", tt.path, got, tt.want)
		}
	}
}

func TestStatDiskUsage(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "f")
	if err := os.WriteFile(path, make([]byte, 10000), 0o644); err != nil {
		t.Fatal(err)
	}

	entry, err := Stat(root, path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if entry.Kind != types.KindFile || entry.Depth != 1 {
		t.Errorf("unexpected entry %+v", entry)
	}
	if entry.Meta.DiskUsage <= 0 {
		t.Errorf("disk usage = %d, want > 0", entry.Meta.DiskUsage)
	}
	if entry.Meta.Size != 10000 {
		t.Errorf("size = %d, want 10000", entry.Meta.Size)
	}
}
