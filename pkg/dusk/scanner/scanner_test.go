package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jamesainslie/dusk/pkg/dusk/cache"
	"github.com/jamesainslie/dusk/pkg/dusk/pool"
	"github.com/jamesainslie/dusk/pkg/dusk/types"
	"github.com/jamesainslie/dusk/pkg/dusk/walk"
)

// writeFile creates path with size bytes, creating parents as needed.
func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create dir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// diskUsage returns the allocated size of path as the scanner measures it.
func diskUsage(t *testing.T, path string) int64 {
	t.Helper()
	info, err := os.Lstat(path)
	if err != nil {
		t.Fatalf("failed to stat %s: %v", path, err)
	}
	return walk.MetadataOf(info).DiskUsage
}

// createScenario creates root/a/file1 (4 KiB) and root/b/file2 (8 KiB).
func createScenario(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "file1"), 4096)
	writeFile(t, filepath.Join(root, "b", "file2"), 8192)
	return root
}

func testOptions(root string) Options {
	opts := DefaultOptions()
	opts.Root = root
	opts.Strategy = pool.Fixed
	opts.Width = 4
	return opts
}

func newStore(t *testing.T) *cache.Store {
	t.Helper()
	return cache.NewStore(cache.NewFileBackend(t.TempDir()), cache.StoreOptions{TTL: time.Hour})
}

func mustScan(t *testing.T, opts Options) *types.ScanResult {
	t.Helper()
	res, err := Scan(context.Background(), opts)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	return res
}

func bytesOf(res *types.ScanResult, rel string) int64 {
	return res.Directories[filepath.Join(res.Root, rel)].Bytes
}

func sortedEntries(res *types.ScanResult) []types.ResultEntry {
	entries := append([]types.ResultEntry(nil), res.Entries...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries
}

// stubSampler reports Ok for the first after samples and status afterwards.
type stubSampler struct {
	after  int64
	status types.MemoryLimitStatus
	calls  atomic.Int64
}

func (s *stubSampler) Sample() types.MemoryLimitStatus {
	if s.calls.Add(1) > s.after {
		return s.status
	}
	return types.MemoryOk
}

type stubOwners map[uint32]string

func (o stubOwners) Lookup(uid uint32) (string, bool) {
	name, ok := o[uid]
	return name, ok
}

func TestOptionsValidate(t *testing.T) {
	opts := Options{}
	if err := opts.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Root != "." {
		t.Errorf("Root: got %q, want %q", opts.Root, ".")
	}
	if opts.LargeDirThreshold != DefaultLargeDirThreshold {
		t.Errorf("LargeDirThreshold: got %d, want %d", opts.LargeDirThreshold, DefaultLargeDirThreshold)
	}
	if opts.CheckEvery != DefaultCheckEvery {
		t.Errorf("CheckEvery: got %d, want %d", opts.CheckEvery, DefaultCheckEvery)
	}

	bad := Options{MaxDepth: -2}
	if err := bad.Validate(); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("depth -2: expected ErrInvalidOptions, got %v", err)
	}
	bad = Options{Width: -1}
	if err := bad.Validate(); !errors.Is(err, pool.ErrInvalidWidth) {
		t.Errorf("width -1: expected ErrInvalidWidth, got %v", err)
	}
}

func TestConfigurationErrors(t *testing.T) {
	root := createScenario(t)

	opts := testOptions(root)
	opts.Width = 0
	if _, err := New(opts); !errors.Is(err, pool.ErrInvalidWidth) {
		t.Errorf("fixed width 0: expected ErrInvalidWidth, got %v", err)
	}

	opts = testOptions(filepath.Join(root, "a", "file1"))
	if _, err := Scan(context.Background(), opts); !errors.Is(err, ErrRootNotDirectory) {
		t.Errorf("file root: expected ErrRootNotDirectory, got %v", err)
	}

	opts = testOptions(filepath.Join(root, "missing"))
	if _, err := Scan(context.Background(), opts); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing root: expected ErrNotExist, got %v", err)
	}
}

func TestUnreadableRootIsConfigurationError(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}
	root := createScenario(t)
	if err := os.Chmod(root, 0o300); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(root, 0o755) })

	res, err := Scan(context.Background(), testOptions(root))
	if !errors.Is(err, ErrRootUnreadable) {
		t.Fatalf("expected ErrRootUnreadable, got err=%v result=%v", err, res != nil)
	}
	if !errors.Is(err, os.ErrPermission) {
		t.Errorf("expected the permission error to be wrapped, got %v", err)
	}
	if _, err := New(testOptions(root)); err != nil {
		t.Errorf("New must not touch the root, got %v", err)
	}
}

func TestScanConcreteScenario(t *testing.T) {
	root := createScenario(t)
	du1 := diskUsage(t, filepath.Join(root, "a", "file1"))
	du2 := diskUsage(t, filepath.Join(root, "b", "file2"))

	res := mustScan(t, testOptions(root))

	if res.Partial {
		t.Error("complete scan flagged partial")
	}
	if got := res.Total().Bytes; got != du1+du2 {
		t.Errorf("root: got %d, want %d", got, du1+du2)
	}
	if got := bytesOf(res, "a"); got != du1 {
		t.Errorf("a: got %d, want %d", got, du1)
	}
	if got := bytesOf(res, "b"); got != du2 {
		t.Errorf("b: got %d, want %d", got, du2)
	}
	if res.Total().Files != 2 {
		t.Errorf("root files: got %d, want 2", res.Total().Files)
	}
	if res.Stats.FilesScanned != 2 || res.Stats.DirsScanned != 3 {
		t.Errorf("stats: %d files, %d dirs", res.Stats.FilesScanned, res.Stats.DirsScanned)
	}
	if res.ID == "" {
		t.Error("result has no ID")
	}
}

func TestScanExcludesDirectory(t *testing.T) {
	root := createScenario(t)
	du1 := diskUsage(t, filepath.Join(root, "a", "file1"))

	opts := testOptions(root)
	opts.ShowFiles = true
	opts.Exclude = func(path string, _ bool) bool { return filepath.Base(path) == "b" }

	res := mustScan(t, opts)

	if got := res.Total().Bytes; got != du1 {
		t.Errorf("root: got %d, want %d", got, du1)
	}
	for _, e := range res.Entries {
		if filepath.Base(e.Path) == "b" || filepath.Base(e.Path) == "file2" {
			t.Errorf("excluded entry reported: %s", e.Path)
		}
	}
	if _, ok := res.Directories[filepath.Join(res.Root, "b")]; ok {
		t.Error("excluded directory has an aggregate")
	}
}

func TestScanEmptyDirectoriesReportZero(t *testing.T) {
	root := createScenario(t)
	if err := os.MkdirAll(filepath.Join(root, "c", "d"), 0o755); err != nil {
		t.Fatal(err)
	}

	res := mustScan(t, testOptions(root))

	for _, rel := range []string{"c", filepath.Join("c", "d")} {
		agg, ok := res.Directories[filepath.Join(res.Root, rel)]
		if !ok {
			t.Errorf("%s: missing, want zero", rel)
			continue
		}
		if agg.Bytes != 0 || agg.Files != 0 {
			t.Errorf("%s: got %+v, want zero bytes and files", rel, agg)
		}
	}
}

func TestScanSumInvariant(t *testing.T) {
	root := t.TempDir()
	for i := range 6 {
		for j := range i + 1 {
			writeFile(t, filepath.Join(root, fmt.Sprintf("d%d", i), fmt.Sprintf("s%d", j%2), fmt.Sprintf("f%d", j)), 1000*(j+1))
		}
	}
	writeFile(t, filepath.Join(root, "top"), 5000)

	opts := testOptions(root)
	opts.ShowFiles = true
	res := mustScan(t, opts)

	assertSumInvariant(t, res)
	if res.Stats.FilesScanned != 22 {
		t.Errorf("files: got %d, want 22", res.Stats.FilesScanned)
	}
}

// assertSumInvariant checks every directory total against the file rows
// below it.
func assertSumInvariant(t *testing.T, res *types.ScanResult) {
	t.Helper()
	for dir, agg := range res.Directories {
		var want, files int64
		for _, e := range res.Entries {
			if e.Kind == types.KindFile && strings.HasPrefix(e.Path, dir+string(filepath.Separator)) {
				want += e.Bytes
				files++
			}
		}
		if agg.Bytes != want || agg.Files != files {
			t.Errorf("%s: got %d bytes / %d files, want %d / %d", dir, agg.Bytes, agg.Files, want, files)
		}
	}
}

func TestScanDepthFiltering(t *testing.T) {
	root := createScenario(t)
	writeFile(t, filepath.Join(root, "a", "deep", "file3"), 100)

	tests := []struct {
		name      string
		depth     int
		showFiles bool
		want      []string
	}{
		{"root only", 0, false, []string{"."}},
		{"one level", 1, false, []string{".", "a", "b"}},
		{"one level with files", 1, true, []string{".", "a", "b"}},
		{"two levels with files", 2, true, []string{".", "a", "a/deep", "a/file1", "b", "b/file2"}},
		{"unlimited", -1, false, []string{".", "a", "a/deep", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions(root)
			opts.MaxDepth = tt.depth
			opts.ShowFiles = tt.showFiles
			res := mustScan(t, opts)

			var got []string
			for _, e := range sortedEntries(res) {
				rel, _ := filepath.Rel(res.Root, e.Path)
				got = append(got, filepath.ToSlash(rel))
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("entries: got %v, want %v", got, tt.want)
			}
			if len(res.Directories) != 4 {
				t.Errorf("aggregation must cover the whole tree, got %d dirs", len(res.Directories))
			}
		})
	}
}

func TestScanInodeModes(t *testing.T) {
	root := createScenario(t)

	for _, tt := range []struct {
		mode types.InodeMode
		want int64
	}{
		{types.InodesTotal, 4},
		{types.InodesDirect, 2},
	} {
		opts := testOptions(root)
		opts.MaxDepth = 0
		opts.InodeMode = tt.mode
		res := mustScan(t, opts)
		if len(res.Entries) != 1 || res.Entries[0].Inodes != tt.want {
			t.Errorf("%s: got %+v, want %d inodes", tt.mode, res.Entries, tt.want)
		}
	}
}

func TestScanOwners(t *testing.T) {
	root := createScenario(t)
	uid := uint32(os.Getuid())

	opts := testOptions(root)
	opts.ShowFiles = true
	opts.Owners = stubOwners{uid: "tester"}
	for _, e := range mustScan(t, opts).Entries {
		if e.Owner != "tester" {
			t.Errorf("%s: owner %q, want tester", e.Path, e.Owner)
		}
	}

	opts.Owners = stubOwners{}
	for _, e := range mustScan(t, opts).Entries {
		if e.Owner != fmt.Sprint(uid) {
			t.Errorf("%s: owner %q, want numeric uid", e.Path, e.Owner)
		}
	}
}

func TestScanCacheIdempotent(t *testing.T) {
	root := createScenario(t)
	writeFile(t, filepath.Join(root, "a", "deep", "file3"), 3000)

	opts := testOptions(root)
	opts.ShowFiles = true
	opts.Cache = newStore(t)

	first := mustScan(t, opts)
	second := mustScan(t, opts)

	if first.Stats.CacheHits != 0 {
		t.Errorf("first scan: %d hits, want 0", first.Stats.CacheHits)
	}
	if !reflect.DeepEqual(first.Directories, second.Directories) {
		t.Errorf("aggregates differ:\nfirst:  %v\nsecond: %v", first.Directories, second.Directories)
	}
	if !reflect.DeepEqual(sortedEntries(first), sortedEntries(second)) {
		t.Errorf("entries differ:\nfirst:  %v\nsecond: %v", sortedEntries(first), sortedEntries(second))
	}
	if got, want := second.Stats.CacheHits, int64(len(second.Directories)); got != want {
		t.Errorf("second scan: %d hits, want %d", got, want)
	}
	if second.Stats.CacheMisses != 0 {
		t.Errorf("second scan: %d misses, want 0", second.Stats.CacheMisses)
	}
	for _, e := range second.Entries {
		if filepath.Base(e.Path) == cache.FileName {
			t.Error("cache file counted in results")
		}
	}
}

func TestScanCacheInvalidationLocality(t *testing.T) {
	root := createScenario(t)
	opts := testOptions(root)
	opts.Cache = newStore(t)

	first := mustScan(t, opts)

	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(filepath.Join(root, "a", "file1"), later, later); err != nil {
		t.Fatal(err)
	}

	second := mustScan(t, opts)

	if second.Stats.CacheHits != 1 {
		t.Errorf("hits: got %d, want 1 (b)", second.Stats.CacheHits)
	}
	if second.Stats.CacheMisses != 2 {
		t.Errorf("misses: got %d, want 2 (root, a)", second.Stats.CacheMisses)
	}
	b := filepath.Join(second.Root, "b")
	if first.Directories[b] != second.Directories[b] {
		t.Errorf("b: got %+v, want %+v", second.Directories[b], first.Directories[b])
	}
	if !reflect.DeepEqual(first.Directories, second.Directories) {
		t.Errorf("aggregates changed without a size change")
	}
}

func TestScanCacheSeesGrowth(t *testing.T) {
	root := createScenario(t)
	opts := testOptions(root)
	opts.ShowFiles = true
	opts.Cache = newStore(t)
	mustScan(t, opts)

	file1 := filepath.Join(root, "a", "file1")
	writeFile(t, file1, 256*1024)
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(file1, later, later); err != nil {
		t.Fatal(err)
	}
	du1 := diskUsage(t, file1)
	du2 := diskUsage(t, filepath.Join(root, "b", "file2"))

	res := mustScan(t, opts)
	if got := res.Total().Bytes; got != du1+du2 {
		t.Errorf("root: got %d, want %d", got, du1+du2)
	}
	if got := bytesOf(res, "a"); got != du1 {
		t.Errorf("a: got %d, want %d", got, du1)
	}
}

func TestScanCacheIgnoredWhenExclusionsChange(t *testing.T) {
	root := createScenario(t)
	opts := testOptions(root)
	opts.Cache = newStore(t)
	opts.ExcludeKey = "b"
	opts.Exclude = func(path string, _ bool) bool { return filepath.Base(path) == "b" }
	mustScan(t, opts)

	opts.ExcludeKey = ""
	opts.Exclude = nil
	res := mustScan(t, opts)

	if res.Stats.CacheHits != 0 {
		t.Errorf("hits: got %d, want 0", res.Stats.CacheHits)
	}
	if got, want := bytesOf(res, "b"), diskUsage(t, filepath.Join(root, "b", "file2")); got != want {
		t.Errorf("b: got %d, want %d", got, want)
	}
}

func TestScanWorkStealingMatchesDefault(t *testing.T) {
	root := t.TempDir()
	for i := range 30 {
		writeFile(t, filepath.Join(root, "big", fmt.Sprintf("f%02d", i)), 100*(i+1))
	}
	for i := range 15 {
		writeFile(t, filepath.Join(root, "big", "inner", fmt.Sprintf("g%02d", i)), 2048)
	}
	for i := range 4 {
		writeFile(t, filepath.Join(root, fmt.Sprintf("small%d", i), "file"), 512*(i+1))
	}

	base := DefaultOptions()
	base.Root = root
	base.ShowFiles = true
	base.Strategy = pool.Default
	want := mustScan(t, base)

	stealing := base
	stealing.Strategy = pool.WorkStealingUneven
	stealing.Width = 4
	stealing.LargeDirThreshold = 10
	got := mustScan(t, stealing)

	if got.Stats.LargeDirs < 1 {
		t.Errorf("large dirs: got %d, want at least 1", got.Stats.LargeDirs)
	}
	if !reflect.DeepEqual(want.Directories, got.Directories) {
		t.Errorf("aggregates differ:\ndefault:       %v\nwork stealing: %v", want.Directories, got.Directories)
	}
	assertSumInvariant(t, got)
}

func TestScanMemoryExceededReturnsPartialResult(t *testing.T) {
	root := t.TempDir()
	for i := range 20 {
		for j := range 20 {
			writeFile(t, filepath.Join(root, fmt.Sprintf("d%02d", i), fmt.Sprintf("f%02d", j)), 100)
		}
	}

	opts := testOptions(root)
	opts.ShowFiles = true
	opts.CheckEvery = 1
	opts.Cache = newStore(t)
	opts.Monitor = &stubSampler{after: 5, status: types.MemoryExceeded}

	res := mustScan(t, opts)

	if !res.Partial {
		t.Fatal("expected a partial result")
	}
	if res.Memory != types.MemoryExceeded {
		t.Errorf("memory: got %s, want exceeded", res.Memory)
	}
	if res.Stats.FilesScanned >= 400 {
		t.Errorf("scan visited all %d files after the limit was exceeded", res.Stats.FilesScanned)
	}
	assertSumInvariant(t, res)

	if opts.Cache.Load(res.Root) != nil {
		t.Error("partial scan must not save a cache")
	}
}

func TestScanMemoryNearingDisablesCache(t *testing.T) {
	root := createScenario(t)
	du1 := diskUsage(t, filepath.Join(root, "a", "file1"))
	du2 := diskUsage(t, filepath.Join(root, "b", "file2"))

	opts := testOptions(root)
	opts.Cache = newStore(t)
	opts.Monitor = &stubSampler{after: 0, status: types.MemoryNearing}

	res := mustScan(t, opts)

	if res.Partial {
		t.Error("nearing the limit must not stop the scan")
	}
	if res.Memory != types.MemoryNearing {
		t.Errorf("memory: got %s, want nearing", res.Memory)
	}
	if got := res.Total().Bytes; got != du1+du2 {
		t.Errorf("root: got %d, want %d", got, du1+du2)
	}
	if opts.Cache.Load(res.Root) != nil {
		t.Error("cache must not be saved once updates were disabled")
	}
}

// A reading the scan never acted on must not show up in the result: the
// reported status has to agree with Partial and with the cache write.
func TestScanStatusAgreesWithPartialAndCache(t *testing.T) {
	tests := []struct {
		name       string
		status     types.MemoryLimitStatus
		checkEvery int
		want       types.MemoryLimitStatus
		wantSaved  bool
	}{
		{"nearing after the walk", types.MemoryNearing, 0, types.MemoryOk, true},
		{"exceeded after the walk", types.MemoryExceeded, 0, types.MemoryOk, true},
		{"nearing during the walk", types.MemoryNearing, 1, types.MemoryNearing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := createScenario(t)
			opts := testOptions(root)
			opts.Cache = newStore(t)
			if tt.checkEvery > 0 {
				opts.CheckEvery = tt.checkEvery
			}
			opts.Monitor = &stubSampler{after: 1, status: tt.status}

			res := mustScan(t, opts)

			if res.Memory != tt.want {
				t.Errorf("memory: got %s, want %s", res.Memory, tt.want)
			}
			if res.Partial != (res.Memory == types.MemoryExceeded) {
				t.Errorf("partial=%v with memory %s", res.Partial, res.Memory)
			}
			saved := opts.Cache.Load(res.Root) != nil
			if saved != tt.wantSaved {
				t.Errorf("cache saved: got %v, want %v", saved, tt.wantSaved)
			}
			if saved && res.Memory != types.MemoryOk {
				t.Errorf("cache saved although memory was %s", res.Memory)
			}
		})
	}
}

func TestScanExceededAtStartSkipsCachedRoot(t *testing.T) {
	root := createScenario(t)
	opts := testOptions(root)
	opts.ShowFiles = true
	opts.Cache = newStore(t)
	mustScan(t, opts)

	opts.Monitor = &stubSampler{after: 0, status: types.MemoryExceeded}
	res := mustScan(t, opts)

	if !res.Partial || res.Memory != types.MemoryExceeded {
		t.Errorf("got partial=%v memory=%s, want a partial exceeded result", res.Partial, res.Memory)
	}
	assertSumInvariant(t, res)
}

func TestScanUnsupportedMonitorNeverStops(t *testing.T) {
	root := createScenario(t)
	opts := testOptions(root)
	opts.CheckEvery = 1
	opts.Monitor = &stubSampler{after: 0, status: types.MemoryUnsupported}

	res := mustScan(t, opts)
	if res.Partial || res.Memory != types.MemoryUnsupported {
		t.Errorf("got partial=%v memory=%s", res.Partial, res.Memory)
	}
}

func TestScanUnreadableDirectoryWarns(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}
	root := createScenario(t)
	locked := filepath.Join(root, "locked")
	writeFile(t, filepath.Join(locked, "hidden"), 100)
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	res := mustScan(t, testOptions(root))

	if len(res.Warnings) == 0 {
		t.Error("expected a warning for the unreadable directory")
	}
	if got, want := res.Total().Bytes, bytesOf(res, "a")+bytesOf(res, "b"); got != want {
		t.Errorf("root: got %d, want %d", got, want)
	}
}
