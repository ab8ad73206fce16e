package aggregate

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jamesainslie/dusk/pkg/dusk/types"
)

func TestContributeSumsAlongChain(t *testing.T) {
	root := filepath.FromSlash("/r")
	chains := NewChains(root)
	agg := New()
	agg.Ensure(root)

	a := filepath.Join(root, "a")
	b := filepath.Join(root, "b")
	empty := filepath.Join(root, "empty")
	for _, d := range []string{a, b, empty} {
		agg.Ensure(d)
		agg.Contribute(types.ScanJob{Path: d, Ancestors: chains.Of(root)})
	}
	agg.Contribute(types.ScanJob{Path: filepath.Join(a, "file1"), IsFile: true, Bytes: 4096, Ancestors: chains.Of(a)})
	agg.Contribute(types.ScanJob{Path: filepath.Join(b, "file2"), IsFile: true, Bytes: 8192, Ancestors: chains.Of(b)})

	want := map[string]types.AggregatedDirectory{
		root:  {Bytes: 12288, Files: 2, Children: 3, Inodes: 5},
		a:     {Bytes: 4096, Files: 1, Children: 1, Inodes: 1},
		b:     {Bytes: 8192, Files: 1, Children: 1, Inodes: 1},
		empty: {},
	}
	got := agg.Snapshot()
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}
	for dir, w := range want {
		if got[dir] != w {
			t.Errorf("%s = %+v, want %+v", dir, got[dir], w)
		}
	}
}

func TestConcurrentContributionsAreNotLost(t *testing.T) {
	root := "/r"
	chains := NewChains(root)
	agg := New()

	const workers, perWorker = 16, 500
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			dir := fmt.Sprintf("/r/d%d/sub", w%4)
			for i := 0; i < perWorker; i++ {
				agg.Contribute(types.ScanJob{IsFile: true, Bytes: 512, Ancestors: chains.Of(dir)})
			}
		}(w)
	}
	wg.Wait()

	total, ok := agg.get(root)
	if !ok {
		t.Fatal("root missing")
	}
	if total.Bytes != workers*perWorker*512 || total.Files != workers*perWorker {
		t.Errorf("root = %+v", total)
	}
	d0, _ := agg.get("/r/d0")
	if d0.Bytes != 4*perWorker*512 {
		t.Errorf("/r/d0 bytes = %d, want %d", d0.Bytes, 4*perWorker*512)
	}
}

func TestFoldActsAsSingleLeaf(t *testing.T) {
	chains := NewChains("/r")
	agg := New()
	sub := types.AggregatedDirectory{Bytes: 100, Files: 2, Children: 2, Inodes: 2}

	agg.Fold(chains.Of("/r/x"), sub)

	x, _ := agg.get("/r/x")
	r, _ := agg.get("/r")
	if x != (types.AggregatedDirectory{Bytes: 100, Files: 2, Children: 1, Inodes: 3}) {
		t.Errorf("/r/x = %+v", x)
	}
	if r != (types.AggregatedDirectory{Bytes: 100, Files: 2, Inodes: 3}) {
		t.Errorf("/r = %+v", r)
	}
}

func TestRestoreThenContribute(t *testing.T) {
	agg := New()
	agg.Restore("/r/c", types.AggregatedDirectory{Bytes: 7, Files: 1, Children: 1, Inodes: 1})
	agg.Contribute(types.ScanJob{Path: "/r/c/new", IsFile: true, Bytes: 3, Ancestors: []string{"/r/c", "/r"}})

	got, ok := agg.get("/r/c")
	if !ok || got != (types.AggregatedDirectory{Bytes: 10, Files: 2, Children: 2, Inodes: 2}) {
		t.Errorf("/r/c = %+v, %v", got, ok)
	}
	if r, _ := agg.get("/r"); r.Bytes != 3 || r.Files != 1 {
		t.Errorf("/r = %+v", r)
	}
	if _, ok := agg.get("/r/missing"); ok {
		t.Error("missing directory reported present")
	}
	if agg.Len() != 2 {
		t.Errorf("Len = %d, want 2", agg.Len())
	}
}

func TestChainsAreSharedAndOrdered(t *testing.T) {
	chains := NewChains("/r")

	got := chains.Of("/r/a/b")
	want := []string{"/r/a/b", "/r/a", "/r"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("chain = %v, want %v", got, want)
	}

	again := chains.Of("/r/a/b")
	if &again[0] != &got[0] {
		t.Error("chain should be reused, not rebuilt")
	}
	if chains.size() != 3 {
		t.Errorf("cached %d chains, want 3", chains.size())
	}
	if root := chains.Of("/r"); len(root) != 1 || root[0] != "/r" {
		t.Errorf("root chain = %v", root)
	}
}
