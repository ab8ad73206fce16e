package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/dusk/pkg/dusk/aggregate"
	"github.com/jamesainslie/dusk/pkg/dusk/cache"
	"github.com/jamesainslie/dusk/pkg/dusk/logging"
	"github.com/jamesainslie/dusk/pkg/dusk/memory"
	"github.com/jamesainslie/dusk/pkg/dusk/pool"
	"github.com/jamesainslie/dusk/pkg/dusk/tuner"
	"github.com/jamesainslie/dusk/pkg/dusk/types"
	"github.com/jamesainslie/dusk/pkg/dusk/walk"
)

var logger = logging.Get("scanner")

// Scanner runs scans with one set of options. A Scanner may run several
// scans, one after another or concurrently; each scan has its own state.
type Scanner struct {
	opts Options
	pool *pool.Pool
	res  tuner.SystemResources
}

// New validates opts and builds the pool. Invalid options and pool
// construction failures are returned here.
func New(opts Options) (*Scanner, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	res, err := tuner.Detect()
	if err != nil {
		logger.Debug("resource detection incomplete", "error", err)
	}

	p := opts.Pool
	if p == nil {
		p, err = pool.ConfigureFor(opts.Strategy, opts.Width, res)
		if err != nil {
			return nil, fmt.Errorf("configuring pool: %w", err)
		}
	}
	logger.Debug("pool ready", "strategy", p.Strategy(), "width", p.Width(), "local", p.Local())

	return &Scanner{opts: opts, pool: p, res: res}, nil
}

// Scan builds a Scanner for opts and runs one scan.
func Scan(ctx context.Context, opts Options) (*types.ScanResult, error) {
	s, err := New(opts)
	if err != nil {
		return nil, err
	}
	return s.Scan(ctx)
}

// Pool returns the pool scans run on.
func (s *Scanner) Pool() *pool.Pool { return s.pool }

// Scan measures the tree below the configured root.
//
// A scan stopped by the memory limit is not an error: the result has
// Partial set and holds the totals of everything visited. Errors are
// returned only for an unusable root or a cancelled ctx.
func (s *Scanner) Scan(ctx context.Context) (*types.ScanResult, error) {
	r, err := s.newRun(ctx)
	if err != nil {
		return nil, err
	}
	return r.execute()
}

// run is the state of one scan.
type run struct {
	ctx   context.Context
	opts  *Options
	pool  *pool.Pool
	res   tuner.SystemResources
	root  string
	meta  types.Metadata
	clock phaseClock

	src     *walk.Source
	agg     *aggregate.Aggregator
	chains  *aggregate.Chains
	jobs    chan types.ScanJob
	monitor memory.Sampler

	// Cache state. prev and builder are nil when caching is off.
	prev    *cache.Snapshot
	clean   map[string]bool
	builder *cache.Builder

	// large holds the directories walked as separate units.
	large map[string]bool
	units *errgroup.Group

	visited  atomic.Int64
	stopped  atomic.Bool
	statusMu sync.Mutex
	status   types.MemoryLimitStatus

	dirs      atomic.Int64
	files     atomic.Int64
	hits      atomic.Int64
	misses    atomic.Int64
	largeDirs atomic.Int64

	mu       sync.Mutex
	warnings []types.ScanWarning
	fileRows []types.ResultEntry
	dirUIDs  map[string]uint32
}

func (s *Scanner) newRun(ctx context.Context) (*run, error) {
	r := &run{
		ctx:     ctx,
		opts:    &s.opts,
		pool:    s.pool,
		res:     s.res,
		agg:     aggregate.New(),
		dirUIDs: make(map[string]uint32),
	}
	r.clock.start()

	root, err := resolveRoot(s.opts.Root)
	if err != nil {
		return nil, err
	}
	r.root = root

	// The in-tree cache file must exist before the root is stat'ed, or
	// creating it would change the recorded modification time.
	if s.opts.Cache != nil {
		s.opts.Cache.Reserve(root)
	}
	entry, err := walk.Stat(root, root)
	if err != nil {
		return nil, fmt.Errorf("reading scan root: %w", err)
	}
	r.meta = entry.Meta

	r.chains = aggregate.NewChains(root)
	r.src = walk.New(walk.Options{
		Root:    root,
		Workers: s.pool.Width(),
		Exclude: r.exclude,
		OnError: r.warn,
	})

	r.monitor = s.opts.Monitor
	if r.monitor == nil {
		r.monitor = memory.New(s.opts.MemoryLimit, s.opts.CheckInterval)
	}
	r.status = r.monitor.Sample()
	return r, nil
}

// resolveRoot returns the absolute, symlink-free form of root and checks
// that it is a directory the process can list.
func resolveRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", root, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("reading scan root: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrRootNotDirectory, abs)
	}

	f, err := os.Open(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRootUnreadable, err)
	}
	defer f.Close()
	if _, err := f.ReadDir(1); err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("%w: %s: %w", ErrRootUnreadable, abs, err)
	}
	return abs, nil
}

func (r *run) execute() (*types.ScanResult, error) {
	startedAt := time.Now()
	r.clock.lap("setup")

	store := r.opts.Cache
	if store != nil {
		r.loadCache(store)
	}

	// The status sampled during setup applies before any work starts.
	r.observe(r.status)

	rootCached, rootHit := r.rootHit()
	if rootHit && !r.stopped.Load() {
		logger.Debug("tree unchanged, using cache", "root", r.root)
		r.builder = nil
		r.restore(r.root, rootCached)
		result := r.result(startedAt)
		r.clock.lap("aggregate")
		return r.finish(result, startedAt), nil
	}

	if r.pool.WorkStealing() && !r.stopped.Load() {
		r.large = r.findLargeDirs()
		r.clock.lap("prepass")
	}

	if err := r.walk(); err != nil {
		return nil, err
	}
	r.clock.lap("walk")

	result := r.result(startedAt)
	r.clock.lap("aggregate")

	if store != nil {
		r.saveCache(store, result)
		r.clock.lap("cache_save")
	}
	return r.finish(result, startedAt), nil
}

func (r *run) finish(result *types.ScanResult, startedAt time.Time) *types.ScanResult {
	result.Stats.Phases = r.clock.phases
	result.Stats.Duration = time.Since(startedAt)
	return result
}

// loadCache reads the previous snapshot and finds the directories whose
// whole subtree is unchanged.
func (r *run) loadCache(store *cache.Store) {
	r.builder = cache.NewBuilder()

	prev := store.Load(r.root)
	if prev != nil && prev.Header.Fingerprint != r.opts.fingerprint() {
		logger.Info("exclusions changed, ignoring cache", "root", r.root)
		prev = nil
	}
	r.clock.lap("cache_load")
	if prev == nil {
		return
	}

	v := &cache.Validator{Mode: r.opts.Verify}
	clean, err := v.Clean(r.ctx, r.pool, prev)
	r.clock.lap("validate")
	if err != nil {
		logger.Warn("cache validation failed, scanning everything", "error", err)
		return
	}
	r.prev = prev
	r.clean = clean
}

func (r *run) rootHit() (cache.Entry, bool) {
	cached, ok := r.prev.Get(r.root)
	if !ok || !r.clean[r.root] {
		return cache.Entry{}, false
	}
	return cached, cache.Compare(r.meta, &cached) == cache.Hit
}

// walk traverses the tree. Jobs are drained by one consumer per pool slot;
// producers (the walk itself and large-directory units) run outside the
// pool so a full pool never blocks them.
func (r *run) walk() error {
	r.jobs = make(chan types.ScanJob, tuner.QueueSize(r.res))

	consumers := r.pool.Group(r.ctx)
	for range r.pool.Width() {
		consumers.Go(func(context.Context) error {
			for job := range r.jobs {
				r.agg.Contribute(job)
			}
			return nil
		})
	}

	r.units = &errgroup.Group{}
	r.units.SetLimit(r.pool.Width())

	r.agg.Ensure(r.root)
	r.recordDir(types.FilesystemEntry{Path: r.root, Kind: types.KindDirectory, Meta: r.meta})

	walkErr := r.src.Walk(r.ctx, r.root, r.visit)
	unitErr := r.units.Wait()
	close(r.jobs)
	consumerErr := consumers.Wait()

	for _, err := range []error{walkErr, unitErr, consumerErr} {
		if err != nil {
			return err
		}
	}
	return nil
}

// visit handles one entry. fastwalk calls it from several goroutines.
func (r *run) visit(e types.FilesystemEntry) walk.Action {
	if r.stopped.Load() || r.checkpoint() {
		return walk.Stop
	}

	if e.Kind == types.KindDirectory {
		return r.visitDir(e)
	}

	r.put(e)
	job := types.ScanJob{Path: e.Path, Ancestors: r.chains.Of(filepath.Dir(e.Path))}
	if e.Kind == types.KindFile {
		job.IsFile = true
		job.Bytes = e.Meta.DiskUsage
		r.files.Add(1)
		if r.opts.ShowFiles && r.withinDepth(e.Depth) {
			r.addFileRow(e.Path, e.Depth, e.Meta.DiskUsage, e.Meta.UID)
		}
	}
	r.send(job)
	return walk.Continue
}

func (r *run) visitDir(e types.FilesystemEntry) walk.Action {
	parents := r.chains.Of(filepath.Dir(e.Path))

	if cached, ok := r.prev.Get(e.Path); ok && r.clean[e.Path] && cache.Compare(e.Meta, &cached) == cache.Hit {
		r.agg.Fold(parents, cached.Aggregate)
		r.restore(e.Path, cached)
		return walk.SkipDir
	}

	r.agg.Ensure(e.Path)
	r.recordDir(e)
	r.send(types.ScanJob{Path: e.Path, Ancestors: parents})

	if r.large[e.Path] {
		dir := e.Path
		if r.units.TryGo(func() error { return r.src.Walk(r.ctx, dir, r.visit) }) {
			r.largeDirs.Add(1)
			logger.Debug("walking large directory as its own unit", "path", dir)
			return walk.SkipDir
		}
	}
	return walk.Continue
}

// recordDir counts a directory that is walked rather than reused.
func (r *run) recordDir(e types.FilesystemEntry) {
	r.dirs.Add(1)
	if r.builder != nil {
		r.misses.Add(1)
	}
	r.put(e)
	if r.opts.Owners != nil {
		r.mu.Lock()
		r.dirUIDs[e.Path] = e.Meta.UID
		r.mu.Unlock()
	}
}

// restore reuses dir's subtree from the previous snapshot.
func (r *run) restore(dir string, cached cache.Entry) {
	r.agg.Restore(dir, cached.Aggregate)
	r.hits.Add(1)
	if r.builder != nil {
		r.builder.Put(dir, cached)
		r.builder.Carry(r.prev, dir)
	}

	uids := map[string]uint32{dir: cached.UID}
	for _, path := range r.prev.Descendants(dir) {
		e := r.prev.Entries[path]
		switch e.Kind {
		case types.KindDirectory:
			r.agg.Restore(path, e.Aggregate)
			r.hits.Add(1)
			uids[path] = e.UID
		case types.KindFile:
			if depth := walk.Depth(r.root, path); r.opts.ShowFiles && r.withinDepth(depth) {
				r.addFileRow(path, depth, e.Size, e.UID)
			}
		}
	}

	if r.opts.Owners != nil {
		r.mu.Lock()
		for path, uid := range uids {
			r.dirUIDs[path] = uid
		}
		r.mu.Unlock()
	}
}

func (r *run) put(e types.FilesystemEntry) {
	if r.builder != nil {
		r.builder.Put(e.Path, cache.NewEntry(e.Kind, e.Meta))
	}
}

func (r *run) send(job types.ScanJob) {
	select {
	case r.jobs <- job:
	case <-r.ctx.Done():
	}
}

// checkpoint polls the memory monitor every CheckEvery entries and reports
// whether the walk has to stop.
func (r *run) checkpoint() bool {
	if r.visited.Add(1)%int64(r.opts.CheckEvery) != 0 {
		return false
	}
	return r.observe(r.monitor.Sample())
}

// observe folds a sampled status into the scan's status. Nearing disables
// cache updates; Exceeded stops the walk.
func (r *run) observe(sampled types.MemoryLimitStatus) bool {
	r.statusMu.Lock()
	r.status = r.status.Escalate(sampled)
	status := r.status
	r.statusMu.Unlock()

	switch status {
	case types.MemoryNearing:
		if r.builder != nil && !r.builder.Disabled() {
			logger.Warn("memory limit nearly reached, cache updates disabled")
			r.builder.Disable()
		}
	case types.MemoryExceeded:
		if !r.stopped.Swap(true) {
			logger.Warn("memory limit exceeded, stopping scan", "visited", r.visited.Load())
		}
		if r.builder != nil {
			r.builder.Disable()
		}
		return true
	}
	return false
}

func (r *run) exclude(path string, isDir bool) bool {
	if !isDir && filepath.Base(path) == cache.FileName {
		return true
	}
	return r.opts.Exclude != nil && r.opts.Exclude(path, isDir)
}

func (r *run) warn(path string, err error) {
	r.mu.Lock()
	r.warnings = append(r.warnings, types.ScanWarning{Path: path, Error: err.Error()})
	r.mu.Unlock()
}

func (r *run) withinDepth(depth int) bool {
	return r.opts.MaxDepth < 0 || depth <= r.opts.MaxDepth
}

func (r *run) addFileRow(path string, depth int, bytes int64, uid uint32) {
	row := types.ResultEntry{
		Path:   path,
		Kind:   types.KindFile,
		Depth:  depth,
		Bytes:  bytes,
		Files:  1,
		Inodes: 1,
		UID:    uid,
	}
	r.mu.Lock()
	r.fileRows = append(r.fileRows, row)
	r.mu.Unlock()
}

// result freezes the aggregates and selects the output rows.
func (r *run) result(startedAt time.Time) *types.ScanResult {
	dirs := r.agg.Snapshot()

	entries := make([]types.ResultEntry, 0, len(dirs)+len(r.fileRows))
	for path, agg := range dirs {
		depth := walk.Depth(r.root, path)
		if !r.withinDepth(depth) {
			continue
		}
		entries = append(entries, types.ResultEntry{
			Path:   path,
			Kind:   types.KindDirectory,
			Depth:  depth,
			Bytes:  agg.Bytes,
			Files:  agg.Files,
			Inodes: r.opts.InodeMode.Count(agg),
			UID:    r.dirUIDs[path],
		})
	}
	entries = append(entries, r.fileRows...)

	if r.opts.Owners != nil {
		for i := range entries {
			entries[i].Owner = r.ownerName(entries[i].UID)
		}
	}

	// Only statuses the scan acted on are reported.
	r.statusMu.Lock()
	status := r.status
	r.statusMu.Unlock()

	stats := types.ScanStats{
		DirsScanned:  r.dirs.Load(),
		FilesScanned: r.files.Load(),
		CacheHits:    r.hits.Load(),
		CacheMisses:  r.misses.Load(),
		LargeDirs:    r.largeDirs.Load(),
		Strategy:     r.pool.Strategy().String(),
		Workers:      r.pool.Width(),
		StartedAt:    startedAt,
		Duration:     time.Since(startedAt),
		Phases:       r.clock.phases,
	}
	if p, ok := r.monitor.(interface{ Peak() int64 }); ok {
		stats.PeakRSS = p.Peak()
	}

	result := &types.ScanResult{
		ID:          uuid.NewString(),
		Root:        r.root,
		Memory:      status,
		Partial:     r.stopped.Load(),
		Directories: dirs,
		Entries:     entries,
		Warnings:    r.warnings,
		Stats:       stats,
	}

	logger.Info("scan finished",
		"root", r.root,
		"bytes", types.FormatSize(result.Total().Bytes),
		"dirs", stats.DirsScanned,
		"files", stats.FilesScanned,
		"hits", stats.CacheHits,
		"misses", stats.CacheMisses,
		"partial", result.Partial,
		"warnings", len(result.Warnings),
	)
	return result
}

func (r *run) ownerName(uid uint32) string {
	if name, ok := r.opts.Owners.Lookup(uid); ok {
		return name
	}
	return strconv.FormatUint(uint64(uid), 10)
}

// saveCache persists the new snapshot. Partial scans and scans that
// disabled cache updates leave the previous cache in place.
func (r *run) saveCache(store *cache.Store, result *types.ScanResult) {
	switch {
	case result.Partial:
		logger.Debug("partial scan, cache not saved")
		return
	case r.builder.Disabled():
		logger.Debug("cache updates disabled during scan, cache not saved")
		return
	}

	snap := r.builder.Snapshot(cache.Header{
		RootModTime: r.meta.ModTime,
		Fingerprint: r.opts.fingerprint(),
	}, result.Directories)

	if err := store.Save(r.root, snap); err != nil {
		logger.Warn("cache not saved", "error", err)
		result.Warnings = append(result.Warnings, types.ScanWarning{
			Path:  store.Location(r.root),
			Error: err.Error(),
		})
	}
}

// phaseClock records consecutive phase durations.
type phaseClock struct {
	mark   time.Time
	phases []types.PhaseTiming
}

func (c *phaseClock) start() {
	c.mark = time.Now()
}

func (c *phaseClock) lap(name string) {
	now := time.Now()
	c.phases = append(c.phases, types.PhaseTiming{Name: name, Duration: now.Sub(c.mark)})
	c.mark = now
}
