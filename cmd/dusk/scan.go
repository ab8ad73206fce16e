package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/dusk/pkg/dusk/cache"
	"github.com/jamesainslie/dusk/pkg/dusk/config"
	"github.com/jamesainslie/dusk/pkg/dusk/filter"
	"github.com/jamesainslie/dusk/pkg/dusk/history"
	"github.com/jamesainslie/dusk/pkg/dusk/output"
	"github.com/jamesainslie/dusk/pkg/dusk/owner"
	"github.com/jamesainslie/dusk/pkg/dusk/pool"
	"github.com/jamesainslie/dusk/pkg/dusk/scanner"
	"github.com/jamesainslie/dusk/pkg/dusk/tuner"
	"github.com/jamesainslie/dusk/pkg/dusk/types"
)

var scanCmd = &cobra.Command{
	Use:   "scan [path]",
	Short: "Scan a directory tree (default command)",
	Long: `Scan a directory tree and report the disk usage of every directory.

This is what dusk runs when no subcommand is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

// scanSetup is everything derived from configuration for one root.
type scanSetup struct {
	opts   scanner.Options
	store  *cache.Store
	filter *filter.Filter
	view   output.View
}

// Close releases the cache backend.
func (s *scanSetup) Close() {
	if s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		printVerbose("closing cache: %v", err)
	}
}

// runScan is the scan command handler.
func runScan(_ *cobra.Command, args []string) error {
	root, err := scanRoot(args)
	if err != nil {
		return err
	}

	setup, err := prepareScan(cfg, root)
	if err != nil {
		return err
	}
	defer setup.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printVerbose("Scanning %s (strategy %s, width %d)", root, setup.opts.Strategy, setup.opts.Width)
	res, err := scanner.Scan(ctx, setup.opts)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			printInfo("Scan cancelled")
			return nil
		}
		return fmt.Errorf("scan failed: %w", err)
	}

	if err := writeResult(res, setup); err != nil {
		return err
	}
	reportScan(res)
	recordHistory(cfg, res)
	return nil
}

// scanRoot picks the root from the arguments or default_path and resolves
// it the way the scanner will, so exclusion patterns see the same paths.
func scanRoot(args []string) (string, error) {
	path := cfg.DefaultPath
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		path = config.DefaultPath
	}

	expanded, err := config.ExpandPath(path)
	if err != nil {
		return "", fmt.Errorf("failed to expand path: %w", err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return abs, nil
}

// prepareScan turns configuration into scanner options. Configuration
// errors are returned here, before any traversal.
func prepareScan(c *config.Config, root string) (*scanSetup, error) {
	strategy, err := pool.ParseStrategy(c.Threads.Strategy)
	if err != nil {
		return nil, err
	}
	inodes, err := types.ParseInodeMode(c.Inodes)
	if err != nil {
		return nil, err
	}
	verify, err := cache.ParseVerifyMode(c.Cache.Verify)
	if err != nil {
		return nil, err
	}
	limit, err := memoryLimit(c)
	if err != nil {
		return nil, err
	}
	exclusion, err := filter.CompileExclude(root, c.Exclude)
	if err != nil {
		return nil, err
	}
	f, err := buildFilter(c)
	if err != nil {
		return nil, err
	}
	if _, err := output.Get(output.Resolve(c.Output.Format, false)); err != nil {
		return nil, fmt.Errorf("%w (available: auto, %s)", err, strings.Join(output.Available(), ", "))
	}

	opts := scanner.DefaultOptions()
	opts.Root = root
	opts.MaxDepth = c.Depth
	opts.ShowFiles = c.ShowFiles
	opts.Exclude = exclusion.Match
	opts.ExcludeKey = exclusion.Key()
	opts.Strategy = strategy
	opts.Width = c.Threads.Width
	opts.Verify = verify
	opts.MemoryLimit = limit
	opts.CheckInterval = c.Memory.CheckInterval
	opts.InodeMode = inodes
	if c.ShowOwner {
		opts.Owners = owner.NewResolver()
	}

	setup := &scanSetup{
		opts:   opts,
		filter: f,
		view:   output.View{ShowOwner: c.ShowOwner, ShowInodes: c.ShowInodes},
	}
	if c.Cache.Enabled && !noCache {
		store, err := openStore(c)
		if err != nil {
			return nil, err
		}
		if store != nil {
			setup.store = store
			setup.opts.Cache = store
		}
	}
	return setup, nil
}

// openStore opens the configured cache backend. An unknown backend is a
// configuration error; one that cannot be opened disables caching for
// this run.
func openStore(c *config.Config) (*cache.Store, error) {
	backend, err := cache.OpenBackend(c.Cache.Backend, config.CacheDir(c.Cache.Dir))
	if err != nil {
		if errors.Is(err, cache.ErrUnknownBackend) {
			return nil, err
		}
		printVerbose("cache disabled: %v", err)
		return nil, nil
	}
	return cache.NewStore(backend, cache.StoreOptions{TTL: c.Cache.TTL, ToolVersion: version}), nil
}

// memoryLimit parses memory.limit, where "auto" means a share of total RAM.
func memoryLimit(c *config.Config) (int64, error) {
	if strings.EqualFold(strings.TrimSpace(c.Memory.Limit), memoryLimitAuto) {
		res, err := tuner.Detect()
		if err != nil {
			printVerbose("memory detection failed, using defaults: %v", err)
		}
		limit := tuner.SuggestedMemoryLimit(res)
		printVerbose("Memory limit: %s (auto)", types.FormatSize(limit))
		return limit, nil
	}
	return c.MemoryLimit()
}

// writeResult filters, sorts and formats the result to stdout or
// --output-file.
func writeResult(res *types.ScanResult, setup *scanSetup) error {
	rows := setup.filter.Apply(res.Entries)
	result := output.NewResult(res, rows, setup.view)

	out := os.Stdout
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if err := output.Write(out, cfg.Output.Format, result); err != nil {
		return err
	}
	if outputFile != "" {
		printInfo("Output written to: %s", outputFile)
	}
	return nil
}

// reportScan prints the partial-scan notice, the warning count and the
// optional profile to stderr.
func reportScan(res *types.ScanResult) {
	if res.Partial {
		printInfo("Partial result: memory limit exceeded; totals cover only the entries visited")
	} else if res.Memory == types.MemoryNearing {
		printInfo("Memory usage neared the limit; the cache was not updated")
	}
	if n := len(res.Warnings); n > 0 {
		printInfo("%d entries could not be read (use -o json to list them)", n)
	}

	if profile {
		printProfile(res)
	}
	if statsJSON != "" {
		if err := writeStatsJSON(statsJSON, res); err != nil {
			printError("failed to write stats: %v", err)
		}
	}
}

func printProfile(res *types.ScanResult) {
	s := res.Stats
	fmt.Fprintf(os.Stderr, "Profile for %s (%s)\n", res.Root, res.ID)
	for _, p := range s.Phases {
		fmt.Fprintf(os.Stderr, "  %-12s %s\n", p.Name, p.Duration)
	}
	fmt.Fprintf(os.Stderr, "  %-12s %s\n", "total", s.Duration)
	fmt.Fprintf(os.Stderr, "  pool:        %s x%d\n", s.Strategy, s.Workers)
	fmt.Fprintf(os.Stderr, "  scanned:     %d dirs, %d files\n", s.DirsScanned, s.FilesScanned)
	fmt.Fprintf(os.Stderr, "  cache:       %d hits, %d misses (%.1f%%)\n", s.CacheHits, s.CacheMisses, s.CacheHitRate()*100)
	if s.LargeDirs > 0 {
		fmt.Fprintf(os.Stderr, "  large dirs:  %d\n", s.LargeDirs)
	}
	if s.PeakRSS > 0 {
		fmt.Fprintf(os.Stderr, "  peak rss:    %s\n", types.FormatSize(s.PeakRSS))
	}
	fmt.Fprintf(os.Stderr, "  memory:      %s\n", res.Memory)
}

// scanStats is the --stats-json document.
type scanStats struct {
	ID           string                  `json:"id"`
	Root         string                  `json:"root"`
	Partial      bool                    `json:"partial"`
	Memory       types.MemoryLimitStatus `json:"memory_status"`
	Warnings     int                     `json:"warnings"`
	CacheHitRate float64                 `json:"cache_hit_rate"`
	Stats        types.ScanStats         `json:"stats"`
}

func writeStatsJSON(path string, res *types.ScanResult) error {
	doc := scanStats{
		ID:           res.ID,
		Root:         res.Root,
		Partial:      res.Partial,
		Memory:       res.Memory,
		Warnings:     len(res.Warnings),
		CacheHitRate: res.Stats.CacheHitRate(),
		Stats:        res.Stats,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// recordHistory appends the scan to the history log and prunes old records.
// Failures are reported but never fail the scan.
func recordHistory(c *config.Config, res *types.ScanResult) {
	if !c.History.Enabled || noHistory {
		return
	}
	log, err := history.New(config.HistoryDir(c.History.Path))
	if err != nil {
		printVerbose("history disabled: %v", err)
		return
	}
	if _, err := log.Append(res); err != nil {
		printVerbose("failed to record history: %v", err)
		return
	}
	if removed, err := log.Clean(c.History.RetentionDays); err != nil {
		printVerbose("failed to prune history: %v", err)
	} else if removed > 0 {
		printVerbose("Pruned %d history records", removed)
	}
}
