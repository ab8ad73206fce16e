package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/dusk/pkg/dusk/cache"
	"github.com/jamesainslie/dusk/pkg/dusk/scanner"
	"github.com/jamesainslie/dusk/pkg/dusk/types"
	"github.com/jamesainslie/dusk/pkg/dusk/watch"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Rescan a directory whenever it changes",
	Long: `Scan a directory, then watch it and rescan incrementally through the
cache once changes settle. Each rescan prints a one-line summary.
Stop with Ctrl-C.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 0, "quiet period before rescanning (default from watch.debounce)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(_ *cobra.Command, args []string) error {
	root, err := scanRoot(args)
	if err != nil {
		return err
	}
	setup, err := prepareScan(cfg, root)
	if err != nil {
		return err
	}
	defer setup.Close()

	s, err := scanner.New(setup.opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := s.Scan(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("scan failed: %w", err)
	}
	if err := writeResult(res, setup); err != nil {
		return err
	}
	reportScan(res)
	recordHistory(cfg, res)

	exclude := setup.opts.Exclude
	w, err := watch.New(func(path string, isDir bool) bool {
		if filepath.Base(path) == cache.FileName {
			return true
		}
		return exclude != nil && exclude(path, isDir)
	})
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Close()

	if err := w.Watch(root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}

	debounce := watchDebounce
	if debounce <= 0 {
		debounce = cfg.Watch.Debounce
	}
	printInfo("Watching %s (%d directories); press Ctrl-C to stop", root, w.Watched())

	w.Run(ctx, debounce, func(paths []string) {
		res, err := s.Scan(ctx)
		if err != nil {
			if ctx.Err() == nil {
				printError("rescan failed: %v", err)
			}
			return
		}
		fmt.Println(summaryLine(res, len(paths)))
		recordHistory(cfg, res)
	})
	return nil
}

// summaryLine is the one-line report printed after each rescan.
func summaryLine(res *types.ScanResult, changes int) string {
	total := res.Total()
	line := fmt.Sprintf("%s  %s  %s in %d files  (%d changes, %d hits / %d misses, %s)",
		time.Now().Format("15:04:05"),
		res.Root,
		types.FormatSize(total.Bytes),
		total.Files,
		changes,
		res.Stats.CacheHits,
		res.Stats.CacheMisses,
		res.Stats.Duration.Round(time.Millisecond),
	)
	if res.Partial {
		line += "  PARTIAL"
	}
	return line
}
