package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/dusk/pkg/dusk/cache"
	"github.com/jamesainslie/dusk/pkg/dusk/config"
	"github.com/jamesainslie/dusk/pkg/dusk/types"
)

var clearAll bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the scan cache",
	Long: `Commands for managing the incremental scan cache.

With the file backend each scanned root keeps its cache in <root>/.dusk-cache,
or under the user cache directory (typically ~/.cache/dusk) when the root is
not writable. The badger backend keeps every root in one database there.`,
}

var cachePathCmd = &cobra.Command{
	Use:   "path [dir]",
	Short: "Show where the cache for a directory lives",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(args, func(store *cache.Store, root string) error {
			fmt.Fprintln(cmd.OutOrStdout(), store.Location(root))
			return nil
		})
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats [dir]",
	Short: "Show cache statistics for a directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(args, func(store *cache.Store, root string) error {
			return printCacheStats(cmd, store, root)
		})
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [dir]",
	Short: "Remove cached data",
	Long: `Removes the cache for a directory, or with --all every cache in the user
cache directory. The next scan performs a full traversal.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(args, func(store *cache.Store, root string) error {
			if clearAll {
				return clearAllCaches(cmd, store)
			}
			if err := store.Remove(root); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cache cleared for %s\n", root)
			return nil
		})
	},
}

func init() {
	cacheClearCmd.Flags().BoolVar(&clearAll, "all", false, "remove every cache in the user cache directory")

	cacheCmd.AddCommand(cachePathCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

// withStore opens the configured backend for the root named in args.
func withStore(args []string, fn func(store *cache.Store, root string) error) error {
	root, err := scanRoot(args)
	if err != nil {
		return err
	}
	backend, err := cache.OpenBackend(cfg.Cache.Backend, config.CacheDir(cfg.Cache.Dir))
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	store := cache.NewStore(backend, cache.StoreOptions{TTL: cfg.Cache.TTL, ToolVersion: version})
	defer store.Close()

	return fn(store, root)
}

func printCacheStats(cmd *cobra.Command, store *cache.Store, root string) error {
	out := cmd.OutOrStdout()
	location := store.Location(root)
	fmt.Fprintf(out, "Root:      %s\n", root)
	fmt.Fprintf(out, "Location:  %s\n", location)

	snap, err := store.Inspect(root)
	if errors.Is(err, cache.ErrNoCache) {
		fmt.Fprintln(out, "Status:    empty (no cache)")
		return nil
	}
	if snap == nil {
		fmt.Fprintf(out, "Status:    unusable (%v)\n", err)
		return nil
	}

	status := "valid"
	if err != nil {
		status = fmt.Sprintf("unusable (%v)", err)
	}
	age := snap.Age(time.Now()).Round(time.Second)

	fmt.Fprintf(out, "Status:    %s\n", status)
	fmt.Fprintf(out, "Entries:   %d (%d directories)\n", snap.Len(), len(snap.Directories()))
	fmt.Fprintf(out, "Written:   %s (%s ago) by dusk %s\n",
		snap.Header.WrittenAt.Format("2006-01-02 15:04:05"), age, snap.Header.ToolVersion)
	if cfg.Cache.TTL > 0 {
		fmt.Fprintf(out, "TTL:       %s (%s left)\n", cfg.Cache.TTL, max(cfg.Cache.TTL-age, 0))
	} else {
		fmt.Fprintln(out, "TTL:       none")
	}
	if info, err := os.Stat(location); err == nil && !info.IsDir() {
		fmt.Fprintf(out, "Size:      %s\n", types.FormatSize(info.Size()))
	}
	return nil
}

// clearer is implemented by backends that can drop every cache they hold.
type clearer interface {
	Clear() (int, error)
}

func clearAllCaches(cmd *cobra.Command, store *cache.Store) error {
	c, ok := store.Backend().(clearer)
	if !ok {
		return fmt.Errorf("backend %q cannot clear all caches", cfg.Cache.Backend)
	}
	n, err := c.Clear()
	if err != nil {
		return fmt.Errorf("failed to clear caches: %w", err)
	}
	if n == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Cache is already empty.")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d caches.\n", n)
	return nil
}
