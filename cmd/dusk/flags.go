package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/dusk/pkg/dusk/config"
	"github.com/jamesainslie/dusk/pkg/dusk/filter"
	"github.com/jamesainslie/dusk/pkg/dusk/types"
)

// Flags that are not configuration keys.
var (
	noCache    bool
	noHistory  bool
	outputFile string
	profile    bool
	statsJSON  string
	limit      int
	minSize    string
)

// memoryLimitAuto asks for a limit derived from total RAM.
const memoryLimitAuto = "auto"

// addScanFlags registers the scan flags on cmd and binds those that are
// configuration keys, so flag > env > file > default.
func addScanFlags(cmd *cobra.Command) {
	fs := cmd.PersistentFlags()

	fs.IntP("depth", "d", config.DefaultDepth, "output depth (0 = root only, -1 = unlimited)")
	fs.String("sort", config.DefaultSort, "sort order: size or name")
	fs.Bool("show-files", false, "include files in the output")
	fs.Bool("show-owner", false, "show the owner of each entry")
	fs.Bool("show-inodes", false, "show the inode count of each directory")
	fs.StringSliceP("exclude", "e", nil, "exclude pattern (repeatable); a bare name matches at any depth")
	fs.IntP("threads", "t", 0, "worker count (0 = strategy default)")
	fs.String("strategy", config.DefaultStrategy, "pool strategy: default, fixed, cpus-minus-one, io-heavy, work-stealing")
	fs.Duration("cache-ttl", config.DefaultCacheTTL, "discard caches older than this")
	fs.String("verify", config.DefaultCacheVerify, "cache verification: files or dirs")
	fs.String("memory-limit", "", "stop with a partial result above this RSS (e.g. 512M, 2G, auto)")
	fs.Duration("memory-check-interval", config.DefaultCheckInterval, "minimum time between RSS reads")
	fs.String("inodes", config.DefaultInodeMode, "inode count: total or direct")
	fs.StringP("format", "o", config.DefaultOutputFormat, "output format: auto, pretty, plain, csv, json, yaml")

	fs.BoolVar(&noCache, "no-cache", false, "ignore and do not write the cache")
	fs.BoolVar(&noHistory, "no-history", false, "do not record this scan in the history")
	fs.StringVar(&outputFile, "output-file", "", "write results to a file instead of stdout")
	fs.BoolVar(&profile, "profile", false, "print phase timings and cache statistics")
	fs.StringVar(&statsJSON, "stats-json", "", "write scan statistics as JSON to this file")
	fs.IntVarP(&limit, "limit", "l", 0, "show at most this many entries (0 = all)")
	fs.StringVar(&minSize, "min-size", "", "hide entries smaller than this (e.g. 100M)")

	bindings := map[string]string{
		"depth":                 "depth",
		"sort":                  "sort",
		"show_files":            "show-files",
		"show_owner":            "show-owner",
		"show_inodes":           "show-inodes",
		"exclude":               "exclude",
		"threads.width":         "threads",
		"threads.strategy":      "strategy",
		"cache.ttl":             "cache-ttl",
		"cache.verify":          "verify",
		"memory.limit":          "memory-limit",
		"memory.check_interval": "memory-check-interval",
		"inodes":                "inodes",
		"output.format":         "format",
	}
	for key, flag := range bindings {
		_ = viper.BindPFlag(key, fs.Lookup(flag))
	}
}

// buildFilter creates the presentation filter from configuration and flags.
func buildFilter(c *config.Config) (*filter.Filter, error) {
	sortField, err := filter.ParseSortField(c.Sort)
	if err != nil {
		return nil, err
	}

	opts := []filter.Option{
		filter.WithMaxDepth(c.Depth),
		filter.WithFiles(c.ShowFiles),
		filter.WithSortBy(sortField),
		filter.WithLimit(limit),
	}
	if strings.TrimSpace(minSize) != "" {
		size, err := types.ParseSize(minSize)
		if err != nil {
			return nil, fmt.Errorf("invalid min-size %q: %w", minSize, err)
		}
		opts = append(opts, filter.WithMinSize(size))
	}
	return filter.New(opts...), nil
}
