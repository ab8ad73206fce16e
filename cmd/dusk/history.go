package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/dusk/pkg/dusk/config"
	"github.com/jamesainslie/dusk/pkg/dusk/history"
	"github.com/jamesainslie/dusk/pkg/dusk/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View scan history",
	Long: `View the history of completed and partial scans.

Every scan appends a record with its totals, cache statistics and phase
timings. Records older than history.retention_days are pruned.`,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show details of a scan",
	Long:  `Display the record of one scan. A unique prefix of the ID is enough.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove old history records",
	Long:  `Remove history records older than the retention period.`,
	RunE:  runHistoryClean,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of records to show")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

func openHistory() (*history.Log, error) {
	log, err := history.New(config.HistoryDir(cfg.History.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	return log, nil
}

// runHistory lists recent scans.
func runHistory(cmd *cobra.Command, _ []string) error {
	log, err := openHistory()
	if err != nil {
		return err
	}
	records, err := log.List(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(out, "No scans recorded.")
		fmt.Fprintln(out, "Run 'dusk [path]' to scan a directory.")
		return nil
	}

	fmt.Fprintf(out, "\n%-8s  %-19s  %-10s  %-9s  %-8s  %s\n", "ID", "WHEN", "SIZE", "HIT RATE", "STATUS", "ROOT")
	fmt.Fprintln(out, strings.Repeat("-", 80))
	for _, rec := range records {
		fmt.Fprintf(out, "%-8s  %-19s  %-10s  %8.0f%%  %-8s  %s\n",
			truncateString(rec.ID, 8),
			rec.Timestamp.Local().Format("2006-01-02 15:04:05"),
			types.FormatSize(rec.Total.Bytes),
			rec.Stats.CacheHitRate()*100,
			recordStatus(rec),
			rec.Root,
		)
	}
	fmt.Fprintln(out, strings.Repeat("-", 80))
	fmt.Fprintf(out, "\nShowing %d records. Use --limit to see more.\n", len(records))
	fmt.Fprintln(out, "Use 'dusk history show <id>' for details on a specific scan.")
	return nil
}

func recordStatus(rec history.Record) string {
	if rec.Partial {
		return "partial"
	}
	return "complete"
}

// runHistoryShow displays one record.
func runHistoryShow(cmd *cobra.Command, args []string) error {
	log, err := openHistory()
	if err != nil {
		return err
	}
	rec, err := log.Get(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\nScan Details")
	fmt.Fprintln(out, strings.Repeat("=", 60))
	fmt.Fprintf(out, "ID:          %s\n", rec.ID)
	fmt.Fprintf(out, "Started:     %s\n", rec.Timestamp.Local().Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(out, "Root:        %s\n", rec.Root)
	fmt.Fprintf(out, "Status:      %s (memory %s)\n", recordStatus(*rec), rec.Memory)
	fmt.Fprintf(out, "Total:       %s in %d files, %d inodes\n",
		types.FormatSize(rec.Total.Bytes), rec.Total.Files, rec.Total.Inodes)
	fmt.Fprintf(out, "Scanned:     %d dirs, %d files\n", rec.Stats.DirsScanned, rec.Stats.FilesScanned)
	fmt.Fprintf(out, "Cache:       %d hits, %d misses\n", rec.Stats.CacheHits, rec.Stats.CacheMisses)
	fmt.Fprintf(out, "Pool:        %s x%d\n", rec.Stats.Strategy, rec.Stats.Workers)
	fmt.Fprintf(out, "Warnings:    %d\n", rec.Warnings)
	fmt.Fprintf(out, "Duration:    %s\n", rec.Stats.Duration)

	if len(rec.Stats.Phases) > 0 {
		fmt.Fprintln(out, "\nPhases:")
		fmt.Fprintln(out, strings.Repeat("-", 60))
		for _, p := range rec.Stats.Phases {
			fmt.Fprintf(out, "  %-12s %s\n", p.Name, p.Duration)
		}
	}
	return nil
}

// runHistoryClean removes records past the retention period.
func runHistoryClean(cmd *cobra.Command, _ []string) error {
	log, err := openHistory()
	if err != nil {
		return err
	}

	retentionDays := cfg.History.RetentionDays
	if retentionDays <= 0 {
		retentionDays = config.DefaultRetentionDays
	}

	removed, err := log.Clean(retentionDays)
	if err != nil {
		return fmt.Errorf("failed to clean history: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d records older than %d days.\n", removed, retentionDays)
	return nil
}

// truncateString truncates a string to maxLen.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
