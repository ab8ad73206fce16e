package main

import (
	"fmt"
	"os"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/dusk/pkg/dusk/config"
)

var (
	cfgFile string

	// cfg is loaded by the persistent pre-run hook.
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "dusk [path]",
		Short: "Summarise disk usage of a directory tree",
		Long: heredoc.Doc(`
			dusk walks a directory tree in parallel and reports how much disk
			space every directory uses.

			Repeat scans of the same tree are incremental: unchanged
			directories are restored from a cache stored in the tree
			(.dusk-cache) or in the user cache directory.

			Examples:
			  dusk                          # scan the current directory
			  dusk -d 1 ~/src               # only show the first level
			  dusk --show-files -l 20 /var  # the 20 largest entries, files included
			  dusk -e node_modules -e '*.log' .
			  dusk --memory-limit 512M /    # stop with a partial result above 512 MiB RSS
			  dusk -o json . > usage.json
			  dusk watch ~/Downloads        # rescan whenever something changes
		`),
		Args:              cobra.MaximumNArgs(1),
		PersistentPreRunE: initializeLogging,
		RunE:              runScan,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/dusk/config.yaml)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")
	rootCmd.PersistentFlags().String("cache-backend", config.DefaultCacheBackend, "cache backend: file or badger")
	rootCmd.PersistentFlags().String("cache-dir", "", "user-level cache directory (default: $XDG_CACHE_HOME/dusk)")

	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("cache.backend", rootCmd.PersistentFlags().Lookup("cache-backend"))
	_ = viper.BindPFlag("cache.dir", rootCmd.PersistentFlags().Lookup("cache-dir"))

	addScanFlags(rootCmd)
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printError("%v", err)
	}
	return err
}

// loadConfig reads configuration with flags bound through the global viper.
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	return config.LoadFrom(viper.GetViper())
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return viper.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message to stderr unless quiet mode is enabled.
// Stdout carries only formatted results.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
