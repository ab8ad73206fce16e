package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/dusk/pkg/dusk/config"
	"github.com/jamesainslie/dusk/pkg/dusk/logging"
	"github.com/jamesainslie/dusk/pkg/dusk/types"
)

// initializeLogging is the persistent pre-run hook. It creates the XDG
// directories, loads configuration and opens the log file.
func initializeLogging(_ *cobra.Command, _ []string) error {
	for _, dir := range []string{config.ConfigDir(), config.DataDir(), config.StateDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	loaded, err := loadConfig()
	if err != nil {
		return err
	}
	cfg = loaded

	logCfg := logging.Config{
		Level:        cfg.Logging.Level,
		Path:         cfg.Logging.Path,
		Rotation:     parseRotationConfig(cfg.Logging.Rotation),
		Components:   cfg.Logging.Components,
		ConsoleLevel: consoleLevel(),
	}
	if err := logging.Init(logCfg); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	return nil
}

// consoleLevel mirrors log records to stderr for --verbose and --quiet.
func consoleLevel() string {
	switch {
	case getVerbose():
		return "debug"
	case getQuiet():
		return "error"
	default:
		return ""
	}
}

// parseRotationConfig converts the config file form. An unparseable size
// falls back to the default.
func parseRotationConfig(rc config.RotationConfig) logging.RotationConfig {
	out := logging.RotationConfig{
		MaxSize:    logging.DefaultRotationConfig().MaxSize,
		MaxAge:     rc.MaxAge,
		MaxBackups: rc.MaxBackups,
		Daily:      rc.Daily,
	}
	if rc.MaxSize != "" {
		if size, err := types.ParseSize(rc.MaxSize); err == nil && size > 0 {
			out.MaxSize = size
		}
	}
	return out
}
