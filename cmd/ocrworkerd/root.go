package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quebec-foncier/ocrworkerd/internal/version"
)

var (
	cfgFile  string
	logLevel string
)

// ParseLogLevel converts a string log level to slog.Level. Supports:
// debug, info, warn, error (case-insensitive).
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: must be debug, info, warn, or error", level)
	}
}

// GetLogLevel returns the configured log level, checking the --log-level
// flag, then OCRWORKER_LOG_LEVEL, then defaulting to info.
func GetLogLevel() slog.Level {
	level := logLevel
	if level == "" {
		level = os.Getenv("OCRWORKER_LOG_LEVEL")
	}
	if level == "" {
		level = "info"
	}

	parsed, err := ParseLogLevel(level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v, using info\n", err)
		return slog.LevelInfo
	}
	return parsed
}

var rootCmd = &cobra.Command{
	Use:   "ocrworkerd",
	Short: "Distributed OCR worker pool for Quebec land-registry documents",
	Long: `ocrworkerd polls one or more Postgres-backed job queues for index and
acte documents, claims work atomically, and runs it through a
primary/fallback LLM provider pipeline with rate-budget admission,
capacity-aware pool rebalancing, and continuation-bounded extraction.`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.ocrworkerd/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "", "log level: debug, info, warn, error (default: info, env: OCRWORKER_LOG_LEVEL)",
	)

	rootCmd.AddCommand(versionCmd)
}
