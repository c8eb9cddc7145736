// Package main is the entry point for the regbusd registry daemon.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/regbus/internal/config"
	"github.com/jmylchreest/regbus/internal/daemon"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

var opts struct {
	configPath string
	verbose    bool
	noWatch    bool
}

var rootCmd = &cobra.Command{
	Use:   "regbusd",
	Short: "Category registry daemon for the D-Bus session bus",
	Long: `regbusd owns a well-known name on the session bus and exports an
in-memory registry of named key/value categories.

Categories are seeded from the [seed.<name>] tables of the config file.
Edits to the config file are applied while running.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVarP(&opts.configPath, "config", "c", "",
		"Path to config file (default: ~/.config/regbus/regbusd.toml)")
	rootCmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false,
		"Enable debug logging")
	rootCmd.Flags().BoolVar(&opts.noWatch, "no-watch", false,
		"Do not reload the config file on change")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("regbusd failed", "error", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	// Set up structured logging
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	configPath := opts.configPath
	if configPath == "" {
		var err error
		configPath, err = config.ConfigPath()
		if err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level.Set(cfg.Level())
	if opts.verbose {
		level.Set(slog.LevelDebug)
	}

	logger.Info("starting regbusd", "version", version, "config", configPath)

	daemonOpts := []daemon.Option{
		daemon.WithLogger(logger),
	}
	// --verbose pins the level, so reloads leave it alone
	if !opts.verbose {
		daemonOpts = append(daemonOpts, daemon.WithLevelVar(level))
	}
	if !opts.noWatch {
		daemonOpts = append(daemonOpts, daemon.WithConfigWatch(configPath))
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		logger.Info("received signal, shutting down")
	}()

	if err := daemon.New(cfg, daemonOpts...).Run(ctx); err != nil {
		return err
	}

	logger.Info("regbusd stopped")
	return nil
}
