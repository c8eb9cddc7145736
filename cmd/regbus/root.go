// Package main provides the CLI entrypoint for regbus.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/regbus/internal/config"
	"github.com/jmylchreest/regbus/internal/dbus"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// Global configuration and state
var (
	globalOpts struct {
		verbose bool
		busName string
		path    string
	}
	logger *slog.Logger

	client *dbus.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "regbus",
	Short: "Query and edit a running regbusd registry",
	Long: `regbus talks to regbusd over the D-Bus session bus.

Values are JSON. Strings that are not valid JSON are stored as-is.`,
	Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogger()

		var err error
		client, err = dbus.Dial(globalOpts.busName, globalOpts.path)
		if err != nil {
			return err
		}
		logger.Debug("connected", "bus", globalOpts.busName, "path", globalOpts.path)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if client != nil {
			return client.Close()
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&globalOpts.verbose, "verbose", "v", false,
		"Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&globalOpts.busName, "bus-name", config.DefaultBusName,
		"Well-known bus name of the daemon")
	rootCmd.PersistentFlags().StringVar(&globalOpts.path, "path", config.DefaultBasePath,
		"Root object path of the daemon")
}

// setupLogger configures the global slog logger.
func setupLogger() {
	level := slog.LevelWarn
	if globalOpts.verbose {
		level = slog.LevelDebug
	}

	// Log to stderr so stdout is clean for output
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

func main() {
	Execute()
}
