package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/marshallshelly/pebble-bridge/cmd/pebble-bridge/output"
	"github.com/marshallshelly/pebble-bridge/pkg/bridge"
	"github.com/marshallshelly/pebble-bridge/pkg/config"
	"github.com/marshallshelly/pebble-bridge/pkg/logging"
	"github.com/marshallshelly/pebble-bridge/pkg/model"
	"github.com/marshallshelly/pebble-bridge/pkg/session"
)

// Version is set at build time with -ldflags.
var Version = "0.4.0"

var (
	// Global flags
	configFile string
	verbose    bool
	jsonOutput bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "pebble-bridge",
	Short: "Query pebble models through a session/query mapping layer",
	Long: `pebble-bridge reads struct-tag models and derives mapping metadata from them:
one table per model, one mapped class per model and the relationship graph
between them (foreign keys, one-to-one links, many-to-many junctions and
backreferences).

Features:
  - Table synthesis including implicit many-to-many junction tables
  - Relationship inference with explicit join conditions
  - Per-request sessions for every database alias
  - JSON API over the mapped classes`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		output.Error("%v", err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default: ./"+config.DefaultFile+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
}

// loadConfig loads the config file and builds the logger it describes.
func loadConfig() (*config.Config, *slog.Logger, func() error, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, nil, err
	}
	if verbose {
		cfg.Logging.Level = logging.LevelDebug
	}
	log, closeLog, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open log: %w", err)
	}
	return cfg, log, closeLog, nil
}

// prepareBridge loads models from Go source under path and binds them.
func prepareBridge(ctx context.Context, path string, cfg *config.Config, log *slog.Logger) (*bridge.Bridge, int, error) {
	set := model.NewSet()
	n, err := model.LoadModelsFromPath(path, set)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load models: %w", err)
	}
	types, err := cfg.TypeMap()
	if err != nil {
		return nil, 0, err
	}
	b := bridge.New(set,
		bridge.WithTypes(types),
		bridge.WithLogger(logging.Component(log, "bridge")),
		bridge.WithSessions(session.Source{}),
	)
	if err := b.Prepare(ctx); err != nil {
		return nil, 0, fmt.Errorf("failed to bind models: %w", err)
	}
	return b, n, nil
}
