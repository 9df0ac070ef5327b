package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/channeltrace/cct/internal/config"
	"github.com/channeltrace/cct/internal/ctxlog"
	"github.com/channeltrace/cct/pkg/engine"
)

var (
	verbose    bool
	engineKind string
	configPath string
)

// sharedEngine is created once per process so consecutive command
// executions (the UI, tests) talk to the same backend.
var sharedEngine engine.Engine

var rootCmd = &cobra.Command{
	Use:   "cct",
	Short: "Channel check tool for board level signal integrity",
	Long: `cct runs the five stage channel check workflow: import a layout,
build and apply wave ports, solve the frequency response, run the
transient channel check and report the per receiver metrics.

The vendor engine is reached through a bridge executable configured in
cct.hcl. Pass --engine sim to use the built-in simulator backend, which
needs no vendor installation.`,
	Version: "2.0.0",
}

// Execute runs the root command and exits on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&engineKind, "engine", "exec", "Engine backend: exec or sim")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.FileName, "Configuration file")
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func newEngine(cfg *config.Config) (engine.Engine, error) {
	if sharedEngine != nil {
		return sharedEngine, nil
	}
	switch engineKind {
	case "sim":
		sharedEngine = &engine.SimEngine{}
	case "exec":
		if cfg.Engine.Bridge == "" {
			return nil, fmt.Errorf("no engine bridge configured; set engine.bridge in %s or pass --engine sim", configPath)
		}
		sharedEngine = &engine.ExecEngine{
			Bridge:  cfg.Engine.Bridge,
			Version: cfg.Engine.Version,
			OnMessage: func(msg string) {
				fmt.Println(msg)
			},
			OnProgress: func(pct int) {
				if verbose {
					fmt.Printf("progress: %d%%\n", pct)
				}
			},
		}
	default:
		return nil, fmt.Errorf("unknown engine backend %q", engineKind)
	}
	return sharedEngine, nil
}

// commandContext attaches a logger honoring --verbose to the command
// context.
func commandContext(cmd *cobra.Command) context.Context {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return ctxlog.WithLogger(cmd.Context(), logger)
}
