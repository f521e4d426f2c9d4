// Package cmd provides the agentotel CLI.
package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/steveyegge/agentotel/internal/config"
	"github.com/steveyegge/agentotel/internal/logging"
	"github.com/steveyegge/agentotel/internal/style"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Command groups.
const (
	GroupPipeline = "pipeline"
	GroupConfig   = "config"
)

var (
	configPath string
	logLevel   string

	// Populated by PersistentPreRunE.
	loadedCfg *config.Config
	logger    zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "agentotel",
	Short: "Translate coding-assistant lifecycle events into OpenTelemetry",
	Long: `agentotel receives lifecycle events from a coding-assistant host
(sessions, prompts, model turns, tool calls, permission replies) and exports
them as OpenTelemetry counters and log events.

Two wire profiles are available: "native" and "mirrored". The mirrored
profile reproduces another assistant's telemetry schema so existing
dashboards keep working.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: GroupPipeline, Title: "Pipeline Commands:"},
		&cobra.Group{ID: GroupConfig, Title: "Configuration Commands:"},
	)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (TOML or YAML; default $XDG_CONFIG_HOME/agentotel/config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Diagnostic log level (debug, info, warn, error)")
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", style.ErrorPrefix, err)
		return 1
	}
	return 0
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(); err != nil {
		style.PrintWarning("%v", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	loadedCfg = cfg
	logger = logging.Global(cfg.Log)
	return nil
}
