package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ciciliostudio/loginpilot/internal/config"
	"github.com/ciciliostudio/loginpilot/internal/logging"
)

var (
	projectDir string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "loginpilot",
	Short: "Loginpilot - adaptive login automation learning engine",
	Long: `Loginpilot records the outcome of each automated website login,
learns a reusable per-domain automation rule from it, and refines that rule
over time from success and failure feedback.

The browser extension connects to 'loginpilot serve' to report step results;
'rules' and 'stats' inspect what has been learned.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initRuntime)

	rootCmd.PersistentFlags().StringVarP(&projectDir, "project", "p", ".", "project directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "V", false, "verbose output")
}

// initRuntime loads configuration and builds the logger. A missing config
// file degrades to defaults so every command has a usable runtime.
func initRuntime() {
	loader := config.NewLoader(projectDir)

	var err error
	cfg, err = loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config, using defaults: %v\n", err)
		cfg = config.Default(projectDir)
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	logger, err = logging.New(level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to build logger: %v\n", err)
		logger = zap.NewNop()
	}
}
