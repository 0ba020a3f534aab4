// =============================================================================
// Invoice Rollup - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. The root command is
// the base command that all other commands are attached to.
//
// COBRA CLI STRUCTURE:
//   rootCmd (rollup)
//   ├── processCmd (rollup process)
//   ├── watchCmd   (rollup watch)
//   ├── mappingCmd (rollup mapping sort | compact)
//   └── versionCmd (rollup version)
//
// CONFIGURATION:
//   The root command is responsible for:
//   1. Setting up global flags (--config, --verbose)
//   2. Loading the configuration for subcommands
//   3. Setting up logging
//
// =============================================================================

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/invoice-rollup/internal/config"
	"github.com/ginjaninja78/invoice-rollup/internal/logger"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the main configuration file.
// This can be overridden using the --config flag.
var cfgFile string

// verbose enables debug logging when set to true.
var verbose bool

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "rollup",
	Short: "Invoice Rollup - Canonicalize subcontractor invoices into monthly and yearly reports",
	Long: `Invoice Rollup ingests spreadsheet and CSV invoices dropped by subcontractors,
merges spelling variants of store names into canonical names, and writes
department and company-wide reports for the affected month and year.

Files must be named {department}_{subcontractor}_{YYYY}年{M}月....

Example Usage:
  rollup process                          # Handle every file in the watch directory
  rollup process --file ./watch/x.xlsx    # Handle a single file
  rollup watch                            # Handle files as they arrive
  rollup mapping compact                  # Drop shadowed mapping-store rows`,

	SilenceUsage: true,

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yaml",
		"Path to the main configuration file",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable debug logging",
	)
}

// =============================================================================
// SHARED SETUP
// =============================================================================

// loadConfig loads the configuration. A missing file is tolerated only when
// --config was left at its default.
func loadConfig(cmd *cobra.Command) (*config.MainConfig, error) {
	cfg, err := config.LoadOrDefault(cfgFile, !cmd.Flags().Changed("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load main config: %w", err)
	}
	return cfg, nil
}

// initLogging installs the global logger described by cfg.
func initLogging(cfg *config.MainConfig) io.Closer {
	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	return logger.Init(&logger.Config{
		Level:      level,
		Format:     cfg.LogFormat,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Console:    cfg.ConsoleLog || verbose,
	})
}
