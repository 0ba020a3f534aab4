// =============================================================================
// Invoice Rollup - Mapping Command
// =============================================================================
//
// Maintenance of the append-only mapping store log. Both subcommands rewrite
// the log in place (through a temporary file) and must not run while an
// ingestion run is in progress.
//
// COMMAND USAGE:
//   rollup mapping sort      # sort rows by cleaned key, shadow order kept
//   rollup mapping compact   # keep only the effective (last) row per key
//
// =============================================================================

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/invoice-rollup/internal/mapping"
)

// storePath overrides mapping_store_path from the configuration.
var storePath string

var mappingCmd = &cobra.Command{
	Use:   "mapping",
	Short: "Maintain the canonical-name mapping store",
}

var mappingSortCmd = &cobra.Command{
	Use:   "sort",
	Short: "Sort the mapping store by cleaned key",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveStorePath(cmd)
		if err != nil {
			return err
		}
		n, err := mapping.Sort(path)
		if err != nil {
			return fmt.Errorf("failed to sort mapping store: %w", err)
		}
		fmt.Printf("Sorted %d row(s) in %s\n", n, path)
		return nil
	},
}

var mappingCompactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Drop mapping store rows shadowed by a later row for the same key",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveStorePath(cmd)
		if err != nil {
			return err
		}
		dropped, err := mapping.Compact(path)
		if err != nil {
			return fmt.Errorf("failed to compact mapping store: %w", err)
		}
		fmt.Printf("Dropped %d shadowed row(s) from %s\n", dropped, path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mappingCmd)
	mappingCmd.AddCommand(mappingSortCmd, mappingCompactCmd)

	mappingCmd.PersistentFlags().StringVar(
		&storePath,
		"store",
		"",
		"Path to the mapping store (default: mapping_store_path from the config)",
	)
}

func resolveStorePath(cmd *cobra.Command) (string, error) {
	if storePath != "" {
		return storePath, nil
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	return cfg.MappingStorePath, nil
}
