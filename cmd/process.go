// =============================================================================
// Invoice Rollup - Process Command
// =============================================================================
//
// This file defines the 'process' command, which runs the ingestion pipeline
// once, either for a single file or for every file in the watch directory.
//
// COMMAND USAGE:
//   rollup process [flags]
//
// FLAGS:
//   --file : Path to a specific file to handle
//
// PROCESSING PIPELINE:
//   1. Load configuration, set up logging and the event log
//   2. Build the name resolver (mapping store + oracle + retry policy)
//   3. For each file, sequentially:
//      a. Recompute its month and year (ingest.HandleNewFile)
//      b. On failure, archive the file as failed if it is still in the
//         watch directory
//   4. Print a summary
//
// Files are handled one at a time: the mapping store has a single writer.
//
// =============================================================================

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/invoice-rollup/internal/config"
	"github.com/ginjaninja78/invoice-rollup/internal/eventlog"
	"github.com/ginjaninja78/invoice-rollup/internal/ingest"
	"github.com/ginjaninja78/invoice-rollup/internal/mapping"
	"github.com/ginjaninja78/invoice-rollup/internal/oracle"
	"github.com/ginjaninja78/invoice-rollup/internal/resolver"
	"github.com/ginjaninja78/invoice-rollup/internal/retry"
	"github.com/ginjaninja78/invoice-rollup/pkg/utils"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

// filePath is the path to a specific file to handle.
var filePath string

// =============================================================================
// PROCESS COMMAND DEFINITION
// =============================================================================

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Handle invoice files and write reports",
	Long: `The process command handles one file (--file) or every candidate file in the
watch directory. Each file triggers a recomputation of its month and year from
the watch and processed directories.

On success:
  - Reports are written below the output directory
  - Files from the watch directory move to processed/{department}/

On error:
  - The failure is written to the unmatched/error log
  - The triggering file moves to the failed directory`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runProcess(cmd)
	},
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringVar(
		&filePath,
		"file",
		"",
		"Path to a specific file to handle",
	)
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

func runProcess(cmd *cobra.Command) error {
	startTime := time.Now()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	pipeline, closer, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	var files []string
	if filePath != "" {
		files = []string{filePath}
	} else {
		files, err = pipeline.Files().DiscoverIn(cfg.WatchDir)
		if err != nil {
			return fmt.Errorf("failed to discover input files: %w", err)
		}
	}

	if len(files) == 0 {
		fmt.Println("No files found in the watch directory.")
		return nil
	}

	fmt.Println("=== Invoice Rollup ===")
	fmt.Printf("Found %d file(s) to handle\n", len(files))

	var successCount, skipCount, errorCount int
	for _, path := range files {
		// an earlier run of the same month may already have archived it
		if filePath == "" && !utils.FileExists(path) {
			skipCount++
			continue
		}

		res, err := handleFile(cmd.Context(), pipeline, path)
		switch {
		case err != nil:
			errorCount++
			fmt.Printf("  ✗ %s: %v\n", filepath.Base(path), err)
		case res.Skipped:
			skipCount++
			fmt.Printf("  - %s: file name not recognised\n", filepath.Base(path))
		default:
			successCount++
			fmt.Printf("  ✓ %s -> %d report file(s)\n", filepath.Base(path), len(res.Reports))
		}
	}

	fmt.Println("\n=== Processing Complete ===")
	fmt.Printf("Total files:     %d\n", len(files))
	fmt.Printf("Successful:      %d\n", successCount)
	fmt.Printf("Skipped:         %d\n", skipCount)
	fmt.Printf("Errors:          %d\n", errorCount)
	fmt.Printf("Time elapsed:    %s\n", time.Since(startTime))

	if errorCount > 0 {
		fmt.Printf("\nFailures have been logged to %s\n", cfg.UnmatchedLog)
		return errors.New("one or more files failed")
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// buildPipeline wires logging, the event log, the mapping store and the
// oracle into an ingestion pipeline. The closer releases the log file.
func buildPipeline(cfg *config.MainConfig) (*ingest.Pipeline, io.Closer, error) {
	closer := initLogging(cfg)
	log := slog.Default()

	events, err := eventlog.NewCSVSink(cfg.UnmatchedLog, log)
	if err != nil {
		closer.Close()
		return nil, nil, err
	}

	var o resolver.Oracle
	client, err := oracle.New(oracle.Config{
		Endpoint:          cfg.Resolver.Endpoint,
		Model:             cfg.Resolver.Model,
		APIKey:            cfg.Resolver.APIKey(),
		Timeout:           cfg.Resolver.Timeout,
		RequestsPerSecond: cfg.Resolver.RequestsPerSecond,
		Temperature:       cfg.Resolver.Temperature,
		MaxTokens:         cfg.Resolver.MaxTokens,
	})
	if err != nil {
		log.Warn("name resolution oracle disabled; unknown names keep their cleaned form", "error", err)
	} else {
		o = client
	}

	policy := retry.DefaultPolicy()
	policy.MaxAttempts = cfg.Resolver.MaxAttempts
	policy.BaseDelay = cfg.Resolver.BaseDelay
	policy.Multiplier = cfg.Resolver.Multiplier
	policy.MaxJitter = cfg.Resolver.MaxJitter

	store := mapping.NewStore(cfg.MappingStorePath)
	pipeline := ingest.New(cfg, store, resolver.New(o, policy), events, log)
	if err := pipeline.Files().EnsureDirectories(); err != nil {
		closer.Close()
		return nil, nil, err
	}
	log.Debug("pipeline ready", "mapping_store", store.Path(), "watch_dir", cfg.WatchDir)
	return pipeline, closer, nil
}

// handleFile runs one trigger. A failed run archives the triggering file as
// failed when it is still in the watch directory.
func handleFile(ctx context.Context, pipeline *ingest.Pipeline, path string) (ingest.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	res, err := pipeline.HandleNewFile(ctx, path)
	if err == nil {
		return res, nil
	}

	files := pipeline.Files()
	if files.InWatchDir(path) && utils.FileExists(path) {
		if _, archiveErr := files.FileFailed(path, err); archiveErr != nil {
			slog.Error("failed to archive failed file", "path", path, "error", archiveErr)
		}
	}
	return res, err
}
