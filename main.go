// =============================================================================
// Invoice Rollup - Main Entry Point
// =============================================================================
//
// This is the main entry point for the Invoice Rollup CLI application.
// It delegates command execution to the cmd package.
//
// USAGE:
//   rollup process       - Handle every file in the watch directory
//   rollup watch         - Handle files as they arrive
//   rollup mapping ...   - Maintain the mapping store
//   rollup version       - Display the application version
//
// ARCHITECTURE:
//   - cmd/           : CLI command definitions (Cobra)
//   - internal/      : Pipeline, canonicalization, extraction, reports
//   - pkg/           : File discovery, deduplication, archiving
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/invoice-rollup/cmd"
)

func main() {
	cmd.Execute()
}
