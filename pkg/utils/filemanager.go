// =============================================================================
// Invoice Rollup - File Manager Utility
// =============================================================================
//
// This module provides the file-system side of ingestion:
//   - Candidate discovery in the watch and processed directories
//   - Same-name duplicate resolution (Deduplicator)
//   - Archival of ingested files
//
// ARCHIVAL STRATEGY:
//   - Succeeded files move to {processed_dir}/{department}/{basename}
//   - Failed files move to {failed_dir}/{basename}
//   - Only files inside the watch directory are ever moved; files already in
//     the processed directory stay where they are
//
// =============================================================================

package utils

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ginjaninja78/invoice-rollup/internal/eventlog"
)

// =============================================================================
// FILE MANAGER
// =============================================================================

// FileManager handles file operations for ingestion.
type FileManager struct {
	// WatchDir is where subcontractors drop new files.
	WatchDir string

	// ProcessedDir receives succeeded files, one subdirectory per department.
	ProcessedDir string

	// FailedDir receives files whose ingestion failed.
	FailedDir string

	// ValidExtensions are compared case-insensitively, with the leading dot.
	ValidExtensions []string

	logger *slog.Logger
}

// NewFileManager creates a new FileManager with the specified directories.
func NewFileManager(watchDir, processedDir, failedDir string, validExtensions []string, logger *slog.Logger) *FileManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileManager{
		WatchDir:        watchDir,
		ProcessedDir:    processedDir,
		FailedDir:       failedDir,
		ValidExtensions: validExtensions,
		logger:          logger,
	}
}

// =============================================================================
// DIRECTORY MANAGEMENT
// =============================================================================

// EnsureDirectories creates all required directories if they don't exist.
func (fm *FileManager) EnsureDirectories() error {
	for _, dir := range []string{fm.WatchDir, fm.ProcessedDir, fm.FailedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// =============================================================================
// FILE DISCOVERY
// =============================================================================

// IsCandidate reports whether path names an ingestible file: a valid
// extension and not an Office lock file (~$...).
func (fm *FileManager) IsCandidate(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, "~$") {
		return false
	}
	ext := filepath.Ext(name)
	for _, valid := range fm.ValidExtensions {
		if strings.EqualFold(ext, valid) {
			return true
		}
	}
	return false
}

// DiscoverCandidates walks the watch directory and then the processed
// directory, returning every candidate file in walk order.
//
// RETURNS:
//   - A slice of file paths; missing directories contribute nothing.
//   - An error if a directory cannot be walked.
func (fm *FileManager) DiscoverCandidates() ([]string, error) {
	var files []string
	for _, root := range []string{fm.WatchDir, fm.ProcessedDir} {
		found, err := fm.DiscoverIn(root)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	return files, nil
}

// DiscoverIn walks root recursively in lexical order and returns its
// candidate files. A missing root yields nothing.
func (fm *FileManager) DiscoverIn(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if fm.IsCandidate(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return files, nil
}

// InWatchDir reports whether path lies inside the watch directory.
func (fm *FileManager) InWatchDir(path string) bool {
	root, err := filepath.Abs(fm.WatchDir)
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// ProcessedPath is where a succeeded file of department ends up.
func (fm *FileManager) ProcessedPath(department, path string) string {
	return filepath.Join(fm.ProcessedDir, department, filepath.Base(path))
}

// =============================================================================
// FILE ARCHIVAL
// =============================================================================

// FileSucceeded moves path to {processed_dir}/{department}/.
//
// RETURNS:
//   - The path to the archived file.
//   - An error if archival fails.
func (fm *FileManager) FileSucceeded(path, department string) (string, error) {
	dst := fm.ProcessedPath(department, path)
	if err := moveFile(path, dst); err != nil {
		return "", err
	}
	fm.logger.Info("archived file", "from", path, "to", dst)
	return dst, nil
}

// FileFailed moves path to {failed_dir}/.
func (fm *FileManager) FileFailed(path string, reason error) (string, error) {
	dst := filepath.Join(fm.FailedDir, filepath.Base(path))
	if err := moveFile(path, dst); err != nil {
		return "", err
	}
	fm.logger.Warn("archived failed file", "from", path, "to", dst, "reason", reason)
	return dst, nil
}

// moveFile renames src to dst, falling back to copy and delete across
// devices.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	if err := os.Rename(src, dst); err != nil {
		if err := copyFile(src, dst); err != nil {
			return fmt.Errorf("failed to copy file to archive: %w", err)
		}
		if err := os.Remove(src); err != nil {
			return fmt.Errorf("failed to remove original file: %w", err)
		}
	}
	return nil
}

// =============================================================================
// DEDUPLICATION
// =============================================================================

// ErrDuplicateFile is the note recorded for a skipped same-name file.
var ErrDuplicateFile = errors.New("duplicate file")

// Deduplicator keeps one file per basename.
type Deduplicator struct {
	events eventlog.Sink
	stat   func(string) (os.FileInfo, error)
}

// NewDeduplicator returns a Deduplicator recording skips to events.
func NewDeduplicator(events eventlog.Sink) *Deduplicator {
	if events == nil {
		events = eventlog.Discard{}
	}
	return &Deduplicator{events: events, stat: os.Stat}
}

// Resolve groups paths by basename. A group of one passes through; a larger
// group keeps only the most recently modified path (the earliest listed on
// ties) and records every other one as a duplicate.
//
// PARAMETERS:
//   - paths: Candidate paths, possibly from several directories.
//
// RETURNS:
//   - The set of kept paths.
func (d *Deduplicator) Resolve(paths []string) map[string]bool {
	var order []string
	groups := make(map[string][]string)
	for _, p := range paths {
		bn := filepath.Base(p)
		if _, ok := groups[bn]; !ok {
			order = append(order, bn)
		}
		groups[bn] = append(groups[bn], p)
	}

	kept := make(map[string]bool, len(groups))
	for _, bn := range order {
		group := groups[bn]
		if len(group) == 1 {
			kept[group[0]] = true
			continue
		}

		latest, latestTime := group[0], d.modTime(group[0])
		for _, p := range group[1:] {
			if t := d.modTime(p); t.After(latestTime) {
				latest, latestTime = p, t
			}
		}
		kept[latest] = true

		for _, other := range group {
			if other != latest {
				d.events.Record(eventlog.CategoryDuplicate,
					fmt.Sprintf("%s は %s と同名のためスキップ", other, latest), ErrDuplicateFile.Error())
			}
		}
	}
	return kept
}

// modTime returns the zero time for files that cannot be stat'ed, so any
// readable file wins over them.
func (d *Deduplicator) modTime(path string) time.Time {
	info, err := d.stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	_, err = io.Copy(destFile, sourceFile)
	if err != nil {
		return err
	}

	return destFile.Sync()
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
