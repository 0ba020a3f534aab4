// =============================================================================
// Invoice Rollup - Ingestion Pipeline
// =============================================================================
//
// HandleNewFile is the single entry point of the pipeline. A file arriving in
// the watch directory triggers a full recomputation of its month and year:
//
//   1. Parse the triggering file name (department, subcontractor, year-month)
//   2. Discover every candidate of the same month / year in the watch and
//      processed directories
//   3. Monthly pass: deduplicate, extract, archive watch-directory files.
//      Any read failure aborts the run.
//   4. Yearly pass: correct paths of files archived in step 3, deduplicate,
//      extract, archive. Read failures are logged and the file is skipped.
//   5. Aggregate and write every report
//   6. Notify once
//
// The pipeline is not safe for concurrent use. Callers serialize triggers
// (the watch command runs a single worker).
//
// =============================================================================

package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ginjaninja78/invoice-rollup/internal/aggregate"
	"github.com/ginjaninja78/invoice-rollup/internal/config"
	"github.com/ginjaninja78/invoice-rollup/internal/csvparser"
	"github.com/ginjaninja78/invoice-rollup/internal/eventlog"
	"github.com/ginjaninja78/invoice-rollup/internal/extract"
	"github.com/ginjaninja78/invoice-rollup/internal/logger"
	"github.com/ginjaninja78/invoice-rollup/internal/mapping"
	"github.com/ginjaninja78/invoice-rollup/internal/reportwriter"
	"github.com/ginjaninja78/invoice-rollup/internal/resolver"
	"github.com/ginjaninja78/invoice-rollup/internal/schema"
	"github.com/ginjaninja78/invoice-rollup/internal/types"
	"github.com/ginjaninja78/invoice-rollup/internal/xlsxparser"
	"github.com/ginjaninja78/invoice-rollup/pkg/utils"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Archiver moves an ingested file out of the watch directory.
type Archiver interface {
	FileSucceeded(path, department string) (string, error)
	FileFailed(path string, reason error) (string, error)
}

// Notifier tells the operator that a run finished.
type Notifier interface {
	Notify(ctx context.Context, title, message string)
}

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(ctx context.Context, title, message string) {
	logger.WithContext(ctx, n.Logger).Info(title, "message", message)
}

// =============================================================================
// RESULT STRUCTURE
// =============================================================================

// Result represents the outcome of one run.
type Result struct {
	RunID     string
	FilePath  string
	YearMonth string

	// Skipped is set when the triggering file name could not be parsed.
	Skipped bool

	MonthlyFiles int
	MonthlyItems int
	YearlyFiles  int
	YearlyItems  int

	// Reports lists every file written.
	Reports []string

	Duration time.Duration
}

// =============================================================================
// PIPELINE
// =============================================================================

// Pipeline runs ingestion for one configuration.
type Pipeline struct {
	cfg      *config.MainConfig
	files    *utils.FileManager
	archiver Archiver
	dedupe   *utils.Deduplicator
	store    *mapping.Store
	resolver *resolver.Resolver
	events   eventlog.Sink
	notifier Notifier
	logger   *slog.Logger
}

// New creates a pipeline. Files are archived by a utils.FileManager over the
// configured directories and notifications go to the logger until replaced.
//
// PARAMETERS:
//   - cfg: The main configuration.
//   - store: The canonical-name mapping store.
//   - res: The oracle-backed resolver used for unknown names.
//   - events: The unmatched/error event log.
//   - log: The operational logger.
func New(cfg *config.MainConfig, store *mapping.Store, res *resolver.Resolver, events eventlog.Sink, log *slog.Logger) *Pipeline {
	if events == nil {
		events = eventlog.Discard{}
	}
	if log == nil {
		log = slog.Default()
	}
	files := utils.NewFileManager(cfg.WatchDir, cfg.ProcessedDir, cfg.FailedDir, cfg.ValidExtensions, log)
	return &Pipeline{
		cfg:      cfg,
		files:    files,
		archiver: files,
		dedupe:   utils.NewDeduplicator(events),
		store:    store,
		resolver: res,
		events:   events,
		notifier: LogNotifier{Logger: log},
		logger:   log,
	}
}

// SetNotifier replaces the completion notifier.
func (p *Pipeline) SetNotifier(n Notifier) {
	p.notifier = n
}

// SetArchiver replaces the archiving collaborator.
func (p *Pipeline) SetArchiver(a Archiver) {
	p.archiver = a
}

// Files returns the file manager the pipeline discovers files with.
func (p *Pipeline) Files() *utils.FileManager {
	return p.files
}

// candidate is a discovered file with its parsed name.
type candidate struct {
	path string
	meta types.FileMeta
}

// run holds the per-run collaborators.
type run struct {
	ctx    context.Context
	engine *extract.Engine
	logger *slog.Logger
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// HandleNewFile recomputes the month and year of the file at path.
//
// RETURNS:
//   - A Result describing the run. Result.Skipped is set, with a nil error,
//     when the file name does not parse; the failure is already logged.
//   - A *SheetReadError when a monthly file cannot be read, or an error when
//     discovery or report writing fails. No notification of success is sent
//     in that case.
func (p *Pipeline) HandleNewFile(ctx context.Context, path string) (Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	ctx = context.WithValue(ctx, logger.RunIDKey, runID)
	ctx = context.WithValue(ctx, logger.FileKey, path)
	log := logger.WithContext(ctx, p.logger)

	result := Result{RunID: runID, FilePath: path}

	// =========================================================================
	// STEP 1: PARSE FILE NAME
	// =========================================================================

	meta, err := types.ParseFileMeta(path, p.cfg.FilenameMarkers)
	if err != nil {
		p.events.Record(eventlog.CategoryFilename, path, err.Error())
		result.Skipped = true
		return result, nil
	}
	result.YearMonth = meta.YearMonth()
	log.Info("run started", "year_month", result.YearMonth)

	// =========================================================================
	// STEP 2: DISCOVER CANDIDATES
	// =========================================================================

	month, year, err := p.discover(meta)
	if err != nil {
		return p.failed(ctx, result, err)
	}

	// Reconciliation state (the failed-name cache) lives for one run.
	r := &run{
		ctx:    ctx,
		engine: extract.NewEngine(resolver.NewReconciler(p.store, p.resolver, p.events, log), p.events, log),
		logger: log,
	}

	// =========================================================================
	// STEP 3: MONTHLY PASS
	// =========================================================================

	monthItems, files, err := p.monthlyPass(r, month)
	if err != nil {
		return p.failed(ctx, result, err)
	}
	result.MonthlyFiles, result.MonthlyItems = files, len(monthItems)
	log.Info("monthly extraction complete", "files", files, "items", len(monthItems))

	// =========================================================================
	// STEP 4: YEARLY PASS
	// =========================================================================

	yearItems, files := p.yearlyPass(r, year)
	result.YearlyFiles, result.YearlyItems = files, len(yearItems)
	log.Info("yearly extraction complete", "files", files, "items", len(yearItems))

	// =========================================================================
	// STEP 5: AGGREGATE AND WRITE REPORTS
	// =========================================================================

	reports := aggregate.Plan(monthItems, yearItems, meta.YearMonth(), meta.YearString(), p.cfg.CompanyLabel)
	written, err := reportwriter.WriteAll(p.cfg.OutputDir, reports)
	result.Reports = written
	if err != nil {
		return p.failed(ctx, result, fmt.Errorf("failed to write reports: %w", err))
	}

	// =========================================================================
	// STEP 6: NOTIFY
	// =========================================================================

	result.Duration = time.Since(start)
	log.Info("run complete", "year_month", result.YearMonth, "reports", len(written), "duration", result.Duration)
	p.notifier.Notify(ctx, "処理完了", filepath.Base(path)+" の処理が終わりました。")

	return result, nil
}

// failed notifies the operator once and returns err.
func (p *Pipeline) failed(ctx context.Context, result Result, err error) (Result, error) {
	logger.WithContext(ctx, p.logger).Error("run failed", "error", err)
	p.notifier.Notify(ctx, "処理失敗", filepath.Base(result.FilePath)+": "+err.Error())
	return result, err
}

// =============================================================================
// DISCOVERY
// =============================================================================

// discover returns the candidates sharing meta's year-month and year, in
// walk order. Names that do not parse are ignored. The triggering file is
// included even when it lies outside the scanned directories.
func (p *Pipeline) discover(meta types.FileMeta) (month, year []candidate, err error) {
	paths, err := p.files.DiscoverCandidates()
	if err != nil {
		return nil, nil, err
	}
	if !containsPath(paths, meta.Path) {
		paths = append([]string{meta.Path}, paths...)
	}

	for _, path := range paths {
		m, err := types.ParseFileMeta(path, p.cfg.FilenameMarkers)
		if err != nil {
			continue
		}
		if m.YearMonth() == meta.YearMonth() {
			month = append(month, candidate{path: path, meta: m})
		}
		if m.Year == meta.Year {
			year = append(year, candidate{path: path, meta: m})
		}
	}
	return month, year, nil
}

func containsPath(paths []string, path string) bool {
	want, err := filepath.Abs(path)
	if err != nil {
		want = filepath.Clean(path)
	}
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil && abs == want {
			return true
		}
	}
	return false
}

// =============================================================================
// EXTRACTION PASSES
// =============================================================================

// monthlyPass extracts every kept month candidate. The first read failure
// aborts the pass.
func (p *Pipeline) monthlyPass(r *run, candidates []candidate) ([]types.LineItem, int, error) {
	kept := p.dedupe.Resolve(paths(candidates))

	var items []types.LineItem
	files := 0
	seen := make(map[string]bool)
	for _, c := range candidates {
		if !kept[c.path] || seen[c.path] {
			continue
		}
		seen[c.path] = true

		recs, err := p.extractFile(r, c)
		if err != nil {
			return nil, files, &SheetReadError{Path: c.path, Pass: PassMonthly, Err: err}
		}
		items = append(items, recs...)
		files++

		p.archive(r, c, nil)
	}
	return items, files, nil
}

// yearlyPass extracts every kept year candidate, skipping files that fail.
func (p *Pipeline) yearlyPass(r *run, candidates []candidate) ([]types.LineItem, int) {
	corrected := make([]candidate, len(candidates))
	for i, c := range candidates {
		if !utils.FileExists(c.path) {
			if alt := p.files.ProcessedPath(c.meta.Department, c.path); utils.FileExists(alt) {
				c.path = alt
				c.meta.Path = alt
			}
		}
		corrected[i] = c
	}

	kept := p.dedupe.Resolve(paths(corrected))

	// a file archived in the monthly pass can now appear twice under the
	// same corrected path
	var items []types.LineItem
	files := 0
	seen := make(map[string]bool)
	for _, c := range corrected {
		if !kept[c.path] || seen[c.path] {
			continue
		}
		seen[c.path] = true

		recs, err := p.extractFile(r, c)
		if err != nil {
			readErr := &SheetReadError{Path: c.path, Pass: PassYearly, Err: err}
			p.events.Record(eventlog.CategoryRead, fmt.Sprintf("%s: %v", c.path, err), readErr.Error())
			p.archive(r, c, readErr)
			continue
		}
		items = append(items, recs...)
		files++

		p.archive(r, c, nil)
	}
	return items, files
}

// extractFile reads every table of a file and extracts its line items.
// Tables without an amount column contribute nothing.
func (p *Pipeline) extractFile(r *run, c candidate) ([]types.LineItem, error) {
	tables, err := p.readTables(c.path)
	if err != nil {
		return nil, err
	}

	var items []types.LineItem
	for _, t := range tables {
		schema.NormalizeColumns(t, p.cfg.ColumnAliases)

		meta := c.meta
		meta.Path = c.path
		if !isCSV(c.path) {
			meta.Sheet = t.Name
		}

		recs, err := r.engine.Extract(r.ctx, t, meta)
		if errors.Is(err, extract.ErrNoAmountColumn) {
			continue
		}
		if err != nil {
			return nil, err
		}
		items = append(items, recs...)
	}

	r.logger.Debug("extracted file", "path", c.path, "tables", len(tables), "items", len(items))
	return items, nil
}

// readTables dispatches on the file extension.
func (p *Pipeline) readTables(path string) ([]*schema.Table, error) {
	if isCSV(path) {
		t, err := csvparser.Parse(path, csvparser.Settings{Encoding: p.cfg.CSVEncoding})
		if err != nil {
			return nil, err
		}
		return []*schema.Table{t}, nil
	}
	return xlsxparser.Parse(path, p.events)
}

// archive moves watch-directory files only. reason selects the failed
// destination. Archiving errors are logged and never fail the run.
func (p *Pipeline) archive(r *run, c candidate, reason error) {
	if !p.files.InWatchDir(c.path) {
		return
	}

	var err error
	if reason == nil {
		_, err = p.archiver.FileSucceeded(c.path, c.meta.Department)
	} else {
		_, err = p.archiver.FileFailed(c.path, reason)
	}
	if err != nil {
		r.logger.Error("failed to archive file", "path", c.path, "error", err)
	}
}

func paths(candidates []candidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.path
	}
	return out
}

func isCSV(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".csv")
}
