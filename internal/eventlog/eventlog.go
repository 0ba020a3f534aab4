// =============================================================================
// Invoice Rollup - Unmatched / Error Event Log
// =============================================================================
//
// Every recoverable failure in the pipeline produces exactly one durable row
// in a CSV log with the columns (category, value, note), plus a WARN line on
// the operational logger. The log is what an operator reads the morning after
// a run to find the rows and files that did not make it into the reports.
//
// =============================================================================

package eventlog

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Categories written to the first column of the log.
const (
	CategoryFilename      = "ファイル名"
	CategoryResolution    = "名寄せ失敗"
	CategoryNoAmount      = "列検出エラー"
	CategoryDate          = "日付抽出失敗"
	CategoryAmountMissing = "金額欠損"
	CategoryDuplicate     = "重複ファイル"
	CategoryRead          = "読込エラー"
)

// Header is the first row of a freshly created log.
var Header = []string{"カテゴリ", "値", "エラー内容"}

// Sink receives recoverable failure events.
type Sink interface {
	Record(category, value, note string)
}

// =============================================================================
// CSV SINK
// =============================================================================

// CSVSink appends events to a CSV file and mirrors them to a logger.
type CSVSink struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewCSVSink creates the log file with its header if it does not exist.
func NewCSVSink(path string, logger *slog.Logger) (*CSVSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := createLog(path); err != nil {
			return nil, fmt.Errorf("failed to initialise event log: %w", err)
		}
	}

	return &CSVSink{path: path, logger: logger}, nil
}

// Record appends one row. Write failures are reported on the logger only;
// losing an event row must never abort ingestion.
func (s *CSVSink) Record(category, value, note string) {
	s.mu.Lock()
	err := appendRow(s.path, []string{category, value, note})
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("failed to write event log", "path", s.path, "error", err)
	}

	attrs := []any{"value", value}
	if note != "" {
		attrs = append(attrs, "note", note)
	}
	s.logger.Warn(category, attrs...)
}

// createLog writes the byte-order mark and header so spreadsheet tools open
// the log as UTF-8.
func createLog(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := transform.NewWriter(f, unicode.UTF8BOM.NewEncoder())
	w := csv.NewWriter(enc)
	if err := w.Write(Header); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return enc.Close()
}

func appendRow(path string, row []string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// =============================================================================
// IN-MEMORY RECORDER
// =============================================================================

// Event is one recorded failure.
type Event struct {
	Category string
	Value    string
	Note     string
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Record implements Sink.
func (r *Recorder) Record(category, value, note string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Category: category, Value: value, Note: note})
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// ByCategory returns the recorded events of one category.
func (r *Recorder) ByCategory(category string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Category == category {
			out = append(out, e)
		}
	}
	return out
}

// Discard drops every event.
type Discard struct{}

// Record implements Sink.
func (Discard) Record(string, string, string) {}
