// =============================================================================
// Invoice Rollup - Mapping Store
// =============================================================================
//
// The mapping store is the persistent cleaned-key -> canonical-name cache.
// It is an append-only CSV log:
//
//	cleaned,normalized,field_name,created_at
//
// written UTF-8 with a byte-order mark so spreadsheet tools open it with the
// right encoding. Later rows for a key shadow earlier ones on load.
//
// The store is single-writer: one ingestion run at a time, no file locking.
//
// =============================================================================

package mapping

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Header is the first row of a mapping log.
var Header = []string{"cleaned", "normalized", "field_name", "created_at"}

// Entry is one row of the mapping log.
type Entry struct {
	Cleaned    string
	Normalized string
	FieldName  string
	CreatedAt  string
}

// Store is the in-memory view of a mapping log plus the log itself.
type Store struct {
	path string
	now  func() time.Time

	loaded bool
	index  map[string]string
	keys   []string
}

// NewStore returns a store backed by path. Nothing is read until first use.
func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Path returns the backing log path.
func (s *Store) Path() string {
	return s.path
}

// =============================================================================
// READS
// =============================================================================

// Load reads the log once and returns a copy of the key -> canonical map.
// A missing log is an empty store.
func (s *Store) Load() (map[string]string, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(s.index))
	for k, v := range s.index {
		out[k] = v
	}
	return out, nil
}

// Get returns the canonical name stored for a cleaned key.
func (s *Store) Get(cleaned string) (string, bool, error) {
	if err := s.ensureLoaded(); err != nil {
		return "", false, err
	}
	v, ok := s.index[cleaned]
	return v, ok, nil
}

// Keys returns every cleaned key in first-seen order.
func (s *Store) Keys() ([]string, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	return append([]string(nil), s.keys...), nil
}

func (s *Store) ensureLoaded() error {
	if s.loaded {
		return nil
	}

	entries, err := ReadEntries(s.path)
	if err != nil {
		return err
	}

	s.index = make(map[string]string, len(entries))
	s.keys = s.keys[:0]
	for _, e := range entries {
		s.put(e.Cleaned, e.Normalized)
	}
	s.loaded = true
	return nil
}

func (s *Store) put(key, value string) {
	if _, seen := s.index[key]; !seen {
		s.keys = append(s.keys, key)
	}
	s.index[key] = value
}

// =============================================================================
// WRITES
// =============================================================================

// Append writes one row to the log and records it in memory. The in-memory
// view is updated even if the write fails, so the running process never
// asks the oracle twice for the same key; the write error is still
// returned for the caller to log.
func (s *Store) Append(cleaned, canonical, fieldName string) error {
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	s.put(cleaned, canonical)

	entry := Entry{
		Cleaned:    cleaned,
		Normalized: canonical,
		FieldName:  fieldName,
		CreatedAt:  s.now().UTC().Format(time.RFC3339),
	}
	if err := appendEntry(s.path, entry); err != nil {
		return fmt.Errorf("failed to append mapping %q: %w", cleaned, err)
	}
	return nil
}

func appendEntry(path string, e Entry) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return WriteEntries(path, []Entry{e})
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(e.row()); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (e Entry) row() []string {
	return []string{e.Cleaned, e.Normalized, e.FieldName, e.CreatedAt}
}

// =============================================================================
// FILE FORMAT
// =============================================================================

// ReadEntries returns every row of the log in file order. A leading BOM is
// accepted. A missing file yields no entries and no error.
func ReadEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open mapping store: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(transform.NewReader(f, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	r.FieldsPerRecord = -1

	var entries []Entry
	first := true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read mapping store %s: %w", path, err)
		}
		if first {
			first = false
			if len(rec) > 0 && rec[0] == Header[0] {
				continue
			}
		}
		if len(rec) < 2 {
			continue
		}
		e := Entry{Cleaned: rec[0], Normalized: rec[1]}
		if len(rec) > 2 {
			e.FieldName = rec[2]
		}
		if len(rec) > 3 {
			e.CreatedAt = rec[3]
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// WriteEntries replaces the log with a header and the given rows. The file
// is written next to the target and renamed into place.
func WriteEntries(path string, entries []Entry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create mapping store directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create mapping store: %w", err)
	}

	enc := transform.NewWriter(f, unicode.UTF8BOM.NewEncoder())
	w := csv.NewWriter(enc)
	_ = w.Write(Header)
	for _, e := range entries {
		_ = w.Write(e.row())
	}
	w.Flush()

	werr := w.Error()
	if cerr := enc.Close(); werr == nil {
		werr = cerr
	}
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write mapping store: %w", werr)
	}

	return os.Rename(tmp, path)
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// Sort rewrites the log ordered by cleaned key. Rows sharing a key keep
// their relative order, so the same row still wins on load.
func Sort(path string) (int, error) {
	entries, err := ReadEntries(path)
	if err != nil {
		return 0, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Cleaned < entries[j].Cleaned
	})
	return len(entries), WriteEntries(path, entries)
}

// Compact rewrites the log keeping only the last row for each key and
// returns the number of rows dropped.
func Compact(path string) (int, error) {
	entries, err := ReadEntries(path)
	if err != nil {
		return 0, err
	}

	last := make(map[string]int, len(entries))
	for i, e := range entries {
		last[e.Cleaned] = i
	}

	kept := make([]Entry, 0, len(last))
	for i, e := range entries {
		if last[e.Cleaned] == i {
			kept = append(kept, e)
		}
	}
	return len(entries) - len(kept), WriteEntries(path, kept)
}
