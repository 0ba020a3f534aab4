// =============================================================================
// Invoice Rollup - Shared Types
// =============================================================================
//
// This package contains types shared across the pipeline to avoid import
// cycles. Types defined here are used by:
//   - extract (produces LineItems)
//   - aggregate / reportwriter (consume LineItems)
//   - ingest, pkg/utils (group files by FileMeta)
//
// =============================================================================

package types

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// =============================================================================
// LINE ITEMS
// =============================================================================

// LineItem is one extracted invoice line. It is never modified after
// extraction.
type LineItem struct {
	Department    string
	Subcontractor string

	// Date is formatted YYYY/MM/DD.
	Date string

	// Store is the canonical store name.
	Store string

	// Item is the cleaned work/product description.
	Item string

	Quantity float64

	// UnitPrice is rounded to one decimal; nil when the sheet has none.
	UnitPrice *float64

	Amount float64
}

// =============================================================================
// FILE METADATA
// =============================================================================

// ErrFilenameParse is returned for names that do not follow
// {department}_{subcontractor}_{YYYY}年{M}月...
var ErrFilenameParse = errors.New("filename does not match {department}_{subcontractor}_{YYYY}年{M}月")

var filenameRe = regexp.MustCompile(`^(.+?)_(.+?)_(\d{4})年(\d{1,2})月`)

// FileMeta is what a file's name says about its contents.
type FileMeta struct {
	Path          string
	Department    string
	Subcontractor string
	Year          int
	Month         int

	// Sheet is set per sheet during extraction.
	Sheet string
}

// ParseFileMeta parses a file name. Trailing "_MARKER" suffixes listed in
// markers are removed first, case-insensitively.
func ParseFileMeta(path string, markers []string) (FileMeta, error) {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	for _, m := range markers {
		suffix := "_" + m
		if m != "" && len(stem) > len(suffix) && strings.EqualFold(stem[len(stem)-len(suffix):], suffix) {
			stem = stem[:len(stem)-len(suffix)]
		}
	}

	sub := filenameRe.FindStringSubmatch(stem)
	if sub == nil {
		return FileMeta{}, fmt.Errorf("%s: %w", base, ErrFilenameParse)
	}

	year, _ := strconv.Atoi(sub[3])
	month, _ := strconv.Atoi(sub[4])
	if month < 1 || month > 12 {
		return FileMeta{}, fmt.Errorf("%s: month %d: %w", base, month, ErrFilenameParse)
	}

	return FileMeta{
		Path:          path,
		Department:    sub[1],
		Subcontractor: sub[2],
		Year:          year,
		Month:         month,
	}, nil
}

// YearMonth returns "YYYY-MM".
func (m FileMeta) YearMonth() string {
	if m.Year == 0 || m.Month == 0 {
		return ""
	}
	return fmt.Sprintf("%04d-%02d", m.Year, m.Month)
}

// YearString returns "YYYY".
func (m FileMeta) YearString() string {
	if m.Year == 0 {
		return ""
	}
	return fmt.Sprintf("%04d", m.Year)
}

// Label identifies a sheet in log messages.
func (m FileMeta) Label() string {
	if m.Sheet == "" {
		return m.Path
	}
	return m.Path + "#" + m.Sheet
}
