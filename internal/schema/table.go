// =============================================================================
// Invoice Rollup - Table Model
// =============================================================================
//
// A Table is one sheet of an invoice after header detection: an ordered list
// of named columns and the data rows beneath the header. Cells are kept as
// the strings the reader produced; typing happens in extraction.
//
// Readers (csvparser, xlsxparser) build Tables from raw records with
// FromRecords, which locates the header row and normalizes the header names.
//
// =============================================================================

package schema

import (
	"fmt"
	"strings"
)

// HeaderScanRows is how many leading rows are searched for the header.
const HeaderScanRows = 5

// Table is a sheet with named columns.
type Table struct {
	// Name identifies the sheet for log messages, e.g. "file_Sheet1".
	Name string

	// Columns are the header names, in sheet order.
	Columns []string

	// Rows hold the data cells; every row has len(Columns) cells.
	Rows [][]string

	// RowNumbers are the 1-based sheet row numbers of Rows.
	RowNumbers []int
}

// FromRecords builds a table from raw records. The header is the row chosen
// by DetectHeaderRow; rows above it are discarded and fully blank rows below
// it are skipped.
func FromRecords(name string, records [][]string) *Table {
	t := &Table{Name: name}
	if len(records) == 0 {
		return t
	}

	headerIdx := DetectHeaderRow(records)

	width := 0
	for _, r := range records[headerIdx:] {
		if len(r) > width {
			width = len(r)
		}
	}

	t.Columns = cleanHeaders(records[headerIdx], width)

	for i := headerIdx + 1; i < len(records); i++ {
		row := records[i]
		if isRowEmpty(row) {
			continue
		}
		cells := make([]string, width)
		for c := 0; c < width && c < len(row); c++ {
			cells[c] = strings.TrimSpace(row[c])
		}
		t.Rows = append(t.Rows, cells)
		t.RowNumbers = append(t.RowNumbers, i+1)
	}

	return t
}

// cleanHeaders trims header names and names blank ones by position.
func cleanHeaders(headers []string, width int) []string {
	cleaned := make([]string, width)
	for i := 0; i < width; i++ {
		h := ""
		if i < len(headers) {
			h = strings.TrimSpace(headers[i])
		}
		if h == "" {
			h = fmt.Sprintf("Column_%d", i+1)
		}
		cleaned[i] = h
	}
	return cleaned
}

func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// Empty reports whether the table has no data rows.
func (t *Table) Empty() bool {
	return len(t.Rows) == 0
}

// Index returns the position of the column named name, or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Cell returns the cell at row r, column c, or "" when c is out of range.
func (t *Table) Cell(r, c int) string {
	if c < 0 || c >= len(t.Rows[r]) {
		return ""
	}
	return t.Rows[r][c]
}

// Column returns every cell of column c.
func (t *Table) Column(c int) []string {
	out := make([]string, len(t.Rows))
	for r := range t.Rows {
		out[r] = t.Cell(r, c)
	}
	return out
}

// RowNumber returns the sheet row number of data row r.
func (t *Table) RowNumber(r int) int {
	if r < len(t.RowNumbers) {
		return t.RowNumbers[r]
	}
	return r + 1
}

// Rename applies a source -> target column rename map.
func (t *Table) Rename(m map[string]string) {
	for i, c := range t.Columns {
		if target, ok := m[c]; ok {
			t.Columns[i] = target
		}
	}
}

// Filter keeps the rows for which keep returns true.
func (t *Table) Filter(keep func(row []string) bool) {
	rows := t.Rows[:0]
	nums := t.RowNumbers[:0]
	for i, r := range t.Rows {
		if keep(r) {
			rows = append(rows, r)
			nums = append(nums, t.RowNumber(i))
		}
	}
	t.Rows = rows
	t.RowNumbers = nums
}
