// =============================================================================
// Invoice Rollup - XLSX Workbook Parser
// =============================================================================
//
// This module reads every sheet of an invoice workbook into a schema.Table.
// Subcontractor workbooks usually carry a title block above the real header
// (company name, invoice number, billing period), so the header row of each
// sheet is located dynamically by schema.DetectHeaderRow.
//
// SHEET HANDLING:
//   - Sheets are returned in workbook order
//   - A sheet with no data below its header is logged and skipped
//   - A workbook where no sheet yields data is an error
//
// Cell values are read as displayed (number formats applied), which is what
// the subcontractor saw when they typed them.
//
// =============================================================================

package xlsxparser

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/invoice-rollup/internal/eventlog"
	"github.com/ginjaninja78/invoice-rollup/internal/schema"
)

// ErrNoData is returned when every sheet of a workbook is empty.
var ErrNoData = errors.New("no sheet contains data")

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// Parse reads every sheet of the workbook at path.
//
// PARAMETERS:
//   - path: The path to the XLSX file.
//   - events: Receives one 読込エラー event per empty sheet. May be nil.
//
// RETURNS:
//   - One table per non-empty sheet, named "{file}_{sheet}".
//   - An error if the file cannot be opened or no sheet has data.
func Parse(path string, events eventlog.Sink) ([]*schema.Table, error) {
	if events == nil {
		events = eventlog.Discard{}
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	var tables []*schema.Table
	for _, sheetName := range f.GetSheetList() {
		key := base + "_" + sheetName

		tbl, err := parseSheet(f, sheetName, key)
		if err != nil {
			return nil, fmt.Errorf("error parsing sheet '%s': %w", sheetName, err)
		}
		if tbl.Empty() {
			events.Record(eventlog.CategoryRead, key+": 空のシートです", "")
			continue
		}
		tables = append(tables, tbl)
	}

	if len(tables) == 0 {
		return nil, fmt.Errorf("%s: %w", base, ErrNoData)
	}
	return tables, nil
}

// parseSheet reads a single sheet from an open workbook.
func parseSheet(f *excelize.File, sheetName, key string) (*schema.Table, error) {
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return schema.FromRecords(key, rows), nil
}
