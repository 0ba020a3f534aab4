// =============================================================================
// Invoice Rollup - Report Writer
// =============================================================================
//
// Every aggregated table is written twice under the same report name:
//
//   {dir}/{name}.csv   UTF-8 with BOM, so Excel on Windows opens it as UTF-8
//   {dir}/{name}.xlsx  one sheet, amount column formatted #,##0, autofilter
//                      over the whole table, fixed column widths
//
// Synthetic (subtotal / total) rows leave date, store and unit price empty.
//
// =============================================================================

package reportwriter

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/ginjaninja78/invoice-rollup/internal/aggregate"
)

// SheetName is the single sheet of every workbook.
const SheetName = "Sheet1"

// Column describes one output column.
type Column struct {
	Header string
	Width  float64
}

// Columns is the fixed report layout.
var Columns = []Column{
	{Header: "部署", Width: 8},
	{Header: "下請け", Width: 20},
	{Header: "日付", Width: 20},
	{Header: "店舗名", Width: 45},
	{Header: "作業項目/商品名", Width: 60},
	{Header: "数量", Width: 8},
	{Header: "単価", Width: 15},
	{Header: "金額", Width: 20},
}

// amountFormat is applied to the 金額 column.
const amountFormat = "#,##0"

// =============================================================================
// WRITE FUNCTIONS
// =============================================================================

// WriteAll writes every report below outputDir.
//
// PARAMETERS:
//   - outputDir: The root of the report tree.
//   - reports: The reports to write, each with a Dir relative to outputDir.
//
// RETURNS:
//   - The paths of the files written, csv before xlsx for each report.
//   - An error on the first report that cannot be written.
func WriteAll(outputDir string, reports []aggregate.Report) ([]string, error) {
	var written []string
	for _, r := range reports {
		paths, err := Write(filepath.Join(outputDir, filepath.FromSlash(r.Dir)), r.Name, r.Table)
		if err != nil {
			return written, err
		}
		written = append(written, paths...)
	}
	return written, nil
}

// Write writes table as {dir}/{name}.csv and {dir}/{name}.xlsx.
func Write(dir, name string, table aggregate.Table) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report directory %s: %w", dir, err)
	}

	csvPath := filepath.Join(dir, name+".csv")
	if err := WriteCSV(csvPath, table); err != nil {
		return nil, err
	}

	xlsxPath := filepath.Join(dir, name+".xlsx")
	if err := WriteXLSX(xlsxPath, table); err != nil {
		return []string{csvPath}, err
	}

	return []string{csvPath, xlsxPath}, nil
}

// WriteCSV writes table as BOM-prefixed UTF-8 CSV.
func WriteCSV(path string, table aggregate.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	enc := transform.NewWriter(f, unicode.UTF8BOM.NewEncoder())
	w := csv.NewWriter(enc)

	if err := w.Write(headers()); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	for _, row := range table.Rows {
		if err := w.Write(textCells(row)); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// WriteXLSX writes table as a formatted workbook.
func WriteXLSX(path string, table aggregate.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c.Header
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, row := range table.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := cellValues(row)
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := formatSheet(f, len(table.Rows)); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// formatSheet applies column widths, the amount number format and the
// autofilter.
func formatSheet(f *excelize.File, rows int) error {
	numFmt := amountFormat
	style, err := f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
	if err != nil {
		return fmt.Errorf("failed to create amount style: %w", err)
	}

	for i, c := range Columns {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(SheetName, name, name, c.Width); err != nil {
			return fmt.Errorf("failed to set width of %s: %w", c.Header, err)
		}
		if c.Header == "金額" {
			if err := f.SetColStyle(SheetName, name, style); err != nil {
				return fmt.Errorf("failed to format %s: %w", c.Header, err)
			}
		}
	}

	last, err := excelize.CoordinatesToCellName(len(Columns), rows+1)
	if err != nil {
		return err
	}
	if err := f.AutoFilter(SheetName, "A1:"+last, nil); err != nil {
		return fmt.Errorf("failed to set autofilter: %w", err)
	}
	return nil
}

// =============================================================================
// CELL CONVERSION
// =============================================================================

func headers() []string {
	out := make([]string, len(Columns))
	for i, c := range Columns {
		out[i] = c.Header
	}
	return out
}

// cellValues returns the typed cells of row in column order.
func cellValues(row aggregate.Row) []interface{} {
	var unitPrice interface{} = ""
	if row.UnitPrice != nil {
		unitPrice = *row.UnitPrice
	}
	return []interface{}{
		row.Department,
		row.Subcontractor,
		row.Date,
		row.Store,
		row.Item,
		row.Quantity,
		unitPrice,
		row.Amount,
	}
}

// textCells returns the CSV cells of row in column order.
func textCells(row aggregate.Row) []string {
	unitPrice := ""
	if row.UnitPrice != nil {
		unitPrice = formatNumber(*row.UnitPrice)
	}
	return []string{
		row.Department,
		row.Subcontractor,
		row.Date,
		row.Store,
		row.Item,
		formatNumber(row.Quantity),
		unitPrice,
		formatNumber(row.Amount),
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
