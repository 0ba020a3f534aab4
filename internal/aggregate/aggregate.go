// =============================================================================
// Invoice Rollup - Aggregator
// =============================================================================
//
// The aggregator turns line items into report tables: the detail lines
// followed by one subtotal row per group value for each grouping level, and
// exactly one grand-total row.
//
// Group order is the order in which a group value is first seen, so the same
// input always gives the same table. Money and quantity sums are computed
// with decimal arithmetic; float addition of yen amounts across a year of
// invoices drifts.
//
// =============================================================================

package aggregate

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/invoice-rollup/internal/types"
)

// RowKind tags a table row.
type RowKind int

const (
	// Detail is an extracted line item.
	Detail RowKind = iota
	// Subtotal sums one group value.
	Subtotal
	// GrandTotal sums every detail row.
	GrandTotal
)

// GroupKey selects the field a level groups by.
type GroupKey int

const (
	BySubcontractor GroupKey = iota
	ByDepartment
)

// Row is one line of a report table. Synthetic rows carry their label in
// Item and leave Date, Store and UnitPrice empty.
type Row struct {
	types.LineItem
	Kind RowKind
}

// Synthetic reports whether the row is a subtotal or total.
func (r Row) Synthetic() bool {
	return r.Kind != Detail
}

// Table is an aggregated report table.
type Table struct {
	Rows []Row
}

// Level is one grouping pass with the label of its subtotal rows.
type Level struct {
	Key   GroupKey
	Label string
}

// Spec describes one report family.
type Spec struct {
	Levels     []Level
	TotalLabel string

	// Department is written on subtotal and total rows of single-department
	// reports.
	Department string
}

// =============================================================================
// AGGREGATION
// =============================================================================

// Aggregate builds a table from items according to spec.
func Aggregate(items []types.LineItem, spec Spec) Table {
	rows := make([]Row, 0, len(items)+len(spec.Levels)*4+1)
	for _, it := range items {
		rows = append(rows, Row{LineItem: it, Kind: Detail})
	}

	for _, lvl := range spec.Levels {
		for _, g := range groupBy(items, lvl.Key) {
			row := Row{Kind: Subtotal}
			row.Department = spec.Department
			switch lvl.Key {
			case BySubcontractor:
				row.Subcontractor = g.key
			case ByDepartment:
				row.Department = g.key
			}
			row.Item = lvl.Label
			row.Quantity, row.Amount = sums(g.items)
			rows = append(rows, row)
		}
	}

	total := Row{Kind: GrandTotal}
	total.Department = spec.Department
	total.Item = spec.TotalLabel
	total.Quantity, total.Amount = sums(items)
	rows = append(rows, total)

	return Table{Rows: rows}
}

type group struct {
	key   string
	items []types.LineItem
}

// groupBy partitions items by key, in first-seen order.
func groupBy(items []types.LineItem, key GroupKey) []group {
	index := make(map[string]int)
	var groups []group
	for _, it := range items {
		k := keyOf(it, key)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, group{key: k})
		}
		groups[i].items = append(groups[i].items, it)
	}
	return groups
}

func keyOf(it types.LineItem, key GroupKey) string {
	if key == ByDepartment {
		return it.Department
	}
	return it.Subcontractor
}

// sums returns the quantity and amount totals of items.
func sums(items []types.LineItem) (float64, float64) {
	qty, amt := decimal.Zero, decimal.Zero
	for _, it := range items {
		qty = qty.Add(decimal.NewFromFloat(it.Quantity))
		amt = amt.Add(decimal.NewFromFloat(it.Amount))
	}
	return qty.InexactFloat64(), amt.InexactFloat64()
}

// =============================================================================
// TABLE ACCESSORS
// =============================================================================

// Details returns the non-synthetic rows.
func (t Table) Details() []Row {
	return t.filter(func(r Row) bool { return r.Kind == Detail })
}

// Subtotals returns the subtotal rows carrying label.
func (t Table) Subtotals(label string) []Row {
	return t.filter(func(r Row) bool { return r.Kind == Subtotal && r.Item == label })
}

// Total returns the grand-total row.
func (t Table) Total() Row {
	for _, r := range t.Rows {
		if r.Kind == GrandTotal {
			return r
		}
	}
	return Row{Kind: GrandTotal}
}

func (t Table) filter(keep func(Row) bool) []Row {
	var out []Row
	for _, r := range t.Rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// =============================================================================
// REPORT FAMILIES
// =============================================================================

// MonthlyDepartment is the per-department monthly report.
func MonthlyDepartment(dept string) Spec {
	return Spec{
		Levels:     []Level{{Key: BySubcontractor, Label: "小計"}},
		TotalLabel: "合計",
		Department: dept,
	}
}

// MonthlyCompany is the company-wide monthly report.
func MonthlyCompany() Spec {
	return Spec{
		Levels: []Level{
			{Key: BySubcontractor, Label: "会社小計"},
			{Key: ByDepartment, Label: "部署小計"},
		},
		TotalLabel: "全社合計",
	}
}

// YearlyDepartment is the per-department yearly report.
func YearlyDepartment(dept string) Spec {
	return Spec{
		Levels:     []Level{{Key: BySubcontractor, Label: "部署小計"}},
		TotalLabel: "年次合計",
		Department: dept,
	}
}

// YearlyCompany is the company-wide yearly report.
func YearlyCompany() Spec {
	return Spec{
		Levels: []Level{
			{Key: BySubcontractor, Label: "会社小計"},
			{Key: ByDepartment, Label: "部署小計"},
		},
		TotalLabel: "年次合計",
	}
}

// =============================================================================
// REPORT PLAN
// =============================================================================

// Report is a table with its place in the output tree.
type Report struct {
	// Dir is relative to the output root, e.g. "営業/yearly".
	Dir string

	// Name is the file name without extension.
	Name string

	Table Table
}

// Plan builds every report for one run: monthly and yearly, per department
// and company-wide. Departments appear in first-seen order; scopes with no
// items produce no report.
func Plan(month, year []types.LineItem, yearMonth, yearStr, companyLabel string) []Report {
	var reports []Report

	for _, g := range groupBy(month, ByDepartment) {
		reports = append(reports, Report{
			Dir:   g.key,
			Name:  fmt.Sprintf("%s_%s_records", g.key, yearMonth),
			Table: Aggregate(g.items, MonthlyDepartment(g.key)),
		})
	}
	if len(month) > 0 {
		reports = append(reports, Report{
			Dir:   "_" + companyLabel,
			Name:  fmt.Sprintf("%s_%s_records", companyLabel, yearMonth),
			Table: Aggregate(month, MonthlyCompany()),
		})
	}

	for _, g := range groupBy(year, ByDepartment) {
		reports = append(reports, Report{
			Dir:   g.key + "/yearly",
			Name:  fmt.Sprintf("%s_%s_records", g.key, yearStr),
			Table: Aggregate(g.items, YearlyDepartment(g.key)),
		})
	}
	if len(year) > 0 {
		reports = append(reports, Report{
			Dir:   "_" + companyLabel + "/yearly",
			Name:  fmt.Sprintf("%s_%s_records", companyLabel, yearStr),
			Table: Aggregate(year, YearlyCompany()),
		})
	}

	return reports
}
