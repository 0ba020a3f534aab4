// =============================================================================
// Invoice Rollup - Extraction Engine
// =============================================================================
//
// The engine turns one normalized sheet into LineItems. Columns are found by
// their (alias-normalized) headers; nothing about column positions is
// assumed.
//
// EXTRACTION STEPS:
//   1. Drop summary rows (小計, 合計, total, ...)
//   2. Locate date, quantity, unit price and amount columns
//   3. Pick the store column by header pattern priority
//   4. Per row: date, quantity, unit price, amount, canonical store name
//
// Row-level problems (unreadable date, missing amount) skip the row and are
// written to the event log. A sheet without any amount column is rejected
// with ErrNoAmountColumn.
//
// =============================================================================

package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/ginjaninja78/invoice-rollup/internal/eventlog"
	"github.com/ginjaninja78/invoice-rollup/internal/schema"
	"github.com/ginjaninja78/invoice-rollup/internal/textnorm"
	"github.com/ginjaninja78/invoice-rollup/internal/types"
)

// Standard column names produced by alias normalization.
const (
	ColumnDate  = "日付"
	ColumnItem  = "作業項目/商品名"
	ColumnStore = "店舗"

	// StoreField is the field name recorded with store-name mappings.
	StoreField = "店舗名"
)

var (
	// ErrNoAmountColumn rejects a sheet with no amount-like column.
	ErrNoAmountColumn = errors.New("no amount column")

	// ErrDateExtraction marks a row whose date could not be resolved.
	ErrDateExtraction = errors.New("date extraction failed")

	// ErrAmountMissing marks a row whose amount cell is not a number.
	ErrAmountMissing = errors.New("amount missing")
)

// NameResolver maps a raw field value to its canonical name.
type NameResolver interface {
	Normalize(ctx context.Context, fieldName, raw string) string
}

// Engine extracts line items from tables.
type Engine struct {
	names  NameResolver
	events eventlog.Sink
	logger *slog.Logger
}

// NewEngine returns an engine. names may be nil, in which case store names
// are only cleaned.
func NewEngine(names NameResolver, events eventlog.Sink, logger *slog.Logger) *Engine {
	if events == nil {
		events = eventlog.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{names: names, events: events, logger: logger}
}

// layout holds the column positions of one table; -1 means absent.
type layout struct {
	date      int
	quantity  int
	unitPrice int
	amount    int
	store     int
	item      int
}

// Extract returns the line items of t. Summary rows are removed from t.
func (e *Engine) Extract(ctx context.Context, t *schema.Table, meta types.FileMeta) ([]types.LineItem, error) {
	t.Filter(func(row []string) bool { return !IsSummaryRow(row) })

	cols, err := e.locate(t, meta)
	if err != nil {
		return nil, err
	}

	defaultDate := DefaultDate(meta.Year, meta.Month)
	defaultQty := cols.quantity < 0 || columnBlank(t, cols.quantity)

	var items []types.LineItem
	for r := range t.Rows {
		where := fmt.Sprintf("%s#行%d", meta.Label(), t.RowNumber(r))

		rawDate := t.Cell(r, cols.date)
		date := ParseFlexibleDate(rawDate, meta.Year)
		if date == "" {
			date = defaultDate
		}
		if date == "" {
			e.events.Record(eventlog.CategoryDate, fmt.Sprintf("%s: 元値=%s", where, rawDate), ErrDateExtraction.Error())
			continue
		}

		rawAmount := t.Cell(r, cols.amount)
		amount, ok := schema.ParseNumeric(rawAmount)
		if !ok {
			e.events.Record(eventlog.CategoryAmountMissing,
				fmt.Sprintf("%s: 列=%s, 値=%s", where, t.Columns[cols.amount], rawAmount), ErrAmountMissing.Error())
			continue
		}

		qty := 1.0
		if !defaultQty {
			qty, _ = schema.ParseNumeric(t.Cell(r, cols.quantity))
		}

		var unitPrice *float64
		if cols.unitPrice >= 0 {
			if p, ok := schema.ParseNumeric(t.Cell(r, cols.unitPrice)); ok {
				p = math.Round(p*10) / 10
				unitPrice = &p
			}
		}

		items = append(items, types.LineItem{
			Department:    meta.Department,
			Subcontractor: meta.Subcontractor,
			Date:          date,
			Store:         e.storeName(ctx, t.Cell(r, cols.store)),
			Item:          textnorm.Clean(t.Cell(r, cols.item)),
			Quantity:      qty,
			UnitPrice:     unitPrice,
			Amount:        amount,
		})
	}

	e.logger.Debug("extracted sheet", "sheet", meta.Label(), "rows", len(t.Rows), "items", len(items))
	return items, nil
}

func (e *Engine) storeName(ctx context.Context, raw string) string {
	if e.names == nil {
		return textnorm.Clean(raw)
	}
	return e.names.Normalize(ctx, StoreField, raw)
}

// locate finds every column the extraction needs.
func (e *Engine) locate(t *schema.Table, meta types.FileMeta) (layout, error) {
	l := layout{date: -1, quantity: -1, unitPrice: -1, amount: -1, store: -1, item: -1}

	folded := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		folded[i] = textnorm.NormalizeHeader(c)
	}

	for i, h := range folded {
		switch {
		case l.date < 0 && h == ColumnDate:
			l.date = i
		case l.item < 0 && t.Columns[i] == ColumnItem:
			l.item = i
		}
		if l.quantity < 0 && (strings.HasSuffix(h, "数量") || strings.HasSuffix(h, "quantity") || strings.HasSuffix(h, "qty")) {
			l.quantity = i
		}
		if l.unitPrice < 0 && (strings.Contains(h, "単価") || strings.Contains(h, "unitprice")) {
			l.unitPrice = i
		}
	}

	l.amount = pickAmountColumn(t)
	if l.amount < 0 {
		e.events.Record(eventlog.CategoryNoAmount, meta.Label()+": 金額列が見つかりません", ErrNoAmountColumn.Error())
		return l, fmt.Errorf("%s: %w", meta.Label(), ErrNoAmountColumn)
	}

	l.store = PickStoreColumn(t.Columns)
	return l, nil
}

// pickAmountColumn prefers "total" amount columns, taking the one with the
// largest sum; otherwise the first amount column.
func pickAmountColumn(t *schema.Table) int {
	first := -1
	best, bestSum := -1, 0.0
	for i, c := range t.Columns {
		if !schema.IsAmountHeader(c) {
			continue
		}
		if first < 0 {
			first = i
		}
		if !schema.IsTotalHeader(c) {
			continue
		}
		sum := 0.0
		for _, cell := range t.Column(i) {
			if v, ok := schema.ParseNumeric(cell); ok {
				sum += v
			}
		}
		if best < 0 || sum > bestSum {
			best, bestSum = i, sum
		}
	}
	if best >= 0 {
		return best
	}
	return first
}

func columnBlank(t *schema.Table, c int) bool {
	for _, cell := range t.Column(c) {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// =============================================================================
// SUMMARY ROWS
// =============================================================================

var summaryMarkers = []string{"小計", "合計", "総計", "subtotal", "grandtotal", "total"}

// IsSummaryRow reports whether any cell, width-folded and with whitespace
// removed, names a subtotal or total.
func IsSummaryRow(row []string) bool {
	for _, cell := range row {
		s := strings.ToLower(strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) {
				return -1
			}
			return r
		}, norm.NFKC.String(cell)))
		for _, m := range summaryMarkers {
			if strings.Contains(s, m) {
				return true
			}
		}
	}
	return false
}

// =============================================================================
// STORE COLUMN
// =============================================================================

var storePatterns = compileAll(
	`^依頼.*`, `^ご?依頼.*`, `^お客様.*`, `顧客.*`, `(クライアント)`,
	`(送|発|配)送.*先`, `宛先`, `店舗.*`, `ショップ.*`,
	`requester`, `customer`, `client`, `ship.*to`, `destination`, `recipient`, `store`, `shop`,
)

var storeSubstrings = []string{"主", "客", "先", "店", "customer", "dest", "store"}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// storeKey folds a header for store-column matching: normalized, with
// punctuation and honorifics removed.
func storeKey(h string) string {
	s := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_' {
			return r
		}
		return -1
	}, textnorm.NormalizeHeader(h))
	for _, hon := range []string{"様", "さん", "殿", "先生", "御中"} {
		s = strings.ReplaceAll(s, hon, "")
	}
	return s
}

// PickStoreColumn returns the index of the column holding the store name,
// or -1. Header patterns are tried in priority order, then loose
// substrings, then a column literally named 店舗. Amount columns are never
// picked.
func PickStoreColumn(columns []string) int {
	keys := make([]string, len(columns))
	for i, c := range columns {
		if schema.IsAmountHeader(c) {
			continue
		}
		keys[i] = storeKey(c)
	}

	for _, re := range storePatterns {
		for i, k := range keys {
			if k != "" && re.MatchString(k) {
				return i
			}
		}
	}
	for i, k := range keys {
		for _, sub := range storeSubstrings {
			if k != "" && strings.Contains(k, sub) {
				return i
			}
		}
	}
	for i, c := range columns {
		if c == ColumnStore {
			return i
		}
	}
	return -1
}
