package schema

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ginjaninja78/invoice-rollup/internal/config"
	"github.com/ginjaninja78/invoice-rollup/internal/textnorm"
)

// =============================================================================
// AMOUNT HEADER CLASSIFICATION
// =============================================================================

// amountKeywords are matched as substrings of the normalized header.
var amountKeywords = []string{
	"売上", "売り上げ", "金額", "合計額", "total", "amount",
	"売上高", "sales", "revenue",
	"請求金額", "ご請求金額", "請求額",
	"作業金額", "工賃",
	"手数料", "commission", "handling_fee",
	"運賃", "送料", "freight", "shipping",
}

// feeSuffix matches headers such as "配送費" or "作業費".
var feeSuffix = regexp.MustCompile(`費$`)

// IsAmountHeader reports whether a header names a money column.
func IsAmountHeader(h string) bool {
	n := textnorm.NormalizeHeader(h)
	if n == "" {
		return false
	}
	for _, kw := range amountKeywords {
		if strings.Contains(n, kw) {
			return true
		}
	}
	return feeSuffix.MatchString(n)
}

// IsTotalHeader reports whether an amount header also says "total".
func IsTotalHeader(h string) bool {
	n := textnorm.NormalizeHeader(h)
	return strings.Contains(n, "合計") || strings.Contains(n, "total")
}

// =============================================================================
// HEADER ROW DETECTION
// =============================================================================

// DetectHeaderRow returns the index of the first of the leading
// HeaderScanRows rows holding an amount-like header, or 0.
func DetectHeaderRow(records [][]string) int {
	for i := 0; i < len(records) && i < HeaderScanRows; i++ {
		for _, cell := range records[i] {
			if IsAmountHeader(cell) || strings.Contains(textnorm.NormalizeHeader(cell), "金額") {
				return i
			}
		}
	}
	return 0
}

// =============================================================================
// COLUMN ALIASES
// =============================================================================

// RenameColumns maps source column names to alias targets. For every target
// an exact match on the normalized name is tried first; only then, for
// targets still unbound, a substring match. A target binds to at most one
// column and a column to at most one target.
func RenameColumns(columns []string, aliases []config.ColumnAlias) map[string]string {
	normCols := make([]string, len(columns))
	for i, c := range columns {
		normCols[i] = textnorm.NormalizeHeader(c)
	}

	normAliases := make([][]string, len(aliases))
	for i, a := range aliases {
		for _, s := range a.Aliases {
			if n := textnorm.NormalizeHeader(s); n != "" {
				normAliases[i] = append(normAliases[i], n)
			}
		}
	}

	rename := make(map[string]string)
	boundTarget := make(map[int]bool)
	boundColumn := make(map[int]bool)

	bind := func(match func(col string, alias string) bool) {
		for ti := range aliases {
			if boundTarget[ti] {
				continue
			}
			for ci, col := range normCols {
				if boundColumn[ci] {
					continue
				}
				if anyAlias(normAliases[ti], func(a string) bool { return match(col, a) }) {
					rename[columns[ci]] = aliases[ti].Target
					boundTarget[ti] = true
					boundColumn[ci] = true
					break
				}
			}
		}
	}

	bind(func(col, alias string) bool { return col == alias })
	bind(strings.Contains)

	return rename
}

func anyAlias(aliases []string, f func(string) bool) bool {
	for _, a := range aliases {
		if f(a) {
			return true
		}
	}
	return false
}

// NormalizeColumns renames t's columns in place using aliases.
func NormalizeColumns(t *Table, aliases []config.ColumnAlias) {
	t.Rename(RenameColumns(t.Columns, aliases))
}

// =============================================================================
// NUMBERS
// =============================================================================

var numericFolder = strings.NewReplacer(
	"０", "0", "１", "1", "２", "2", "３", "3", "４", "4",
	"５", "5", "６", "6", "７", "7", "８", "8", "９", "9",
	"．", ".", "，", "", "－", "-", "＋", "+",
	"¥", "", "￥", "", "円", "", "$", "", ",", "",
)

// ParseNumeric parses a money or quantity cell such as "１２，３００円".
// Blank and unparsable cells return ok == false.
func ParseNumeric(cell string) (float64, bool) {
	s := strings.TrimSpace(numericFolder.Replace(cell))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
