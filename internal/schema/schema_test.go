package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/invoice-rollup/internal/config"
)

func TestIsAmountHeader(t *testing.T) {
	for _, h := range []string{"金額", "ご請求金額", "Total", " Sales Amount ", "配送費", "送料", "ＡＭＯＵＮＴ", "合計額"} {
		assert.True(t, IsAmountHeader(h), h)
	}
	for _, h := range []string{"", "日付", "数量", "単価", "店舗名", "費用区分"} {
		assert.False(t, IsAmountHeader(h), h)
	}
}

func TestDetectHeaderRow(t *testing.T) {
	records := [][]string{
		{"請求書", "", ""},
		{"株式会社サンプル 御中"},
		{},
		{"日付", "店舗名", "ご請求金額"},
		{"5/1", "サンプル店", "1000"},
	}
	assert.Equal(t, 3, DetectHeaderRow(records))

	// nothing within the first five rows
	late := [][]string{{"a"}, {"b"}, {"c"}, {"d"}, {"e"}, {"金額"}}
	assert.Equal(t, 0, DetectHeaderRow(late))
	assert.Equal(t, 0, DetectHeaderRow(nil))
}

func TestFromRecords(t *testing.T) {
	records := [][]string{
		{"タイトル"},
		{"日付", "", "金額"},
		{" 5/1 ", "x", "1,000", "extra"},
		{"", "", ""},
		{"5/2"},
	}
	tbl := FromRecords("book_Sheet1", records)

	assert.Equal(t, []string{"日付", "Column_2", "金額", "Column_4"}, tbl.Columns)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, []string{"5/1", "x", "1,000", "extra"}, tbl.Rows[0])
	assert.Equal(t, []string{"5/2", "", "", ""}, tbl.Rows[1])
	assert.Equal(t, []int{3, 5}, tbl.RowNumbers)
	assert.Equal(t, 2, tbl.Index("金額"))
	assert.Equal(t, -1, tbl.Index("数量"))
}

func TestFilterKeepsRowNumbers(t *testing.T) {
	tbl := FromRecords("t", [][]string{{"金額"}, {"1"}, {"合計"}, {"3"}})
	tbl.Filter(func(row []string) bool { return row[0] != "合計" })

	assert.Equal(t, [][]string{{"1"}, {"3"}}, tbl.Rows)
	assert.Equal(t, []int{2, 4}, tbl.RowNumbers)
}

func TestRenameColumnsExactBeforePartial(t *testing.T) {
	aliases := []config.ColumnAlias{
		{Target: "作業項目/商品名", Aliases: []string{"作業内容", "商品", "商品名"}},
		{Target: "日付", Aliases: []string{"日付", "作業日", "date"}},
	}

	// "商品コード" contains "商品" but "商品名" is an exact alias and wins.
	got := RenameColumns([]string{"商品コード", "商品名", "作業日"}, aliases)
	assert.Equal(t, map[string]string{"商品名": "作業項目/商品名", "作業日": "日付"}, got)
}

func TestRenameColumnsPartialAndOnce(t *testing.T) {
	aliases := []config.ColumnAlias{
		{Target: "作業項目/商品名", Aliases: []string{"商品"}},
		{Target: "日付", Aliases: []string{"date"}},
	}

	got := RenameColumns([]string{"商品コード", "商品区分", "Delivery Date"}, aliases)
	assert.Equal(t, map[string]string{"商品コード": "作業項目/商品名", "Delivery Date": "日付"}, got)
}

func TestRenameColumnsColumnBindsOnce(t *testing.T) {
	aliases := []config.ColumnAlias{
		{Target: "A", Aliases: []string{"x"}},
		{Target: "B", Aliases: []string{"x"}},
	}
	assert.Equal(t, map[string]string{"x": "A"}, RenameColumns([]string{"x"}, aliases))
}

func TestNormalizeColumnsWithDefaults(t *testing.T) {
	tbl := &Table{Columns: []string{"伝票日付", "品名", "金額"}}
	NormalizeColumns(tbl, config.DefaultColumnAliases())
	assert.Equal(t, []string{"日付", "作業項目/商品名", "金額"}, tbl.Columns)
}

func TestParseNumeric(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"１２，３００円", 12300, true},
		{"¥1,234.5", 1234.5, true},
		{"￥９８０", 980, true},
		{" 42 ", 42, true},
		{"-500", -500, true},
		{"", 0, false},
		{"  ", 0, false},
		{"abc", 0, false},
		{"NaN", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseNumeric(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
