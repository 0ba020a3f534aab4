package xlsxparser

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/invoice-rollup/internal/eventlog"
)

func buildWorkbook(t *testing.T, sheets map[string][][]any, order []string) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, name := range order {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", name))
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for r, row := range sheets[name] {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow(name, cell, &row))
		}
	}

	path := filepath.Join(t.TempDir(), "営業_ABC_2024年5月.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestParseDetectsHeaderPerSheet(t *testing.T) {
	path := buildWorkbook(t, map[string][][]any{
		"5月分": {
			{"御請求書"},
			{"株式会社サンプル 御中"},
			{"日付", "店舗名", "作業内容", "金額"},
			{"5/1", "サンプル店", "清掃", 1000},
			{"5/2", "テスト店", "点検", 2500},
		},
		"空": {
			{"メモ"},
		},
		"追加": {
			{"日付", "送料"},
			{"5/3", 500},
		},
	}, []string{"5月分", "空", "追加"})

	var rec eventlog.Recorder
	tables, err := Parse(path, &rec)
	require.NoError(t, err)
	require.Len(t, tables, 2)

	assert.Equal(t, "営業_ABC_2024年5月_5月分", tables[0].Name)
	assert.Equal(t, []string{"日付", "店舗名", "作業内容", "金額"}, tables[0].Columns)
	require.Len(t, tables[0].Rows, 2)
	assert.Equal(t, "1000", tables[0].Rows[0][3])
	assert.Equal(t, 4, tables[0].RowNumber(0))

	assert.Equal(t, "営業_ABC_2024年5月_追加", tables[1].Name)

	empties := rec.ByCategory(eventlog.CategoryRead)
	require.Len(t, empties, 1)
	assert.Contains(t, empties[0].Value, "営業_ABC_2024年5月_空")
}

func TestParseAllEmpty(t *testing.T) {
	path := buildWorkbook(t, map[string][][]any{"S": {{"見出しのみ"}}}, []string{"S"})

	_, err := Parse(path, nil)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestParseMissingFile(t *testing.T) {
	_, err := Parse(filepath.Join(t.TempDir(), "nope.xlsx"), nil)
	assert.Error(t, err)
}
