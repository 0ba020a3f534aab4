package csvparser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"
)

const sample = "ご請求書\n日付,店舗名,金額\n5/1,サンプル店,\"1,000\"\n,,\n5月2日,テスト店,２，０００円\n"

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestParseUTF8WithBOM(t *testing.T) {
	path := writeFile(t, "営業_ABC_2024年5月.csv", append([]byte("\xEF\xBB\xBF"), sample...))

	tbl, err := Parse(path, Settings{Encoding: EncodingAuto})
	require.NoError(t, err)

	assert.Equal(t, "営業_ABC_2024年5月", tbl.Name)
	assert.Equal(t, []string{"日付", "店舗名", "金額"}, tbl.Columns)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, []string{"5/1", "サンプル店", "1,000"}, tbl.Rows[0])
	assert.Equal(t, "２，０００円", tbl.Rows[1][2])
}

func TestParseShiftJISAuto(t *testing.T) {
	encoded, err := japanese.ShiftJIS.NewEncoder().String(sample)
	require.NoError(t, err)
	path := writeFile(t, "sjis.csv", []byte(encoded))

	tbl, err := Parse(path, Settings{})
	require.NoError(t, err)
	assert.Equal(t, []string{"日付", "店舗名", "金額"}, tbl.Columns)
	assert.Equal(t, "テスト店", tbl.Rows[1][1])
}

func TestParseForcedEncoding(t *testing.T) {
	encoded, err := japanese.ShiftJIS.NewEncoder().String(sample)
	require.NoError(t, err)
	path := writeFile(t, "sjis.csv", []byte(encoded))

	tbl, err := Parse(path, Settings{Encoding: "Shift-JIS"})
	require.NoError(t, err)
	assert.Equal(t, "サンプル店", tbl.Rows[0][1])

	_, err = Parse(path, Settings{Encoding: "latin9"})
	assert.Error(t, err)
}

func TestParseEmpty(t *testing.T) {
	_, err := Parse(writeFile(t, "empty.csv", nil), Settings{})
	assert.Error(t, err)

	_, err = Parse(filepath.Join(t.TempDir(), "missing.csv"), Settings{})
	assert.Error(t, err)
}

func TestReadRecordsDelimiter(t *testing.T) {
	records, err := ReadRecords(strings.NewReader("a\tb\n1\t2\n"), Settings{Delimiter: "tab"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, records)
}
