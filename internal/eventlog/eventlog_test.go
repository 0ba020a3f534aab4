package eventlog

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/ginjaninja78/invoice-rollup/internal/logger"
)

func TestCSVSinkAppendsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "unmatched.csv")

	sink, err := NewCSVSink(path, logger.Discard())
	require.NoError(t, err)
	sink.Record(CategoryAmountMissing, "a.xlsx#行3: 列=金額, 値=", "")
	sink.Record(CategoryDuplicate, "old/a.xlsx", "new/a.xlsx と同名のためスキップ")

	// Reopening must not write a second header.
	sink2, err := NewCSVSink(path, logger.Discard())
	require.NoError(t, err)
	sink2.Record(CategoryFilename, "bad.xlsx", "")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte("\xef\xbb\xbf")))

	dec := transform.NewReader(bytes.NewReader(raw), unicode.UTF8BOM.NewDecoder())
	rows, err := csv.NewReader(dec).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 4)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, []string{CategoryAmountMissing, "a.xlsx#行3: 列=金額, 値=", ""}, rows[1])
	assert.Equal(t, CategoryDuplicate, rows[2][0])
	assert.Equal(t, CategoryFilename, rows[3][0])
}

func TestRecorder(t *testing.T) {
	var r Recorder
	r.Record(CategoryDate, "x", "")
	r.Record(CategoryRead, "y", "boom")
	r.Record(CategoryDate, "z", "")

	assert.Len(t, r.Events(), 3)
	assert.Len(t, r.ByCategory(CategoryDate), 2)
	assert.Equal(t, "boom", r.ByCategory(CategoryRead)[0].Note)
}
