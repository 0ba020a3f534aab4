package mapping

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMissingFileIsEmpty(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "mapping.csv"))

	m, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, m)

	_, ok, err := s.Get("anything")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAppendCreatesHeaderWithBOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "mapping.csv")
	s := NewStore(path)
	s.now = func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) }

	require.NoError(t, s.Append("サンプル店", "サンプル店", "店舗名"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\xEF\xBB\xBF")))
	assert.Contains(t, string(data), "cleaned,normalized,field_name,created_at\n")
	assert.Contains(t, string(data), "サンプル店,サンプル店,店舗名,2024-05-01T09:00:00Z\n")
}

func TestReadAfterWrite(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "mapping.csv"))

	require.NoError(t, s.Append("abc", "ABC", "店舗名"))
	v, ok, err := s.Get("abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ABC", v)
}

func TestRoundTripLastWriteWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.csv")
	w := NewStore(path)
	require.NoError(t, w.Append("k1", "A", "店舗名"))
	require.NoError(t, w.Append("k2", "B", "店舗名"))
	require.NoError(t, w.Append("k1", "C", "店舗名"))

	want, err := w.Load()
	require.NoError(t, err)

	r := NewStore(path)
	got, err := r.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, map[string]string{"k1": "C", "k2": "B"}, got)

	keys, err := r.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k2"}, keys)
}

func TestLoadIsMemoized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.csv")
	require.NoError(t, WriteEntries(path, []Entry{{Cleaned: "x", Normalized: "X"}}))

	s := NewStore(path)
	_, ok, err := s.Get("x")
	require.NoError(t, err)
	require.True(t, ok)

	// Changes made behind the store's back are not seen.
	require.NoError(t, os.Remove(path))
	_, ok, err = s.Get("x")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReadEntriesWithoutHeaderOrBOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,A\nshort\nb,B,店舗名,2024-01-01T00:00:00Z\n"), 0644))

	entries, err := ReadEntries(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, Entry{Cleaned: "a", Normalized: "A"}, entries[0])
	assert.Equal(t, "店舗名", entries[1].FieldName)
}

func TestSortAndCompact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.csv")
	require.NoError(t, WriteEntries(path, []Entry{
		{Cleaned: "b", Normalized: "B1"},
		{Cleaned: "a", Normalized: "A1"},
		{Cleaned: "b", Normalized: "B2"},
	}))

	n, err := Sort(path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	entries, err := ReadEntries(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "b"}, []string{entries[0].Cleaned, entries[1].Cleaned, entries[2].Cleaned})
	assert.Equal(t, "B2", entries[2].Normalized)

	dropped, err := Compact(path)
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)

	got, err := NewStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "A1", "b": "B2"}, got)
}
