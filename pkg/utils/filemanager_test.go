package utils

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/invoice-rollup/internal/eventlog"
	"github.com/ginjaninja78/invoice-rollup/internal/logger"
)

func touch(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	if !mtime.IsZero() {
		require.NoError(t, os.Chtimes(path, mtime, mtime))
	}
}

func newManager(t *testing.T) *FileManager {
	root := t.TempDir()
	fm := NewFileManager(
		filepath.Join(root, "watch"),
		filepath.Join(root, "processed"),
		filepath.Join(root, "failed"),
		[]string{".csv", ".xlsx", ".xlsm"},
		logger.Discard(),
	)
	require.NoError(t, fm.EnsureDirectories())
	return fm
}

func TestIsCandidate(t *testing.T) {
	fm := newManager(t)
	assert.True(t, fm.IsCandidate("a/営業_A_2024年5月.xlsx"))
	assert.True(t, fm.IsCandidate("a/営業_A_2024年5月.CSV"))
	assert.False(t, fm.IsCandidate("a/~$営業_A_2024年5月.xlsx"))
	assert.False(t, fm.IsCandidate("a/営業_A_2024年5月.pdf"))
	assert.False(t, fm.IsCandidate("a/noext"))
}

func TestDiscoverCandidates(t *testing.T) {
	fm := newManager(t)
	touch(t, filepath.Join(fm.WatchDir, "b.csv"), time.Time{})
	touch(t, filepath.Join(fm.WatchDir, "a.xlsx"), time.Time{})
	touch(t, filepath.Join(fm.WatchDir, "~$a.xlsx"), time.Time{})
	touch(t, filepath.Join(fm.WatchDir, "notes.txt"), time.Time{})
	touch(t, filepath.Join(fm.ProcessedDir, "営業", "c.csv"), time.Time{})

	files, err := fm.DiscoverCandidates()
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(fm.WatchDir, "a.xlsx"),
		filepath.Join(fm.WatchDir, "b.csv"),
		filepath.Join(fm.ProcessedDir, "営業", "c.csv"),
	}, files)
}

func TestDiscoverCandidatesMissingDirs(t *testing.T) {
	root := t.TempDir()
	fm := NewFileManager(filepath.Join(root, "nope"), filepath.Join(root, "gone"), "", []string{".csv"}, nil)

	files, err := fm.DiscoverCandidates()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestInWatchDir(t *testing.T) {
	fm := newManager(t)
	assert.True(t, fm.InWatchDir(filepath.Join(fm.WatchDir, "a.csv")))
	assert.True(t, fm.InWatchDir(filepath.Join(fm.WatchDir, "sub", "a.csv")))
	assert.False(t, fm.InWatchDir(filepath.Join(fm.ProcessedDir, "営業", "a.csv")))
	assert.False(t, fm.InWatchDir(fm.WatchDir+"-other/a.csv"))
}

func TestArchive(t *testing.T) {
	fm := newManager(t)
	ok := filepath.Join(fm.WatchDir, "営業_A_2024年5月.csv")
	bad := filepath.Join(fm.WatchDir, "営業_B_2024年5月.csv")
	touch(t, ok, time.Time{})
	touch(t, bad, time.Time{})

	dst, err := fm.FileSucceeded(ok, "営業")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(fm.ProcessedDir, "営業", "営業_A_2024年5月.csv"), dst)
	assert.FileExists(t, dst)
	assert.NoFileExists(t, ok)

	dst, err = fm.FileFailed(bad, errors.New("boom"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(fm.FailedDir, "営業_B_2024年5月.csv"), dst)
	assert.FileExists(t, dst)
	assert.NoFileExists(t, bad)

	_, err = fm.FileSucceeded(filepath.Join(fm.WatchDir, "missing.csv"), "営業")
	assert.Error(t, err)
}

func TestDeduplicatorKeepsLatest(t *testing.T) {
	fm := newManager(t)
	day := time.Date(2024, 5, 31, 0, 0, 0, 0, time.Local)
	older := filepath.Join(fm.ProcessedDir, "営業", "営業_A_2024年5月.xlsx")
	newer := filepath.Join(fm.WatchDir, "営業_A_2024年5月.xlsx")
	single := filepath.Join(fm.WatchDir, "営業_B_2024年5月.xlsx")
	touch(t, older, day.Add(10*time.Hour))
	touch(t, newer, day.Add(10*time.Hour+5*time.Minute))
	touch(t, single, day)

	rec := &eventlog.Recorder{}
	kept := NewDeduplicator(rec).Resolve([]string{older, single, newer})

	assert.Equal(t, map[string]bool{newer: true, single: true}, kept)

	events := rec.ByCategory(eventlog.CategoryDuplicate)
	require.Len(t, events, 1)
	assert.Equal(t, older+" は "+newer+" と同名のためスキップ", events[0].Value)
}

func TestDeduplicatorTieKeepsFirst(t *testing.T) {
	fm := newManager(t)
	at := time.Date(2024, 5, 31, 10, 0, 0, 0, time.Local)
	a := filepath.Join(fm.WatchDir, "x.csv")
	b := filepath.Join(fm.ProcessedDir, "営業", "x.csv")
	touch(t, a, at)
	touch(t, b, at)

	kept := NewDeduplicator(nil).Resolve([]string{a, b})
	assert.Equal(t, map[string]bool{a: true}, kept)
}
