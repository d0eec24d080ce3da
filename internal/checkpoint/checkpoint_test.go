package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Samuel-Jeong/DiskSyncPro/internal/logging"
)

func cpPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "checkpoint_job.json")
}

func TestCheckpoint_MarkAndQuery(t *testing.T) {
	cp := Fresh(cpPath(t), "job", logging.Discard())

	require.False(t, cp.IsProcessed("a/b.txt"))
	cp.MarkProcessed("a/b.txt")
	require.True(t, cp.IsProcessed("a/b.txt"))
	require.Equal(t, 1, cp.TotalProcessed())

	// Duplicate marks do not inflate the total.
	cp.MarkProcessed("a/b.txt")
	require.Equal(t, 1, cp.TotalProcessed())

	require.False(t, cp.IsDirCompleted("a"))
	cp.MarkDirCompleted("a")
	require.True(t, cp.IsDirCompleted("a"))
}

func TestCheckpoint_SaveLoadRoundTrip(t *testing.T) {
	path := cpPath(t)
	cp := Fresh(path, "job", logging.Discard())
	cp.MarkProcessed("a/b.txt")
	cp.MarkProcessed("c.txt")
	cp.MarkDirCompleted("a")
	cp.Save()

	loaded := Load(path, "job", logging.Discard())
	require.True(t, loaded.IsProcessed("a/b.txt"))
	require.True(t, loaded.IsProcessed("c.txt"))
	require.True(t, loaded.IsDirCompleted("a"))
	require.Equal(t, 2, loaded.TotalProcessed())
}

func TestCheckpoint_CompleteLoadsEmpty(t *testing.T) {
	path := cpPath(t)
	cp := Fresh(path, "job", logging.Discard())
	cp.MarkProcessed("a.txt")
	cp.MarkDirCompleted(".")
	cp.MarkComplete()
	cp.Save()

	loaded := Load(path, "job", logging.Discard())
	require.False(t, loaded.IsProcessed("a.txt"))
	require.False(t, loaded.IsDirCompleted("."))
	require.Zero(t, loaded.TotalProcessed())
}

func TestCheckpoint_TruncatesOnDiskListKeepsTrueTotal(t *testing.T) {
	path := cpPath(t)
	cp := Fresh(path, "job", logging.Discard())
	n := maxPersistedFiles + 50
	for i := 0; i < n; i++ {
		cp.MarkProcessed(fmt.Sprintf("f%05d", i))
	}
	cp.Save()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var st fileState
	require.NoError(t, json.Unmarshal(data, &st))
	require.Len(t, st.ProcessedFiles, maxPersistedFiles)
	require.Equal(t, n, st.TotalProcessed)

	// The newest entries survive; the oldest fall off.
	require.Equal(t, fmt.Sprintf("f%05d", n-1), st.ProcessedFiles[len(st.ProcessedFiles)-1])
	require.Equal(t, fmt.Sprintf("f%05d", 50), st.ProcessedFiles[0])

	loaded := Load(path, "job", logging.Discard())
	require.Equal(t, n, loaded.TotalProcessed())
	require.True(t, loaded.IsProcessed(fmt.Sprintf("f%05d", n-1)))
	require.False(t, loaded.IsProcessed("f00000"))
}

func TestCheckpoint_BatchedSaves(t *testing.T) {
	path := cpPath(t)
	cp := Fresh(path, "job", logging.Discard())

	for i := 0; i < saveEvery-1; i++ {
		cp.MarkProcessed(fmt.Sprintf("f%d", i))
	}
	require.NoFileExists(t, path, "no save before the batch boundary")

	cp.MarkProcessed("boundary")
	require.FileExists(t, path, "batch boundary triggers a save")
}

func TestLoad_CorruptFileMovedAside(t *testing.T) {
	path := cpPath(t)
	require.NoError(t, os.WriteFile(path, []byte("{torn write"), 0o644))

	cp := Load(path, "job", logging.Discard())
	require.Zero(t, cp.TotalProcessed())
	require.NoFileExists(t, path, "corrupt checkpoint must be moved aside")

	matches, err := filepath.Glob(path + ".corrupt.*")
	require.NoError(t, err)
	require.Len(t, matches, 1)
}

func TestLoad_WrongJobTreatedAsCorrupt(t *testing.T) {
	path := cpPath(t)
	other := Fresh(path, "other-job", logging.Discard())
	other.MarkProcessed("a.txt")
	other.Save()

	cp := Load(path, "job", logging.Discard())
	require.Zero(t, cp.TotalProcessed())
	require.False(t, cp.IsProcessed("a.txt"))
}

func TestLoad_MissingFileIsFresh(t *testing.T) {
	cp := Load(cpPath(t), "job", logging.Discard())
	require.Zero(t, cp.TotalProcessed())
	require.False(t, cp.IsProcessed("anything"))
}
