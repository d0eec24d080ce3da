package statedir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPaths_Layout(t *testing.T) {
	p := Paths{Root: filepath.Join("/", "state"), Group: "home"}

	require.Equal(t, filepath.Join("/", "state", "home", "journals", "journal_photos_20250115_120000.json"),
		p.JournalFile("photos", "20250115_120000"))
	require.Equal(t, filepath.Join("/", "state", "home", "checkpoints", "checkpoint_photos.json"),
		p.CheckpointFile("photos"))
	require.Equal(t, filepath.Join("/", "state", "home", "snapshots", "photos", "snapshot_20250115_120000.json"),
		p.SnapshotFile("photos", "20250115_120000"))
	require.Equal(t, filepath.Join("/", "state", "home", "snapshots", "photos", "index.json"),
		p.IndexFile("photos"))
	require.Equal(t, filepath.Join("/", "state", "home", "summaries", "summary_photos_20250115_120000.json"),
		p.SummaryFile("photos", "20250115_120000"))
}

func TestEnsureDirs(t *testing.T) {
	p := Paths{Root: t.TempDir(), Group: "g"}
	require.NoError(t, p.EnsureDirs([]string{"a", "b"}))

	for _, dir := range []string{
		p.JournalsDir(), p.CheckpointsDir(), p.SummariesDir(),
		p.SnapshotsDir("a"), p.SnapshotsDir("b"),
	} {
		require.DirExists(t, dir)
	}
}

func TestListJournals_NewestFirstAndFiltered(t *testing.T) {
	p := Paths{Root: t.TempDir(), Group: "g"}
	require.NoError(t, p.EnsureDirs(nil))

	for _, name := range []string{
		"journal_a_20250101_000000.json",
		"journal_a_20250102_000000.json",
		"journal_b_20250103_000000.json",
		"not-a-journal.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(p.JournalsDir(), name), []byte("{}"), 0o644))
	}

	all, err := p.ListJournals("")
	require.NoError(t, err)
	require.Len(t, all, 3)

	onlyA, err := p.ListJournals("a")
	require.NoError(t, err)
	require.Len(t, onlyA, 2)
	require.Equal(t, "journal_a_20250102_000000.json", filepath.Base(onlyA[0]), "newest first")
}

func TestListJournals_MissingDirIsEmpty(t *testing.T) {
	p := Paths{Root: t.TempDir(), Group: "missing"}
	files, err := p.ListJournals("")
	require.NoError(t, err)
	require.Empty(t, files)
}

func TestMetaDir(t *testing.T) {
	require.Equal(t, filepath.Join("/", "d", ".DiskSyncPro"), MetaDir(filepath.Join("/", "d")))
}
