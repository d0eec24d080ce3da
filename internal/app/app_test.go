package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Samuel-Jeong/DiskSyncPro/internal/config"
	"github.com/Samuel-Jeong/DiskSyncPro/internal/journal"
	"github.com/Samuel-Jeong/DiskSyncPro/internal/logging"
	"github.com/Samuel-Jeong/DiskSyncPro/internal/statedir"
)

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func testConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	root := t.TempDir()
	src := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(src, 0o755))
	mustWrite(t, filepath.Join(src, "a.txt"), "A")

	cfg := &config.Config{
		Group:     "test",
		StateRoot: filepath.Join(root, "state"),
		Jobs: []config.BackupJob{{
			Name:        "job",
			Source:      src,
			Destination: filepath.Join(root, "dst"),
			Mode:        config.ModeClone,
		}},
	}
	return cfg, root
}

func TestRun_SingleJobSucceeds(t *testing.T) {
	cfg, root := testConfig(t)

	outcomes, err := Run(cfg, Options{}, logging.Discard())
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)
	require.Equal(t, journal.StatusSuccess, outcomes[0].Result.Status)
	require.FileExists(t, filepath.Join(root, "dst", "a.txt"))
}

func TestRun_JobFilter(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.Jobs = append(cfg.Jobs, config.BackupJob{
		Name:        "other",
		Source:      cfg.Jobs[0].Source,
		Destination: cfg.Jobs[0].Destination + "2",
		Mode:        config.ModeSync,
	})

	outcomes, err := Run(cfg, Options{JobFilter: "other"}, logging.Discard())
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.Equal(t, "other", outcomes[0].Job.Name)

	_, err = Run(cfg, Options{JobFilter: "missing"}, logging.Discard())
	require.Error(t, err)
}

func TestRun_InaccessibleSourceSkipsJob(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.Jobs[0].Source = filepath.Join(t.TempDir(), "missing")

	outcomes, err := Run(cfg, Options{}, logging.Discard())
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.Error(t, outcomes[0].Err)
	require.Nil(t, outcomes[0].Result)
}

func TestRollback_LatestJournalRestoresState(t *testing.T) {
	cfg, root := testConfig(t)

	outcomes, err := Run(cfg, Options{}, logging.Discard())
	require.NoError(t, err)
	require.Equal(t, journal.StatusSuccess, outcomes[0].Result.Status)
	require.FileExists(t, filepath.Join(root, "dst", "a.txt"))

	paths := StatePaths(cfg, "")
	res, err := Rollback(paths, "job", "", logging.Discard())
	require.NoError(t, err)
	require.Positive(t, res.Restored)
	require.NoFileExists(t, filepath.Join(root, "dst", "a.txt"))

	// The journal now carries rolled_back; a second replay is refused.
	_, err = Rollback(paths, "job", "", logging.Discard())
	require.Error(t, err)
}

func TestRollback_NoJournals(t *testing.T) {
	paths := statedir.Paths{Root: t.TempDir(), Group: "g"}
	_, err := Rollback(paths, "job", "", logging.Discard())
	require.Error(t, err)
}

func TestListJournalsAndSnapshots(t *testing.T) {
	cfg, _ := testConfig(t)

	_, err := Run(cfg, Options{}, logging.Discard())
	require.NoError(t, err)

	paths := StatePaths(cfg, "")
	journals, err := ListJournals(paths, "job")
	require.NoError(t, err)
	require.Len(t, journals, 1)
	require.Equal(t, journal.StatusSuccess, journals[0].Status)

	snaps, err := ListSnapshots(paths, "job")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	require.Equal(t, 1, snaps[0].FileCount)

	jobs, err := Jobs(paths)
	require.NoError(t, err)
	require.Equal(t, []string{"job"}, jobs)
}

func TestPruneStateArtifacts(t *testing.T) {
	paths := statedir.Paths{Root: t.TempDir(), Group: "g"}
	require.NoError(t, paths.EnsureDirs([]string{"job"}))

	oldFile := filepath.Join(paths.JournalsDir(), "journal_job_20240101_000000.json")
	newFile := filepath.Join(paths.JournalsDir(), "journal_job_20250715_000000.json")
	index := filepath.Join(paths.SnapshotsDir("job"), "index.json")
	oldSnap := filepath.Join(paths.SnapshotsDir("job"), "snapshot_20240101_000000.json")

	for _, f := range []string{oldFile, newFile, index, oldSnap} {
		mustWrite(t, f, "{}")
	}
	stale := time.Now().AddDate(0, 0, -60)
	for _, f := range []string{oldFile, index, oldSnap} {
		require.NoError(t, os.Chtimes(f, stale, stale))
	}

	require.NoError(t, PruneStateArtifacts(paths, []string{"job"}, 30, logging.Discard()))

	require.NoFileExists(t, oldFile)
	require.NoFileExists(t, oldSnap)
	require.FileExists(t, newFile)
	require.FileExists(t, index, "the snapshot index is never pruned")
}

func TestCheckEndpoints(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(src, 0o755))

	job := config.BackupJob{Name: "j", Source: src, Destination: filepath.Join(root, "dst")}
	require.NoError(t, checkEndpoints(job, false))
	require.DirExists(t, job.Destination)

	job.Source = filepath.Join(root, "missing")
	require.Error(t, checkEndpoints(job, false))

	// A source that is a file, not a directory, is rejected.
	file := filepath.Join(root, "file")
	mustWrite(t, file, "x")
	job.Source = file
	require.Error(t, checkEndpoints(job, false))
}
