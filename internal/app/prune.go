package app

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Samuel-Jeong/DiskSyncPro/internal/statedir"
)

// PruneStateArtifacts deletes journals, summaries, and snapshot
// manifests older than the given number of days. Checkpoints and the
// snapshot index files are never pruned: the checkpoint is live resume
// state, and the index is the cumulative history record.
//
// Best-effort per file: a file that cannot be removed is skipped. Only
// an unreadable artifact directory is an error.
func PruneStateArtifacts(paths statedir.Paths, jobs []string, days int, log *logrus.Logger) error {
	if days <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -days)

	dirs := []string{paths.JournalsDir(), paths.SummariesDir()}
	for _, job := range jobs {
		dirs = append(dirs, paths.SnapshotsDir(job))
	}

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return errors.Wrapf(err, "read state dir %s", dir)
		}
		for _, entry := range entries {
			if entry.IsDir() || entry.Name() == "index.json" {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if !info.ModTime().Before(cutoff) {
				continue
			}
			full := filepath.Join(dir, entry.Name())
			if err := os.Remove(full); err != nil {
				continue
			}
			log.WithField("file", full).Debug("pruned old state artifact")
		}
	}
	return nil
}
