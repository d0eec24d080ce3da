package app

import (
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Samuel-Jeong/DiskSyncPro/internal/journal"
	"github.com/Samuel-Jeong/DiskSyncPro/internal/statedir"
)

// Rollback replays a recorded journal in reverse. With an empty
// journalPath it picks the job's most recent journal. Journals that
// already left their run in rolled_back or rollback_failed state are
// refused rather than replayed twice.
func Rollback(paths statedir.Paths, job, journalPath string, log *logrus.Logger) (*journal.ReplayResult, error) {
	path := journalPath
	if path == "" {
		files, err := paths.ListJournals(job)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, errors.Errorf("no journals recorded for job %q", job)
		}
		path = files[0]
	}

	j, err := journal.Load(path)
	if err != nil {
		return nil, err
	}
	switch j.Status {
	case journal.StatusRolledBack, journal.StatusRollbackFailed:
		return nil, errors.Errorf("journal %s was already rolled back (status %s)", path, j.Status)
	}

	log.WithFields(logrus.Fields{
		"journal": path,
		"ops":     j.Len(),
	}).Info("replaying journal in reverse")
	res := journal.Replay(j, log)

	status := journal.StatusRolledBack
	if res.Failed > 0 {
		status = journal.StatusRollbackFailed
	}
	j.SetStatus(status)

	// Persist the terminal status to both recorded locations so neither
	// copy invites a second replay.
	targets := []string{path}
	meta := filepath.Join(statedir.MetaDir(j.DestRoot), "journals", filepath.Base(path))
	if meta != path {
		targets = append(targets, meta)
	}
	if err := j.Save(targets...); err != nil {
		log.Warnf("could not persist rollback status: %v", err)
	}

	if status == journal.StatusRollbackFailed {
		return &res, errors.Errorf("%d ops failed to replay; journal marked rollback_failed", res.Failed)
	}
	return &res, nil
}
