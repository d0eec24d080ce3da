package engine

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/Samuel-Jeong/DiskSyncPro/internal/config"
	"github.com/Samuel-Jeong/DiskSyncPro/internal/journal"
	"github.com/Samuel-Jeong/DiskSyncPro/internal/pathutil"
)

// cleanupPass walks the destination tree and handles files whose
// source-side counterpart no longer exists. Clone mode quarantines them
// in the rollback vault; safety_net mode moves them into the
// date-partitioned SafetyNet. Reserved meta trees and excluded patterns
// are retained untouched. Per-file move failures are logged and the pass
// continues; only a failed walk of the destination itself is fatal.
func (r *Runner) cleanupPass(st *stage) error {
	var stale []string
	var dirs []string

	err := filepath.WalkDir(r.job.Destination, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == r.job.Destination {
				return err
			}
			r.log.Warnf("cleanup walk error at %s: %v", path, err)
			return nil
		}
		if r.cancelled() {
			return filepath.SkipAll
		}
		if path == r.job.Destination {
			return nil
		}
		rel, relErr := filepath.Rel(r.job.Destination, path)
		if relErr != nil {
			return nil
		}
		if d.IsDir() {
			if pathutil.IsReservedName(d.Name()) {
				return filepath.SkipDir
			}
			if pathutil.Excluded(rel, r.job.Exclude) {
				return filepath.SkipDir
			}
			dirs = append(dirs, path)
			return nil
		}
		if pathutil.Excluded(rel, r.job.Exclude) {
			return nil
		}
		if !sourceHas(filepath.Join(r.job.Source, rel)) {
			stale = append(stale, path)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "walk destination for cleanup")
	}

	st.itemsTotal.Store(int64(len(stale)))
	for _, path := range stale {
		if r.cancelled() {
			return nil
		}
		r.removeStale(path)
		st.itemsProcessed.Add(1)
	}

	if r.job.Mode == config.ModeClone {
		r.removeEmptyDirs(dirs)
	}
	return nil
}

// sourceHas reports whether the source still carries an entry at path.
// Inspection failures count as present so cleanup never displaces a file
// it cannot verify as stale.
func sourceHas(path string) bool {
	_, err := os.Lstat(path)
	if err == nil {
		return true
	}
	return !os.IsNotExist(err)
}

// removeStale displaces one destination-only file per the job mode and
// records the delete_file op with its backup location.
func (r *Runner) removeStale(path string) {
	entry := r.log.WithField("path", path)

	if r.opts.DryRun {
		entry.WithField("mode", string(r.job.Mode)).Info("dry-run: would quarantine")
		if r.job.Mode == config.ModeSafetyNet {
			r.stats.SafetyNetFile()
		} else {
			r.stats.DeletedFile()
		}
		return
	}

	var backup string
	var err error
	if r.job.Mode == config.ModeSafetyNet {
		backup, err = r.safetyNet.Quarantine(path)
	} else {
		backup, err = r.rollback.Quarantine(path)
	}
	if err != nil {
		entry.Errorf("quarantine failed, file retained: %v", err)
		return
	}

	r.jrnl.Append(journal.Op{
		Action: journal.ActionDeleteFile,
		Target: path,
		Backup: backup,
	})
	if r.job.Mode == config.ModeSafetyNet {
		r.stats.SafetyNetFile()
		entry.WithField("moved_to", backup).Info("moved to safety net")
	} else {
		r.stats.DeletedFile()
		entry.WithField("moved_to", backup).Info("quarantined in rollback vault")
	}
}

// removeEmptyDirs removes now-empty destination directories bottom-up,
// clone mode only. Each removal records a delete_file op with no backup:
// empty directories are non-restorable by replay, directories being
// cheap to recreate.
func (r *Runner) removeEmptyDirs(dirs []string) {
	// Deepest first so children empty out before their parents are
	// considered.
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })

	for _, dir := range dirs {
		if r.cancelled() {
			return
		}
		rel, err := filepath.Rel(r.job.Destination, dir)
		if err != nil {
			continue
		}
		// A directory the source still carries is part of the mirror;
		// removing it would only force a create_dir on the next run.
		if sourceHas(filepath.Join(r.job.Source, rel)) {
			continue
		}
		empty, err := pathutil.IsDirEmpty(dir)
		if err != nil || !empty {
			continue
		}
		if r.opts.DryRun {
			r.log.WithField("dir", dir).Info("dry-run: would remove empty directory")
			continue
		}
		if err := os.Remove(dir); err != nil {
			continue
		}
		r.jrnl.Append(journal.Op{Action: journal.ActionDeleteFile, Target: dir})
		r.log.WithField("dir", dir).Info("removed empty directory")
	}
}
