package engine

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/Samuel-Jeong/DiskSyncPro/internal/journal"
	"github.com/Samuel-Jeong/DiskSyncPro/internal/pathutil"
)

// countFiles walks the source once, cheaply, to fix the progress
// denominator and the SCAN stage total. It prunes exactly what the
// planner will prune (reserved names, excluded directories, completed
// directories) so ticks and totals line up. Errors here are ignored; the
// planner's own walk reports them.
func (r *Runner) countFiles() int64 {
	var total int64
	_ = filepath.WalkDir(r.job.Source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(r.job.Source, path)
		if relErr != nil {
			return nil
		}
		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if pathutil.IsReservedName(d.Name()) || pathutil.Excluded(rel, r.job.Exclude) {
				return filepath.SkipDir
			}
			if r.cp.IsDirCompleted(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		total++
		return nil
	})
	return total
}

// plan walks the source tree, mirrors directories into the destination,
// and enqueues one copy task per file that is not excluded, not a
// symbolic link, and not already recorded in the checkpoint. Directories
// whose relative path is in completed-directories are pruned from
// traversal entirely, which is what makes resume sub-linear over
// finished subtrees.
//
// A directory that cannot be read is logged and left partially
// processed; the run continues. Only destination-side failures (the
// mirrored mkdir) are fatal, because nothing downstream can proceed
// without its directory.
func (r *Runner) plan(scan *stage) error {
	_, err := r.planDir(r.job.Source, ".", scan)
	return err
}

// planDir processes one source directory. It reports whether the whole
// subtree is known complete: every file here and below was already
// processed or excluded, and no task was newly enqueued. Only then is
// the directory promoted to completed-directories.
func (r *Runner) planDir(absDir, rel string, scan *stage) (complete bool, err error) {
	if r.cancelled() {
		return false, nil
	}
	if rel != "." && r.cp.IsDirCompleted(rel) {
		return true, nil
	}

	entries, readErr := os.ReadDir(absDir)
	if readErr != nil {
		r.log.Warnf("cannot read directory %s: %v", absDir, readErr)
		return false, nil
	}

	if err := r.mirrorDir(rel); err != nil {
		return false, err
	}

	complete = true
	for _, entry := range entries {
		if r.cancelled() {
			return false, nil
		}
		name := entry.Name()
		entryRel := filepath.Join(rel, name)

		if entry.IsDir() {
			if pathutil.IsReservedName(name) {
				continue
			}
			if pathutil.Excluded(entryRel, r.job.Exclude) {
				r.stats.SkippedExcluded()
				continue
			}
			sub, subErr := r.planDir(filepath.Join(absDir, name), entryRel, scan)
			if subErr != nil {
				return false, subErr
			}
			if !sub {
				complete = false
			}
			continue
		}

		if pathutil.Excluded(entryRel, r.job.Exclude) {
			r.stats.SkippedExcluded()
			r.progress.tick()
			continue
		}
		if !entry.Type().IsRegular() {
			// Symbolic links and special files: never followed, never
			// copied, counted as excluded.
			r.stats.SkippedExcluded()
			r.progress.tick()
			continue
		}
		if r.cp.IsProcessed(entryRel) {
			r.progress.tick()
			continue
		}

		complete = false
		if !r.enqueue(task{
			src: filepath.Join(absDir, name),
			dst: filepath.Join(r.job.Destination, entryRel),
			rel: entryRel,
		}) {
			return false, nil
		}
		scan.itemsProcessed.Add(1)
	}

	if complete && !r.opts.DryRun {
		r.cp.MarkDirCompleted(rel)
	}
	return complete, nil
}

// mirrorDir creates the destination counterpart of a source directory,
// recording a create_dir op only when the directory did not exist.
func (r *Runner) mirrorDir(rel string) error {
	dst := r.job.Destination
	if rel != "." {
		dst = filepath.Join(r.job.Destination, rel)
	}
	if pathutil.Exists(dst) {
		return nil
	}
	if r.opts.DryRun {
		r.log.WithField("dir", dst).Info("dry-run: would create directory")
		r.stats.CreatedDir()
		return nil
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return errors.Wrapf(err, "create destination directory %s", dst)
	}
	r.jrnl.Append(journal.Op{Action: journal.ActionCreateDir, Target: dst})
	r.stats.CreatedDir()
	return nil
}

// enqueue blocks until the task is accepted (back-pressure) or a cancel
// request is observed; it returns false on cancellation.
func (r *Runner) enqueue(t task) bool {
	for {
		select {
		case r.queue <- t:
			return true
		case <-time.After(r.poll):
			if r.cancelled() {
				return false
			}
		}
	}
}
