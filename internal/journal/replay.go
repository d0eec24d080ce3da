package journal

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ReplayResult counts the outcome of one reverse replay.
type ReplayResult struct {
	Restored int
	Failed   int
	Skipped  int
}

// Replay undoes the journal's ops in reverse order, yielding a state
// observationally equivalent to pre-run modulo files the run never
// touched.
//
// Per-op failures are logged, counted, and do not stop the replay; the
// caller decides whether a non-zero Failed count flips the journal to
// rollback_failed.
//
// Action semantics:
//   - create_file: remove the created target.
//   - replace_file: restore the pre-image from Backup over the target.
//   - delete_file with Backup: move the quarantined copy back.
//   - delete_file without Backup: a removed empty directory; irreversible
//     by replay (directories are cheap to recreate) and skipped.
//   - create_dir: remove the directory if it is empty.
//
// Exactly these four actions are recognized. Anything else is skipped
// with a warning so journals written by newer code degrade loudly rather
// than destructively.
func Replay(j *Journal, log logrus.FieldLogger) ReplayResult {
	var res ReplayResult
	ops := j.snapshotOps()

	for i := len(ops) - 1; i >= 0; i-- {
		op := ops[i]
		entry := log.WithFields(logrus.Fields{
			"action": string(op.Action),
			"target": op.Target,
		})

		var err error
		switch op.Action {
		case ActionCreateFile:
			err = removeFile(op.Target)
		case ActionReplaceFile:
			err = restoreBackup(op.Backup, op.Target)
		case ActionDeleteFile:
			if op.Backup == "" {
				entry.Debug("skipping irreversible empty-directory removal")
				res.Skipped++
				continue
			}
			err = restoreBackup(op.Backup, op.Target)
		case ActionCreateDir:
			err = removeDirIfEmpty(op.Target)
		default:
			entry.Warn("unknown journal action, skipping")
			res.Skipped++
			continue
		}

		if err != nil {
			entry.Errorf("rollback op failed: %v", err)
			res.Failed++
			continue
		}
		entry.Info("rolled back")
		res.Restored++
	}

	return res
}

func removeFile(target string) error {
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove created file")
	}
	return nil
}

// restoreBackup puts a quarantined pre-image back at target. Rename is
// preferred (backup and target live on the same volume, inside the
// destination root); a copy fallback covers vaults that were themselves
// relocated between run and replay.
func restoreBackup(backup, target string) error {
	if backup == "" {
		return errors.New("op has no backup to restore from")
	}
	if _, err := os.Lstat(backup); err != nil {
		return errors.Wrap(err, "stat backup")
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.Wrap(err, "recreate target directory")
	}
	if err := os.Rename(backup, target); err == nil {
		return nil
	}
	return copyBack(backup, target)
}

func copyBack(backup, target string) error {
	in, err := os.Open(backup)
	if err != nil {
		return errors.Wrap(err, "open backup")
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return errors.Wrap(err, "stat backup")
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return errors.Wrap(err, "create target")
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return errors.Wrap(err, "copy backup contents")
	}
	if err := out.Close(); err != nil {
		return errors.Wrap(err, "close target")
	}
	return os.Chtimes(target, info.ModTime(), info.ModTime())
}

func removeDirIfEmpty(target string) error {
	empty, err := isDirEmpty(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "inspect created directory")
	}
	if !empty {
		// The run copied files into it and their create_file ops replay
		// first; a still-populated directory here means untracked files
		// arrived. Leave it alone.
		return nil
	}
	return os.Remove(target)
}

func isDirEmpty(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read journal %s", path)
	}
	return data, nil
}
