// Package vault implements the two destination-side quarantine trees:
// the rollback vault holding pre-images for journal replay, and the
// date-partitioned SafetyNet holding files displaced under safety_net
// mode. Both mirror the displaced file's path relative to the
// destination root.
package vault

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/Samuel-Jeong/DiskSyncPro/internal/pathutil"
)

// Rollback is the pre-image store for one run:
// <dst_root>/.Rollback/<job>_<ts>/.
type Rollback struct {
	destRoot string
	root     string
}

// NewRollback places a run's vault under the destination root.
func NewRollback(destRoot, job, timestamp string) *Rollback {
	return &Rollback{
		destRoot: destRoot,
		root:     filepath.Join(destRoot, pathutil.RollbackDirName, fmt.Sprintf("%s_%s", job, timestamp)),
	}
}

// Root returns the vault directory for this run.
func (v *Rollback) Root() string { return v.root }

// Capture copies the current content of path into the vault and returns
// the vault path, for use as a replace_file pre-image. A copy, not a
// move: the live file must remain readable until the atomic rename
// replaces it.
func (v *Rollback) Capture(path string) (string, error) {
	dst := filepath.Join(v.root, mirrorRel(v.destRoot, path))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", errors.Wrap(err, "create vault directory")
	}
	if err := copyPreserving(path, dst); err != nil {
		return "", errors.Wrap(err, "capture pre-image")
	}
	return dst, nil
}

// Quarantine moves path into the vault (clone-mode deletion) and returns
// the vault path for the journal's delete_file backup field.
func (v *Rollback) Quarantine(path string) (string, error) {
	dst := filepath.Join(v.root, mirrorRel(v.destRoot, path))
	return moveInto(path, dst)
}

// SafetyNet is the date-partitioned quarantine:
// <dst_root>/.SafetyNet/<YYYY-MM-DD>/.
type SafetyNet struct {
	destRoot string
	root     string
}

// NewSafetyNet partitions the net by the run date.
func NewSafetyNet(destRoot string, day time.Time) *SafetyNet {
	return &SafetyNet{
		destRoot: destRoot,
		root:     filepath.Join(destRoot, pathutil.SafetyNetDirName, day.Format("2006-01-02")),
	}
}

// Root returns the day's SafetyNet directory.
func (s *SafetyNet) Root() string { return s.root }

// Quarantine moves path into the day's net and returns its new location.
func (s *SafetyNet) Quarantine(path string) (string, error) {
	dst := filepath.Join(s.root, mirrorRel(s.destRoot, path))
	return moveInto(path, dst)
}

// mirrorRel maps an absolute path to its location inside a quarantine
// tree. Paths under the destination root keep their relative layout;
// anything else lands under external/<hash8>/ so a stray absolute path
// can never escape the quarantine.
func mirrorRel(destRoot, path string) string {
	rel, err := pathutil.RelUnder(destRoot, path)
	if err != nil {
		sum := sha256.Sum256([]byte(filepath.Dir(path)))
		return filepath.Join("external", hex.EncodeToString(sum[:4]), filepath.Base(path))
	}
	return rel
}

// moveInto renames src to dst, creating parents and resolving name
// collisions by appending a microsecond-precision suffix to the stem.
func moveInto(src, dst string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", errors.Wrap(err, "create quarantine directory")
	}
	if pathutil.Exists(dst) {
		dst = collisionName(dst)
	}
	if err := os.Rename(src, dst); err != nil {
		return "", errors.Wrap(err, "move into quarantine")
	}
	return dst, nil
}

// collisionName disambiguates a same-named quarantined file:
// stale.txt -> stale_20060102150405.000000.txt. Microsecond precision is
// sufficient for human-rate collisions.
func collisionName(dst string) string {
	ext := filepath.Ext(dst)
	stem := dst[:len(dst)-len(ext)]
	return fmt.Sprintf("%s_%s%s", stem, time.Now().Format("20060102150405.000000"), ext)
}

// copyPreserving copies contents, mode, and mtime. Pre-images feed
// rollback, which promises same sizes, mtimes, and content hashes after
// replay.
func copyPreserving(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, time.Now(), info.ModTime())
}
