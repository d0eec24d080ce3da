// Package fscopy implements the atomic file copier: temp-sibling write,
// fsync, same-directory rename, optional SHA-256 verification, and a
// small capped retry loop.
package fscopy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// MaxAttempts is the total number of tries per file. After the last
// failure the file is skipped; a single bad file never fails the run.
const MaxAttempts = 3

// copyBufSize balances memory usage and throughput for streaming copies.
const copyBufSize = 256 * 1024

// ErrNotRegular is returned for symbolic links and other non-regular
// source files. They are never followed and never copied.
var ErrNotRegular = errors.New("source is not a regular file")

// ErrVerifyMismatch is returned when post-copy SHA-256 verification finds
// the destination differing from the source.
var ErrVerifyMismatch = errors.New("post-copy hash verification mismatch")

// Copier copies single files atomically.
//
// Contract: a reader of dst never observes a partially written state. The
// copy is staged in a hidden sibling of dst and renamed over it; the
// rename is always a same-directory operation.
type Copier struct {
	// Verify enables a SHA-256 round-trip of source and destination after
	// the rename. Mismatch counts as a failed attempt.
	Verify bool

	Log logrus.FieldLogger

	// hashFn overrides destination hashing in tests. Nil means HashFile.
	hashFn func(path string) (string, error)
}

func (c *Copier) hashDst(path string) (string, error) {
	if c.hashFn != nil {
		return c.hashFn(path)
	}
	return HashFile(path)
}

// Copy produces at dst a byte-identical copy of src, preserving mode and
// modification time, retrying up to MaxAttempts times with a short capped
// backoff. Between attempts any leftover temporary sibling is removed.
func (c *Copier) Copy(ctx context.Context, src, dst string) error {
	var lastErr error

	for attempt := 0; attempt < MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.copyOnce(src, dst)
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrNotRegular) {
			return err
		}

		if attempt < MaxAttempts-1 {
			backoff := backoffForAttempt(attempt)
			c.Log.WithFields(logrus.Fields{
				"src":     src,
				"attempt": attempt + 1,
				"backoff": backoff.String(),
			}).Warnf("copy failed: %v, retrying", err)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return errors.Wrapf(lastErr, "copy failed after %d attempts", MaxAttempts)
}

// backoffForAttempt returns the wait before retrying a failed copy.
// Intentionally small and capped: runs should recover from brief glitches
// quickly rather than stall for minutes.
func backoffForAttempt(attempt int) time.Duration {
	switch attempt {
	case 0:
		return 250 * time.Millisecond
	default:
		return 1 * time.Second
	}
}

// copyOnce performs one staged copy attempt.
func (c *Copier) copyOnce(src, dst string) (err error) {
	srcInfo, err := os.Lstat(src)
	if err != nil {
		return errors.Wrap(err, "stat source")
	}
	if !srcInfo.Mode().IsRegular() {
		return ErrNotRegular
	}

	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "open source")
	}
	defer in.Close()

	tmp := tempSibling(dst)
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return errors.Wrap(err, "create temp sibling")
	}

	// On any failure past this point the sibling must not survive.
	renamed := false
	defer func() {
		_ = out.Close()
		if !renamed {
			_ = os.Remove(tmp)
		}
	}()

	buf := make([]byte, copyBufSize)
	if _, err := io.CopyBuffer(out, in, buf); err != nil {
		return errors.Wrap(err, "write temp sibling")
	}
	if err := out.Sync(); err != nil {
		return errors.Wrap(err, "sync temp sibling")
	}
	// Close before rename; Windows requires the handle released.
	if err := out.Close(); err != nil {
		return errors.Wrap(err, "close temp sibling")
	}

	if err := os.Chmod(tmp, srcInfo.Mode().Perm()); err != nil {
		return errors.Wrap(err, "preserve mode")
	}
	if err := os.Chtimes(tmp, time.Now(), srcInfo.ModTime()); err != nil {
		return errors.Wrap(err, "preserve mtime")
	}

	if err := os.Rename(tmp, dst); err != nil {
		return errors.Wrap(err, "rename over destination")
	}
	renamed = true

	if c.Verify {
		srcSum, err := HashFile(src)
		if err != nil {
			return errors.Wrap(err, "hash source")
		}
		dstSum, err := c.hashDst(dst)
		if err != nil {
			return errors.Wrap(err, "hash destination")
		}
		if srcSum != dstSum {
			return ErrVerifyMismatch
		}
	}

	return nil
}

// tempSibling derives the staging name for dst: a hidden sibling in the
// same directory, suffixed with the pid and a fresh random component so
// concurrent processes and retries never collide.
func tempSibling(dst string) string {
	dir, base := filepath.Split(dst)
	suffix := uuid.NewString()[:8]
	return filepath.Join(dir, fmt.Sprintf(".%s.%d-%s.tmp", base, os.Getpid(), suffix))
}

// HashFile returns the lowercase hex SHA-256 digest of a file's contents.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, copyBufSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SameFile reports whether a source/destination pair should be treated as
// already reconciled: equal size and equal integer-second modification
// time. This is the default change detector; content hashing is opt-in
// via Copier.Verify.
func SameFile(srcInfo, dstInfo os.FileInfo) bool {
	if srcInfo.Size() != dstInfo.Size() {
		return false
	}
	return srcInfo.ModTime().Unix() == dstInfo.ModTime().Unix()
}
