// Package pathutil holds the path predicates shared by the planner, the
// cleanup pass, and the quarantine stores: exclusion matching, reserved
// directory names, relative-path containment, and small directory probes.
package pathutil

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Reserved directory names inside a destination root. The planner and the
// cleanup pass never descend into these.
const (
	MetaDirName      = ".DiskSyncPro"
	RollbackDirName  = ".Rollback"
	SafetyNetDirName = ".SafetyNet"
)

// ErrPathEscapesRoot is returned when a path is not contained within the
// expected root. Callers must not mutate anything when this is returned.
var ErrPathEscapesRoot = errors.New("path escapes root")

// IsReservedName reports whether a path component names one of the
// destination-side trees the engine owns.
func IsReservedName(name string) bool {
	switch name {
	case MetaDirName, RollbackDirName, SafetyNetDirName:
		return true
	}
	return false
}

// Excluded reports whether path matches any of the exclusion patterns.
//
// A path is excluded when its final component equals a pattern string, or
// when the final component or the full logical path matches a pattern as a
// shell-style glob. Matching is case-sensitive and evaluated against the
// path as given, never against a filesystem-resolved path. A malformed
// glob pattern matches nothing.
func Excluded(path string, patterns []string) bool {
	base := filepath.Base(path)
	for _, pat := range patterns {
		if pat == "" {
			continue
		}
		if base == pat {
			return true
		}
		if ok, err := filepath.Match(pat, base); err == nil && ok {
			return true
		}
		if ok, err := filepath.Match(pat, path); err == nil && ok {
			return true
		}
	}
	return false
}

// RelUnder returns path relative to root, rejecting any result that would
// escape root. Cleaned traversal inside root (a/../b) is allowed.
func RelUnder(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", errors.Wrap(err, "relativize path")
	}
	rel = filepath.Clean(rel)
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrPathEscapesRoot
	}
	return rel, nil
}

// IsDescendant reports whether path sits strictly under root.
func IsDescendant(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	rel = filepath.Clean(rel)
	if rel == "." || rel == ".." {
		return false
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// SamePath compares two filesystem paths for equality after resolving both
// to absolute form. Comparison is case-insensitive so Windows-style paths
// compare sanely; on failure to resolve either side it returns false and
// callers should treat the paths as distinct.
func SamePath(a, b string) bool {
	pa, err1 := filepath.Abs(a)
	pb, err2 := filepath.Abs(b)
	if err1 != nil || err2 != nil {
		return false
	}
	return strings.EqualFold(pa, pb)
}

// IsDirEmpty reports whether a directory contains zero entries. Reads only
// the immediate entries; errors are returned so callers can stay
// conservative (a directory that cannot be read is never removed).
func IsDirEmpty(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}

// Exists reports whether anything is present at path. Errors other than
// "not exist" (permissions, transient share failures) are treated as
// "exists" so callers never clobber paths they cannot inspect.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	if err == nil {
		return true
	}
	return !os.IsNotExist(err)
}
