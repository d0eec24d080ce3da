package vault

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRollback_CaptureKeepsOriginal(t *testing.T) {
	dst := t.TempDir()
	v := NewRollback(dst, "photos", "20250115_120000")
	require.Equal(t, filepath.Join(dst, ".Rollback", "photos_20250115_120000"), v.Root())

	target := filepath.Join(dst, "sub", "a.txt")
	mustWrite(t, target, "OLD")
	mtime := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(target, mtime, mtime))

	backup, err := v.Capture(target)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(v.Root(), "sub", "a.txt"), backup)

	// Capture is a copy: the live file stays until the rename replaces it.
	require.FileExists(t, target)
	data, err := os.ReadFile(backup)
	require.NoError(t, err)
	require.Equal(t, "OLD", string(data))

	info, err := os.Stat(backup)
	require.NoError(t, err)
	require.Equal(t, mtime.Unix(), info.ModTime().Unix())
}

func TestRollback_QuarantineMoves(t *testing.T) {
	dst := t.TempDir()
	v := NewRollback(dst, "photos", "ts")

	target := filepath.Join(dst, "stale.txt")
	mustWrite(t, target, "STALE")

	moved, err := v.Quarantine(target)
	require.NoError(t, err)
	require.NoFileExists(t, target)
	data, err := os.ReadFile(moved)
	require.NoError(t, err)
	require.Equal(t, "STALE", string(data))
}

func TestSafetyNet_DatePartitionAndMirroredPath(t *testing.T) {
	dst := t.TempDir()
	day := time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)
	net := NewSafetyNet(dst, day)
	require.Equal(t, filepath.Join(dst, ".SafetyNet", "2025-01-15"), net.Root())

	target := filepath.Join(dst, "docs", "stale.txt")
	mustWrite(t, target, "X")

	moved, err := net.Quarantine(target)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(net.Root(), "docs", "stale.txt"), moved)
	require.NoFileExists(t, target)
}

func TestSafetyNet_CollisionGetsSuffix(t *testing.T) {
	dst := t.TempDir()
	net := NewSafetyNet(dst, time.Now())

	first := filepath.Join(dst, "stale.txt")
	mustWrite(t, first, "one")
	moved1, err := net.Quarantine(first)
	require.NoError(t, err)

	second := filepath.Join(dst, "stale.txt")
	mustWrite(t, second, "two")
	moved2, err := net.Quarantine(second)
	require.NoError(t, err)

	require.NotEqual(t, moved1, moved2)
	require.True(t, strings.HasPrefix(filepath.Base(moved2), "stale_"))
	require.Equal(t, ".txt", filepath.Ext(moved2))

	data, err := os.ReadFile(moved1)
	require.NoError(t, err)
	require.Equal(t, "one", string(data))
	data, err = os.ReadFile(moved2)
	require.NoError(t, err)
	require.Equal(t, "two", string(data))
}

func TestMirrorRel_ExternalPathsCannotEscape(t *testing.T) {
	dst := t.TempDir()
	outside := filepath.Join(t.TempDir(), "elsewhere", "file.txt")

	rel := mirrorRel(dst, outside)
	require.True(t, strings.HasPrefix(rel, "external"+string(filepath.Separator)))
	require.Equal(t, "file.txt", filepath.Base(rel))
	require.False(t, strings.Contains(rel, ".."))

	// Same directory maps to the same bucket.
	sibling := filepath.Join(filepath.Dir(outside), "other.txt")
	require.Equal(t, filepath.Dir(rel), filepath.Dir(mirrorRel(dst, sibling)))
}
