package journal

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Samuel-Jeong/DiskSyncPro/internal/logging"
)

func newTestJournal() *Journal {
	return New("photos", "20250115_120000", "/dst", "/dst/.Rollback/photos_20250115_120000")
}

func TestJournal_AppendPreservesOrder(t *testing.T) {
	j := newTestJournal()
	j.Append(Op{Action: ActionCreateDir, Target: "/dst/b"})
	j.Append(Op{Action: ActionCreateFile, Target: "/dst/a.txt"})
	j.Append(Op{Action: ActionCreateFile, Target: "/dst/b/c.txt"})

	require.Equal(t, 3, j.Len())
	require.Equal(t, ActionCreateDir, j.Ops[0].Action)
	require.Equal(t, "/dst/a.txt", j.Ops[1].Target)
	require.Equal(t, "/dst/b/c.txt", j.Ops[2].Target)
}

func TestJournal_ConcurrentAppendKeepsAll(t *testing.T) {
	j := newTestJournal()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < 100; k++ {
				j.Append(Op{Action: ActionCreateFile, Target: "/dst/x"})
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1600, j.Len())
}

func TestJournal_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal_photos_20250115_120000.json")

	j := newTestJournal()
	j.Append(Op{Action: ActionCreateFile, Target: "/dst/a.txt"})
	j.Append(Op{Action: ActionReplaceFile, Target: "/dst/b.txt", Backup: "/dst/.Rollback/photos_20250115_120000/b.txt"})
	j.SetStatus(StatusSuccess)
	require.NoError(t, j.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, j.Job, loaded.Job)
	require.Equal(t, j.Timestamp, loaded.Timestamp)
	require.Equal(t, j.DestRoot, loaded.DestRoot)
	require.Equal(t, j.VaultRoot, loaded.VaultRoot)
	require.Equal(t, StatusSuccess, loaded.Status)
	require.Equal(t, j.Ops, loaded.Ops)

	// save(load(save(x))) must be byte-identical.
	first, err := os.ReadFile(path)
	require.NoError(t, err)
	path2 := filepath.Join(dir, "again.json")
	require.NoError(t, loaded.Save(path2))
	second, err := os.ReadFile(path2)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestJournal_SaveWritesAllPaths(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.json")
	b := filepath.Join(dir, "b.json")

	j := newTestJournal()
	require.NoError(t, j.Save(a, b))
	require.FileExists(t, a)
	require.FileExists(t, b)
}

func TestLoad_RejectsBadHeaders(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"not json", "not json at all"},
		{"missing job", `{"timestamp":"t","dest_root":"/d","status":"pending","ops":[]}`},
		{"unknown status", `{"job":"j","timestamp":"t","dest_root":"/d","status":"exploded","ops":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestLoad_PreservesUnknownActions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "j.json")
	content := `{"job":"j","timestamp":"t","dest_root":"/d","vault_root":"/d/.Rollback/x","status":"pending","ops":[{"action":"transmogrify","target":"/d/a"}]}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	j, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Action("transmogrify"), j.Ops[0].Action)
}

func TestReplay_ReversesRun(t *testing.T) {
	dst := t.TempDir()
	vaultRoot := filepath.Join(dst, ".Rollback", "job_ts")

	// Simulate a committed run: a created dir with a created file, a
	// replaced file with its pre-image in the vault, and a quarantined
	// deletion.
	created := filepath.Join(dst, "new", "a.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(created), 0o755))
	require.NoError(t, os.WriteFile(created, []byte("A"), 0o644))

	replaced := filepath.Join(dst, "b.txt")
	require.NoError(t, os.WriteFile(replaced, []byte("NEW"), 0o644))
	preimage := filepath.Join(vaultRoot, "b.txt")
	require.NoError(t, os.MkdirAll(vaultRoot, 0o755))
	require.NoError(t, os.WriteFile(preimage, []byte("OLD"), 0o644))

	quarantined := filepath.Join(vaultRoot, "stale.txt")
	require.NoError(t, os.WriteFile(quarantined, []byte("STALE"), 0o644))
	deletedTarget := filepath.Join(dst, "stale.txt")

	j := New("job", "ts", dst, vaultRoot)
	j.Append(Op{Action: ActionCreateDir, Target: filepath.Join(dst, "new")})
	j.Append(Op{Action: ActionCreateFile, Target: created})
	j.Append(Op{Action: ActionReplaceFile, Target: replaced, Backup: preimage})
	j.Append(Op{Action: ActionDeleteFile, Target: deletedTarget, Backup: quarantined})

	res := Replay(j, logging.Discard())
	require.Equal(t, 4, res.Restored)
	require.Zero(t, res.Failed)

	require.NoFileExists(t, created)
	require.NoDirExists(t, filepath.Join(dst, "new"))

	data, err := os.ReadFile(replaced)
	require.NoError(t, err)
	require.Equal(t, "OLD", string(data))

	data, err = os.ReadFile(deletedTarget)
	require.NoError(t, err)
	require.Equal(t, "STALE", string(data))
}

func TestReplay_SkipsIrreversibleAndUnknownOps(t *testing.T) {
	dst := t.TempDir()
	j := New("job", "ts", dst, filepath.Join(dst, ".Rollback", "job_ts"))
	j.Append(Op{Action: ActionDeleteFile, Target: filepath.Join(dst, "gone-dir")})
	j.Append(Op{Action: Action("transmogrify"), Target: filepath.Join(dst, "x")})

	res := Replay(j, logging.Discard())
	require.Zero(t, res.Restored)
	require.Zero(t, res.Failed)
	require.Equal(t, 2, res.Skipped)
}

func TestReplay_CountsFailures(t *testing.T) {
	dst := t.TempDir()
	j := New("job", "ts", dst, filepath.Join(dst, ".Rollback", "job_ts"))
	j.Append(Op{Action: ActionReplaceFile, Target: filepath.Join(dst, "a"), Backup: filepath.Join(dst, "missing-backup")})

	res := Replay(j, logging.Discard())
	require.Equal(t, 1, res.Failed)
}
