// Package statedir defines the on-disk layout of engine state, grouped by
// config name so multiple configurations never collide:
//
//	<root>/<group>/journals/journal_<job>_<ts>.json
//	<root>/<group>/checkpoints/checkpoint_<job>.json
//	<root>/<group>/snapshots/<job>/snapshot_<ts>.json
//	<root>/<group>/snapshots/<job>/index.json
//	<root>/<group>/summaries/summary_<job>_<ts>.json
package statedir

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/Samuel-Jeong/DiskSyncPro/internal/pathutil"
)

// TimestampLayout is the run-timestamp format embedded in state file
// names, at second precision. Two runs of the same job that start within
// the same second get the same file names, and the later run's files
// replace the earlier run's.
const TimestampLayout = "20060102_150405"

// Paths resolves every state-file location for one config group.
type Paths struct {
	Root  string
	Group string
}

func (p Paths) groupDir() string {
	return filepath.Join(p.Root, p.Group)
}

func (p Paths) JournalsDir() string {
	return filepath.Join(p.groupDir(), "journals")
}

func (p Paths) JournalFile(job, ts string) string {
	return filepath.Join(p.JournalsDir(), fmt.Sprintf("journal_%s_%s.json", job, ts))
}

func (p Paths) CheckpointsDir() string {
	return filepath.Join(p.groupDir(), "checkpoints")
}

func (p Paths) CheckpointFile(job string) string {
	return filepath.Join(p.CheckpointsDir(), fmt.Sprintf("checkpoint_%s.json", job))
}

func (p Paths) SnapshotsDir(job string) string {
	return filepath.Join(p.groupDir(), "snapshots", job)
}

func (p Paths) SnapshotFile(job, ts string) string {
	return filepath.Join(p.SnapshotsDir(job), fmt.Sprintf("snapshot_%s.json", ts))
}

func (p Paths) IndexFile(job string) string {
	return filepath.Join(p.SnapshotsDir(job), "index.json")
}

func (p Paths) SummariesDir() string {
	return filepath.Join(p.groupDir(), "summaries")
}

func (p Paths) SummaryFile(job, ts string) string {
	return filepath.Join(p.SummariesDir(), fmt.Sprintf("summary_%s_%s.json", job, ts))
}

// EnsureDirs creates the group's state directories. Called once per run
// so later state writes only ever contend with their own temp+rename.
func (p Paths) EnsureDirs(jobs []string) error {
	dirs := []string{p.JournalsDir(), p.CheckpointsDir(), p.SummariesDir()}
	for _, job := range jobs {
		dirs = append(dirs, p.SnapshotsDir(job))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create state dir %s", dir)
		}
	}
	return nil
}

// MetaDir is the reserved subtree inside a destination root that mirrors
// journals, snapshots, and summaries next to the replicated data.
func MetaDir(destRoot string) string {
	return filepath.Join(destRoot, pathutil.MetaDirName)
}

// ListJournals returns the journal files recorded for a job (or all jobs
// when job is empty), newest first by the timestamp embedded in each
// name; journals with the same timestamp are ordered by name, descending.
func (p Paths) ListJournals(job string) ([]string, error) {
	entries, err := os.ReadDir(p.JournalsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read journals dir")
	}

	prefix := "journal_"
	if job != "" {
		prefix = fmt.Sprintf("journal_%s_", job)
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		// With a job filter the rest of the name must be the timestamp
		// alone, so "photos" does not pick up "photos_raw" journals.
		if job != "" && len(strings.TrimSuffix(name[len(prefix):], ".json")) != len(TimestampLayout) {
			continue
		}
		out = append(out, filepath.Join(p.JournalsDir(), name))
	}
	stamp := func(path string) string {
		stem := strings.TrimSuffix(filepath.Base(path), ".json")
		if len(stem) < len(TimestampLayout) {
			return stem
		}
		return stem[len(stem)-len(TimestampLayout):]
	}
	sort.Slice(out, func(i, j int) bool {
		if si, sj := stamp(out[i]), stamp(out[j]); si != sj {
			return si > sj
		}
		return out[i] > out[j]
	})
	return out, nil
}
