package app

import (
	"os"
	"sort"

	"github.com/pkg/errors"

	"github.com/Samuel-Jeong/DiskSyncPro/internal/journal"
	"github.com/Samuel-Jeong/DiskSyncPro/internal/snapshot"
	"github.com/Samuel-Jeong/DiskSyncPro/internal/statedir"
)

// JournalInfo is one row of the journals listing.
type JournalInfo struct {
	Path      string
	Job       string
	Timestamp string
	Status    journal.Status
	Ops       int
}

// ListJournals loads every readable journal for a job (or all jobs when
// job is empty), newest first. Unreadable files are skipped; a listing
// should not fail because one historical file is damaged.
func ListJournals(paths statedir.Paths, job string) ([]JournalInfo, error) {
	files, err := paths.ListJournals(job)
	if err != nil {
		return nil, err
	}

	out := make([]JournalInfo, 0, len(files))
	for _, path := range files {
		j, err := journal.Load(path)
		if err != nil {
			continue
		}
		out = append(out, JournalInfo{
			Path:      path,
			Job:       j.Job,
			Timestamp: j.Timestamp,
			Status:    j.Status,
			Ops:       j.Len(),
		})
	}
	return out, nil
}

// ListSnapshots returns the accumulated snapshot index entries for a
// job, newest first.
func ListSnapshots(paths statedir.Paths, job string) ([]snapshot.IndexEntry, error) {
	if job == "" {
		return nil, errors.New("snapshot listing requires a job name")
	}
	idx, err := snapshot.LoadIndex(paths.IndexFile(job), job)
	if err != nil {
		return nil, err
	}
	entries := append([]snapshot.IndexEntry(nil), idx.Snapshots...)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp > entries[j].Timestamp
	})
	return entries, nil
}

// Jobs returns the job names that have any snapshot state on disk, used
// when listing snapshots without a job filter.
func Jobs(paths statedir.Paths) ([]string, error) {
	entries, err := os.ReadDir(paths.SnapshotsDir(""))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read snapshots dir")
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
