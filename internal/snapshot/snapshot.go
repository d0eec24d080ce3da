// Package snapshot emits the post-run artifacts: a per-file manifest of
// the destination tree, an accumulating index of historical manifests,
// and a run summary carrying the statistics counters. It also defines
// the serialized schema for counters and stage records.
package snapshot

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Samuel-Jeong/DiskSyncPro/internal/fscopy"
	"github.com/Samuel-Jeong/DiskSyncPro/internal/pathutil"
)

// Counters are the run statistics. The engine increments them under its
// stats mutex; here they are the wire form for summaries.
type Counters struct {
	CreatedFiles    int64 `json:"created_files"`
	ReplacedFiles   int64 `json:"replaced_files"`
	DeletedFiles    int64 `json:"deleted_files"`
	SafetyNetFiles  int64 `json:"safetynet_files"`
	CreatedDirs     int64 `json:"created_dirs"`
	SkippedSame     int64 `json:"skipped_same"`
	SkippedExcluded int64 `json:"skipped_excluded"`
	CopyFailed      int64 `json:"copy_failed"`
}

// StageRecord is one orchestrator stage as persisted in summaries.
type StageRecord struct {
	Name           string `json:"name"`
	Status         string `json:"status"`
	StartedAt      string `json:"started_at,omitempty"`
	EndedAt        string `json:"ended_at,omitempty"`
	ItemsTotal     int64  `json:"items_total"`
	ItemsProcessed int64  `json:"items_processed"`
}

// Entry is one regular file in a manifest.
type Entry struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	MTime  int64  `json:"mtime"`
	SHA256 string `json:"sha256,omitempty"`
}

// Manifest records the destination tree after a successful run.
type Manifest struct {
	Job       string  `json:"job"`
	Timestamp string  `json:"timestamp"`
	DestRoot  string  `json:"dest_root"`
	Files     []Entry `json:"files"`
}

// IndexEntry references one historical manifest of a job.
type IndexEntry struct {
	Timestamp string `json:"timestamp"`
	File      string `json:"file"`
	FileCount int    `json:"file_count"`
	TotalSize int64  `json:"total_size"`
}

// Index accumulates references to all snapshots of a job.
type Index struct {
	Job       string       `json:"job"`
	Snapshots []IndexEntry `json:"snapshots"`
}

// Summary is the per-run statistics artifact.
type Summary struct {
	Job             string        `json:"job"`
	Mode            string        `json:"mode"`
	Timestamp       string        `json:"timestamp"`
	Source          string        `json:"source"`
	Destination     string        `json:"destination"`
	Status          string        `json:"status"`
	DurationSeconds float64       `json:"duration_seconds"`
	Stats           Counters      `json:"stats"`
	Stages          []StageRecord `json:"stages"`
}

// BuildManifest walks the destination tree and collects one entry per
// regular file, skipping the reserved meta trees and excluded patterns.
// When withHash is set each file is SHA-256'd. Per-file stat or hash
// failures are logged and the file is dropped from the manifest; a
// manifest is an observation, not a mutation, so nothing is fatal here.
func BuildManifest(job, timestamp, destRoot string, exclude []string, withHash bool, log logrus.FieldLogger) (*Manifest, error) {
	m := &Manifest{
		Job:       job,
		Timestamp: timestamp,
		DestRoot:  destRoot,
		Files:     []Entry{},
	}

	err := filepath.WalkDir(destRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warnf("manifest walk error at %s: %v", path, err)
			return nil
		}
		if d.IsDir() {
			if path != destRoot && pathutil.IsReservedName(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, relErr := filepath.Rel(destRoot, path)
		if relErr != nil {
			return nil
		}
		if pathutil.Excluded(rel, exclude) {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			log.Warnf("manifest stat failed for %s: %v", path, infoErr)
			return nil
		}
		entry := Entry{
			Path:  filepath.ToSlash(rel),
			Size:  info.Size(),
			MTime: info.ModTime().Unix(),
		}
		if withHash {
			sum, hashErr := fscopy.HashFile(path)
			if hashErr != nil {
				log.Warnf("manifest hash failed for %s: %v", path, hashErr)
				return nil
			}
			entry.SHA256 = sum
		}
		m.Files = append(m.Files, entry)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "walk destination")
	}
	return m, nil
}

// TotalSize sums the manifest's file sizes.
func (m *Manifest) TotalSize() int64 {
	var total int64
	for _, f := range m.Files {
		total += f.Size
	}
	return total
}

// Write persists the manifest to each path atomically.
func (m *Manifest) Write(paths ...string) error {
	return writeJSON(m, paths...)
}

// Write persists the summary to each path atomically.
func (s *Summary) Write(paths ...string) error {
	return writeJSON(s, paths...)
}

// AppendToIndex loads the job's index (absent means empty), appends a
// reference to the new manifest, and writes it back atomically.
func AppendToIndex(indexPath, job string, entry IndexEntry) error {
	idx := Index{Job: job, Snapshots: []IndexEntry{}}

	data, err := os.ReadFile(indexPath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &idx); err != nil {
			return errors.Wrapf(err, "parse index %s", indexPath)
		}
	case os.IsNotExist(err):
	default:
		return errors.Wrap(err, "read index")
	}

	idx.Snapshots = append(idx.Snapshots, entry)
	return writeJSON(&idx, indexPath)
}

// LoadIndex reads a job's snapshot index. Absent means empty.
func LoadIndex(indexPath, job string) (*Index, error) {
	idx := Index{Job: job, Snapshots: []IndexEntry{}}
	data, err := os.ReadFile(indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &idx, nil
		}
		return nil, errors.Wrap(err, "read index")
	}
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, errors.Wrapf(err, "parse index %s", indexPath)
	}
	return &idx, nil
}

func writeJSON(v any, paths ...string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal artifact")
	}
	data = append(data, '\n')

	var firstErr error
	for _, path := range paths {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "create artifact dir for %s", path)
			}
			continue
		}
		if err := renameio.WriteFile(path, data, 0o644); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "write artifact %s", path)
		}
	}
	return firstErr
}
