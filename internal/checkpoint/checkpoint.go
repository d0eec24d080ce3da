// Package checkpoint persists per-job resume state between runs: the set
// of processed files, the set of completed directories, and the true
// processed total.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	StatusIncomplete = "incomplete"
	StatusComplete   = "complete"
)

// saveEvery batches persistence: one save per this many successful file
// completions, plus explicit saves at stage boundaries.
const saveEvery = 100

// maxPersistedFiles caps the on-disk processed-files list to the most
// recent entries. TotalProcessed keeps the true count; the completed-dirs
// set is the authoritative resume signal, and any file-level entry lost
// to truncation is harmless because same-file detection re-skips it.
const maxPersistedFiles = 1000

// fileState is the serialized form.
type fileState struct {
	Job            string   `json:"job"`
	Status         string   `json:"status"`
	TotalProcessed int      `json:"total_processed"`
	ProcessedFiles []string `json:"processed_files"`
	CompletedDirs  []string `json:"completed_dirs"`
}

// Checkpoint is the in-memory resume state for one job. Workers mutate it
// under its internal mutex; the planner reads it through the same mutex.
type Checkpoint struct {
	path string
	log  logrus.FieldLogger

	mu             sync.Mutex
	job            string
	status         string
	totalProcessed int
	processed      map[string]struct{}
	processedOrder []string
	completedDirs  map[string]struct{}
	dirOrder       []string
	sinceSave      int
}

// Load reads the checkpoint for a job, or returns a fresh one when none
// exists. A corrupt or unreadable file is renamed aside with a
// .corrupt.<timestamp> suffix and treated as absent — a partially written
// checkpoint must never prevent progress. A checkpoint whose previous run
// finished (status complete) also loads as fresh.
func Load(path, job string, log logrus.FieldLogger) *Checkpoint {
	cp := &Checkpoint{
		path:          path,
		log:           log,
		job:           job,
		status:        StatusIncomplete,
		processed:     make(map[string]struct{}),
		completedDirs: make(map[string]struct{}),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			moveAside(path, log)
		}
		return cp
	}

	var st fileState
	if err := json.Unmarshal(data, &st); err != nil || st.Job != job {
		moveAside(path, log)
		return cp
	}
	if st.Status == StatusComplete {
		return cp
	}

	cp.totalProcessed = st.TotalProcessed
	for _, rel := range st.ProcessedFiles {
		if _, dup := cp.processed[rel]; !dup {
			cp.processed[rel] = struct{}{}
			cp.processedOrder = append(cp.processedOrder, rel)
		}
	}
	for _, rel := range st.CompletedDirs {
		if _, dup := cp.completedDirs[rel]; !dup {
			cp.completedDirs[rel] = struct{}{}
			cp.dirOrder = append(cp.dirOrder, rel)
		}
	}
	return cp
}

// Fresh discards any prior resume state and starts a new checkpoint for
// the job. Used for non-resume runs so a fresh run never inherits stale
// processed sets.
func Fresh(path, job string, log logrus.FieldLogger) *Checkpoint {
	return &Checkpoint{
		path:          path,
		log:           log,
		job:           job,
		status:        StatusIncomplete,
		processed:     make(map[string]struct{}),
		completedDirs: make(map[string]struct{}),
	}
}

func moveAside(path string, log logrus.FieldLogger) {
	aside := fmt.Sprintf("%s.corrupt.%d", path, time.Now().Unix())
	if err := os.Rename(path, aside); err != nil && !os.IsNotExist(err) {
		log.Warnf("could not move corrupt checkpoint aside: %v", err)
		return
	}
	log.WithField("moved_to", aside).Warn("corrupt checkpoint moved aside, resuming from scratch")
}

// IsProcessed reports whether a relative file path finished in a previous
// run (or earlier in this one).
func (c *Checkpoint) IsProcessed(rel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.processed[rel]
	return ok
}

// IsDirCompleted reports whether a directory subtree can be pruned from
// traversal entirely.
func (c *Checkpoint) IsDirCompleted(rel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.completedDirs[rel]
	return ok
}

// MarkProcessed records one completed file and triggers a batched save
// every saveEvery completions.
func (c *Checkpoint) MarkProcessed(rel string) {
	c.mu.Lock()
	if _, dup := c.processed[rel]; !dup {
		c.processed[rel] = struct{}{}
		c.processedOrder = append(c.processedOrder, rel)
		c.totalProcessed++
	}
	c.sinceSave++
	flush := c.sinceSave >= saveEvery
	if flush {
		c.sinceSave = 0
	}
	c.mu.Unlock()

	if flush {
		c.Save()
	}
}

// MarkDirCompleted promotes a directory after the planner found every one
// of its files processed or excluded.
func (c *Checkpoint) MarkDirCompleted(rel string) {
	c.mu.Lock()
	if _, dup := c.completedDirs[rel]; !dup {
		c.completedDirs[rel] = struct{}{}
		c.dirOrder = append(c.dirOrder, rel)
	}
	c.mu.Unlock()
}

// TotalProcessed returns the true number of files processed across runs,
// independent of on-disk truncation.
func (c *Checkpoint) TotalProcessed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalProcessed
}

// MarkComplete flips the checkpoint to complete; the next load starts
// with logically empty sets.
func (c *Checkpoint) MarkComplete() {
	c.mu.Lock()
	c.status = StatusComplete
	c.mu.Unlock()
}

// Save persists the checkpoint atomically (temp-write + fsync + rename).
// The processed-files list is truncated to the newest maxPersistedFiles
// entries for size control; TotalProcessed reflects the true total. Write
// failures are logged and swallowed — the run continues, and the next
// successful save re-establishes durability.
func (c *Checkpoint) Save() {
	c.mu.Lock()
	files := c.processedOrder
	if len(files) > maxPersistedFiles {
		files = files[len(files)-maxPersistedFiles:]
	}
	st := fileState{
		Job:            c.job,
		Status:         c.status,
		TotalProcessed: c.totalProcessed,
		ProcessedFiles: append([]string(nil), files...),
		CompletedDirs:  append([]string(nil), c.dirOrder...),
	}
	c.mu.Unlock()

	data, err := json.MarshalIndent(&st, "", "  ")
	if err != nil {
		c.log.Errorf("marshal checkpoint: %v", err)
		return
	}
	data = append(data, '\n')
	if err := renameio.WriteFile(c.path, data, 0o644); err != nil {
		c.log.Errorf("write checkpoint: %v", errors.Wrap(err, c.path))
	}
}
