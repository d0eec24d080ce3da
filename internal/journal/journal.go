// Package journal records every destination mutation of a run as an
// ordered, durable log that permits reverse replay.
package journal

import (
	"encoding/json"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/pkg/errors"
)

// Action identifies one kind of undoable mutation.
type Action string

const (
	ActionCreateFile  Action = "create_file"
	ActionReplaceFile Action = "replace_file"
	ActionDeleteFile  Action = "delete_file"
	ActionCreateDir   Action = "create_dir"
)

// Status is the lifecycle state of a run's journal. Transitions are
// monotonic: a journal leaves pending for one of the other states and
// never returns to pending. A later manual rollback can still move a
// journal that is not already rolled back on to rolled_back or
// rollback_failed.
type Status string

const (
	StatusPending        Status = "pending"
	StatusSuccess        Status = "success"
	StatusCancelled      Status = "cancelled"
	StatusRolledBack     Status = "rolled_back"
	StatusRollbackFailed Status = "rollback_failed"
)

// Op is one committed mutation. Created only after the underlying
// filesystem change is known to have succeeded; never mutated afterwards.
// Backup is set only when reversal requires a restore source.
type Op struct {
	Action Action `json:"action"`
	Target string `json:"target"`
	Backup string `json:"backup,omitempty"`
}

// Journal is the ordered op log for one run plus its header. Ops appear
// in the order their mutations were committed; Append serializes the
// racing workers so journal order matches filesystem commit order.
type Journal struct {
	Job       string `json:"job"`
	Timestamp string `json:"timestamp"`
	DestRoot  string `json:"dest_root"`
	VaultRoot string `json:"vault_root"`
	Status    Status `json:"status"`
	Ops       []Op   `json:"ops"`

	mu sync.Mutex
}

// New starts a pending journal for one run.
func New(job, timestamp, destRoot, vaultRoot string) *Journal {
	return &Journal{
		Job:       job,
		Timestamp: timestamp,
		DestRoot:  destRoot,
		VaultRoot: vaultRoot,
		Status:    StatusPending,
		Ops:       []Op{},
	}
}

// Append records one committed op. Callers must only append after the
// filesystem mutation has returned success; the mutex here is what makes
// op order equal commit order under parallel workers.
func (j *Journal) Append(op Op) {
	j.mu.Lock()
	j.Ops = append(j.Ops, op)
	j.mu.Unlock()
}

// SetStatus moves the journal to a terminal state.
func (j *Journal) SetStatus(s Status) {
	j.mu.Lock()
	j.Status = s
	j.mu.Unlock()
}

// Len returns the number of recorded ops.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.Ops)
}

// snapshotOps copies the op list so replay and persistence never race a
// late Append.
func (j *Journal) snapshotOps() []Op {
	j.mu.Lock()
	defer j.mu.Unlock()
	ops := make([]Op, len(j.Ops))
	copy(ops, j.Ops)
	return ops
}

// Save persists the journal to every given path using temp-write + fsync
// + rename, so a crash leaves either the old file or the new one, never a
// torn write. The first failure is returned after all paths were tried;
// state-file write failures are non-fatal to a run and the next
// successful save re-establishes durability.
func (j *Journal) Save(paths ...string) error {
	j.mu.Lock()
	data, err := json.MarshalIndent(j, "", "  ")
	j.mu.Unlock()
	if err != nil {
		return errors.Wrap(err, "marshal journal")
	}
	data = append(data, '\n')

	var firstErr error
	for _, path := range paths {
		if err := renameio.WriteFile(path, data, 0o644); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "write journal %s", path)
		}
	}
	return firstErr
}

// Load reads a journal and validates its header. Unknown action strings
// are preserved verbatim; only the replayer narrows them.
func Load(path string) (*Journal, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}

	var j Journal
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, errors.Wrapf(err, "parse journal %s", path)
	}
	if j.Job == "" || j.Timestamp == "" || j.DestRoot == "" {
		return nil, errors.Errorf("journal %s: incomplete header", path)
	}
	switch j.Status {
	case StatusPending, StatusSuccess, StatusCancelled, StatusRolledBack, StatusRollbackFailed:
	default:
		return nil, errors.Errorf("journal %s: unknown status %q", path, j.Status)
	}
	return &j, nil
}
