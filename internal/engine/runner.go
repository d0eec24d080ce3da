// Package engine drives one reconciliation run through the four-stage
// pipeline: SCAN (plan + enqueue), COPY (drain the queue), CLEANUP
// (mode-dependent deletion), SNAPSHOT (manifest + summary). The journal,
// checkpoint, and rollback vault together form the run's durable state
// machine; on a fatal stage error the orchestrator replays the journal in
// reverse.
package engine

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Samuel-Jeong/DiskSyncPro/internal/checkpoint"
	"github.com/Samuel-Jeong/DiskSyncPro/internal/config"
	"github.com/Samuel-Jeong/DiskSyncPro/internal/fscopy"
	"github.com/Samuel-Jeong/DiskSyncPro/internal/journal"
	"github.com/Samuel-Jeong/DiskSyncPro/internal/snapshot"
	"github.com/Samuel-Jeong/DiskSyncPro/internal/statedir"
	"github.com/Samuel-Jeong/DiskSyncPro/internal/vault"
)

// Default queue and polling parameters. The bounded queue gives natural
// back-pressure: the planner blocks when workers fall behind. The short
// dequeue poll doubles as the workers' cancel check.
const (
	defaultQueueCapacity = 10000
	defaultPollInterval  = 500 * time.Millisecond
)

// Options configures one run.
type Options struct {
	Job   config.BackupJob
	State statedir.Paths
	Log   logrus.FieldLogger

	// Progress, if set, receives throttled (percent, processed, total)
	// updates.
	Progress ProgressFunc

	// CancelRequested is polled cooperatively; when it first returns
	// true the run stops in an orderly fashion and stays resumable.
	CancelRequested func() bool

	// Resume loads the job's checkpoint and skips completed work.
	Resume bool

	// DryRun plans and logs every action without mutating the
	// destination or any state file.
	DryRun bool

	// QueueCapacity and Workers override the defaults; zero picks them
	// automatically.
	QueueCapacity int
	Workers       int
	PollInterval  time.Duration
}

// Result is the terminal outcome of one run.
type Result struct {
	Status      journal.Status
	Stats       snapshot.Counters
	Stages      []snapshot.StageRecord
	JournalPath string
	Duration    time.Duration
}

// Runner executes one BackupJob. Not reusable across runs.
type Runner struct {
	opts      Options
	job       config.BackupJob
	log       logrus.FieldLogger
	timestamp string

	jrnl         *journal.Journal
	journalPaths []string
	cp           *checkpoint.Checkpoint
	stats        *Stats
	rollback     *vault.Rollback
	safetyNet    *vault.SafetyNet
	copier       *fscopy.Copier
	progress     *progressReporter
	stages       []*stage

	queue chan task
	poll  time.Duration

	// aborted is the orchestrator-side stop signal raised on a fatal
	// planner error, distinct from user cancellation.
	aborted atomic.Bool
}

type task struct {
	src string
	dst string
	rel string
}

// NewRunner wires a run's collaborators together.
func NewRunner(opts Options) *Runner {
	log := opts.Log
	if log == nil {
		log = logrus.New()
	}
	log = log.WithField("job", opts.Job.Name)

	ts := time.Now().Format(statedir.TimestampLayout)

	queueCap := opts.QueueCapacity
	if queueCap <= 0 {
		queueCap = defaultQueueCapacity
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}

	rb := vault.NewRollback(opts.Job.Destination, opts.Job.Name, ts)

	r := &Runner{
		opts:      opts,
		job:       opts.Job,
		log:       log,
		timestamp: ts,
		stats:     &Stats{},
		rollback:  rb,
		safetyNet: vault.NewSafetyNet(opts.Job.Destination, time.Now()),
		copier:    &fscopy.Copier{Verify: opts.Job.Verify, Log: log},
		progress:  newProgressReporter(opts.Progress),
		stages:    newStages(),
		queue:     make(chan task, queueCap),
		poll:      poll,
	}

	r.jrnl = journal.New(opts.Job.Name, ts, opts.Job.Destination, rb.Root())
	r.journalPaths = []string{
		opts.State.JournalFile(opts.Job.Name, ts),
		filepath.Join(statedir.MetaDir(opts.Job.Destination), "journals",
			filepath.Base(opts.State.JournalFile(opts.Job.Name, ts))),
	}
	return r
}

func (r *Runner) cancelled() bool {
	if r.aborted.Load() {
		return true
	}
	return r.opts.CancelRequested != nil && r.opts.CancelRequested()
}

func (r *Runner) userCancelled() bool {
	return r.opts.CancelRequested != nil && r.opts.CancelRequested()
}

// saveJournal persists both journal copies. Never called in dry-run.
// Failures are logged, not fatal: the next successful write
// re-establishes durability.
func (r *Runner) saveJournal() {
	if r.opts.DryRun {
		return
	}
	if err := r.jrnl.Save(r.journalPaths...); err != nil {
		r.log.Warnf("journal write failed: %v", err)
	}
}

func (r *Runner) saveCheckpoint() {
	if r.opts.DryRun {
		return
	}
	r.cp.Save()
}

// Run executes the pipeline and returns the terminal outcome. The error
// is non-nil for the rolled_back and rollback_failed outcomes, and when
// the destination or state directories cannot be created before the
// pipeline starts (the Result is then nil); cancellation is an orderly
// stop, not an error.
func (r *Runner) Run() (*Result, error) {
	start := time.Now()
	r.log.WithFields(logrus.Fields{
		"mode":   string(r.job.Mode),
		"source": r.job.Source,
		"dest":   r.job.Destination,
		"resume": r.opts.Resume,
		"dry":    r.opts.DryRun,
	}).Info("run starting")

	if err := r.ensureDirs(); err != nil {
		return nil, err
	}

	cpPath := r.opts.State.CheckpointFile(r.job.Name)
	if r.opts.Resume {
		r.cp = checkpoint.Load(cpPath, r.job.Name, r.log)
	} else {
		r.cp = checkpoint.Fresh(cpPath, r.job.Name, r.log)
	}

	scan, cp, cleanup, snap := r.stages[0], r.stages[1], r.stages[2], r.stages[3]

	// SCAN: count, then plan + enqueue while workers already drain.
	scan.start()
	total := r.countFiles()
	r.progress.setTotal(total)
	scan.itemsTotal.Store(total)

	workers := r.opts.Workers
	if workers <= 0 {
		workers = workerCount(total)
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.workerLoop()
		}()
	}

	planErr := r.plan(scan)
	close(r.queue)
	if planErr != nil {
		scan.fail()
		// Stop the drain before rolling back; more copies would only
		// lengthen the replay.
		r.aborted.Store(true)
		wg.Wait()
		return r.rollbackAndFinish(start, planErr)
	}
	scan.complete()
	r.saveJournal()

	// COPY: wait for the queue to drain.
	cp.start()
	cp.itemsTotal.Store(total)
	wg.Wait()
	cp.itemsProcessed.Store(r.progress.processedCount())
	r.saveCheckpoint()

	if r.userCancelled() {
		cp.fail()
		return r.finishCancelled(start)
	}
	cp.complete()
	r.saveJournal()

	// CLEANUP: destination-side deletion or quarantine, clone and
	// safety_net only.
	if r.job.Mode == config.ModeSync {
		cleanup.complete()
	} else {
		cleanup.start()
		if err := r.cleanupPass(cleanup); err != nil {
			cleanup.fail()
			return r.rollbackAndFinish(start, err)
		}
		if r.userCancelled() {
			cleanup.fail()
			return r.finishCancelled(start)
		}
		cleanup.complete()
		r.saveCheckpoint()
		r.saveJournal()
	}

	// SNAPSHOT: manifest + summary. Emission failures are state-file
	// write failures, logged and non-fatal.
	snap.start()
	r.jrnl.SetStatus(journal.StatusSuccess)
	if !r.opts.DryRun {
		r.emitSnapshot(snap)
	}
	snap.complete()

	r.cp.MarkComplete()
	r.saveCheckpoint()
	r.saveJournal()
	r.progress.finish()

	res := r.result(journal.StatusSuccess, start)
	r.writeSummary(res)
	r.log.WithField("duration", res.Duration.String()).Info("run succeeded")
	return res, nil
}

// ensureDirs creates the destination root, the state-directory layout,
// and the destination-side meta subtree before any state write. Dry runs
// touch nothing.
func (r *Runner) ensureDirs() error {
	if r.opts.DryRun {
		return nil
	}
	if err := os.MkdirAll(r.job.Destination, 0o755); err != nil {
		return errors.Wrap(err, "create destination root")
	}
	if err := r.opts.State.EnsureDirs([]string{r.job.Name}); err != nil {
		return err
	}
	meta := statedir.MetaDir(r.job.Destination)
	for _, sub := range []string{"journals", "snapshots", "summaries"} {
		if err := os.MkdirAll(filepath.Join(meta, sub), 0o755); err != nil {
			return errors.Wrap(err, "create destination meta dir")
		}
	}
	return nil
}

// finishCancelled records an orderly stop: later stages are failed by
// cancellation, the journal flips to cancelled, and the checkpoint is
// saved so a later run resumes where this one left off. No rollback.
func (r *Runner) finishCancelled(start time.Time) (*Result, error) {
	for _, st := range r.stages {
		if st.status == StagePending {
			st.fail()
		}
	}
	r.jrnl.SetStatus(journal.StatusCancelled)
	r.saveCheckpoint()
	r.saveJournal()
	r.log.Warn("run cancelled; state saved for resume")
	return r.result(journal.StatusCancelled, start), nil
}

// rollbackAndFinish replays the journal in reverse after a stage-fatal
// error. Replay failures are terminal: the journal is marked
// rollback_failed and the operator must intervene. Partial progress
// remains recorded in the checkpoint either way.
func (r *Runner) rollbackAndFinish(start time.Time, cause error) (*Result, error) {
	for _, st := range r.stages {
		if st.status == StagePending {
			st.fail()
		}
	}
	r.log.Errorf("fatal stage error, rolling back: %v", cause)

	status := journal.StatusRolledBack
	if !r.opts.DryRun {
		res := journal.Replay(r.jrnl, r.log)
		r.log.WithFields(logrus.Fields{
			"restored": res.Restored,
			"failed":   res.Failed,
			"skipped":  res.Skipped,
		}).Warn("rollback finished")
		if res.Failed > 0 {
			status = journal.StatusRollbackFailed
		}
	}

	r.jrnl.SetStatus(status)
	r.saveCheckpoint()
	r.saveJournal()

	if status == journal.StatusRollbackFailed {
		return r.result(status, start), errors.Wrap(cause, "run failed and rollback left residue (rollback_failed)")
	}
	return r.result(status, start), errors.Wrap(cause, "run failed, journal rolled back")
}

func (r *Runner) result(status journal.Status, start time.Time) *Result {
	recs := make([]snapshot.StageRecord, len(r.stages))
	for i, st := range r.stages {
		recs[i] = st.record()
	}
	return &Result{
		Status:      status,
		Stats:       r.stats.Counters(),
		Stages:      recs,
		JournalPath: r.journalPaths[0],
		Duration:    time.Since(start),
	}
}

// emitSnapshot writes the manifest to the state directory, mirrors it
// under the destination meta directory, and appends the index entry. The
// index is kept under the state directory only.
func (r *Runner) emitSnapshot(snap *stage) {
	manifest, err := snapshot.BuildManifest(
		r.job.Name, r.timestamp, r.job.Destination, r.job.Exclude, r.job.Verify, r.log)
	if err != nil {
		r.log.Errorf("snapshot walk failed: %v", err)
		return
	}
	snap.itemsTotal.Store(int64(len(manifest.Files)))
	snap.itemsProcessed.Store(int64(len(manifest.Files)))

	statePath := r.opts.State.SnapshotFile(r.job.Name, r.timestamp)
	metaPath := filepath.Join(statedir.MetaDir(r.job.Destination), "snapshots", filepath.Base(statePath))
	if err := manifest.Write(statePath, metaPath); err != nil {
		r.log.Errorf("snapshot write failed: %v", err)
		return
	}

	entry := snapshot.IndexEntry{
		Timestamp: r.timestamp,
		File:      filepath.Base(statePath),
		FileCount: len(manifest.Files),
		TotalSize: manifest.TotalSize(),
	}
	if err := snapshot.AppendToIndex(r.opts.State.IndexFile(r.job.Name), r.job.Name, entry); err != nil {
		r.log.Errorf("snapshot index update failed: %v", err)
	}
}

// writeSummary records the statistics counters and run metadata, mirrored
// into the destination meta directory.
func (r *Runner) writeSummary(res *Result) {
	if r.opts.DryRun {
		return
	}
	sum := &snapshot.Summary{
		Job:             r.job.Name,
		Mode:            string(r.job.Mode),
		Timestamp:       r.timestamp,
		Source:          r.job.Source,
		Destination:     r.job.Destination,
		Status:          string(res.Status),
		DurationSeconds: res.Duration.Seconds(),
		Stats:           res.Stats,
		Stages:          res.Stages,
	}
	statePath := r.opts.State.SummaryFile(r.job.Name, r.timestamp)
	metaPath := filepath.Join(statedir.MetaDir(r.job.Destination), "summaries", filepath.Base(statePath))
	if err := sum.Write(statePath, metaPath); err != nil {
		r.log.Errorf("summary write failed: %v", err)
	}
}
