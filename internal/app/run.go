// Package app wires configuration, state layout, and the engine into the
// per-job run loop, and hosts the operator entry points that act on
// recorded state (rollback, listings, pruning).
package app

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Samuel-Jeong/DiskSyncPro/internal/config"
	"github.com/Samuel-Jeong/DiskSyncPro/internal/engine"
	"github.com/Samuel-Jeong/DiskSyncPro/internal/journal"
	"github.com/Samuel-Jeong/DiskSyncPro/internal/statedir"
	"github.com/Samuel-Jeong/DiskSyncPro/internal/utils"
)

// Options carries the run-wide switches from the CLI.
type Options struct {
	StateRoot       string
	Resume          bool
	DryRun          bool
	JobFilter       string
	Progress        engine.ProgressFunc
	CancelRequested func() bool
}

// Outcome pairs a job with its terminal result for the caller's summary.
type Outcome struct {
	Job    config.BackupJob
	Result *engine.Result
	Err    error
}

// StatePaths resolves the state layout for a config.
func StatePaths(cfg *config.Config, override string) statedir.Paths {
	root := override
	if root == "" {
		root = cfg.StateRoot
	}
	return statedir.Paths{Root: root, Group: cfg.Group}
}

// Run executes every configured job (or the one selected by JobFilter)
// sequentially. A job that rolls back does not stop later jobs; the
// failure is reported in its outcome. Returns an error only when nothing
// could run at all.
func Run(cfg *config.Config, opts Options, log *logrus.Logger) ([]Outcome, error) {
	paths := StatePaths(cfg, opts.StateRoot)

	jobs := cfg.Jobs
	if opts.JobFilter != "" {
		job, err := cfg.Job(opts.JobFilter)
		if err != nil {
			return nil, err
		}
		jobs = []config.BackupJob{*job}
	}

	outcomes := make([]Outcome, 0, len(jobs))
	for _, job := range jobs {
		outcome := Outcome{Job: job}

		// Fail before mutating anything when the endpoints are not
		// usable; deleting or displacing destination files against an
		// unreadable source would be guessing.
		if err := checkEndpoints(job, opts.DryRun); err != nil {
			outcome.Err = err
			log.WithField("job", job.Name).Errorf("skipping job: %v", err)
			outcomes = append(outcomes, outcome)
			continue
		}

		runner := engine.NewRunner(engine.Options{
			Job:             job,
			State:           paths,
			Log:             log,
			Progress:        opts.Progress,
			CancelRequested: opts.CancelRequested,
			Resume:          opts.Resume,
			DryRun:          opts.DryRun,
		})
		outcome.Result, outcome.Err = runner.Run()
		outcomes = append(outcomes, outcome)

		if outcome.Result != nil && outcome.Result.Status == journal.StatusRollbackFailed {
			utils.Notify("rollback failed for job "+job.Name,
				"the journal could not be fully replayed; inspect "+outcome.Result.JournalPath)
		}

		if outcome.Err == nil && opts.CancelRequested != nil && opts.CancelRequested() {
			// An orderly stop applies to the whole invocation, not just
			// the current job.
			break
		}
	}
	return outcomes, nil
}

// checkEndpoints validates that the source is a readable directory and
// that the destination can be created and written to before any
// mutation. The
// writability probe creates and removes a temp file, which catches
// read-only mounts and expired share credentials that a bare stat misses.
func checkEndpoints(job config.BackupJob, dryRun bool) error {
	info, err := os.Stat(job.Source)
	if err != nil {
		return errors.Wrap(err, "source not accessible")
	}
	if !info.IsDir() {
		return errors.Errorf("source is not a directory: %s", job.Source)
	}

	if dryRun {
		return nil
	}
	if err := os.MkdirAll(job.Destination, 0o755); err != nil {
		return errors.Wrap(err, "destination not creatable")
	}
	probe, err := os.CreateTemp(job.Destination, ".disksync_probe_*")
	if err != nil {
		return errors.Wrap(err, "destination not writable")
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return nil
}
