package engine

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/pkg/errors"

	"github.com/Samuel-Jeong/DiskSyncPro/internal/fscopy"
	"github.com/Samuel-Jeong/DiskSyncPro/internal/journal"
)

// workerCount sizes the pool from the CPU count and the expected file
// count, clamped to [4, 64]. More files amortize more scheduling
// overhead, so the multiplier grows with the tree.
func workerCount(expectedFiles int64) int {
	mult := 2
	switch {
	case expectedFiles > 100_000:
		mult = 4
	case expectedFiles > 10_000:
		mult = 3
	}
	n := runtime.NumCPU() * mult
	if n < 4 {
		n = 4
	}
	if n > 64 {
		n = 64
	}
	return n
}

// workerLoop drains the task queue until it is closed. Dequeues use a
// short poll so a cancel request is observed within one interval. Once
// cancellation is observed, remaining entries are drained without
// processing to unblock the producer, then the worker exits.
//
// Per-task errors never leave this loop: they are logged and counted,
// and the run continues.
func (r *Runner) workerLoop() {
	for {
		if r.cancelled() {
			r.drain()
			return
		}
		select {
		case t, ok := <-r.queue:
			if !ok {
				return
			}
			if r.cancelled() {
				r.progress.tick()
				r.drain()
				return
			}
			r.process(t)
		case <-time.After(r.poll):
		}
	}
}

// drain empties the queue without processing so a producer blocked on a
// full queue can observe cancellation and exit.
func (r *Runner) drain() {
	for range r.queue {
	}
}

// process reconciles a single enqueued file. Lock order per task is
// fixed: filesystem mutation, then journal, then stats, then checkpoint,
// each released before the next is taken.
func (r *Runner) process(t task) {
	// Progress is always ticked, success or not.
	defer r.progress.tick()

	entry := r.log.WithField("path", t.rel)

	// Re-check same-file equality: the file may have been reconciled by
	// an earlier run (stale checkpoint entry) or the source may have
	// changed since enqueue.
	srcInfo, err := os.Lstat(t.src)
	if err != nil {
		entry.Errorf("stat source failed: %v", err)
		r.stats.CopyFailed()
		return
	}
	if !srcInfo.Mode().IsRegular() {
		r.stats.SkippedExcluded()
		return
	}

	replacing := false
	if dstInfo, err := os.Lstat(t.dst); err == nil {
		if dstInfo.Mode().IsRegular() && fscopy.SameFile(srcInfo, dstInfo) {
			r.stats.SkippedSame()
			if !r.opts.DryRun {
				r.cp.MarkProcessed(t.rel)
			}
			return
		}
		replacing = dstInfo.Mode().IsRegular()
	}

	if r.opts.DryRun {
		action := journal.ActionCreateFile
		if replacing {
			action = journal.ActionReplaceFile
		}
		entry.WithField("action", string(action)).Info("dry-run: would copy")
		if replacing {
			r.stats.ReplacedFile()
		} else {
			r.stats.CreatedFile()
		}
		return
	}

	if err := r.copyTask(t, replacing); err != nil {
		if errors.Is(err, fscopy.ErrNotRegular) {
			r.stats.SkippedExcluded()
			return
		}
		entry.Errorf("copy failed, skipping file: %v", err)
		r.stats.CopyFailed()
		return
	}

	if replacing {
		r.stats.ReplacedFile()
		entry.Debug("replaced")
	} else {
		r.stats.CreatedFile()
		entry.Debug("created")
	}
	r.cp.MarkProcessed(t.rel)
}

// copyTask captures the pre-image when replacing, performs the atomic
// copy, and appends the journal op. The journal mutex is taken only
// after the filesystem mutation has returned success, so op order equals
// commit order.
func (r *Runner) copyTask(t task, replacing bool) error {
	var backup string
	if replacing {
		var err error
		backup, err = r.rollback.Capture(t.dst)
		if err != nil {
			return errors.Wrap(err, "capture pre-image")
		}
	}

	if err := r.copier.Copy(context.Background(), t.src, t.dst); err != nil {
		return err
	}

	op := journal.Op{Action: journal.ActionCreateFile, Target: t.dst}
	if replacing {
		op.Action = journal.ActionReplaceFile
		op.Backup = backup
	}
	r.jrnl.Append(op)
	return nil
}
