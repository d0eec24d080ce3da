package engine

import (
	"sync/atomic"
	"time"

	"github.com/Samuel-Jeong/DiskSyncPro/internal/snapshot"
)

// Stage names, in pipeline order.
const (
	StageScan     = "SCAN"
	StageCopy     = "COPY"
	StageCleanup  = "CLEANUP"
	StageSnapshot = "SNAPSHOT"
)

// Stage statuses.
const (
	StagePending   = "pending"
	StageRunning   = "running"
	StageCompleted = "completed"
	StageFailed    = "failed"
)

const stageTimeLayout = time.RFC3339

// stage tracks one pipeline stage. Item counters are atomics because
// workers tick them while the orchestrator reads them for records.
type stage struct {
	name      string
	status    string
	startedAt time.Time
	endedAt   time.Time

	itemsTotal     atomic.Int64
	itemsProcessed atomic.Int64
}

func newStages() []*stage {
	names := []string{StageScan, StageCopy, StageCleanup, StageSnapshot}
	out := make([]*stage, len(names))
	for i, n := range names {
		out[i] = &stage{name: n, status: StagePending}
	}
	return out
}

func (s *stage) start() {
	s.status = StageRunning
	s.startedAt = time.Now()
}

func (s *stage) complete() {
	s.status = StageCompleted
	s.endedAt = time.Now()
}

func (s *stage) fail() {
	s.status = StageFailed
	s.endedAt = time.Now()
}

func (s *stage) record() snapshot.StageRecord {
	rec := snapshot.StageRecord{
		Name:           s.name,
		Status:         s.status,
		ItemsTotal:     s.itemsTotal.Load(),
		ItemsProcessed: s.itemsProcessed.Load(),
	}
	if !s.startedAt.IsZero() {
		rec.StartedAt = s.startedAt.Format(stageTimeLayout)
	}
	if !s.endedAt.IsZero() {
		rec.EndedAt = s.endedAt.Format(stageTimeLayout)
	}
	return rec
}
