package engine

import (
	"sync"
	"time"
)

// ProgressFunc receives (percent, processed, total). The engine throttles
// calls to at most one per five seconds within a percent step.
type ProgressFunc func(percent int, processed, total int64)

const progressInterval = 5 * time.Second

// progressReporter counts processed items against a fixed total and
// forwards throttled updates to the sink. Safe for concurrent tick calls.
type progressReporter struct {
	sink ProgressFunc

	mu          sync.Mutex
	total       int64
	processed   int64
	lastPercent int
	lastCall    time.Time
}

func newProgressReporter(sink ProgressFunc) *progressReporter {
	return &progressReporter{sink: sink, lastPercent: -1}
}

// setTotal fixes the denominator. Called once after the counting pass.
func (p *progressReporter) setTotal(total int64) {
	p.mu.Lock()
	p.total = total
	p.mu.Unlock()
}

// tick records one processed item. Success or not, every planned item
// ticks exactly once.
func (p *progressReporter) tick() {
	p.mu.Lock()
	p.processed++
	processed, total := p.processed, p.total

	percent := 100
	if total > 0 {
		percent = int(processed * 100 / total)
		if percent > 100 {
			percent = 100
		}
	}

	now := time.Now()
	fire := percent != p.lastPercent || now.Sub(p.lastCall) >= progressInterval
	if fire {
		p.lastPercent = percent
		p.lastCall = now
	}
	sink := p.sink
	p.mu.Unlock()

	if fire && sink != nil {
		sink(percent, processed, total)
	}
}

// processedCount returns how many items have ticked so far.
func (p *progressReporter) processedCount() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processed
}

// finish forces a final callback so sinks always see the end state.
func (p *progressReporter) finish() {
	p.mu.Lock()
	processed, total := p.processed, p.total
	sink := p.sink
	p.mu.Unlock()

	if sink != nil {
		sink(100, processed, total)
	}
}
