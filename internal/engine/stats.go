package engine

import (
	"sync"

	"github.com/Samuel-Jeong/DiskSyncPro/internal/snapshot"
)

// Stats guards the run counters for parallel worker updates. The stats
// mutex is third in the fixed lock order (filesystem, journal, stats,
// checkpoint); it is never held while any other lock is taken.
type Stats struct {
	mu sync.Mutex
	c  snapshot.Counters
}

func (s *Stats) CreatedFile()  { s.mu.Lock(); s.c.CreatedFiles++; s.mu.Unlock() }
func (s *Stats) ReplacedFile() { s.mu.Lock(); s.c.ReplacedFiles++; s.mu.Unlock() }
func (s *Stats) DeletedFile()  { s.mu.Lock(); s.c.DeletedFiles++; s.mu.Unlock() }
func (s *Stats) SafetyNetFile() {
	s.mu.Lock()
	s.c.SafetyNetFiles++
	s.mu.Unlock()
}
func (s *Stats) CreatedDir()      { s.mu.Lock(); s.c.CreatedDirs++; s.mu.Unlock() }
func (s *Stats) SkippedSame()     { s.mu.Lock(); s.c.SkippedSame++; s.mu.Unlock() }
func (s *Stats) SkippedExcluded() { s.mu.Lock(); s.c.SkippedExcluded++; s.mu.Unlock() }
func (s *Stats) CopyFailed()      { s.mu.Lock(); s.c.CopyFailed++; s.mu.Unlock() }

// Counters returns a copy of the current counter values.
func (s *Stats) Counters() snapshot.Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c
}
