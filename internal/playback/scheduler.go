// Package playback tracks the output-audio schedule for one voice session.
// Chunks are queued back to back on a cursor so playback is gapless, and a
// barge-in drops everything at once.
package playback

import (
	"sync"
	"time"
)

// Scheduler assigns a start offset to each output chunk. Offsets are measured
// from session start so the client can place chunks on its own audio clock.
type Scheduler struct {
	mu      sync.Mutex
	now     func() time.Time
	start   time.Time
	cursor  time.Duration
	sources map[int]struct{}
	nextID  int
}

func NewScheduler() *Scheduler {
	s := &Scheduler{now: time.Now, sources: make(map[int]struct{})}
	s.start = s.now()
	return s
}

// SetClock overrides the time source for tests. It also resets the session
// start to the new clock's current instant.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	s.start = now()
}

// Schedule queues a chunk of the given duration. It returns the playback
// offset for the chunk and a source id to release once the chunk finishes.
// The chunk starts either where the previous one ends or immediately,
// whichever is later.
func (s *Scheduler) Schedule(d time.Duration) (offset time.Duration, id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := s.now().Sub(s.start)
	if elapsed < 0 {
		elapsed = 0
	}
	offset = s.cursor
	if elapsed > offset {
		offset = elapsed
	}
	s.cursor = offset + d

	s.nextID++
	id = s.nextID
	s.sources[id] = struct{}{}
	return offset, id
}

// Release drops a finished source from the tracked set.
func (s *Scheduler) Release(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sources, id)
}

// Active reports how many scheduled chunks have not been released.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sources)
}

// Stop drops every tracked source and rewinds the cursor to zero. It returns
// how many sources were cleared. The next Schedule starts fresh.
func (s *Scheduler) Stop() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleared := len(s.sources)
	s.sources = make(map[int]struct{})
	s.cursor = 0
	s.start = s.now()
	return cleared
}
