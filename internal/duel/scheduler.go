package duel

import (
	"sync"
	"time"

	"github.com/coder/quartz"
)

// Scheduler issues the delayed lifecycle transitions (countdown, reveal
// pacing, completion, retry backoff) as cancellable timers on an injected
// clock. Canceling a game stops every pending timer for it, so a stale
// callback can never act on a game that left the state it was scheduled in.
type Scheduler struct {
	clock  quartz.Clock
	mu     sync.Mutex
	timers map[string]map[uint64]*quartz.Timer
	seq    uint64
}

// NewScheduler constructs a scheduler on the given clock. Tests pass
// quartz.NewMock to drive transitions deterministically.
func NewScheduler(clock quartz.Clock) *Scheduler {
	return &Scheduler{
		clock:  clock,
		timers: make(map[string]map[uint64]*quartz.Timer),
	}
}

// After runs fn once the delay elapses, tracked under the game id. A
// non-positive delay still goes through the clock so mock time controls it.
func (s *Scheduler) After(gameID string, delay time.Duration, fn func()) {
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	s.seq++
	id := s.seq
	timer := s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		if set, ok := s.timers[gameID]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(s.timers, gameID)
			}
		}
		s.mu.Unlock()
		fn()
	})
	set, ok := s.timers[gameID]
	if !ok {
		set = make(map[uint64]*quartz.Timer)
		s.timers[gameID] = set
	}
	set[id] = timer
	s.mu.Unlock()
}

// Cancel stops every pending timer for the game.
func (s *Scheduler) Cancel(gameID string) {
	s.mu.Lock()
	set := s.timers[gameID]
	delete(s.timers, gameID)
	s.mu.Unlock()

	for _, timer := range set {
		timer.Stop()
	}
}

// Pending returns the number of timers still armed for the game.
func (s *Scheduler) Pending(gameID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers[gameID])
}
