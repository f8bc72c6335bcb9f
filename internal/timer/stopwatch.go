package timer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Stopwatch measures elapsed practice time and reports it once per second.
type Stopwatch struct {
	clock  clockwork.Clock
	onTick func(elapsed time.Duration)

	mu      sync.Mutex
	startAt time.Time
	elapsed time.Duration
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewStopwatch creates a stopped stopwatch. onTick may be nil.
func NewStopwatch(clock clockwork.Clock, onTick func(time.Duration)) *Stopwatch {
	return &Stopwatch{clock: clock, onTick: onTick}
}

// Start resets and starts the stopwatch. A running stopwatch is left alone.
func (s *Stopwatch) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.startAt = s.clock.Now()
	s.elapsed = 0
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(s.stop, s.done)
}

// Stop freezes the elapsed time and returns it. It waits for the tick
// goroutine, so it must not be called from onTick.
func (s *Stopwatch) Stop() time.Duration {
	s.mu.Lock()
	if !s.running {
		d := s.elapsed
		s.mu.Unlock()
		return d
	}
	s.running = false
	s.elapsed = s.clock.Since(s.startAt)
	d, done := s.elapsed, s.done
	close(s.stop)
	s.mu.Unlock()
	<-done
	return d
}

// Elapsed returns the time since Start, or the frozen value after Stop.
func (s *Stopwatch) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return s.clock.Since(s.startAt)
	}
	return s.elapsed
}

func (s *Stopwatch) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := s.clock.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			if s.onTick != nil {
				s.onTick(s.Elapsed())
			}
		}
	}
}
