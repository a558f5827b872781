package session

import (
	"sync"
	"time"
)

// CancelFunc stops a scheduled job. It is safe to call more than once and
// from inside the job itself.
type CancelFunc func()

// Scheduler invokes fn repeatedly until cancelled.
type Scheduler interface {
	Every(interval time.Duration, fn func()) CancelFunc
}

// TickerScheduler runs each job on its own goroutine driven by a time.Ticker.
type TickerScheduler struct{}

func NewTickerScheduler() *TickerScheduler {
	return &TickerScheduler{}
}

func (s *TickerScheduler) Every(interval time.Duration, fn func()) CancelFunc {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

// ManualScheduler fires jobs only when told to. It lets tests drive a
// session clock one tick at a time.
type ManualScheduler struct {
	mu     sync.Mutex
	nextID int
	jobs   map[int]func()
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{jobs: make(map[int]func())}
}

func (s *ManualScheduler) Every(_ time.Duration, fn func()) CancelFunc {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.jobs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.jobs, id)
	}
}

// Fire runs every active job n times. Jobs cancelled mid-way stop firing.
func (s *ManualScheduler) Fire(n int) {
	for i := 0; i < n; i++ {
		s.mu.Lock()
		ids := make([]int, 0, len(s.jobs))
		for id := range s.jobs {
			ids = append(ids, id)
		}
		s.mu.Unlock()

		for _, id := range ids {
			s.mu.Lock()
			fn, ok := s.jobs[id]
			s.mu.Unlock()
			if ok {
				fn()
			}
		}
	}
}

// Active returns the number of jobs that have not been cancelled.
func (s *ManualScheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}
