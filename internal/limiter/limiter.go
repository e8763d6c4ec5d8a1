package limiter

import (
	"context"
	"sync"
)

// Semaphore is a counting admission gate. Acquire blocks while max slots
// are held; blocked callers are resumed in strict arrival order.
//
// Callers must call Release exactly once per successful Acquire.
type Semaphore struct {
	mu      sync.Mutex
	held    int
	max     int
	waiters []chan struct{}
}

// New creates a Semaphore admitting up to max concurrent holders.
// max < 1 is treated as 1.
func New(max int) *Semaphore {
	if max < 1 {
		max = 1
	}
	return &Semaphore{max: max}
}

// Acquire blocks until a slot is available or ctx is done. On success the
// caller holds one slot and must Release it.
func (s *Semaphore) Acquire(ctx context.Context) error {
	s.mu.Lock()
	if s.held < s.max && len(s.waiters) == 0 {
		s.held++
		s.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	s.waiters = append(s.waiters, ready)
	s.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		select {
		case <-ready:
			// woken and cancelled raced; we own a slot, hand it on
			s.mu.Unlock()
			s.Release()
			return ctx.Err()
		default:
		}
		for i, w := range s.waiters {
			if w == ready {
				s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		return ctx.Err()
	}
}

// Release frees one slot, waking the longest-waiting caller if any.
// Releasing more times than acquired is a caller bug.
func (s *Semaphore) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.waiters) > 0 {
		next := s.waiters[0]
		s.waiters = s.waiters[1:]
		close(next) // slot transfers directly to the waiter
		return
	}
	if s.held > 0 {
		s.held--
	}
}

// InFlight reports the number of currently held slots.
func (s *Semaphore) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.held
}
