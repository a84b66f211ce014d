package limiter

import (
	"context"
)

// Slots bounds how many documents are processed synchronously at once.
type Slots struct {
	sem chan struct{}
}

// New returns a limiter with n slots (at least one).
func New(n int) *Slots {
	if n <= 0 {
		n = 1
	}
	return &Slots{sem: make(chan struct{}, n)}
}

// Acquire waits for a free slot. The returned release must be called exactly
// once.
func (s *Slots) Acquire(ctx context.Context) (func(), error) {
	select {
	case s.sem <- struct{}{}:
		return s.release, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	}
}

// TryAcquire reserves a slot without waiting. Returns a release function and
// true if allowed; otherwise a no-op and false.
func (s *Slots) TryAcquire() (func(), bool) {
	select {
	case s.sem <- struct{}{}:
		return s.release, true
	default:
		return func() {}, false
	}
}

// InUse reports the number of held slots.
func (s *Slots) InUse() int { return len(s.sem) }

// Cap reports the total number of slots.
func (s *Slots) Cap() int { return cap(s.sem) }

func (s *Slots) release() { <-s.sem }
