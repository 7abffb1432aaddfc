package pipeline

import "context"

// Semaphore bounds how many samples are processed at once.
type Semaphore struct {
	ch chan struct{}
}

// NewSemaphore creates a semaphore admitting n holders; n below 1 admits one.
func NewSemaphore(n int) *Semaphore {
	return &Semaphore{ch: make(chan struct{}, max(n, 1))}
}

// Acquire blocks until a slot is free. It reports false if ctx ends first.
func (s *Semaphore) Acquire(ctx context.Context) bool {
	select {
	case s.ch <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

// Release frees a slot taken by Acquire.
func (s *Semaphore) Release() {
	<-s.ch
}
