package scheduler

import "context"

// semaphore bounds the number of exchanges in flight. A buffered channel
// is sufficient here since capacity never changes after construction.
type semaphore chan struct{}

func newSemaphore(n int) semaphore {
	return make(semaphore, n)
}

// acquire blocks until a slot is free or the context is done.
func (s semaphore) acquire(ctx context.Context) error {
	select {
	case s <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s semaphore) release() {
	<-s
}

// inUse returns the number of slots currently held.
func (s semaphore) inUse() int {
	return len(s)
}
