package apex

import "errors"

// ErrStopped is returned by blocking operations that were
// released by a closed cancellation channel.
var ErrStopped = errors.New("operation stopped")

// A PrioritizedBatch is the unit of experience shipped
// from an actor to the learner: a batch of n-step
// transitions together with their replay priorities.
type PrioritizedBatch struct {
	Priorities Priorities
	Batch      []*NStepTransition
}

// A ReplayQueue carries prioritized batches from many
// actors to a single learner.
//
// The queue is bounded. When it fills up, Send blocks,
// applying backpressure to the producing actor; batches
// are never dropped. Batches from a single producer
// arrive in the order they were sent; no ordering holds
// across producers.
type ReplayQueue struct {
	ch chan *PrioritizedBatch
}

// NewReplayQueue creates a queue holding up to capacity
// in-flight batches.
func NewReplayQueue(capacity int) *ReplayQueue {
	return &ReplayQueue{ch: make(chan *PrioritizedBatch, capacity)}
}

// Send enqueues one batch, blocking while the queue is
// full.
//
// If cancel is closed before space frees up, Send gives
// up and returns ErrStopped.
func (r *ReplayQueue) Send(b *PrioritizedBatch, cancel <-chan struct{}) error {
	select {
	case r.ch <- b:
		return nil
	case <-cancel:
		return ErrStopped
	}
}

// Receive dequeues the next batch, blocking while the
// queue is empty.
//
// If cancel is closed before a batch arrives, Receive
// gives up and returns ErrStopped.
func (r *ReplayQueue) Receive(cancel <-chan struct{}) (*PrioritizedBatch, error) {
	select {
	case b := <-r.ch:
		return b, nil
	case <-cancel:
		return nil, ErrStopped
	}
}

// Len returns the number of batches currently in flight.
func (r *ReplayQueue) Len() int {
	return len(r.ch)
}

// Cap returns the queue's capacity.
func (r *ReplayQueue) Cap() int {
	return cap(r.ch)
}
