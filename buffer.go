package apex

import "errors"

// ErrInsufficientData is returned when a drain or sample
// request asks for more transitions than are available.
//
// Callers should wait for more data to accumulate rather
// than retry immediately with the same size.
var ErrInsufficientData = errors.New("insufficient buffered transitions")

// A Buffer aggregates the single-step transitions of one
// actor into discounted n-step transitions.
//
// Emitted transitions collect in a pending batch until
// they are drained.
//
// A Buffer is exclusively owned by its actor and is not
// safe for concurrent use.
type Buffer struct {
	actorID int
	window  int
	gamma   float64

	steps   []Transition
	cumRew  []float64
	cumDisc []float64

	pending []*NStepTransition
	seq     int64
}

// NewBuffer creates a Buffer that aggregates up to window
// steps per emitted transition, discounting rewards by
// gamma per step.
func NewBuffer(actorID, window int, gamma float64) *Buffer {
	return &Buffer{
		actorID: actorID,
		window:  window,
		gamma:   gamma,
	}
}

// Add absorbs one single-step transition.
//
// If the buffer is already at capacity, the step becomes
// the landing step of an emitted n-step transition and is
// not itself buffered.
func (b *Buffer) Add(step Transition) {
	if len(b.steps) == b.window {
		b.Emit(step)
		return
	}
	b.steps = append(b.steps, step)
	b.recompute()
}

// Emit turns the buffered steps into one pending n-step
// transition which bootstraps off the landing step's
// state and action values, then clears the buffer.
//
// Emitting with an empty buffer is a no-op, so an episode
// that ends before its first step is buffered produces
// nothing.
func (b *Buffer) Emit(landing Transition) {
	if len(b.steps) == 0 {
		return
	}
	head := b.steps[0]
	b.pending = append(b.pending, &NStepTransition{
		State:        head.State,
		Action:       head.Action,
		Reward:       b.cumRew[0],
		Discount:     b.cumDisc[0],
		Q:            head.Q,
		LandingState: landing.State,
		LandingQ:     landing.Q,
		Key:          transitionKey(b.actorID, b.seq),
	})
	b.seq++
	b.steps = b.steps[:0]
	b.cumRew = b.cumRew[:0]
	b.cumDisc = b.cumDisc[:0]
}

// EmitTruncated force-emits at an episode boundary.
//
// The landing step carries zero reward and all-zero
// action values, so the bootstrapped tail contributes
// nothing beyond the boundary.
func (b *Buffer) EmitTruncated(terminalState []float64) {
	if len(b.steps) == 0 {
		return
	}
	b.Emit(Transition{
		State: terminalState,
		Q:     make([]float64, len(b.steps[0].Q)),
	})
}

// Drain removes and returns the first count pending
// n-step transitions in emission order.
//
// It fails with ErrInsufficientData if fewer than count
// transitions are pending.
func (b *Buffer) Drain(count int) ([]*NStepTransition, error) {
	if count > len(b.pending) {
		return nil, ErrInsufficientData
	}
	batch := append([]*NStepTransition{}, b.pending[:count]...)
	remaining := copy(b.pending, b.pending[count:])
	for i := remaining; i < len(b.pending); i++ {
		b.pending[i] = nil
	}
	b.pending = b.pending[:remaining]
	return batch, nil
}

// Pending returns the number of emitted transitions that
// have not been drained yet.
func (b *Buffer) Pending() int {
	return len(b.pending)
}

// Len returns the number of buffered single-step
// transitions.
func (b *Buffer) Len() int {
	return len(b.steps)
}

// recompute rebuilds every buffered entry's cumulative
// reward and discount from the raw per-step rewards.
func (b *Buffer) recompute() {
	b.cumRew = b.cumRew[:0]
	b.cumDisc = b.cumDisc[:0]
	for i := range b.steps {
		reward := b.steps[i].Reward
		discount := 1.0
		for k := i + 1; k < len(b.steps); k++ {
			discount *= b.gamma
			reward += discount * b.steps[k].Reward
		}
		b.cumRew = append(b.cumRew, reward)
		b.cumDisc = append(b.cumDisc, discount)
	}
}
