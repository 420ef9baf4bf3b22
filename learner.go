package apex

import (
	"os"
	"sync"

	"github.com/unixpickle/essentials"
)

// A Learner consumes prioritized experience from a fleet
// of actors, trains an online Q-function on sampled
// batches, and republishes the refreshed parameters.
//
// The zero value is not usable; every field except
// Checkpoint and Logger must be set.
type Learner struct {
	// Online is the Q-function being trained.
	Online QFunc

	// Target is a replica of Online used to evaluate
	// bootstrap actions. The learner overwrites its
	// parameters at startup and every TargetSyncFreq
	// updates thereafter.
	Target QFunc

	// Replay is the queue the actors feed.
	Replay *ReplayQueue

	// Memory retains and samples experience.
	Memory *ReplayMemory

	// Params is the store the actors read from.
	Params *ParamStore

	// SampleSize is the training batch size.
	SampleSize int

	// WarmUpSize is the number of retained transitions
	// required before the first update.
	WarmUpSize int

	// TargetSyncFreq is the number of updates between
	// target-network syncs.
	//
	// If 0, the target network is synced only once, at
	// startup.
	TargetSyncFreq int

	// EvictionFreq is the number of iterations between
	// memory cleanups, and Retention is the number of
	// transitions a cleanup keeps.
	//
	// If either is 0, old experience is never evicted.
	EvictionFreq int
	Retention    int

	// Checkpoint, if non-empty, is the path of a
	// parameter snapshot to preload. A missing or
	// unreadable checkpoint is a warning, not an error.
	Checkpoint string

	// Logger, if non-nil, receives learner events.
	Logger Logger
}

// Run ingests experience and performs numIters training
// iterations, blocking first until Memory reaches the
// warm-up size.
//
// If done is closed, Run finishes gracefully and returns
// nil at the next iteration boundary, even while it is
// still waiting for warm-up.
func (l *Learner) Run(numIters int, done <-chan struct{}) (err error) {
	defer essentials.AddCtxTo("run learner", &err)

	if l.Checkpoint != "" {
		l.loadCheckpoint()
	}
	if err := l.syncTarget(); err != nil {
		return err
	}
	if err := l.publish(); err != nil {
		return err
	}

	// The ingestion goroutine moves batches from the
	// queue into the memory until Run finishes or done
	// is closed; closing the memory releases a pending
	// warm-up wait either way.
	finished := make(chan struct{})
	stop := make(chan struct{})
	go func() {
		select {
		case <-done:
		case <-finished:
		}
		close(stop)
		l.Memory.Close()
	}()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			msg, err := l.Replay.Receive(stop)
			if err != nil {
				return
			}
			l.Memory.AddBatch(msg)
		}
	}()
	defer func() {
		close(finished)
		wg.Wait()
	}()

	if err := l.Memory.WaitSize(l.WarmUpSize); err != nil {
		return nil
	}

	updates := 0
	for t := 0; t < numIters; t++ {
		select {
		case <-done:
			return nil
		default:
		}

		batch, err := l.Memory.Sample(l.SampleSize)
		if err != nil {
			return err
		}
		if err := l.trainStep(t, batch); err != nil {
			return err
		}
		updates++
		if err := l.publish(); err != nil {
			return err
		}
		if l.TargetSyncFreq != 0 && updates%l.TargetSyncFreq == 0 {
			if err := l.syncTarget(); err != nil {
				return err
			}
		}
		if l.EvictionFreq != 0 && l.Retention != 0 && (t+1)%l.EvictionFreq == 0 {
			l.Memory.Cleanup(l.Retention)
		}
	}
	return nil
}

// trainStep runs one combined update cycle: assemble
// double-estimator targets, delegate the gradient step,
// then recompute and write back the batch's priorities
// against the just-updated parameters.
func (l *Learner) trainStep(step int, batch []*NStepTransition) error {
	if len(batch) == 0 {
		return nil
	}
	states := make([][]float64, len(batch))
	actions := make([]int, len(batch))
	targets := make([]float64, len(batch))
	for i, t := range batch {
		selector, err := l.Online.Evaluate(t.LandingState)
		if err != nil {
			return err
		}
		evaluator, err := l.Target.Evaluate(t.LandingState)
		if err != nil {
			return err
		}
		// Double estimator: the online network picks the
		// bootstrap action, the target network scores it.
		targets[i] = t.Reward + t.Discount*evaluator[argmax(selector)]
		states[i] = t.State
		actions[i] = t.Action
	}
	if err := l.Online.Update(states, actions, targets); err != nil {
		return err
	}

	prios := make(Priorities, len(batch))
	var total float64
	for _, t := range batch {
		q, err := l.Online.Evaluate(t.State)
		if err != nil {
			return err
		}
		landingQ, err := l.Online.Evaluate(t.LandingState)
		if err != nil {
			return err
		}
		p := tdPriority(t.Reward, t.Discount, landingQ, q, t.Action)
		prios[t.Key] = p
		total += p
	}
	l.Memory.SetPriorities(prios)
	if l.Logger != nil {
		l.Logger.LogUpdate(step, total/float64(len(batch)))
	}
	return nil
}

func (l *Learner) publish() error {
	snapshot, err := l.Online.Parameters()
	if err != nil {
		return err
	}
	l.Params.Publish(snapshot)
	return nil
}

func (l *Learner) syncTarget() error {
	snapshot, err := l.Online.Parameters()
	if err != nil {
		return err
	}
	return l.Target.SetParameters(snapshot)
}

func (l *Learner) loadCheckpoint() {
	data, err := os.ReadFile(l.Checkpoint)
	if err == nil {
		err = l.Online.SetParameters(data)
	}
	if err != nil && l.Logger != nil {
		l.Logger.LogWarning("checkpoint not restored: " + err.Error() +
			"; training from scratch")
	}
}
