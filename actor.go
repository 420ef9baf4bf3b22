package apex

import (
	"fmt"
	"math/rand"

	"github.com/unixpickle/essentials"
)

// An Actor drives one environment with an ε-greedy
// policy, aggregates the resulting steps into n-step
// transitions, and ships prioritized batches to the
// learner.
//
// The zero value is not usable; every field except Logger
// must be set.
type Actor struct {
	// ID distinguishes this actor in transition keys and
	// log output. IDs must be unique across the fleet.
	ID int

	// Env is the environment to interact with.
	Env Env

	// Q estimates action values. The actor must own this
	// replica exclusively.
	Q QFunc

	// NumActions is the size of the action space.
	NumActions int

	// Epsilon is the exploration rate, typically computed
	// with ActorEpsilon. It is fixed for the actor's
	// lifetime.
	Epsilon float64

	// Gamma is the per-step reward discount.
	Gamma float64

	// Window is the n-step aggregation window.
	Window int

	// FlushSize is the number of pending n-step
	// transitions that triggers a flush to Replay.
	FlushSize int

	// SyncFreq is the number of environment steps between
	// parameter re-reads from Params.
	//
	// If 0, parameters are read once at startup and never
	// again.
	SyncFreq int

	// Replay receives this actor's prioritized batches.
	Replay *ReplayQueue

	// Params is the store the learner publishes to.
	Params *ParamStore

	// Logger, if non-nil, receives actor events.
	Logger Logger
}

// Run executes numSteps environment steps, starting with
// a fresh episode.
//
// If done is closed, Run finishes gracefully and returns
// nil at the next loop boundary, even if it was blocked
// pushing to a full replay queue. Any environment or
// Q-function error aborts the run.
func (a *Actor) Run(numSteps int, done <-chan struct{}) (err error) {
	defer essentials.AddCtxTo(fmt.Sprintf("run actor %d", a.ID), &err)

	var lastVersion ParamVersion
	syncParams := func() error {
		snapshot, version := a.Params.Read()
		if snapshot == nil || version == lastVersion {
			return nil
		}
		if err := a.Q.SetParameters(snapshot); err != nil {
			return err
		}
		lastVersion = version
		if a.Logger != nil {
			a.Logger.LogSync(a.ID, version)
		}
		return nil
	}
	if err := syncParams(); err != nil {
		return err
	}

	buf := NewBuffer(a.ID, a.Window, a.Gamma)
	obs, err := a.Env.Reset()
	if err != nil {
		return err
	}
	var epSteps int
	var epReward float64
	for t := 0; t < numSteps; t++ {
		select {
		case <-done:
			return nil
		default:
		}

		qvals, err := a.Q.Evaluate(obs)
		if err != nil {
			return err
		}
		var action int
		if rand.Float64() >= a.Epsilon {
			action = argmax(qvals)
		} else {
			action = rand.Intn(a.NumActions)
		}

		next, reward, envDone, err := a.Env.Step(oneHot(a.NumActions, action))
		if err != nil {
			return err
		}
		buf.Add(Transition{
			State:    obs,
			Action:   action,
			Reward:   reward,
			Discount: a.Gamma,
			Q:        qvals,
		})
		epSteps++
		epReward += reward

		if envDone {
			buf.EmitTruncated(next)
			if a.Logger != nil {
				a.Logger.LogEpisode(a.ID, epSteps, epReward)
			}
			epSteps, epReward = 0, 0
			obs, err = a.Env.Reset()
			if err != nil {
				return err
			}
		} else {
			obs = next
		}

		if a.FlushSize > 0 && buf.Pending() >= a.FlushSize {
			batch, err := buf.Drain(a.FlushSize)
			if err != nil {
				return err
			}
			msg := &PrioritizedBatch{
				Priorities: ComputePriorities(batch),
				Batch:      batch,
			}
			if err := a.Replay.Send(msg, done); err != nil {
				if err == ErrStopped {
					return nil
				}
				return err
			}
		}

		if a.SyncFreq != 0 && (t+1)%a.SyncFreq == 0 {
			if err := syncParams(); err != nil {
				return err
			}
		}
	}
	return nil
}
