package apex

import "strconv"

// A Transition records a single environment step as seen
// by an actor: the observed state, the chosen action, the
// immediate reward, the one-step discount, and the action
// values the actor computed at the state.
//
// A Transition is owned by the actor that produced it
// until it is absorbed by that actor's Buffer.
type Transition struct {
	State    []float64
	Action   int
	Reward   float64
	Discount float64
	Q        []float64
}

// An NStepTransition spans up to n consecutive steps of a
// single episode.
//
// Reward is the discounted return accumulated over the
// spanned steps, and Discount is the matching cumulative
// discount for bootstrapping off of LandingState.
//
// Keys are unique across every transition ever emitted by
// a set of actors with distinct IDs.
type NStepTransition struct {
	State    []float64
	Action   int
	Reward   float64
	Discount float64
	Q        []float64

	// LandingState is the state reached after the spanned
	// steps, and LandingQ holds the action values at that
	// state (all zeros if the episode ended there).
	LandingState []float64
	LandingQ     []float64

	Key string
}

// Priorities maps transition keys to replay priorities.
//
// A priority mapping always has exactly one entry per
// transition of the batch it was computed for.
type Priorities map[string]float64

func transitionKey(actorID int, seq int64) string {
	return strconv.Itoa(actorID) + ":" + strconv.FormatInt(seq, 10)
}
