package apex

import "math"

// ComputePriorities scores a batch of n-step transitions
// by absolute TD error, using the action values recorded
// in the transitions at emission time.
//
// The result has exactly one entry per transition, keyed
// by that transition's key.
func ComputePriorities(batch []*NStepTransition) Priorities {
	res := make(Priorities, len(batch))
	for _, t := range batch {
		res[t.Key] = tdPriority(t.Reward, t.Discount, t.LandingQ, t.Q, t.Action)
	}
	return res
}

// tdPriority measures |target - predicted| for one
// state-action pair, where the target bootstraps off the
// best action value at the landing state.
func tdPriority(reward, discount float64, landingQ, q []float64, action int) float64 {
	target := reward + discount*maxValue(landingQ)
	return math.Abs(target - q[action])
}

func maxValue(values []float64) float64 {
	best := values[0]
	for _, v := range values[1:] {
		if v > best {
			best = v
		}
	}
	return best
}

// argmax returns the index of the largest value, breaking
// ties in favor of the lowest index.
func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
