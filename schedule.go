package apex

import "math"

// ActorEpsilon computes the exploration rate for one
// actor in a fleet of numActors actors: base raised to
// the power (1 + alpha*i/(numActors-1)) for actor index
// i.
//
// For base in (0, 1) and alpha > 0, higher-indexed actors
// explore strictly less. The rate is fixed for the
// actor's lifetime.
//
// A single-actor fleet degenerates to base itself.
func ActorEpsilon(base, alpha float64, actor, numActors int) float64 {
	if numActors <= 1 {
		return base
	}
	power := 1 + alpha*float64(actor)/float64(numActors-1)
	return math.Pow(base, power)
}
