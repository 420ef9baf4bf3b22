// Package apex implements the actor/learner core of
// distributed prioritized experience replay (Ape-X), a
// distributed off-policy reinforcement learning
// architecture.
// See https://arxiv.org/abs/1803.00933.
package apex
