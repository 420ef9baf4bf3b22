package apex

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/gammazero/deque"
)

// samplingFloor keeps every retained transition at a
// nonzero sampling probability even when its priority is
// exactly zero.
const samplingFloor = 1e-8

type memoryEntry struct {
	transition *NStepTransition
	priority   float64
}

// A ReplayMemory accumulates prioritized n-step
// transitions on the learner side and samples training
// batches from them.
//
// Sampling is proportional to priority, with replacement:
// higher-priority transitions are drawn more often, and
// every retained transition keeps a nonzero chance of
// being drawn.
//
// All methods are safe for concurrent use.
type ReplayMemory struct {
	lock    sync.Mutex
	grown   *sync.Cond
	entries *deque.Deque[*memoryEntry]
	byKey   map[string]*memoryEntry
	closed  bool
}

// NewReplayMemory creates an empty memory.
func NewReplayMemory() *ReplayMemory {
	m := &ReplayMemory{
		entries: deque.New[*memoryEntry](),
		byKey:   map[string]*memoryEntry{},
	}
	m.grown = sync.NewCond(&m.lock)
	return m
}

// Add retains one transition with the given priority.
func (m *ReplayMemory) Add(t *NStepTransition, priority float64) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.add(t, priority)
	m.grown.Broadcast()
}

// AddBatch retains every transition of a prioritized
// batch.
func (m *ReplayMemory) AddBatch(b *PrioritizedBatch) {
	m.lock.Lock()
	defer m.lock.Unlock()
	for _, t := range b.Batch {
		m.add(t, b.Priorities[t.Key])
	}
	m.grown.Broadcast()
}

func (m *ReplayMemory) add(t *NStepTransition, priority float64) {
	e := &memoryEntry{transition: t, priority: priority}
	m.entries.PushBack(e)
	m.byKey[t.Key] = e
}

// Len returns the number of retained transitions.
func (m *ReplayMemory) Len() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.entries.Len()
}

// WaitSize blocks until the memory retains at least n
// transitions.
//
// It returns ErrStopped if Close is called before the
// size is reached.
func (m *ReplayMemory) WaitSize(n int) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	for m.entries.Len() < n && !m.closed {
		m.grown.Wait()
	}
	if m.entries.Len() < n {
		return ErrStopped
	}
	return nil
}

// Close releases every goroutine blocked in WaitSize.
//
// The memory remains usable after Close; only waiting is
// cut short.
func (m *ReplayMemory) Close() {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.closed = true
	m.grown.Broadcast()
}

// Sample draws count transitions proportionally to their
// priorities, with replacement.
//
// It fails with ErrInsufficientData if fewer than count
// transitions are retained.
func (m *ReplayMemory) Sample(count int) ([]*NStepTransition, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if count > m.entries.Len() {
		return nil, ErrInsufficientData
	}
	sums := make([]float64, m.entries.Len())
	var total float64
	for i := range sums {
		total += m.entries.At(i).priority + samplingFloor
		sums[i] = total
	}
	res := make([]*NStepTransition, count)
	for i := range res {
		idx := sort.SearchFloat64s(sums, rand.Float64()*total)
		if idx == len(sums) {
			idx--
		}
		res[i] = m.entries.At(idx).transition
	}
	return res, nil
}

// SetPriorities overwrites the priorities of retained
// transitions by key.
//
// Keys of transitions that have since been evicted are
// ignored.
func (m *ReplayMemory) SetPriorities(p Priorities) {
	m.lock.Lock()
	defer m.lock.Unlock()
	for key, priority := range p {
		if e, ok := m.byKey[key]; ok {
			e.priority = priority
		}
	}
}

// Cleanup evicts the oldest transitions until at most
// retain remain.
func (m *ReplayMemory) Cleanup(retain int) {
	m.lock.Lock()
	defer m.lock.Unlock()
	for m.entries.Len() > retain {
		e := m.entries.PopFront()
		delete(m.byKey, e.transition.Key)
	}
}
