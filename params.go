package apex

import "sync"

// A ParamVersion identifies one published version of
// value-function parameters.
//
// Versions increase monotonically with every publish.
type ParamVersion int64

// A ParamStore holds the latest value-function parameter
// snapshot for a fleet of actors.
//
// It is written by a single learner and read by any
// number of actors concurrently. Readers always observe a
// complete snapshot, never a partially-replaced one.
type ParamStore struct {
	lock     sync.RWMutex
	snapshot []byte
	version  ParamVersion
}

// NewParamStore creates an empty store.
//
// Until the first Publish, Read returns a nil snapshot
// and version 0.
func NewParamStore() *ParamStore {
	return &ParamStore{}
}

// Publish atomically replaces the current snapshot and
// returns the new version.
//
// Once Publish receives a snapshot, the store owns that
// snapshot forever; the caller must not modify it.
func (p *ParamStore) Publish(snapshot []byte) ParamVersion {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.snapshot = snapshot
	p.version++
	return p.version
}

// Read returns the most recently published snapshot and
// its version.
//
// The snapshot is shared between all readers; callers
// must not modify it.
func (p *ParamStore) Read() ([]byte, ParamVersion) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.snapshot, p.version
}

// Version returns the current version without touching
// the snapshot.
func (p *ParamStore) Version() ParamVersion {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.version
}
