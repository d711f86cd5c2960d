// Package keymu provides a mutex keyed by string, used to serialize
// operations on one logical resource (an instance id, a username) while
// letting operations on distinct resources proceed independently.
package keymu

import "sync"

// Mutex hands out one lock per key. Idle entries are reference-counted
// and removed on the last unlock, so the key space can grow without the
// map growing with it.
type Mutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func New() *Mutex {
	return &Mutex{locks: make(map[string]*entry)}
}

// Lock acquires the lock for key, blocking while another holder has it.
func (m *Mutex) Lock(key string) {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the lock for key. Unlocking a key that is not held is a
// programming error and panics, same as sync.Mutex.
func (m *Mutex) Unlock(key string) {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		m.mu.Unlock()
		panic("keymu: unlock of unlocked key " + key)
	}
	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
	m.mu.Unlock()

	e.mu.Unlock()
}
