package lock

import "sync"

// MutexMap hands out one mutex per key. Entries are dropped once no goroutine holds or
// waits on them.
type MutexMap struct {
	mu      sync.Mutex
	mutexes map[int64]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func NewMutexMap() *MutexMap {
	return &MutexMap{
		mutexes: make(map[int64]*entry),
	}
}

func (m *MutexMap) Lock(key int64) {
	m.mu.Lock()
	e, ok := m.mutexes[key]
	if !ok {
		e = &entry{}
		m.mutexes[key] = e
	}
	e.refs++
	m.mu.Unlock()
	e.mu.Lock()
}

func (m *MutexMap) Unlock(key int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.mutexes[key]
	if !ok {
		panic("lock: unlock of unlocked key")
	}
	e.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.mutexes, key)
	}
}

// Len reports how many keys are currently held or awaited.
func (m *MutexMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.mutexes)
}
