package ledger

import (
	"sort"
	"sync"
)

// entityLocks serializes read-validate-write sequences per entity id.
// Acquisition is in sorted id order so two operations touching the same set
// of rows can never deadlock. Lock entries are never removed; the id space
// (users and listings) grows slowly enough that this is not a concern.
type entityLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newEntityLocks() *entityLocks {
	return &entityLocks{locks: make(map[string]*sync.Mutex)}
}

func (e *entityLocks) get(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	if m, ok := e.locks[id]; ok {
		return m
	}
	m := &sync.Mutex{}
	e.locks[id] = m
	return m
}

// acquire locks the given ids in sorted order (duplicates collapsed) and
// returns the release function.
func (e *entityLocks) acquire(ids ...string) func() {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id != "" && !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	sort.Strings(unique)

	held := make([]*sync.Mutex, 0, len(unique))
	for _, id := range unique {
		m := e.get(id)
		m.Lock()
		held = append(held, m)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
