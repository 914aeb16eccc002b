package store

import (
	"sync"

	"github.com/ssargent/recordvault/pkg/keys"
)

// lockTable hands out one mutex per key. Entries are dropped when no
// goroutine holds or waits for them.
type lockTable struct {
	mutex sync.Mutex
	locks map[keys.Address]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[keys.Address]*keyLock)}
}

// acquire blocks until the caller holds key exclusively and returns the release func
func (t *lockTable) acquire(key keys.Address) func() {
	t.mutex.Lock()
	l, ok := t.locks[key]
	if !ok {
		l = &keyLock{}
		t.locks[key] = l
	}
	l.refs++
	t.mutex.Unlock()

	l.Lock()

	return func() {
		l.Unlock()

		t.mutex.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, key)
		}
		t.mutex.Unlock()
	}
}

// size returns the number of keys currently locked or awaited
func (t *lockTable) size() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return len(t.locks)
}
