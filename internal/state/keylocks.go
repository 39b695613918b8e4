package state

import "sync"

// KeyLocks hands out one mutex per key. Entries are reference counted and
// dropped once no caller holds or waits on them. LockAll excludes every key
// at once.
type KeyLocks struct {
	all   sync.RWMutex
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyLocks returns an empty lock table.
func NewKeyLocks() *KeyLocks {
	return &KeyLocks{locks: make(map[string]*keyLock)}
}

// Lock blocks until key is free and returns the matching unlock function.
func (l *KeyLocks) Lock(key string) func() {
	l.all.RLock()
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &keyLock{}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			entry.mu.Unlock()
			l.mu.Lock()
			entry.refs--
			if entry.refs == 0 {
				delete(l.locks, key)
			}
			l.mu.Unlock()
			l.all.RUnlock()
		})
	}
}

// LockAll waits for every key holder to finish and blocks new ones until the
// returned function runs. A caller holding a key lock must not call it.
func (l *KeyLocks) LockAll() func() {
	l.all.Lock()
	var once sync.Once
	return func() { once.Do(l.all.Unlock) }
}

// Len reports how many keys currently have holders or waiters.
func (l *KeyLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
