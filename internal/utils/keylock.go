// internal/utils/keylock.go
package utils

import "sync"

// KeyedMutex serializes work per string key. The issuance and
// registration paths lock on merchant/denomination and member keys so
// that check-and-create sequences inside a transaction cannot
// interleave within this process; the partial unique indexes remain the
// commit-time backstop.
type KeyedMutex struct {
	mtx   sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedLock)}
}

func (k *KeyedMutex) Lock(key string) {
	k.mtx.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mtx.Unlock()

	l.mu.Lock()
}

func (k *KeyedMutex) Unlock(key string) {
	k.mtx.Lock()
	l, ok := k.locks[key]
	if ok {
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
	}
	k.mtx.Unlock()

	if ok {
		l.mu.Unlock()
	}
}
