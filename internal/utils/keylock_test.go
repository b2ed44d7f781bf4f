// internal/utils/keylock_test.go
package utils

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	locks := NewKeyedMutex()

	const workers = 50
	counter := 0
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			locks.Lock("issue:merchant:75")
			defer locks.Unlock("issue:merchant:75")
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, workers, counter)
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	locks := NewKeyedMutex()

	locks.Lock("a")
	done := make(chan struct{})
	go func() {
		// A different key must not block behind "a".
		locks.Lock("b")
		locks.Unlock("b")
		close(done)
	}()
	<-done
	locks.Unlock("a")
}

func TestKeyedMutexReusableAfterRelease(t *testing.T) {
	locks := NewKeyedMutex()

	locks.Lock("key")
	locks.Unlock("key")
	locks.Lock("key")
	locks.Unlock("key")
}
