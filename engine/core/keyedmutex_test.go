package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutex(t *testing.T) {
	t.Run("ShouldSerializeSameKey", func(t *testing.T) {
		km := NewKeyedMutex()
		counter := 0
		var wg sync.WaitGroup
		for range 32 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock := km.Lock("doc-1")
				defer unlock()
				counter++
			}()
		}
		wg.Wait()
		assert.Equal(t, 32, counter)
	})

	t.Run("ShouldReleaseEntryAfterLastUnlock", func(t *testing.T) {
		km := NewKeyedMutex()
		unlock := km.Lock("doc-2")
		unlock()
		km.mu.Lock()
		defer km.mu.Unlock()
		require.Empty(t, km.locks)
	})

	t.Run("ShouldNotBlockDistinctKeys", func(t *testing.T) {
		km := NewKeyedMutex()
		unlockA := km.Lock("a")
		defer unlockA()
		done := make(chan struct{})
		go func() {
			unlockB := km.Lock("b")
			unlockB()
			close(done)
		}()
		<-done
	})
}
