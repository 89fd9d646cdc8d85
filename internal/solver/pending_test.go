package solver

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPendingSetTryAdd(t *testing.T) {
	p := NewPendingSet()

	assert.True(t, p.TryAdd("0x01"))
	assert.False(t, p.TryAdd("0x01"))
	assert.Equal(t, 1, p.Len())

	p.Remove("0x01")
	assert.Equal(t, 0, p.Len())
	assert.True(t, p.TryAdd("0x01"))
}

func TestPendingSetRemoveAbsent(t *testing.T) {
	p := NewPendingSet()
	p.Remove("0x01")
	assert.Equal(t, 0, p.Len())
}

func TestPendingSetConcurrentTryAdd(t *testing.T) {
	p := NewPendingSet()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p.TryAdd("0x01") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, 1, p.Len())
}
