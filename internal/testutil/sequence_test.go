package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequence(t *testing.T) {
	seq := NewSequence("acc-%03d")

	assert.Equal(t, "acc-001", seq.Next())
	assert.Equal(t, "acc-002", seq.Next())
	assert.Equal(t, 2, seq.Count())

	seq.Reset()
	assert.Equal(t, "acc-001", seq.Next())
}

func TestSequence_Concurrent(t *testing.T) {
	seq := NewSequence("gen-%d")

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				id := seq.Next()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 1000)
	assert.Equal(t, 1000, seq.Count())
}

func TestFixed(t *testing.T) {
	gen := Fixed("scope-1")
	assert.Equal(t, "scope-1", gen())
	assert.Equal(t, "scope-1", gen())
	assert.Equal(t, "test-default", Fixed("")())
}
