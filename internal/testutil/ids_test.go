package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/fiberclient/internal/message"
)

var _ message.IDGenerator = (*SequentialIDs)(nil)

func TestSequentialIDs(t *testing.T) {
	gen := NewSequentialIDs("order")
	assert.Equal(t, "order-0001", gen.Generate())
	assert.Equal(t, "order-0002", gen.Generate())

	assert.Equal(t, "fiber-0001", NewSequentialIDs("").Generate())
}

func TestSequentialIDs_ThreadSafe(t *testing.T) {
	gen := NewSequentialIDs("x")
	seen := make(map[string]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id := gen.Generate()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 500)
}

func TestOrdinals(t *testing.T) {
	o := NewOrdinals()
	assert.Equal(t, int64(0), o.Current())
	assert.Equal(t, int64(1), o.Next())
	assert.Equal(t, int64(2), o.Next())
	assert.Equal(t, int64(2), o.Current())

	o.Reset()
	assert.Equal(t, int64(1), o.Next())
}
