package eventbus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type ping struct{ N int }

func TestTypedBusFanOut(t *testing.T) {
	bus := NewTyped[ping]()
	a := bus.Subscribe()
	b := bus.Subscribe()
	bus.Publish(ping{N: 7})
	assert.Equal(t, 7, (<-a).N)
	assert.Equal(t, 7, (<-b).N)
	bus.Close()
	_, ok := <-a
	assert.False(t, ok)
}

func TestTypedBusConcurrentPublish(t *testing.T) {
	bus := NewTypedWithBuffer[ping](100)
	ch := bus.Subscribe()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			bus.Publish(ping{N: n})
		}(i)
	}
	wg.Wait()
	assert.Len(t, ch, 10)
	assert.Zero(t, bus.Dropped())
}
