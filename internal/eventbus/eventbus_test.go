package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusPublishSubscribe(t *testing.T) {
	var bus EventBus = New()
	ch := bus.Subscribe()
	bus.Publish("hello")
	assert.Equal(t, Event("hello"), <-ch)
	bus.Unsubscribe(ch)
	_, ok := <-ch
	assert.False(t, ok)
}

func TestBusClose(t *testing.T) {
	bus := New()
	ch := bus.Subscribe()
	bus.Close()
	_, ok := <-ch
	assert.False(t, ok)

	late := bus.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
	bus.Publish(1)
	bus.Close()
}

func TestBusDropsWhenFull(t *testing.T) {
	bus := NewWithBuffer(1)
	ch := bus.Subscribe()
	bus.Publish(1)
	bus.Publish(2)
	assert.Equal(t, Event(1), <-ch)
	assert.EqualValues(t, 1, bus.Dropped())
}

func TestNopBus(t *testing.T) {
	var bus EventBus = Nop{}
	bus.Publish(1)
	_, ok := <-bus.Subscribe()
	assert.False(t, ok)
}
