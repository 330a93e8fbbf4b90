package eventbus

// Event represents an arbitrary event passed on the bus.
type Event interface{}

// EventBus implements a simple publish/subscribe event bus.
type EventBus interface {
	Publish(Event)
	Subscribe() <-chan Event
	Unsubscribe(<-chan Event)
	Close()
}

// Bus is the default EventBus implementation, a TypedBus carrying any event.
type Bus struct {
	*TypedBus[Event]
}

// New creates a new Bus.
func New() *Bus { return &Bus{TypedBus: NewTyped[Event]()} }

// NewWithBuffer creates a Bus whose subscriber channels hold n events.
func NewWithBuffer(n int) *Bus { return &Bus{TypedBus: NewTypedWithBuffer[Event](n)} }

// Nop is an EventBus that drops every event.
type Nop struct{}

func (Nop) Publish(Event) {}
func (Nop) Subscribe() <-chan Event {
	ch := make(chan Event)
	close(ch)
	return ch
}
func (Nop) Unsubscribe(<-chan Event) {}
func (Nop) Close()                   {}
