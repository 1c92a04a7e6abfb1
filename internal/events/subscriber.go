package events

// Message is one event as received from the bus.
type Message struct {
	Subject string
	Data    []byte
}

// Subscriber receives events from the event bus.
type Subscriber interface {
	// Subscribe delivers events on the returned channel until the returned
	// cancel function is called.
	Subscribe(topic string) (<-chan Message, func(), error)
	Close() error
}
