package events

import "github.com/groblegark/apgate/internal/model"

// Message is one approval event observed on the bus, already decoded.
type Message struct {
	Topic   string
	Request *model.Request
}

// Subscriber receives approval events from the bus.
type Subscriber interface {
	// Subscribe delivers decoded approval events for the topic (NATS
	// wildcards like "approvals.>" are allowed) on the returned channel.
	// Call the returned cancel function to unsubscribe and close it.
	Subscribe(topic string) (<-chan Message, func(), error)
	Close() error
}
