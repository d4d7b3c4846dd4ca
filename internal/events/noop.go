package events

import "context"

// NoopPublisher drops every event. Used when the server runs without a
// broker; responders then rely on the log notifier and hook polling still
// observes decisions through the store.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, Event) error { return nil }

func (NoopPublisher) Close() error { return nil }
