package events

import (
	"context"

	"github.com/groblegark/apgate/internal/model"
)

// Event topic constants
const (
	TopicRequestCreated  = "approvals.request.created"
	TopicRequestPending  = "approvals.request.pending"
	TopicRequestApproved = "approvals.request.approved"
	TopicRequestDenied   = "approvals.request.denied"
	TopicRequestTimedOut = "approvals.request.timed_out"
)

// TopicForStatus maps a terminal status to its resolution topic. Returns ""
// for non-terminal statuses.
func TopicForStatus(s model.Status) string {
	switch s {
	case model.StatusApproved:
		return TopicRequestApproved
	case model.StatusDenied:
		return TopicRequestDenied
	case model.StatusTimedOut:
		return TopicRequestTimedOut
	}
	return ""
}

// Event is a bus payload tied to one approval request. Every payload
// carries the full request snapshot so consumers (the chat bridge, watch)
// never have to re-read the store.
type Event interface {
	EventRequest() *model.Request
}

type RequestCreated struct {
	Request *model.Request `json:"request"`
}

// RequestPending is emitted by the dispatcher when a pending request is
// handed to responders for the first time.
type RequestPending struct {
	Request *model.Request `json:"request"`
}

type RequestResolved struct {
	Request *model.Request `json:"request"`
}

func (e RequestCreated) EventRequest() *model.Request  { return e.Request }
func (e RequestPending) EventRequest() *model.Request  { return e.Request }
func (e RequestResolved) EventRequest() *model.Request { return e.Request }

// Publisher is the interface for emitting approval events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event Event) error
	Close() error
}
