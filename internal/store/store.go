package store

import (
	"context"
	"errors"
	"time"

	"github.com/groblegark/apgate/internal/model"
)

// ErrNotFound is returned when an operation references an unknown request id.
var ErrNotFound = errors.New("request not found")

// ErrConflict is returned by Transition when the request is already in a
// terminal state. Callers racing against each other (a responder and the
// reaper, or two responders) must treat it as "someone else already
// decided", not as a failure.
var ErrConflict = errors.New("request already decided")

// Store defines the persistence interface for approval requests.
//
// Transition is the only mutating operation that requires mutual
// exclusion; implementations must perform it as a single atomic
// compare-and-set against the pending status, never as read-then-write.
type Store interface {
	// CreateRequest persists a new pending request. Safe to call
	// concurrently from many interceptor processes.
	CreateRequest(ctx context.Context, req *model.Request) error

	// GetRequest returns the request with the given id, or ErrNotFound.
	GetRequest(ctx context.Context, id string) (*model.Request, error)

	// ListRequests returns requests matching the filter plus the total
	// match count, in creation order.
	ListRequests(ctx context.Context, filter model.Filter) ([]*model.Request, int, error)

	// ListPending returns all pending requests in creation order.
	ListPending(ctx context.Context) ([]*model.Request, error)

	// ListUnnotified returns pending requests that have not yet been
	// forwarded to the decision channel, in creation order.
	ListUnnotified(ctx context.Context) ([]*model.Request, error)

	// Transition atomically moves a pending request to the given
	// terminal status and returns the updated record. Returns
	// ErrConflict if the request is already terminal, ErrNotFound if
	// the id is unknown. Exactly one concurrent Transition per id
	// succeeds.
	Transition(ctx context.Context, id string, target model.Status, respondedBy, reason string) (*model.Request, error)

	// MarkNotified durably records that the request was forwarded to
	// the decision channel.
	MarkNotified(ctx context.Context, id string) error

	// RecordEvent appends an entry to a request's audit trail,
	// filling in the assigned id and timestamp.
	RecordEvent(ctx context.Context, event *model.Event) error

	// GetEvents returns a request's audit trail in recording order.
	GetEvents(ctx context.Context, requestID string) ([]*model.Event, error)

	// Stats summarizes the request ledger.
	Stats(ctx context.Context) (*model.Stats, error)

	// Cleanup deletes requests created before the cutoff and returns
	// how many were removed. Retention policy, not lifecycle: pending
	// requests are excluded.
	Cleanup(ctx context.Context, before time.Time) (int, error)

	// Lifecycle
	Close() error
}
