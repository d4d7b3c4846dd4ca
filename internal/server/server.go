package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/groblegark/apgate/internal/events"
	"github.com/groblegark/apgate/internal/idgen"
	"github.com/groblegark/apgate/internal/model"
	"github.com/groblegark/apgate/internal/store"
)

// ApprovalServer coordinates approval requests between submitting agents and
// human responders. All durable state lives in the store; the server itself
// holds only configuration, so multiple instances can share one database.
type ApprovalServer struct {
	store      store.Store
	publisher  events.Publisher
	responders map[string]struct{}
}

// NewApprovalServer returns a new ApprovalServer backed by the given store and
// publisher. responders is the set of identities allowed to decide requests;
// when empty, every respond attempt is rejected.
func NewApprovalServer(s store.Store, p events.Publisher, responders []string) *ApprovalServer {
	set := make(map[string]struct{}, len(responders))
	for _, r := range responders {
		set[r] = struct{}{}
	}
	return &ApprovalServer{
		store:      s,
		publisher:  p,
		responders: set,
	}
}

// recordAndPublish appends an audit trail entry and publishes the event to
// the bus. Both are best-effort; failures are logged but never block the
// request path.
func (s *ApprovalServer) recordAndPublish(ctx context.Context, topic, requestID, actor string, event events.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Warn("failed to marshal event", "topic", topic, "request_id", requestID, "error", err)
		return
	}
	if err := s.store.RecordEvent(ctx, &model.Event{
		Topic:     topic,
		RequestID: requestID,
		Actor:     actor,
		Payload:   payload,
	}); err != nil {
		slog.Warn("failed to record event", "topic", topic, "request_id", requestID, "error", err)
	}
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "request_id", requestID, "error", err)
	}
}

// inputError indicates invalid user input.
// Transport layers map this to 400.
type inputError string

func (e inputError) Error() string { return string(e) }

// errForbidden indicates the responder is not in the authorized set.
// Transport layers map this to 403.
var errForbidden = errors.New("responder not authorized")

// Submit records a new pending approval request and announces its creation.
func (s *ApprovalServer) Submit(ctx context.Context, sessionID string, action model.Action) (*model.Request, error) {
	if action.Tool == "" {
		return nil, inputError("tool is required")
	}

	id, err := idgen.Generate()
	if err != nil {
		return nil, fmt.Errorf("generating request id: %w", err)
	}

	req := &model.Request{
		ID:        id,
		SessionID: sessionID,
		Action:    action,
		Status:    model.StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.CreateRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	s.recordAndPublish(ctx, events.TopicRequestCreated, req.ID, req.SessionID, events.RequestCreated{Request: req})
	slog.Info("approval request submitted",
		"request_id", req.ID,
		"session_id", req.SessionID,
		"tool", req.Action.Tool,
	)

	return req, nil
}

// Respond resolves a pending request with the responder's decision. The
// underlying store transition is atomic: if the request was already decided
// or reaped, store.ErrConflict is returned and no state changes.
func (s *ApprovalServer) Respond(ctx context.Context, id string, decision model.Decision, respondedBy, reason string) (*model.Request, error) {
	if !decision.IsValid() {
		return nil, inputError(fmt.Sprintf("invalid decision %q", decision))
	}
	if respondedBy == "" {
		return nil, inputError("responded_by is required")
	}
	if _, ok := s.responders[respondedBy]; !ok {
		return nil, errForbidden
	}

	req, err := s.store.Transition(ctx, id, decision.Status(), respondedBy, reason)
	if err != nil {
		return nil, err
	}

	s.recordAndPublish(ctx, events.TopicForStatus(req.Status), req.ID, respondedBy, events.RequestResolved{Request: req})
	slog.Info("approval request resolved",
		"request_id", req.ID,
		"status", req.Status,
		"responded_by", respondedBy,
	)

	return req, nil
}

// Cleanup deletes resolved requests created before the cutoff.
func (s *ApprovalServer) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, inputError("older_than must be positive")
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	n, err := s.store.Cleanup(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	if n > 0 {
		slog.Info("cleaned up resolved requests", "count", n, "cutoff", cutoff)
	}
	return n, nil
}
