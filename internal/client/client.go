// Package client provides a transport-agnostic interface for the apgate
// service and an HTTP/JSON implementation that talks to the apgate REST API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/groblegark/apgate/internal/model"
)

// ApprovalClient is the interface that apgate CLI commands and the hook
// binary use to communicate with the approval server. It is implemented by
// HTTPClient (default) and can be backed by any transport.
type ApprovalClient interface {
	// Requests
	SubmitRequest(ctx context.Context, req *SubmitRequest) (*model.Request, error)
	GetRequest(ctx context.Context, id string) (*model.Request, error)
	ListRequests(ctx context.Context, req *ListRequestsRequest) (*ListRequestsResponse, error)
	Respond(ctx context.Context, id string, req *RespondRequest) (*model.Request, error)
	GetEvents(ctx context.Context, id string) ([]*model.Event, error)

	// Maintenance
	Stats(ctx context.Context) (*model.Stats, error)
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// SubmitRequest holds parameters for submitting an approval request.
type SubmitRequest struct {
	SessionID string          `json:"session_id"`
	Tool      string          `json:"tool"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`
}

// ListRequestsRequest holds filter parameters for listing requests.
type ListRequestsRequest struct {
	Status    []string `json:"status,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
	Tool      string   `json:"tool,omitempty"`
	Limit     int      `json:"limit,omitempty"`
	Offset    int      `json:"offset,omitempty"`
}

// ListRequestsResponse is the response from ListRequests.
type ListRequestsResponse struct {
	Requests []*model.Request `json:"requests"`
	Total    int              `json:"total"`
}

// RespondRequest holds parameters for deciding a pending request.
type RespondRequest struct {
	Decision    string `json:"decision"`
	RespondedBy string `json:"responded_by"`
	Reason      string `json:"reason,omitempty"`
}

// APIError is returned for non-2xx HTTP responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}
