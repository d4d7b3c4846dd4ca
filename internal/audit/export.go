// Package audit periodically exports the full approval history as JSONL to
// one or more destinations (S3-compatible storage, local file).
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/groblegark/apgate/internal/model"
	"github.com/groblegark/apgate/internal/store"
)

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version      string    `json:"version"`
	Type         string    `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	RequestCount int       `json:"request_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes all approval requests from the store as JSONL to w,
// sorted by ID so repeated exports of the same state are byte-identical.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer) error {
	requests, _, err := s.ListRequests(ctx, model.Filter{})
	if err != nil {
		return fmt.Errorf("list requests: %w", err)
	}

	sort.Slice(requests, func(i, j int) bool {
		return requests[i].ID < requests[j].ID
	})

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:      "1",
		Type:         "header",
		Timestamp:    time.Now().UTC(),
		RequestCount: len(requests),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, r := range requests {
		if err := enc.Encode(record{Type: "request", Data: r}); err != nil {
			return fmt.Errorf("encode request %s: %w", r.ID, err)
		}
	}

	return nil
}
