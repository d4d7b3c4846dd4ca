package model

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Status represents the lifecycle state of an approval request.
// Pending is the only non-terminal state; once a request leaves it,
// no further transition is possible.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusTimedOut Status = "timed_out"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsValid checks whether the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusDenied, StatusTimedOut:
		return true
	}
	return false
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s.IsValid() && s != StatusPending
}

// Decision is a responder's verdict on a pending request.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionDeny    Decision = "deny"
)

// IsValid checks whether the decision is a known value.
func (d Decision) IsValid() bool {
	return d == DecisionApprove || d == DecisionDeny
}

// Status maps a decision to the terminal status it produces.
func (d Decision) Status() Status {
	if d == DecisionApprove {
		return StatusApproved
	}
	return StatusDenied
}

// Action is the sensitive operation a caller wants to perform: a tool
// name plus its structured input. The input is opaque to everything
// except the policy classifier.
type Action struct {
	Tool  string          `json:"tool"`
	Input json.RawMessage `json:"input,omitempty"`
}

// Command extracts the "command" field from the action input, if any.
// Used by the classifier for shell actions.
func (a Action) Command() string {
	return a.inputString("command")
}

// FilePath extracts the "file_path" field from the action input, if any.
func (a Action) FilePath() string {
	return a.inputString("file_path")
}

func (a Action) inputString(key string) string {
	if len(a.Input) == 0 {
		return ""
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(a.Input, &fields); err != nil {
		return ""
	}
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// Text returns a lowercase textual form of the action for pattern
// matching: the tool name followed by the compacted input JSON.
func (a Action) Text() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(a.Tool))
	if len(a.Input) > 0 {
		var buf bytes.Buffer
		if json.Compact(&buf, a.Input) == nil {
			b.WriteByte(' ')
			b.WriteString(strings.ToLower(buf.String()))
		}
	}
	return b.String()
}

// Request is the persisted approval record. Created by the interceptor's
// submit call, resolved exactly once by a responder or the reaper, and
// retained afterwards for audit.
type Request struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"`
	Action      Action     `json:"action"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
	RespondedBy string     `json:"responded_by,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	NotifiedAt  *time.Time `json:"notified_at,omitempty"`
}

// Age returns how long the request has been alive relative to now.
func (r *Request) Age(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}

// Filter selects requests for listing.
type Filter struct {
	Status    []Status `json:"status,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
	Tool      string   `json:"tool,omitempty"`
	Limit     int      `json:"limit,omitempty"`
	Offset    int      `json:"offset,omitempty"`
}

// Stats summarizes the request ledger.
type Stats struct {
	ByStatus   map[Status]int `json:"by_status"`
	ByTool     map[string]int `json:"by_tool"`
	RecentHour int            `json:"recent_hour"`
	Total      int            `json:"total"`
}
