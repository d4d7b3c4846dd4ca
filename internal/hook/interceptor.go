// Package hook implements the tool-call interception flow: classify an
// action against the policy rules, escalate to the approval server when
// needed, and poll for the human decision under a local deadline.
package hook

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/groblegark/apgate/internal/client"
	"github.com/groblegark/apgate/internal/model"
	"github.com/groblegark/apgate/internal/policy"
)

// FailMode controls what happens when the approval server is unreachable.
type FailMode string

const (
	// FailOpen lets the action proceed when the server cannot be reached.
	FailOpen FailMode = "open"
	// FailClosed blocks the action when the server cannot be reached.
	FailClosed FailMode = "closed"
)

// IsValid reports whether m is a known fail mode.
func (m FailMode) IsValid() bool {
	return m == FailOpen || m == FailClosed
}

// Verdict is the final outcome of intercepting one tool call.
type Verdict string

const (
	// VerdictAutoApproved means the policy allowed the action locally; the
	// server was never contacted.
	VerdictAutoApproved Verdict = "auto_approved"
	VerdictApproved     Verdict = "approved"
	VerdictDenied       Verdict = "denied"
	// VerdictLocalTimeout means no decision arrived before the client
	// deadline. The server-side reaper resolves the request later.
	VerdictLocalTimeout Verdict = "local_timeout"
	VerdictFailOpen     Verdict = "fail_open"
	VerdictFailClosed   Verdict = "fail_closed"
)

// Outcome describes what the interceptor decided for one action.
type Outcome struct {
	Verdict   Verdict
	Reason    string
	RequestID string
}

// Interceptor routes tool calls through the approval flow.
type Interceptor struct {
	client       client.ApprovalClient
	rules        *policy.RuleSet
	deadline     time.Duration
	pollInterval time.Duration
	failMode     FailMode
	logger       *slog.Logger
}

// New returns an Interceptor. The deadline must be shorter than the server's
// reaper max age so a locally timed-out request is reaped, not orphaned;
// config validation enforces that ordering.
func New(c client.ApprovalClient, rules *policy.RuleSet, deadline, pollInterval time.Duration, failMode FailMode, logger *slog.Logger) *Interceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interceptor{
		client:       c,
		rules:        rules,
		deadline:     deadline,
		pollInterval: pollInterval,
		failMode:     failMode,
		logger:       logger,
	}
}

// Intercept classifies the action and, when approval is needed, submits a
// request and polls until a decision arrives or the deadline passes.
func (i *Interceptor) Intercept(ctx context.Context, sessionID string, action model.Action) Outcome {
	if i.rules.Classify(action) == policy.AutoApprove {
		return Outcome{Verdict: VerdictAutoApproved}
	}

	req, err := i.client.SubmitRequest(ctx, &client.SubmitRequest{
		SessionID: sessionID,
		Tool:      action.Tool,
		ToolInput: action.Input,
	})
	if err != nil {
		i.logger.Warn("failed to submit approval request", "tool", action.Tool, "error", err)
		return i.failOutcome(err)
	}

	i.logger.Info("awaiting approval", "request_id", req.ID, "tool", action.Tool)
	return i.poll(ctx, req.ID)
}

// poll reads the request status every pollInterval until it turns terminal
// or the deadline passes. Transient read errors are retried; the deadline
// bounds the total wait either way.
func (i *Interceptor) poll(ctx context.Context, requestID string) Outcome {
	deadline := time.NewTimer(i.deadline)
	defer deadline.Stop()
	ticker := time.NewTicker(i.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Outcome{Verdict: VerdictLocalTimeout, RequestID: requestID, Reason: ctx.Err().Error()}
		case <-deadline.C:
			i.logger.Warn("approval deadline passed", "request_id", requestID)
			return Outcome{Verdict: VerdictLocalTimeout, RequestID: requestID}
		case <-ticker.C:
			req, err := i.client.GetRequest(ctx, requestID)
			if err != nil {
				i.logger.Warn("failed to poll request", "request_id", requestID, "error", err)
				continue
			}
			switch req.Status {
			case model.StatusApproved:
				return Outcome{Verdict: VerdictApproved, RequestID: requestID}
			case model.StatusDenied:
				return Outcome{Verdict: VerdictDenied, RequestID: requestID, Reason: req.Reason}
			case model.StatusTimedOut:
				return Outcome{Verdict: VerdictLocalTimeout, RequestID: requestID}
			}
		}
	}
}

func (i *Interceptor) failOutcome(err error) Outcome {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
		// The server rejected the submission (bad input, auth). That is a
		// verdict, not an availability failure, so deny outright. A 5xx
		// means the server itself is broken and falls through to the
		// configured fail mode along with transport errors.
		return Outcome{Verdict: VerdictDenied, Reason: apiErr.Message}
	}
	if i.failMode == FailClosed {
		return Outcome{Verdict: VerdictFailClosed, Reason: "approval server unreachable"}
	}
	return Outcome{Verdict: VerdictFailOpen, Reason: "approval server unreachable"}
}
