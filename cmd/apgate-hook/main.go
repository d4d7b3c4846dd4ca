// apgate-hook is the PreToolUse hook binary. It reads the hook event from
// stdin, runs the tool call through the approval flow, and writes the
// permission decision JSON to stdout. It always exits 0: a broken hook must
// never wedge the agent, so malformed input and internal errors degrade to a
// passthrough response.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/groblegark/apgate/internal/client"
	"github.com/groblegark/apgate/internal/config"
	"github.com/groblegark/apgate/internal/hook"
	"github.com/groblegark/apgate/internal/model"
	"github.com/groblegark/apgate/internal/policy"
)

// hookInput is the event Claude Code writes to the hook's stdin.
type hookInput struct {
	SessionID     string          `json:"session_id"`
	HookEventName string          `json:"hook_event_name"`
	ToolName      string          `json:"tool_name"`
	ToolInput     json.RawMessage `json:"tool_input"`
}

// hookSpecificOutput carries the permission decision back to the agent.
type hookSpecificOutput struct {
	HookEventName            string `json:"hookEventName"`
	PermissionDecision       string `json:"permissionDecision"`
	PermissionDecisionReason string `json:"permissionDecisionReason,omitempty"`
}

// hookOutput is the top-level response schema.
type hookOutput struct {
	Continue           *bool               `json:"continue,omitempty"`
	SuppressOutput     bool                `json:"suppressOutput,omitempty"`
	HookSpecificOutput *hookSpecificOutput `json:"hookSpecificOutput,omitempty"`
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	run(os.Stdin, os.Stdout, logger)
}

func run(stdin io.Reader, stdout io.Writer, logger *slog.Logger) {
	var in hookInput
	if err := json.NewDecoder(stdin).Decode(&in); err != nil {
		logger.Warn("malformed hook input", "error", err)
		writeOutput(stdout, passthrough())
		return
	}

	// Only PreToolUse events gate anything.
	if in.HookEventName != "PreToolUse" || in.ToolName == "" {
		writeOutput(stdout, passthrough())
		return
	}

	cfg, err := config.LoadHook()
	if err != nil {
		logger.Warn("invalid hook configuration", "error", err)
		// A broken config must not silently defeat fail-closed, so read the
		// fail mode directly before degrading.
		if hook.FailMode(os.Getenv("APGATE_FAIL_MODE")) == hook.FailClosed {
			writeOutput(stdout, outcomeToOutput(hook.Outcome{
				Verdict: hook.VerdictFailClosed,
				Reason:  "approval hook misconfigured: " + err.Error(),
			}))
			return
		}
		writeOutput(stdout, passthrough())
		return
	}

	rules := policy.Default()
	if cfg.PolicyFile != "" {
		loaded, err := policy.Load(cfg.PolicyFile)
		if err != nil {
			logger.Warn("failed to load policy file, using defaults", "path", cfg.PolicyFile, "error", err)
		} else {
			rules = loaded
		}
	}

	c := client.NewHTTPClient(cfg.ServerURL, cfg.AuthToken)
	defer c.Close()

	interceptor := hook.New(c, rules, cfg.ClientDeadline, cfg.PollInterval, cfg.FailMode, logger)
	outcome := interceptor.Intercept(context.Background(), in.SessionID, model.Action{
		Tool:  in.ToolName,
		Input: in.ToolInput,
	})

	writeOutput(stdout, outcomeToOutput(outcome))
}

// outcomeToOutput maps an interceptor outcome to the hook response schema.
func outcomeToOutput(o hook.Outcome) hookOutput {
	decision := func(d, reason string) hookOutput {
		return hookOutput{HookSpecificOutput: &hookSpecificOutput{
			HookEventName:            "PreToolUse",
			PermissionDecision:       d,
			PermissionDecisionReason: reason,
		}}
	}

	switch o.Verdict {
	case hook.VerdictAutoApproved:
		return decision("allow", "auto-approved by policy")
	case hook.VerdictApproved:
		return decision("allow", fmt.Sprintf("approved (request %s)", o.RequestID))
	case hook.VerdictDenied:
		reason := o.Reason
		if reason == "" {
			reason = "denied by responder"
		}
		return decision("deny", reason)
	case hook.VerdictLocalTimeout:
		// Nobody answered in time; hand the decision back to the user.
		return decision("ask", fmt.Sprintf("no approval decision in time (request %s)", o.RequestID))
	case hook.VerdictFailClosed:
		return decision("deny", o.Reason)
	default: // VerdictFailOpen
		return passthrough()
	}
}

// passthrough lets the tool call proceed without a decision.
func passthrough() hookOutput {
	t := true
	return hookOutput{Continue: &t, SuppressOutput: true}
}

func writeOutput(w io.Writer, out hookOutput) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(out)
}
