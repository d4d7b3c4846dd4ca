// Package policy classifies requested actions as auto-approvable or
// requiring a remote decision. Rules are data, not code: a RuleSet is
// loadable from a TOML file so policy changes never require redeploying
// the coordination service.
package policy

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/groblegark/apgate/internal/model"
)

// Classification is the classifier's verdict on an action.
type Classification string

const (
	AutoApprove   Classification = "auto_approve"
	NeedsApproval Classification = "needs_approval"
)

// RuleSet holds the classification rules. Matching order:
//
//  1. DenySubstrings against the action's textual form: a match forces
//     NeedsApproval regardless of every allow rule below.
//  2. SafeTools are always auto-approved.
//  3. Tools outside SensitiveTools are auto-approved.
//  4. SafeCommandPrefixes (shell actions) and SafeWritePrefixes (file
//     actions) are auto-approved.
//  5. Everything else needs approval.
type RuleSet struct {
	SafeTools           []string `toml:"safe_tools"`
	SensitiveTools      []string `toml:"sensitive_tools"`
	DenySubstrings      []string `toml:"deny_substrings"`
	SafeCommandPrefixes []string `toml:"safe_command_prefixes"`
	SafeWritePrefixes   []string `toml:"safe_write_prefixes"`
}

// Default returns the built-in rule set.
func Default() *RuleSet {
	return &RuleSet{
		SafeTools: []string{
			"Read", "Glob", "Grep", "LS", "TodoWrite",
		},
		SensitiveTools: []string{
			"Bash", "Write", "Edit", "MultiEdit", "Task", "WebFetch", "WebSearch",
		},
		DenySubstrings: []string{
			"rm ", "rm -", "del ", "format ", "kill ", "sudo ",
		},
		SafeCommandPrefixes: []string{
			"ls", "pwd", "echo", "date", "which", "where",
		},
		SafeWritePrefixes: []string{
			"/tmp/",
		},
	}
}

// Load reads a rule set from a TOML file. Missing keys fall back to the
// built-in defaults so a rule file can override a single list.
func Load(path string) (*RuleSet, error) {
	rs := Default()
	if _, err := toml.DecodeFile(path, rs); err != nil {
		return nil, fmt.Errorf("policy: load %s: %w", path, err)
	}
	return rs, nil
}

// Classify decides whether an action may proceed without a remote
// decision. Pure and deterministic; callers never submit auto-approved
// actions to the approval store.
func (r *RuleSet) Classify(a model.Action) Classification {
	text := a.Text()

	// Denylist wins over every allow rule: a nominally safe tool
	// carrying a dangerous literal still requires approval.
	for _, sub := range r.DenySubstrings {
		if strings.Contains(text, strings.ToLower(sub)) {
			return NeedsApproval
		}
	}

	for _, tool := range r.SafeTools {
		if a.Tool == tool {
			return AutoApprove
		}
	}

	sensitive := false
	for _, tool := range r.SensitiveTools {
		if a.Tool == tool {
			sensitive = true
			break
		}
	}
	if !sensitive {
		return AutoApprove
	}

	switch a.Tool {
	case "Bash":
		command := strings.ToLower(strings.TrimSpace(a.Command()))
		for _, prefix := range r.SafeCommandPrefixes {
			if command == prefix || strings.HasPrefix(command, prefix+" ") {
				return AutoApprove
			}
		}
	case "Write":
		path := strings.ToLower(a.FilePath())
		for _, prefix := range r.SafeWritePrefixes {
			if strings.Contains(path, strings.ToLower(prefix)) {
				return AutoApprove
			}
		}
	}

	return NeedsApproval
}
