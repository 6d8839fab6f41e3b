// Package policy decides whether a tool invocation may run, must be denied,
// or needs the operator's confirmation, by evaluating an ordered rule set
// against the current approval mode.
package policy

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Decision is the outcome of evaluating an invocation.
type Decision string

const (
	Allow   Decision = "allow"
	Deny    Decision = "deny"
	AskUser Decision = "ask_user"
)

var decisionAliases = map[string]Decision{
	"allow":    Allow,
	"deny":     Deny,
	"ask_user": AskUser,
	"ask":      AskUser,
}

var decisionNames = slices.Sorted(maps.Keys(decisionAliases))

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	return d == Allow || d == Deny || d == AskUser
}

// ParseDecision normalizes a decision name from a rule source.
func ParseDecision(s string) (Decision, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if d, ok := decisionAliases[key]; ok {
		return d, nil
	}
	best, bestDist := "", 3
	for _, alias := range decisionNames {
		if d := levenshtein.ComputeDistance(key, alias); d < bestDist {
			best, bestDist = alias, d
		}
	}
	if best != "" {
		return "", fmt.Errorf("unknown decision %q (did you mean %q?)", s, best)
	}
	return "", fmt.Errorf("unknown decision %q (valid: allow, deny, ask_user)", s)
}

// Invocation is a tool call proposed by the agent. It is never modified by
// the engine.
type Invocation struct {
	ToolName  string         `json:"toolName"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Result explains a decision.
type Result struct {
	Decision Decision `json:"decision"`
	// Rule is the name of the rule that fired; empty for the fallback.
	Rule     string `json:"rule,omitempty"`
	Source   string `json:"source,omitempty"`
	Priority int    `json:"priority"`
	Reason   string `json:"reason,omitempty"`
	Fallback bool   `json:"fallback,omitempty"`
}
