// Package approvalmode holds the process-wide approval mode that governs how
// tool calls are authorized.
package approvalmode

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Mode is one of the fixed approval modes.
type Mode string

const (
	// Default asks before side effects and allows pure reads.
	Default Mode = "default"
	// AutoEdit additionally allows file edits without asking.
	AutoEdit Mode = "auto_edit"
	// Plan denies mutating tools until a plan is approved.
	Plan Mode = "plan"
	// Yolo allows everything except always-confirm tools.
	Yolo Mode = "yolo"
)

// All lists every mode in display order.
var All = []Mode{Default, AutoEdit, Plan, Yolo}

// cycle is the keyboard cycle order. Yolo is only reachable by an explicit set.
var cycle = []Mode{Default, AutoEdit, Plan}

var aliases = map[string]Mode{
	"default":   Default,
	"auto_edit": AutoEdit,
	"autoedit":  AutoEdit,
	"auto-edit": AutoEdit,
	"plan":      Plan,
	"plan_mode": Plan,
	"yolo":      Yolo,
}

var aliasNames = slices.Sorted(maps.Keys(aliases))

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case Default, AutoEdit, Plan, Yolo:
		return true
	}
	return false
}

// String returns the mode name.
func (m Mode) String() string { return string(m) }

// Next returns the mode the cycle action moves to from m.
func (m Mode) Next() Mode {
	for i, c := range cycle {
		if c == m {
			return cycle[(i+1)%len(cycle)]
		}
	}
	return Default
}

// Parse converts a user supplied name into a Mode.
func Parse(name string) (Mode, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if m, ok := aliases[key]; ok {
		return m, nil
	}
	if s := Suggest(key); s != "" {
		return "", fmt.Errorf("unknown approval mode %q (did you mean %q?)", name, s)
	}
	return "", fmt.Errorf("unknown approval mode %q (valid: default, auto_edit, plan, yolo)", name)
}

// Suggest returns the closest mode name to s, or "" when nothing is close.
// Ties go to the alphabetically first alias.
func Suggest(s string) Mode {
	best := Mode("")
	bestDist := 3
	for _, alias := range aliasNames {
		if d := levenshtein.ComputeDistance(s, alias); d < bestDist {
			best, bestDist = aliases[alias], d
		}
	}
	return best
}
