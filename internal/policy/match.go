package policy

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// matches reports whether the rule's predicates all hold for inv.
func (r *compiledRule) matches(inv Invocation) bool {
	if !matchName(r.Tool, inv.ToolName) {
		return false
	}
	for name, pattern := range r.Args {
		value, ok := inv.Arguments[name]
		if !ok {
			return false
		}
		if !matchValue(pattern, stringify(value)) {
			return false
		}
	}
	if len(r.Commands) > 0 {
		return matchCommands(r.Commands, inv.Arguments[CommandArgument], r.Decision == Allow)
	}
	return true
}

// matchName matches a tool name against a glob. Tool names contain no path
// separators, so doublestar's single-segment semantics apply to the whole name.
func matchName(pattern, name string) bool {
	if pattern == "*" {
		return true
	}
	if !strings.ContainsAny(pattern, "*?[{\\") {
		return pattern == name
	}
	matched, err := doublestar.Match(pattern, name)
	return err == nil && matched
}

// matchValue matches an argument value. Paths use "**" to cross directories.
func matchValue(pattern, value string) bool {
	if pattern == "*" || pattern == "**" {
		return true
	}
	matched, err := doublestar.Match(pattern, value)
	return err == nil && matched
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case bool, int, int32, int64, float32, float64:
		return fmt.Sprint(t)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// matchCommands evaluates shell command patterns against a command line.
// With requireAll every parsed command must match one pattern, so that
// "git status && rm -rf ." is not covered by an allow rule for "git *".
// A line that cannot be parsed never matches.
func matchCommands(patterns []string, raw any, requireAll bool) bool {
	line, ok := raw.(string)
	if !ok || strings.TrimSpace(line) == "" {
		return false
	}
	commands, err := ParseBashCommand(line)
	if err != nil || len(commands) == 0 {
		return false
	}

	matchedAny := false
	for _, cmd := range commands {
		hit := false
		for _, p := range patterns {
			if MatchPattern(p, cmd) {
				hit = true
				break
			}
		}
		if hit {
			matchedAny = true
		} else if requireAll {
			return false
		}
	}
	return matchedAny
}
