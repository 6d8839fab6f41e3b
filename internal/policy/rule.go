package policy

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/opencode-ai/toolgate/internal/approvalmode"
)

// CommandArgument is the invocation argument shell command predicates read.
const CommandArgument = "command"

// Rule is one declarative policy entry as written in a rule source.
type Rule struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// Tool is a glob over tool names, e.g. "write_file", "mcp__*" or "{read,grep}".
	Tool string `json:"tool" yaml:"tool"`
	// Args maps argument names to globs over the argument's value.
	Args map[string]string `json:"args,omitempty" yaml:"args,omitempty"`
	// Commands are shell command patterns ("git commit *", "ls") matched
	// against the parsed "command" argument. Allow rules match only when
	// every command in the line matches; deny and ask rules when any does.
	Commands []string `json:"commands,omitempty" yaml:"commands,omitempty"`
	// Modes restricts the rule to some approval modes. Empty means all.
	Modes    []approvalmode.Mode `json:"modes,omitempty" yaml:"modes,omitempty"`
	Decision Decision            `json:"decision" yaml:"decision"`
	Priority int                 `json:"priority,omitempty" yaml:"priority,omitempty"`
	Reason   string              `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Layer is an ordered group of rules from one source. Later layers override
// earlier ones at equal priority.
type Layer struct {
	Name  string
	Rules []Rule
}

// ConfigError reports a malformed rule source. It is raised at load time only.
type ConfigError struct {
	Source string
	// Index is the rule position within the source, or -1 for file-level errors.
	Index int
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("invalid policy")
	if e.Source != "" {
		fmt.Fprintf(&b, " %s", e.Source)
	}
	if e.Index >= 0 {
		fmt.Fprintf(&b, " rule #%d", e.Index+1)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " field %q", e.Field)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// compiledRule is a validated rule with its load position.
type compiledRule struct {
	Rule
	source string
	seq    int
	modes  map[approvalmode.Mode]bool
}

func (r *compiledRule) appliesTo(mode approvalmode.Mode) bool {
	return r.modes == nil || r.modes[mode]
}

func compile(source string, index, seq int, r Rule) (compiledRule, error) {
	fail := func(field string, err error) (compiledRule, error) {
		return compiledRule{}, &ConfigError{Source: source, Index: index, Field: field, Err: err}
	}

	r.Tool = strings.TrimSpace(r.Tool)
	if r.Tool == "" {
		return fail("tool", fmt.Errorf("tool pattern is required"))
	}
	if !doublestar.ValidatePattern(r.Tool) {
		return fail("tool", fmt.Errorf("malformed glob %q", r.Tool))
	}

	d, err := ParseDecision(string(r.Decision))
	if err != nil {
		return fail("decision", err)
	}
	r.Decision = d

	for name, pattern := range r.Args {
		if strings.TrimSpace(name) == "" {
			return fail("args", fmt.Errorf("argument name is empty"))
		}
		if !doublestar.ValidatePattern(pattern) {
			return fail("args", fmt.Errorf("malformed glob %q for argument %q", pattern, name))
		}
	}

	for _, c := range r.Commands {
		if strings.TrimSpace(c) == "" {
			return fail("commands", fmt.Errorf("empty command pattern"))
		}
	}

	var modes map[approvalmode.Mode]bool
	if len(r.Modes) > 0 {
		modes = make(map[approvalmode.Mode]bool, len(r.Modes))
		normalized := make([]approvalmode.Mode, 0, len(r.Modes))
		for _, m := range r.Modes {
			parsed, err := approvalmode.Parse(string(m))
			if err != nil {
				return fail("modes", err)
			}
			modes[parsed] = true
			normalized = append(normalized, parsed)
		}
		r.Modes = normalized
	}

	if r.Name == "" {
		r.Name = fmt.Sprintf("%s#%d", source, index+1)
	}

	return compiledRule{Rule: r, source: source, seq: seq, modes: modes}, nil
}
