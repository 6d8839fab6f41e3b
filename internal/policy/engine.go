package policy

import (
	"fmt"
	"sort"

	"github.com/opencode-ai/toolgate/internal/approvalmode"
)

// Engine evaluates invocations against a compiled, ordered rule set.
// An Engine is immutable after construction and safe for concurrent use.
type Engine struct {
	rules    []compiledRule
	fallback Decision
}

// Option configures an Engine.
type Option func(*Engine)

// WithFallback sets the decision returned when no rule matches.
func WithFallback(d Decision) Option {
	return func(e *Engine) {
		e.fallback = d
	}
}

// NewEngine compiles the layers in load order. Every rule is validated here;
// a malformed rule is returned as a *ConfigError and no engine is built.
func NewEngine(layers []Layer, opts ...Option) (*Engine, error) {
	e := &Engine{fallback: AskUser}
	for _, opt := range opts {
		opt(e)
	}
	if !e.fallback.Valid() {
		return nil, &ConfigError{Index: -1, Field: "fallback", Err: fmt.Errorf("unknown decision %q", e.fallback)}
	}

	seq := 0
	for _, layer := range layers {
		for i, r := range layer.Rules {
			cr, err := compile(layer.Name, i, seq, r)
			if err != nil {
				return nil, err
			}
			e.rules = append(e.rules, cr)
			seq++
		}
	}

	// Higher priority first; at equal priority the later-loaded rule first.
	sort.SliceStable(e.rules, func(i, j int) bool {
		if e.rules[i].Priority != e.rules[j].Priority {
			return e.rules[i].Priority > e.rules[j].Priority
		}
		return e.rules[i].seq > e.rules[j].seq
	})

	return e, nil
}

// Decide returns the decision for inv under mode. It never fails: when no
// rule matches, the fallback decision is returned.
func (e *Engine) Decide(inv Invocation, mode approvalmode.Mode) Result {
	for i := range e.rules {
		r := &e.rules[i]
		if !r.appliesTo(mode) || !r.matches(inv) {
			continue
		}
		return Result{
			Decision: r.Decision,
			Rule:     r.Name,
			Source:   r.source,
			Priority: r.Priority,
			Reason:   r.Reason,
		}
	}
	return Result{
		Decision: e.fallback,
		Reason:   "no rule matched",
		Fallback: true,
	}
}

// Fallback returns the decision used when no rule matches.
func (e *Engine) Fallback() Decision {
	return e.fallback
}

// RuleInfo describes a loaded rule in evaluation order.
type RuleInfo struct {
	Rule
	Source string `json:"source"`
	Order  int    `json:"order"`
}

// Rules lists the loaded rules in evaluation order. When modes are given,
// only rules that apply to at least one of them are returned.
func (e *Engine) Rules(modes ...approvalmode.Mode) []RuleInfo {
	out := make([]RuleInfo, 0, len(e.rules))
	for i := range e.rules {
		r := &e.rules[i]
		if len(modes) > 0 {
			applies := false
			for _, m := range modes {
				if r.appliesTo(m) {
					applies = true
					break
				}
			}
			if !applies {
				continue
			}
		}
		out = append(out, RuleInfo{Rule: r.Rule, Source: r.source, Order: r.seq})
	}
	return out
}
