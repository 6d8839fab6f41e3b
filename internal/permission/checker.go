package permission

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/opencode-ai/toolgate/internal/approvalmode"
	"github.com/opencode-ai/toolgate/internal/confirm"
	"github.com/opencode-ai/toolgate/internal/event"
	"github.com/opencode-ai/toolgate/internal/logging"
	"github.com/opencode-ai/toolgate/internal/policy"
)

// Request describes a tool call about to run.
type Request struct {
	SessionID string         `json:"sessionID,omitempty"`
	CallID    string         `json:"callID,omitempty"`
	ToolName  string         `json:"toolName"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Title     string         `json:"title,omitempty"`
}

func (r Request) invocation() policy.Invocation {
	return policy.Invocation{ToolName: r.ToolName, Arguments: r.Arguments}
}

// Evaluation is the decision computed for a request before any operator
// interaction.
type Evaluation struct {
	policy.Result
	Mode approvalmode.Mode `json:"mode"`
	// Escalated is set when an ALLOW was turned into ASK_USER by the repeat guard.
	Escalated bool `json:"escalated,omitempty"`
	// Remembered is set when an earlier proceed_always answer covers an ASK_USER.
	Remembered bool `json:"remembered,omitempty"`
	// Patterns are the shell command patterns a proceed_always answer records.
	Patterns []string `json:"patterns,omitempty"`
}

// Checker gates tool calls. The engine may be swapped at runtime; a swap
// affects subsequent checks only.
type Checker struct {
	mode     *approvalmode.State
	engine   atomic.Pointer[policy.Engine]
	coord    *confirm.Coordinator
	loops    *DoomLoopDetector
	doomLoop DoomLoopAction
	baseDir  string
	read     FileReader
	log      zerolog.Logger

	mu       sync.RWMutex
	approved map[string]map[string]bool // sessionID -> tool name
	patterns map[string]map[string]bool // sessionID -> shell pattern
}

// Option configures a Checker.
type Option func(*Checker)

// WithDoomLoop sets the action taken on repeated identical calls.
func WithDoomLoop(action DoomLoopAction) Option {
	return func(c *Checker) {
		c.doomLoop = action
	}
}

// WithBaseDir resolves relative paths in diff previews against dir.
func WithBaseDir(dir string) Option {
	return func(c *Checker) {
		c.baseDir = dir
	}
}

// WithFileReader replaces the reader used for diff previews.
func WithFileReader(read FileReader) Option {
	return func(c *Checker) {
		c.read = read
	}
}

// NewChecker creates a checker over the given mode state, engine and coordinator.
func NewChecker(mode *approvalmode.State, engine *policy.Engine, coord *confirm.Coordinator, opts ...Option) *Checker {
	c := &Checker{
		mode:     mode,
		coord:    coord,
		loops:    NewDoomLoopDetector(),
		doomLoop: DoomLoopAsk,
		log:      logging.Component("permission"),
		approved: make(map[string]map[string]bool),
		patterns: make(map[string]map[string]bool),
	}
	c.engine.Store(engine)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Engine returns the engine used for new checks.
func (c *Checker) Engine() *policy.Engine {
	return c.engine.Load()
}

// SetEngine replaces the engine. Checks already past evaluation keep the
// decision they computed.
func (c *Checker) SetEngine(e *policy.Engine) {
	if e != nil {
		c.engine.Store(e)
	}
}

// Mode returns the approval mode state the checker reads.
func (c *Checker) Mode() *approvalmode.State {
	return c.mode
}

// Evaluate computes the decision for req without recording the call or
// contacting the operator.
func (c *Checker) Evaluate(req Request) Evaluation {
	return c.evaluate(req, c.mode.Get(), false)
}

func (c *Checker) evaluate(req Request, mode approvalmode.Mode, repeated bool) Evaluation {
	ev := Evaluation{
		Result: c.engine.Load().Decide(req.invocation(), mode),
		Mode:   mode,
	}

	if policy.Category(req.ToolName) == policy.CategoryShell {
		if line, ok := req.Arguments[policy.CommandArgument].(string); ok {
			if cmds, err := policy.ParseBashCommand(line); err == nil {
				ev.Patterns = policy.BuildPatterns(cmds)
			}
		}
	}

	if ev.Decision == policy.Allow && repeated && c.doomLoop == DoomLoopAsk {
		ev.Decision = policy.AskUser
		ev.Reason = RepeatReason
		ev.Escalated = true
		return ev
	}

	if ev.Decision == policy.AskUser && ev.Source != policy.AlwaysConfirmLayer {
		ev.Remembered = c.remembered(req.SessionID, req.ToolName, ev.Patterns)
	}
	return ev
}

// Check is called by a tool before any side effect. It returns nil when the
// call may proceed, a *DeniedError for DENY, and for ASK_USER waits for the
// operator, returning *RejectedError, *CancelledError or *TimeoutError when
// the call must not run. The approval mode is read once; a mode change while
// waiting does not alter the decision.
func (c *Checker) Check(ctx context.Context, req Request) error {
	mode := c.mode.Get()
	repeated := c.loops.Observe(req.SessionID, req.ToolName, req.Arguments)
	ev := c.evaluate(req, mode, repeated)

	log := c.log.With().
		Str("tool", req.ToolName).
		Str("mode", string(mode)).
		Str("rule", ev.Rule).
		Str("decision", string(ev.Decision)).
		Logger()

	switch ev.Decision {
	case policy.Allow:
		log.Debug().Msg("tool allowed")
		return nil
	case policy.Deny:
		log.Info().Str("reason", ev.Reason).Msg("tool denied")
		return &DeniedError{Tool: req.ToolName, Mode: mode, Rule: ev.Rule, Reason: ev.Reason}
	}

	if ev.Remembered {
		log.Debug().Msg("tool approved earlier in session")
		return nil
	}

	out := c.coord.Confirm(ctx, event.ToolConfirmationRequest{
		SessionID: req.SessionID,
		CallID:    req.CallID,
		ToolName:  req.ToolName,
		Arguments: req.Arguments,
		Title:     title(req),
		Mode:      string(mode),
		Rule:      ev.Rule,
		Reason:    ev.Reason,
		Patterns:  ev.Patterns,
		Diff:      Preview(req.ToolName, req.Arguments, c.baseDir, c.read),
	})

	log = log.With().Str("correlationID", out.ID).Logger()

	switch out.Status {
	case confirm.StatusCancelled:
		log.Info().Msg("confirmation cancelled")
		return &CancelledError{Tool: req.ToolName, Cause: out.Err}
	case confirm.StatusTimedOut:
		log.Warn().Msg("confirmation timed out")
		return &TimeoutError{Tool: req.ToolName, Timeout: c.coord.Timeout()}
	}

	switch out.Response.Outcome {
	case event.OutcomeProceed:
		return nil
	case event.OutcomeProceedAlways:
		if !ev.Escalated && ev.Source != policy.AlwaysConfirmLayer {
			c.approve(req.SessionID, req.ToolName, ev.Patterns)
		}
		return nil
	case event.OutcomeCancel:
		log.Info().Str("feedback", out.Response.Feedback).Msg("tool rejected by user")
		return &RejectedError{SessionID: req.SessionID, CallID: req.CallID, Tool: req.ToolName, Feedback: out.Response.Feedback}
	}

	log.Warn().Str("outcome", string(out.Response.Outcome)).Msg("unknown confirmation outcome")
	return &RejectedError{
		SessionID: req.SessionID,
		CallID:    req.CallID,
		Tool:      req.ToolName,
		Feedback:  fmt.Sprintf("unknown outcome %q", out.Response.Outcome),
	}
}

func title(req Request) string {
	if req.Title != "" {
		return req.Title
	}
	if line, ok := req.Arguments[policy.CommandArgument].(string); ok {
		return fmt.Sprintf("Run %s: %s", req.ToolName, strings.TrimSpace(line))
	}
	if path := firstString(req.Arguments, "file_path", "filePath", "path"); path != "" {
		return fmt.Sprintf("Allow %s on %s", req.ToolName, path)
	}
	return "Allow " + req.ToolName
}

// remembered reports whether a proceed_always answer covers the call. Shell
// calls need every command pattern approved; other tools need the tool name.
func (c *Checker) remembered(sessionID, toolName string, patterns []string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(patterns) > 0 {
		session := c.patterns[sessionID]
		for _, p := range patterns {
			if !session[p] {
				return false
			}
		}
		return true
	}
	if policy.Category(toolName) == policy.CategoryShell {
		return false
	}
	return c.approved[sessionID][toolName]
}

func (c *Checker) approve(sessionID, toolName string, patterns []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(patterns) > 0 {
		if c.patterns[sessionID] == nil {
			c.patterns[sessionID] = make(map[string]bool)
		}
		for _, p := range patterns {
			c.patterns[sessionID][p] = true
		}
		return
	}
	if policy.Category(toolName) == policy.CategoryShell {
		return
	}
	if c.approved[sessionID] == nil {
		c.approved[sessionID] = make(map[string]bool)
	}
	c.approved[sessionID][toolName] = true
}

// ClearSession forgets approvals and call history of a session.
func (c *Checker) ClearSession(sessionID string) {
	c.mu.Lock()
	delete(c.approved, sessionID)
	delete(c.patterns, sessionID)
	c.mu.Unlock()
	c.loops.Clear(sessionID)
}
