package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/opencode-ai/toolgate/internal/approvalmode"
	"github.com/opencode-ai/toolgate/internal/confirm"
	"github.com/opencode-ai/toolgate/internal/event"
	"github.com/opencode-ai/toolgate/internal/permission"
	"github.com/opencode-ai/toolgate/internal/policy"
)

// refusal converts a non-answered confirmation into the checker's errors so
// callers handle every "no action taken" case the same way.
func refusal[R any](tool string, out confirm.Outcome[R], timeout time.Duration) error {
	switch out.Status {
	case confirm.StatusCancelled:
		return &permission.CancelledError{Tool: tool, Cause: out.Err}
	case confirm.StatusTimedOut:
		return &permission.TimeoutError{Tool: tool, Timeout: timeout}
	}
	return nil
}

const enterPlanDescription = `Switches to plan mode. In plan mode only read-only tools run;
use it to research and write a plan before making changes. Call exit_plan_mode
with the plan to ask the user for approval.`

// EnterPlanModeTool switches the approval mode to plan.
type EnterPlanModeTool struct {
	mode *approvalmode.State
}

// NewEnterPlanModeTool creates the tool over the given mode state.
func NewEnterPlanModeTool(mode *approvalmode.State) *EnterPlanModeTool {
	return &EnterPlanModeTool{mode: mode}
}

func (t *EnterPlanModeTool) ID() string          { return policy.EnterPlanModeTool }
func (t *EnterPlanModeTool) Description() string { return enterPlanDescription }

func (t *EnterPlanModeTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type": "object", "properties": {}}`)
}

func (t *EnterPlanModeTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	prev := t.mode.Get()
	if prev == approvalmode.Plan {
		return &Result{Title: "Plan mode", Output: "Already in plan mode."}, nil
	}
	if err := t.mode.Set(approvalmode.Plan); err != nil {
		return nil, err
	}
	return &Result{
		Title:    "Plan mode",
		Output:   "Entered plan mode. Only read-only tools are available until the plan is approved.",
		Metadata: map[string]any{"previous": string(prev)},
	}, nil
}

const exitPlanDescription = `Presents the plan to the user for approval and leaves plan mode
when it is approved. Only available in plan mode.`

// ExitPlanModeInput is the input of exit_plan_mode.
type ExitPlanModeInput struct {
	Plan string `json:"plan"`
}

// ExitPlanModeTool asks the operator to approve a plan and, when approved,
// switches to the mode the operator picked.
type ExitPlanModeTool struct {
	mode  *approvalmode.State
	coord *confirm.Coordinator
}

// NewExitPlanModeTool creates the tool.
func NewExitPlanModeTool(mode *approvalmode.State, coord *confirm.Coordinator) *ExitPlanModeTool {
	return &ExitPlanModeTool{mode: mode, coord: coord}
}

func (t *ExitPlanModeTool) ID() string          { return policy.ExitPlanModeTool }
func (t *ExitPlanModeTool) Description() string { return exitPlanDescription }

func (t *ExitPlanModeTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"plan": {
				"type": "string",
				"description": "The plan to present, in markdown"
			}
		},
		"required": ["plan"]
	}`)
}

func (t *ExitPlanModeTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params ExitPlanModeInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if strings.TrimSpace(params.Plan) == "" {
		return nil, fmt.Errorf("plan is required")
	}
	if t.mode.Get() != approvalmode.Plan {
		return nil, fmt.Errorf("not in plan mode")
	}

	out := t.coord.ApprovePlan(ctx, event.PlanApprovalRequest{
		SessionID: toolCtx.SessionID,
		Plan:      params.Plan,
	})
	if err := refusal(t.ID(), out, t.coord.Timeout()); err != nil {
		return nil, err
	}

	resp := out.Response
	if !resp.Approved {
		output := "The user rejected the plan. Stay in plan mode and revise it."
		if resp.Feedback != "" {
			output += "\n\nFeedback: " + resp.Feedback
		}
		return &Result{Title: "Plan rejected", Output: output}, nil
	}

	target := approvalmode.Default
	if resp.Mode != "" {
		m, err := approvalmode.Parse(resp.Mode)
		if err != nil {
			return nil, err
		}
		if m != approvalmode.Default && m != approvalmode.AutoEdit {
			return nil, fmt.Errorf("plan approval cannot switch to %s mode", m)
		}
		target = m
	}
	if err := t.mode.Set(target); err != nil {
		return nil, err
	}

	return &Result{
		Title:    "Plan approved",
		Output:   fmt.Sprintf("The user approved the plan. Continuing in %s mode.", target),
		Metadata: map[string]any{"mode": string(target)},
	}, nil
}

const askUserDescription = `Asks the user one or more questions and waits for the answers.
Each question has a short header, the question text and optional choices.`

// AskUserInput is the input of ask_user.
type AskUserInput struct {
	Questions []event.Question `json:"questions"`
}

// AskUserTool puts questions to the operator.
type AskUserTool struct {
	coord *confirm.Coordinator
}

// NewAskUserTool creates the tool.
func NewAskUserTool(coord *confirm.Coordinator) *AskUserTool {
	return &AskUserTool{coord: coord}
}

func (t *AskUserTool) ID() string          { return policy.AskUserTool }
func (t *AskUserTool) Description() string { return askUserDescription }

func (t *AskUserTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"questions": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"header": {"type": "string"},
						"question": {"type": "string"},
						"options": {
							"type": "array",
							"items": {
								"type": "object",
								"properties": {
									"label": {"type": "string"},
									"description": {"type": "string"}
								},
								"required": ["label"]
							}
						},
						"multiSelect": {"type": "boolean"}
					},
					"required": ["header", "question"]
				}
			}
		},
		"required": ["questions"]
	}`)
}

func (t *AskUserTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params AskUserInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if len(params.Questions) == 0 {
		return nil, fmt.Errorf("at least one question is required")
	}
	seen := make(map[string]bool, len(params.Questions))
	for _, q := range params.Questions {
		if q.Header == "" || q.Question == "" {
			return nil, fmt.Errorf("every question needs a header and a question")
		}
		if seen[q.Header] {
			return nil, fmt.Errorf("duplicate question header %q", q.Header)
		}
		seen[q.Header] = true
	}

	out := t.coord.Ask(ctx, event.QuestionRequest{
		SessionID: toolCtx.SessionID,
		Questions: params.Questions,
	})
	if err := refusal(t.ID(), out, t.coord.Timeout()); err != nil {
		return nil, err
	}

	resp := out.Response
	if resp.Dismissed {
		return &Result{Title: "Questions dismissed", Output: "The user dismissed the questions without answering."}, nil
	}

	var sb strings.Builder
	for _, q := range params.Questions {
		answers := resp.Answers[q.Header]
		if len(answers) == 0 {
			fmt.Fprintf(&sb, "%s: (no answer)\n", q.Header)
			continue
		}
		fmt.Fprintf(&sb, "%s: %s\n", q.Header, strings.Join(answers, ", "))
	}

	return &Result{
		Title:    "User answered",
		Output:   strings.TrimSuffix(sb.String(), "\n"),
		Metadata: map[string]any{"answers": resp.Answers},
	}, nil
}
