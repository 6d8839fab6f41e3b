package event

// Message kinds carried on the bus.
const (
	KindToolConfirmationRequest  Kind = "tool.confirmation.request"
	KindToolConfirmationResponse Kind = "tool.confirmation.response"
	KindQuestionRequest          Kind = "question.request"
	KindQuestionResponse         Kind = "question.response"
	KindPlanApprovalRequest      Kind = "plan.approval.request"
	KindPlanApprovalResponse     Kind = "plan.approval.response"
	KindModeChanged              Kind = "mode.changed"
)

// RequestKinds lists the kinds a UI subscribes to in order to render questions.
var RequestKinds = []Kind{
	KindToolConfirmationRequest,
	KindQuestionRequest,
	KindPlanApprovalRequest,
}

// Correlated is implemented by requests and responses that are paired by a
// correlation id.
type Correlated interface {
	Message
	Correlation() string
}

// ConfirmationOutcome is the operator's answer to a tool confirmation.
type ConfirmationOutcome string

const (
	// OutcomeProceed runs the tool this time only.
	OutcomeProceed ConfirmationOutcome = "proceed"
	// OutcomeProceedAlways runs the tool and remembers the approval for the session.
	OutcomeProceedAlways ConfirmationOutcome = "proceed_always"
	// OutcomeCancel declines the tool call.
	OutcomeCancel ConfirmationOutcome = "cancel"
)

// Valid reports whether o is a known outcome.
func (o ConfirmationOutcome) Valid() bool {
	switch o {
	case OutcomeProceed, OutcomeProceedAlways, OutcomeCancel:
		return true
	}
	return false
}

// ToolConfirmationRequest asks the operator whether a tool call may run.
type ToolConfirmationRequest struct {
	CorrelationID string         `json:"correlationID"`
	SessionID     string         `json:"sessionID,omitempty"`
	CallID        string         `json:"callID,omitempty"`
	ToolName      string         `json:"toolName"`
	Arguments     map[string]any `json:"arguments,omitempty"`
	Title         string         `json:"title"`
	Mode          string         `json:"mode"`
	Rule          string         `json:"rule,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	// Patterns are the shell command patterns remembered by proceed_always.
	Patterns []string `json:"patterns,omitempty"`
	// Diff previews the change an edit tool is about to make.
	Diff string `json:"diff,omitempty"`
}

func (ToolConfirmationRequest) Kind() Kind            { return KindToolConfirmationRequest }
func (r ToolConfirmationRequest) Correlation() string { return r.CorrelationID }

// ToolConfirmationResponse is the operator's answer to a ToolConfirmationRequest.
type ToolConfirmationResponse struct {
	CorrelationID string              `json:"correlationID"`
	Outcome       ConfirmationOutcome `json:"outcome"`
	Feedback      string              `json:"feedback,omitempty"`
}

func (ToolConfirmationResponse) Kind() Kind            { return KindToolConfirmationResponse }
func (r ToolConfirmationResponse) Correlation() string { return r.CorrelationID }

// QuestionOption is one selectable answer.
type QuestionOption struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// Question is a single question shown to the operator.
type Question struct {
	Header      string           `json:"header"`
	Question    string           `json:"question"`
	Options     []QuestionOption `json:"options,omitempty"`
	MultiSelect bool             `json:"multiSelect,omitempty"`
}

// QuestionRequest asks the operator one or more free-form or multiple-choice questions.
type QuestionRequest struct {
	CorrelationID string     `json:"correlationID"`
	SessionID     string     `json:"sessionID,omitempty"`
	Questions     []Question `json:"questions"`
}

func (QuestionRequest) Kind() Kind            { return KindQuestionRequest }
func (r QuestionRequest) Correlation() string { return r.CorrelationID }

// QuestionResponse carries answers keyed by question header.
type QuestionResponse struct {
	CorrelationID string              `json:"correlationID"`
	Answers       map[string][]string `json:"answers,omitempty"`
	Dismissed     bool                `json:"dismissed,omitempty"`
}

func (QuestionResponse) Kind() Kind            { return KindQuestionResponse }
func (r QuestionResponse) Correlation() string { return r.CorrelationID }

// PlanApprovalRequest asks the operator to approve a plan before leaving plan mode.
type PlanApprovalRequest struct {
	CorrelationID string `json:"correlationID"`
	SessionID     string `json:"sessionID,omitempty"`
	Plan          string `json:"plan"`
}

func (PlanApprovalRequest) Kind() Kind            { return KindPlanApprovalRequest }
func (r PlanApprovalRequest) Correlation() string { return r.CorrelationID }

// PlanApprovalResponse approves a plan and names the mode to continue in,
// or rejects it with feedback.
type PlanApprovalResponse struct {
	CorrelationID string `json:"correlationID"`
	Approved      bool   `json:"approved"`
	Mode          string `json:"mode,omitempty"` // "default" | "auto_edit"
	Feedback      string `json:"feedback,omitempty"`
}

func (PlanApprovalResponse) Kind() Kind            { return KindPlanApprovalResponse }
func (r PlanApprovalResponse) Correlation() string { return r.CorrelationID }

// ModeChanged is published after every successful approval mode transition.
type ModeChanged struct {
	Previous string `json:"previous"`
	Current  string `json:"current"`
}

func (ModeChanged) Kind() Kind { return KindModeChanged }
