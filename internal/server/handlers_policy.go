package server

import (
	"net/http"

	"github.com/opencode-ai/toolgate/internal/approvalmode"
	"github.com/opencode-ai/toolgate/internal/permission"
	"github.com/opencode-ai/toolgate/internal/policy"
)

// DecideRequest is the body of POST /decide.
type DecideRequest struct {
	SessionID string         `json:"sessionID,omitempty"`
	ToolName  string         `json:"toolName"`
	Arguments map[string]any `json:"arguments,omitempty"`
	// Mode evaluates against another mode instead of the current one.
	Mode string `json:"mode,omitempty"`
}

// decide handles POST /decide. It reports what would happen to a call
// without asking anyone or running anything.
func (s *Server) decide(w http.ResponseWriter, r *http.Request) {
	var req DecideRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	if req.ToolName == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "toolName is required")
		return
	}

	preq := permission.Request{SessionID: req.SessionID, ToolName: req.ToolName, Arguments: req.Arguments}
	if req.Mode == "" {
		writeJSON(w, http.StatusOK, s.checker.Evaluate(preq))
		return
	}

	m, err := approvalmode.Parse(req.Mode)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, permission.Evaluation{
		Result: s.checker.Engine().Decide(policy.Invocation{ToolName: req.ToolName, Arguments: req.Arguments}, m),
		Mode:   m,
	})
}

// RulesResponse lists the loaded rules in evaluation order.
type RulesResponse struct {
	Fallback policy.Decision   `json:"fallback"`
	Rules    []policy.RuleInfo `json:"rules"`
}

// listRules handles GET /rules. The optional mode query parameter keeps only
// the rules that apply in that mode.
func (s *Server) listRules(w http.ResponseWriter, r *http.Request) {
	var modes []approvalmode.Mode
	if q := r.URL.Query().Get("mode"); q != "" {
		m, err := approvalmode.Parse(q)
		if err != nil {
			writeFailure(w, err)
			return
		}
		modes = append(modes, m)
	}

	engine := s.checker.Engine()
	writeJSON(w, http.StatusOK, RulesResponse{
		Fallback: engine.Fallback(),
		Rules:    engine.Rules(modes...),
	})
}
