package server

import (
	"errors"
	"net/http"

	"github.com/opencode-ai/toolgate/internal/permission"
)

// CheckResponse is the body of a permitted POST /check.
type CheckResponse struct {
	Allowed bool `json:"allowed"`
}

// check handles POST /check. It is the decision point for agents running
// out of process: the call blocks while an operator is asked, and a client
// that disconnects cancels the pending confirmation. Refusals are reported
// through writeFailure with a status per kind.
func (s *Server) check(w http.ResponseWriter, r *http.Request) {
	var req permission.Request
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	if req.ToolName == "" {
		writeFailure(w, errors.New("toolName is required"))
		return
	}

	if err := s.checker.Check(r.Context(), req); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CheckResponse{Allowed: true})
}
