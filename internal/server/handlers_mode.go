package server

import (
	"net/http"

	"github.com/opencode-ai/toolgate/internal/approvalmode"
)

// ModeResponse describes the approval mode.
type ModeResponse struct {
	Mode         approvalmode.Mode   `json:"mode"`
	Previous     approvalmode.Mode   `json:"previous,omitempty"`
	YoloDisabled bool                `json:"yoloDisabled"`
	Modes        []approvalmode.Mode `json:"modes"`
}

// SetModeRequest is the body of PUT /mode.
type SetModeRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) modeResponse(prev approvalmode.Mode) ModeResponse {
	return ModeResponse{
		Mode:         s.mode.Get(),
		Previous:     prev,
		YoloDisabled: s.mode.YoloDisabled(),
		Modes:        approvalmode.All,
	}
}

// getMode handles GET /mode.
func (s *Server) getMode(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.modeResponse(""))
}

// setMode handles PUT /mode.
func (s *Server) setMode(w http.ResponseWriter, r *http.Request) {
	var req SetModeRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, err)
		return
	}
	m, err := approvalmode.Parse(req.Mode)
	if err != nil {
		writeFailure(w, err)
		return
	}

	prev := s.mode.Get()
	if err := s.mode.Set(m); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.modeResponse(prev))
}

// cycleMode handles POST /mode/cycle.
func (s *Server) cycleMode(w http.ResponseWriter, r *http.Request) {
	prev := s.mode.Get()
	s.mode.Cycle()
	writeJSON(w, http.StatusOK, s.modeResponse(prev))
}

// CommandRequest is the body of POST /command.
type CommandRequest struct {
	Command string `json:"command"`
}

// runCommand handles POST /command.
func (s *Server) runCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, err)
		return
	}

	res, err := s.commands.ExecuteLine(r.Context(), req.Command)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
