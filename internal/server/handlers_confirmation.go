package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opencode-ai/toolgate/internal/approvalmode"
	"github.com/opencode-ai/toolgate/internal/confirm"
	"github.com/opencode-ai/toolgate/internal/event"
)

// listConfirmations handles GET /confirmation.
func (s *Server) listConfirmations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.Pending())
}

// getConfirmation handles GET /confirmation/{id}.
func (s *Server) getConfirmation(w http.ResponseWriter, r *http.Request) {
	info, ok := s.coord.Lookup(chi.URLParam(r, "id"))
	if !ok {
		writeFailure(w, errNotFound)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// AnswerRequest is the body of POST /confirmation/{id}. Which fields apply
// depends on the kind of the pending request.
type AnswerRequest struct {
	// Tool confirmations
	Outcome event.ConfirmationOutcome `json:"outcome,omitempty"`
	// Questions
	Answers   map[string][]string `json:"answers,omitempty"`
	Dismissed bool                `json:"dismissed,omitempty"`
	// Plan approvals
	Approved bool   `json:"approved,omitempty"`
	Mode     string `json:"mode,omitempty"`

	Feedback string `json:"feedback,omitempty"`
}

// answerConfirmation handles POST /confirmation/{id}. The answer is
// published as the response kind the pending request waits for; an answer
// for a request that resolved in the meantime has no effect.
func (s *Server) answerConfirmation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	info, ok := s.coord.Lookup(id)
	if !ok {
		writeFailure(w, errNotFound)
		return
	}

	var req AnswerRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, err)
		return
	}

	resp, err := responseFor(info, req)
	if err != nil {
		writeFailure(w, err)
		return
	}

	if err := s.bus.Publish(r.Context(), resp); err != nil {
		s.log.Warn().Err(err).Str("correlationID", id).Msg("answer delivery reported errors")
	}
	writeSuccess(w)
}

func responseFor(info confirm.Info, req AnswerRequest) (event.Message, error) {
	switch info.ResponseKind {
	case event.KindToolConfirmationResponse:
		if !req.Outcome.Valid() {
			return nil, fmt.Errorf("outcome must be one of proceed, proceed_always, cancel")
		}
		return event.ToolConfirmationResponse{CorrelationID: info.ID, Outcome: req.Outcome, Feedback: req.Feedback}, nil

	case event.KindQuestionResponse:
		return event.QuestionResponse{CorrelationID: info.ID, Answers: req.Answers, Dismissed: req.Dismissed}, nil

	case event.KindPlanApprovalResponse:
		if req.Approved && req.Mode != "" {
			m, err := approvalmode.Parse(req.Mode)
			if err != nil {
				return nil, err
			}
			if m != approvalmode.Default && m != approvalmode.AutoEdit {
				return nil, fmt.Errorf("plan approval cannot switch to %s mode", m)
			}
			req.Mode = string(m)
		}
		return event.PlanApprovalResponse{CorrelationID: info.ID, Approved: req.Approved, Mode: req.Mode, Feedback: req.Feedback}, nil
	}
	return nil, fmt.Errorf("unsupported confirmation kind %s", info.Kind)
}
