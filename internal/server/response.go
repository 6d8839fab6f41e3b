package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/opencode-ai/toolgate/internal/approvalmode"
	"github.com/opencode-ai/toolgate/internal/permission"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a machine-readable code next to the message.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

const (
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeIllegalTransition = "ILLEGAL_TRANSITION"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodePolicyDenied      = "POLICY_DENIED"
	ErrCodeRejected          = "CONFIRMATION_REJECTED"
	ErrCodeTimeout           = "CONFIRMATION_TIMEOUT"
	ErrCodeCancelled         = "CONFIRMATION_CANCELLED"
)

// StatusClientClosedRequest answers a check whose caller went away while
// the operator was being asked.
const StatusClientClosedRequest = 499

// errNotFound is answered with 404 by writeFailure.
var errNotFound = errors.New("confirmation not found")

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeErrorWithDetails(w, status, code, message, nil)
}

func writeErrorWithDetails(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message, Details: details}})
}

// writeFailure maps err onto a status code. Rejected mode changes become
// 409 with the transition in the details. Check refusals get one status
// each: 403 denied by policy, 409 rejected by the operator, 504 no answer
// in time, 499 caller gone. Anything unrecognised is a bad request.
func writeFailure(w http.ResponseWriter, err error) {
	var (
		te        *approvalmode.TransitionError
		denied    *permission.DeniedError
		rejected  *permission.RejectedError
		timedOut  *permission.TimeoutError
		cancelled *permission.CancelledError
	)
	switch {
	case errors.As(err, &denied):
		writeErrorWithDetails(w, http.StatusForbidden, ErrCodePolicyDenied, err.Error(), map[string]any{
			"tool":   denied.Tool,
			"mode":   string(denied.Mode),
			"rule":   denied.Rule,
			"reason": denied.Reason,
		})
	case errors.As(err, &rejected):
		writeErrorWithDetails(w, http.StatusConflict, ErrCodeRejected, err.Error(), map[string]any{
			"tool":     rejected.Tool,
			"feedback": rejected.Feedback,
		})
	case errors.As(err, &timedOut):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, err.Error())
	case errors.As(err, &cancelled):
		writeError(w, StatusClientClosedRequest, ErrCodeCancelled, err.Error())
	case errors.As(err, &te):
		writeErrorWithDetails(w, http.StatusConflict, ErrCodeIllegalTransition, err.Error(), map[string]any{
			"from":   string(te.From),
			"to":     string(te.To),
			"reason": te.Reason,
		})
	case errors.Is(err, errNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	default:
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
	}
}

func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// decodeBody decodes a JSON request body, rejecting unknown fields.
// An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
