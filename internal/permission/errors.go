// Package permission is the single entry point tools call before any side
// effect. It reads the approval mode, asks the policy engine, and for
// ASK_USER decisions waits for the operator through the confirmation
// coordinator.
package permission

import (
	"errors"
	"fmt"
	"time"

	"github.com/opencode-ai/toolgate/internal/approvalmode"
)

// DeniedError is returned when a rule denies the invocation. It is an
// expected outcome, not a failure of the checker.
type DeniedError struct {
	Tool   string
	Mode   approvalmode.Mode
	Rule   string
	Reason string
}

func (e *DeniedError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "denied by rule " + e.Rule
	}
	return fmt.Sprintf("%s is not permitted in %s mode: %s", e.Tool, e.Mode, reason)
}

// CancelledError is returned when the caller gave up waiting for the operator.
type CancelledError struct {
	Tool  string
	Cause error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("confirmation for %s cancelled; no action taken", e.Tool)
}

func (e *CancelledError) Unwrap() error { return e.Cause }

// TimeoutError is returned when the operator did not answer in time.
type TimeoutError struct {
	Tool    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("no response received for %s within %s; no action taken", e.Tool, e.Timeout)
	}
	return fmt.Sprintf("no response received for %s; no action taken", e.Tool)
}

// RejectedError is returned when the operator explicitly declined.
type RejectedError struct {
	SessionID string
	CallID    string
	Tool      string
	Feedback  string
}

func (e *RejectedError) Error() string {
	if e.Feedback != "" {
		return fmt.Sprintf("%s rejected by user: %s", e.Tool, e.Feedback)
	}
	return fmt.Sprintf("%s rejected by user", e.Tool)
}

// IsDenied reports whether err is or wraps a *DeniedError.
func IsDenied(err error) bool {
	var target *DeniedError
	return errors.As(err, &target)
}

// IsCancelled reports whether err is or wraps a *CancelledError.
func IsCancelled(err error) bool {
	var target *CancelledError
	return errors.As(err, &target)
}

// IsTimeout reports whether err is or wraps a *TimeoutError.
func IsTimeout(err error) bool {
	var target *TimeoutError
	return errors.As(err, &target)
}

// IsRejected reports whether err is or wraps a *RejectedError.
func IsRejected(err error) bool {
	var target *RejectedError
	return errors.As(err, &target)
}

// NoActionTaken reports whether err is an expected refusal rather than a fault.
func NoActionTaken(err error) bool {
	return IsDenied(err) || IsCancelled(err) || IsTimeout(err) || IsRejected(err)
}
