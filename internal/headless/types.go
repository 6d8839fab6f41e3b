// Package headless answers confirmation requests without a full UI and runs
// scripted tool invocations against the permission layer.
package headless

import (
	"context"
	"errors"
	"time"

	"github.com/opencode-ai/toolgate/internal/approvalmode"
	"github.com/opencode-ai/toolgate/internal/permission"
	"github.com/opencode-ai/toolgate/internal/policy"
)

// OutputFormat defines the output format for headless mode.
type OutputFormat string

const (
	// OutputText is human-readable streaming text output.
	OutputText OutputFormat = "text"
	// OutputJSONL is streaming JSONL events.
	OutputJSONL OutputFormat = "jsonl"
)

// ExitCode defines exit codes for headless mode.
type ExitCode int

const (
	// ExitSuccess indicates successful completion.
	ExitSuccess ExitCode = 0
	// ExitError indicates a general/unknown error.
	ExitError ExitCode = 1
	// ExitTimeout indicates a confirmation received no response.
	ExitTimeout ExitCode = 2
	// ExitPermissionDenied indicates a tool call was denied or rejected.
	ExitPermissionDenied ExitCode = 3
	// ExitCancelled indicates a confirmation was cancelled.
	ExitCancelled ExitCode = 4
	// ExitInvalidInput indicates bad input or configuration.
	ExitInvalidInput ExitCode = 5
)

// ExitCodeFor maps an error to the exit code reported for it.
func ExitCodeFor(err error) ExitCode {
	var cfgErr *policy.ConfigError
	var modeErr *approvalmode.TransitionError
	switch {
	case err == nil:
		return ExitSuccess
	case permission.IsDenied(err), permission.IsRejected(err):
		return ExitPermissionDenied
	case permission.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return ExitTimeout
	case permission.IsCancelled(err), errors.Is(err, context.Canceled):
		return ExitCancelled
	case errors.As(err, &cfgErr), errors.As(err, &modeErr):
		return ExitInvalidInput
	}
	return ExitError
}

// Config holds configuration for headless mode execution.
type Config struct {
	// WorkDir is the working directory tools resolve paths against.
	WorkDir string
	// SessionID scopes session approvals and the repeat-call guard.
	SessionID string
	// OutputFormat specifies the output format (text, jsonl).
	OutputFormat OutputFormat
	// Quiet suppresses bus events, only results are printed.
	Quiet bool
	// StopOnError stops the script at the first failed line.
	StopOnError bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SessionID:    "headless",
		OutputFormat: OutputText,
	}
}

// Event represents a JSONL event for streaming output.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"ts"`
	Data      any       `json:"data"`
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType string, data any) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
}
