// Package tool defines the tools an agent can call and runs every call
// through the permission checker before it has any effect.
package tool

import (
	"context"
	"encoding/json"
	"path/filepath"
)

// Tool defines the interface for all tools.
type Tool interface {
	// ID returns the tool name the policy rules match against.
	ID() string

	// Description returns the tool description.
	Description() string

	// Parameters returns the JSON Schema for tool parameters.
	Parameters() json.RawMessage

	// Execute runs the tool. It is only called after the call was permitted.
	Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error)
}

// Context provides execution context to tools.
type Context struct {
	SessionID string
	CallID    string
	WorkDir   string
}

// resolve makes path absolute against the working directory.
func (c *Context) resolve(path string) string {
	if filepath.IsAbs(path) || c == nil || c.WorkDir == "" {
		return path
	}
	return filepath.Join(c.WorkDir, path)
}

// Result represents the output of a tool execution.
type Result struct {
	Title    string         `json:"title"`
	Output   string         `json:"output"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
