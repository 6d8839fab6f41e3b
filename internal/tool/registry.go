package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/opencode-ai/toolgate/internal/approvalmode"
	"github.com/opencode-ai/toolgate/internal/confirm"
	"github.com/opencode-ai/toolgate/internal/logging"
	"github.com/opencode-ai/toolgate/internal/permission"
)

// ErrUnknownTool is returned by Invoke for unregistered tool names.
var ErrUnknownTool = errors.New("unknown tool")

// Gate decides whether a call may run. *permission.Checker implements it.
type Gate interface {
	Check(ctx context.Context, req permission.Request) error
}

// Registry manages tool registration and guarded invocation.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	gate  Gate
	log   zerolog.Logger
}

// NewRegistry creates a registry whose calls are checked by gate.
func NewRegistry(gate Gate) *Registry {
	return &Registry{
		tools: make(map[string]Tool),
		gate:  gate,
		log:   logging.Component("tool"),
	}
}

// Register adds a tool, replacing any tool with the same ID.
func (r *Registry) Register(tools ...Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tools {
		r.tools[t.ID()] = t
	}
}

// Get retrieves a tool by ID.
func (r *Registry) Get(id string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[id]
	return t, ok
}

// List returns all registered tools ordered by ID.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	tools := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	r.mu.RUnlock()

	sort.Slice(tools, func(i, j int) bool { return tools[i].ID() < tools[j].ID() })
	return tools
}

// IDs returns all tool IDs in order.
func (r *Registry) IDs() []string {
	tools := r.List()
	ids := make([]string, len(tools))
	for i, t := range tools {
		ids[i] = t.ID()
	}
	return ids
}

// Invoke checks the call with the gate and executes the tool only when it
// is permitted. A refused call returns the gate's error and the tool never
// runs.
func (r *Registry) Invoke(ctx context.Context, id string, input json.RawMessage, toolCtx *Context) (*Result, error) {
	t, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, id)
	}

	args, err := decodeArguments(input)
	if err != nil {
		return nil, fmt.Errorf("invalid input for %s: %w", id, err)
	}

	if toolCtx == nil {
		toolCtx = &Context{}
	}

	if r.gate != nil {
		err := r.gate.Check(ctx, permission.Request{
			SessionID: toolCtx.SessionID,
			CallID:    toolCtx.CallID,
			ToolName:  id,
			Arguments: args,
		})
		if err != nil {
			r.log.Debug().Err(err).Str("tool", id).Msg("tool call refused")
			return nil, err
		}
	}

	return t.Execute(ctx, input, toolCtx)
}

func decodeArguments(input json.RawMessage) (map[string]any, error) {
	if len(bytes.TrimSpace(input)) == 0 {
		return nil, nil
	}
	var args map[string]any
	if err := json.Unmarshal(input, &args); err != nil {
		return nil, err
	}
	return args, nil
}

// DefaultRegistry creates a registry with the built-in tools.
func DefaultRegistry(gate Gate, mode *approvalmode.State, coord *confirm.Coordinator) *Registry {
	r := NewRegistry(gate)
	r.Register(
		NewReadTool(),
		NewWriteTool(),
		NewEnterPlanModeTool(mode),
		NewExitPlanModeTool(mode, coord),
		NewAskUserTool(coord),
	)
	return r
}
