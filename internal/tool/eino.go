package tool

import (
	"context"
	"encoding/json"
	"fmt"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// EinoTool returns the registered tool id as an eino InvokableTool. Runs
// go through Invoke, so an eino agent is gated by the same policy as every
// other caller. toolCtx supplies the session and working directory for
// every run.
func (r *Registry) EinoTool(id string, toolCtx Context) (einotool.InvokableTool, bool) {
	t, ok := r.Get(id)
	if !ok {
		return nil, false
	}
	return &gatedEinoTool{registry: r, tool: t, toolCtx: toolCtx}, true
}

// EinoTools returns every registered tool as an eino tool, ordered by ID.
func (r *Registry) EinoTools(toolCtx Context) []einotool.BaseTool {
	tools := r.List()
	out := make([]einotool.BaseTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, &gatedEinoTool{registry: r, tool: t, toolCtx: toolCtx})
	}
	return out
}

// ToolInfos describes every registered tool for a chat model's tool list.
func (r *Registry) ToolInfos() ([]*schema.ToolInfo, error) {
	tools := r.List()
	infos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		info, err := toolInfo(t)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

type gatedEinoTool struct {
	registry *Registry
	tool     Tool
	toolCtx  Context
}

func (g *gatedEinoTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return toolInfo(g.tool)
}

func (g *gatedEinoTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...einotool.Option) (string, error) {
	toolCtx := g.toolCtx
	res, err := g.registry.Invoke(ctx, g.tool.ID(), json.RawMessage(argumentsInJSON), &toolCtx)
	if err != nil {
		return "", err
	}
	return res.Output, nil
}

func toolInfo(t Tool) (*schema.ToolInfo, error) {
	var root jsonSchema
	if err := json.Unmarshal(t.Parameters(), &root); err != nil {
		return nil, fmt.Errorf("parameters of %s: %w", t.ID(), err)
	}
	return &schema.ToolInfo{
		Name:        t.ID(),
		Desc:        t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(root.params()),
	}, nil
}

// jsonSchema is the subset of JSON Schema the tools declare.
type jsonSchema struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description"`
	Enum        []string               `json:"enum"`
	Properties  map[string]*jsonSchema `json:"properties"`
	Items       *jsonSchema            `json:"items"`
	Required    []string               `json:"required"`
}

func (s *jsonSchema) params() map[string]*schema.ParameterInfo {
	required := make(map[string]bool, len(s.Required))
	for _, name := range s.Required {
		required[name] = true
	}
	params := make(map[string]*schema.ParameterInfo, len(s.Properties))
	for name, prop := range s.Properties {
		p := prop.param()
		p.Required = required[name]
		params[name] = p
	}
	return params
}

func (s *jsonSchema) param() *schema.ParameterInfo {
	p := &schema.ParameterInfo{Desc: s.Description, Enum: s.Enum}
	switch s.Type {
	case "integer":
		p.Type = schema.Integer
	case "number":
		p.Type = schema.Number
	case "boolean":
		p.Type = schema.Boolean
	case "array":
		p.Type = schema.Array
		if s.Items != nil {
			p.ElemInfo = s.Items.param()
		} else {
			p.ElemInfo = &schema.ParameterInfo{Type: schema.String}
		}
	case "object":
		p.Type = schema.Object
		p.SubParams = s.params()
	default:
		p.Type = schema.String
	}
	return p
}
