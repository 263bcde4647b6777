package tool

import (
	"context"
	"encoding/json"

	"aichat-backend/internal/ai"
)

// Tool is one named capability the model may invoke mid-stream.
type Tool interface {
	Name() string
	Description() string
	// Parameters is the JSON schema of the tool's arguments.
	Parameters() json.RawMessage
	// Execute runs the tool on behalf of userID and returns a string result
	// that is fed back to the model as a tool message.
	Execute(ctx context.Context, userID uint, args json.RawMessage) (string, error)
}

// Registry maps tool names to implementations so the orchestrator never
// needs to know the concrete tool list.
type Registry struct {
	order []string
	tools map[string]Tool
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if _, exists := r.tools[t.Name()]; exists {
			continue
		}
		r.order = append(r.order, t.Name())
		r.tools[t.Name()] = t
	}
	return r
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns the request payload entries for every registered tool,
// in registration order.
func (r *Registry) Definitions() []ai.ToolDefinition {
	defs := make([]ai.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, ai.ToolDefinition{
			Type: "function",
			Function: ai.FunctionSpec{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}
