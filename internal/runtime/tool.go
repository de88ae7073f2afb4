package runtime

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/user/agentflow/pkg/llm"
)

// Tool defines the interface for an executable tool.
type Tool interface {
	Name() string
	Description() string
	Parameters() json.RawMessage
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

// Registry holds registered tools and provides lookup. It is populated at
// startup and read-only afterwards.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates a tool registry holding tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds a tool to the registry.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// All returns all registered tools sorted by name.
func (r *Registry) All() []Tool {
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Names returns the registered tool names sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.tools))
	for _, t := range r.All() {
		out = append(out, t.Name())
	}
	return out
}

// Select resolves names in order, skipping duplicates. Names with no
// registered tool, including the empty name, are returned as unknown.
func (r *Registry) Select(names []string) (tools []Tool, unknown []string) {
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		if t, ok := r.tools[name]; ok {
			tools = append(tools, t)
		} else {
			unknown = append(unknown, name)
		}
	}
	return tools, unknown
}

// AsLLMTools converts tools to the LLM provider format.
func AsLLMTools(tools []Tool) []llm.Tool {
	out := make([]llm.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, llm.Tool{
			Type: "function",
			Function: llm.Function{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return out
}
