package graph

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/user/agentflow/internal/types"
)

var (
	ErrNoModelNode        = errors.New("no model node in graph")
	ErrMultipleModelNodes = errors.New("exactly one model node required")
)

// ConfigError reports why a graph cannot be reduced to an AgentConfig.
type ConfigError struct {
	Reason error
	Nodes  []types.NodeID
}

func (e *ConfigError) Error() string {
	if len(e.Nodes) > 0 {
		return fmt.Sprintf("invalid agent config: %v (%v)", e.Reason, e.Nodes)
	}
	return fmt.Sprintf("invalid agent config: %v", e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Reason
}

// ModelPolicy decides how extra model nodes are treated.
type ModelPolicy string

const (
	// ModelFirst uses the first model node in insertion order and ignores the rest.
	ModelFirst ModelPolicy = "first"
	// ModelStrict rejects graphs with more than one model node.
	ModelStrict ModelPolicy = "strict"
)

// ParseModelPolicy maps a config value to a policy. Empty means first.
func ParseModelPolicy(s string) (ModelPolicy, error) {
	switch ModelPolicy(s) {
	case "", ModelFirst:
		return ModelFirst, nil
	case ModelStrict:
		return ModelStrict, nil
	}
	return "", fmt.Errorf("unknown model policy: %q", s)
}

// Snapshotter is anything that can hand out an immutable graph copy.
type Snapshotter interface {
	Snapshot() Snapshot
}

// Reducer collapses a graph into one AgentConfig.
type Reducer struct {
	Policy ModelPolicy
}

// Derive reduces the default-policy snapshot of src.
func Derive(src Snapshotter) (types.AgentConfig, error) {
	return Reducer{}.Derive(src)
}

// Derive snapshots src and reduces the copy.
func (r Reducer) Derive(src Snapshotter) (types.AgentConfig, error) {
	return r.Reduce(src.Snapshot())
}

// Reduce picks the model node and collects every tool node's tool name in
// insertion order. Edges, positions and agent nodes play no part.
func (r Reducer) Reduce(snap Snapshot) (types.AgentConfig, error) {
	var models []Node
	for n := range snap.NodesOfKind(KindModel) {
		models = append(models, n)
	}

	if len(models) == 0 {
		return types.AgentConfig{}, &ConfigError{Reason: ErrNoModelNode}
	}
	if len(models) > 1 {
		ids := make([]types.NodeID, len(models))
		for i, m := range models {
			ids[i] = m.ID
		}
		if r.Policy == ModelStrict {
			return types.AgentConfig{}, &ConfigError{Reason: ErrMultipleModelNodes, Nodes: ids}
		}
		slog.Warn("multiple model nodes, using the first", "node_id", models[0].ID, "ignored", ids[1:])
	}

	model := models[0]
	cfg := types.AgentConfig{
		ModelName:    model.Field(FieldModelName),
		APIKey:       model.Field(FieldAPIKey),
		SystemPrompt: model.Field(FieldSystemPrompt),
		Tools:        []string{},
	}
	for n := range snap.NodesOfKind(KindTool) {
		cfg.Tools = append(cfg.Tools, n.Field(FieldToolName))
	}
	return cfg, nil
}
