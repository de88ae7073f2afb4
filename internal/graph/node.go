// Package graph holds the editable agent graph and reduces it to an AgentConfig.
package graph

import (
	"fmt"
	"maps"

	"github.com/user/agentflow/internal/types"
)

// Kind is the type of a graph node.
type Kind string

const (
	KindModel Kind = "model"
	KindTool  Kind = "tool"
	KindAgent Kind = "agent"
)

// Field keys understood by each node kind.
const (
	FieldAPIKey       = "api_key"
	FieldModelName    = "model_name"
	FieldSystemPrompt = "system_prompt"
	FieldToolName     = "tool_name"
)

// Target handles exposed by the agent node.
const (
	HandleModel = "model-in"
	HandleTools = "tools-in"
)

var kindFields = map[Kind][]string{
	KindModel: {FieldAPIKey, FieldModelName, FieldSystemPrompt},
	KindTool:  {FieldToolName},
	KindAgent: {},
}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := kindFields[k]; !ok {
		return "", fmt.Errorf("unknown node kind: %q", s)
	}
	return k, nil
}

// Fields returns the field keys defined for the kind.
func (k Kind) Fields() []string {
	return kindFields[k]
}

func (k Kind) hasField(key string) bool {
	for _, f := range kindFields[k] {
		if f == key {
			return true
		}
	}
	return false
}

// Position is the node's location on the editing canvas. It never affects derivation.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a typed unit of the editable graph.
type Node struct {
	ID       types.NodeID      `json:"id"`
	Kind     Kind              `json:"kind"`
	Position Position          `json:"position"`
	Fields   map[string]string `json:"fields"`
}

// Field returns the value of key, or "" when unset.
func (n Node) Field(key string) string {
	return n.Fields[key]
}

func (n Node) clone() Node {
	n.Fields = maps.Clone(n.Fields)
	if n.Fields == nil {
		n.Fields = map[string]string{}
	}
	return n
}

// Edge is a directed connection, optionally into a named target handle.
type Edge struct {
	ID     types.EdgeID `json:"id"`
	Source types.NodeID `json:"source"`
	Target types.NodeID `json:"target"`
	Handle string       `json:"handle,omitempty"`
}
