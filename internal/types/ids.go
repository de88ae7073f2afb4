// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
)

type NodeID string
type EdgeID string
type TurnID string

func NewNodeID() NodeID {
	return NodeID(uuid.New().String())
}

func NewEdgeID() EdgeID {
	return EdgeID(uuid.New().String())
}

func NewTurnID() TurnID {
	return TurnID(uuid.New().String())
}
