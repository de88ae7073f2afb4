// internal/types/ids_test.go
package types

import (
	"testing"
)

func TestNewNodeID(t *testing.T) {
	id := NewNodeID()
	if id == "" {
		t.Error("expected non-empty NodeID")
	}
	if len(string(id)) != 36 {
		t.Errorf("expected UUID format, got %s", id)
	}
}

func TestNewIDsAreUnique(t *testing.T) {
	a, b := NewEdgeID(), NewEdgeID()
	if a == b {
		t.Errorf("expected distinct edge IDs, got %s twice", a)
	}
	if NewTurnID() == NewTurnID() {
		t.Error("expected distinct turn IDs")
	}
}
