package graph

import (
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/agentflow/internal/types"
)

func collect(seq func(func(Node) bool)) []types.NodeID {
	var ids []types.NodeID
	for n := range seq {
		ids = append(ids, n.ID)
	}
	return ids
}

func TestStore_AddNode(t *testing.T) {
	t.Run("assigns an id when none is given", func(t *testing.T) {
		s := NewStore()
		id, err := s.AddNode(Node{Kind: KindTool})
		require.NoError(t, err)
		assert.Len(t, string(id), 36)
	})

	t.Run("initialises kind fields", func(t *testing.T) {
		s := NewStore()
		id, err := s.AddNode(Node{Kind: KindModel, Fields: map[string]string{FieldModelName: "m"}})
		require.NoError(t, err)

		n, ok := s.Node(id)
		require.True(t, ok)
		assert.Equal(t, map[string]string{
			FieldModelName:    "m",
			FieldAPIKey:       "",
			FieldSystemPrompt: "",
		}, n.Fields)
	})

	t.Run("rejects unknown kind", func(t *testing.T) {
		_, err := NewStore().AddNode(Node{Kind: "widget"})
		assert.Error(t, err)
	})

	t.Run("rejects fields foreign to the kind", func(t *testing.T) {
		_, err := NewStore().AddNode(Node{Kind: KindTool, Fields: map[string]string{FieldModelName: "x"}})
		assert.ErrorIs(t, err, ErrUnknownField)
	})

	t.Run("never recycles ids", func(t *testing.T) {
		s := NewStore()
		_, err := s.AddNode(Node{ID: "a", Kind: KindAgent})
		require.NoError(t, err)
		require.NoError(t, s.RemoveNode("a"))

		_, err = s.AddNode(Node{ID: "a", Kind: KindAgent})
		assert.ErrorIs(t, err, ErrDuplicateNode)
	})

	t.Run("does not alias the caller's field map", func(t *testing.T) {
		s := NewStore()
		fields := map[string]string{FieldToolName: "get_weather"}
		id, err := s.AddNode(Node{Kind: KindTool, Fields: fields})
		require.NoError(t, err)

		fields[FieldToolName] = "changed"
		n, _ := s.Node(id)
		assert.Equal(t, "get_weather", n.Field(FieldToolName))
	})
}

func TestStore_RemoveNode(t *testing.T) {
	t.Run("cascade deletes referencing edges", func(t *testing.T) {
		s := DefaultStore()
		require.NoError(t, s.RemoveNode("tool-1"))

		snap := s.Snapshot()
		assert.Len(t, snap.Nodes, 2)
		require.Len(t, snap.Edges, 1)
		assert.Equal(t, types.EdgeID("e1"), snap.Edges[0].ID)
	})

	t.Run("ignore policy hides dangling edges from snapshots", func(t *testing.T) {
		s := DefaultStore(WithDanglingPolicy(DanglingIgnore))
		require.NoError(t, s.RemoveNode("tool-1"))

		snap := s.Snapshot()
		require.Len(t, snap.Edges, 1)
		assert.Equal(t, types.EdgeID("e1"), snap.Edges[0].ID)
		assert.Len(t, s.edges, 2)
	})

	t.Run("unknown node", func(t *testing.T) {
		assert.ErrorIs(t, NewStore().RemoveNode("nope"), ErrNodeNotFound)
	})
}

func TestStore_UpdateNodeFields(t *testing.T) {
	t.Run("shallow merges", func(t *testing.T) {
		s := DefaultStore()
		require.NoError(t, s.UpdateNodeFields("model-1", map[string]string{FieldAPIKey: "k"}))

		n, _ := s.Node("model-1")
		assert.Equal(t, "k", n.Field(FieldAPIKey))
		assert.Equal(t, DefaultModelName, n.Field(FieldModelName))
		assert.Equal(t, DefaultSystemPrompt, n.Field(FieldSystemPrompt))
		assert.Equal(t, KindModel, n.Kind)
	})

	t.Run("applies nothing when one key is invalid", func(t *testing.T) {
		s := DefaultStore()
		err := s.UpdateNodeFields("model-1", map[string]string{
			FieldAPIKey:   "k",
			FieldToolName: "x",
		})
		assert.ErrorIs(t, err, ErrUnknownField)

		n, _ := s.Node("model-1")
		assert.Empty(t, n.Field(FieldAPIKey))
	})

	t.Run("unknown node", func(t *testing.T) {
		err := NewStore().UpdateNodeFields("nope", map[string]string{})
		assert.ErrorIs(t, err, ErrNodeNotFound)
	})
}

func TestStore_Connect(t *testing.T) {
	t.Run("rejects absent endpoints", func(t *testing.T) {
		s := DefaultStore()
		_, err := s.Connect("model-1", "ghost", HandleModel)
		assert.ErrorIs(t, err, ErrNodeNotFound)
		_, err = s.Connect("ghost", "agent-1", HandleModel)
		assert.ErrorIs(t, err, ErrNodeNotFound)
		assert.Len(t, s.Snapshot().Edges, 2)
	})

	t.Run("deduplicates identical edges", func(t *testing.T) {
		s := DefaultStore()
		id, err := s.Connect("model-1", "agent-1", HandleModel)
		require.NoError(t, err)
		assert.Equal(t, types.EdgeID("e1"), id)
		assert.Len(t, s.Snapshot().Edges, 2)
	})

	t.Run("disconnect removes the edge", func(t *testing.T) {
		s := DefaultStore()
		require.NoError(t, s.Disconnect("e2"))
		assert.Len(t, s.Snapshot().Edges, 1)
		assert.ErrorIs(t, s.Disconnect("e2"), ErrEdgeNotFound)
	})
}

func TestStore_NodesOfKind(t *testing.T) {
	s := NewStore()
	for _, n := range []Node{
		{ID: "t2", Kind: KindTool},
		{ID: "m", Kind: KindModel},
		{ID: "t1", Kind: KindTool},
		{ID: "t3", Kind: KindTool},
	} {
		_, err := s.AddNode(n)
		require.NoError(t, err)
	}

	assert.Equal(t, []types.NodeID{"t2", "t1", "t3"}, collect(s.NodesOfKind(KindTool)))

	t.Run("stops early", func(t *testing.T) {
		var got []types.NodeID
		for n := range s.NodesOfKind(KindTool) {
			got = append(got, n.ID)
			break
		}
		assert.Equal(t, []types.NodeID{"t2"}, got)
	})
}

func TestSnapshot_IsolatedFromLaterEdits(t *testing.T) {
	s := DefaultStore()
	snap := s.Snapshot()

	require.NoError(t, s.UpdateNodeFields("model-1", map[string]string{FieldModelName: "other"}))
	require.NoError(t, s.MoveNode("model-1", Position{X: 1, Y: 2}))

	n, _ := snap.Node("model-1")
	assert.Equal(t, DefaultModelName, n.Field(FieldModelName))
	assert.Equal(t, Position{X: 50, Y: 100}, n.Position)
}

func TestSnapshot_Neighbors(t *testing.T) {
	snap := DefaultStore().Snapshot()

	var ids []types.NodeID
	for _, n := range snap.Neighbors("agent-1") {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []types.NodeID{"model-1", "tool-1"}, ids)
	assert.Len(t, snap.Neighbors("model-1"), 1)
}

func TestSnapshot_IsActive(t *testing.T) {
	s := DefaultStore()
	assert.True(t, s.Snapshot().IsActive("agent-1"))

	require.NoError(t, s.Disconnect("e1"))
	assert.False(t, s.Snapshot().IsActive("agent-1"))

	// A tool wired into the model handle does not count.
	_, err := s.Connect("tool-1", "agent-1", HandleModel)
	require.NoError(t, err)
	assert.False(t, s.Snapshot().IsActive("agent-1"))
}

func TestStore_ConcurrentEditsAndSnapshots(t *testing.T) {
	s := DefaultStore()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = s.UpdateNodeFields("model-1", map[string]string{FieldSystemPrompt: "p"})
				_ = s.MoveNode("tool-1", Position{X: float64(j)})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				cfg, err := Derive(s)
				if err != nil {
					t.Error(err)
					return
				}
				if !slices.Equal(cfg.Tools, []string{DefaultToolName}) {
					t.Errorf("unexpected tools %v", cfg.Tools)
					return
				}
			}
		}()
	}
	wg.Wait()
}
