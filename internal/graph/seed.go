package graph

import (
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/user/agentflow/internal/types"
)

// Seed defaults mirror the editor's initial canvas.
const (
	DefaultModelName    = "gemini-2.0-flash"
	DefaultSystemPrompt = "You are a helpful AI assistant."
	DefaultToolName     = "get_weather"
)

type seedFile struct {
	Nodes []seedNode `toml:"nodes"`
	Edges []seedEdge `toml:"edges"`
}

type seedNode struct {
	ID     string            `toml:"id"`
	Kind   string            `toml:"kind"`
	X      float64           `toml:"x"`
	Y      float64           `toml:"y"`
	Fields map[string]string `toml:"fields,omitempty"`
}

type seedEdge struct {
	ID     string `toml:"id,omitempty"`
	Source string `toml:"source"`
	Target string `toml:"target"`
	Handle string `toml:"handle,omitempty"`
}

// DefaultStore returns a store holding one model, one get_weather tool and
// the agent node they feed.
func DefaultStore(opts ...Option) *Store {
	s := NewStore(opts...)
	nodes := []Node{
		{ID: "model-1", Kind: KindModel, Position: Position{X: 50, Y: 100}, Fields: map[string]string{
			FieldModelName:    DefaultModelName,
			FieldSystemPrompt: DefaultSystemPrompt,
		}},
		{ID: "tool-1", Kind: KindTool, Position: Position{X: 50, Y: 500}, Fields: map[string]string{
			FieldToolName: DefaultToolName,
		}},
		{ID: "agent-1", Kind: KindAgent, Position: Position{X: 600, Y: 250}},
	}
	for _, n := range nodes {
		// IDs are fixed and distinct.
		_, _ = s.AddNode(n)
	}
	_ = s.addEdge(Edge{ID: "e1", Source: "model-1", Target: "agent-1", Handle: HandleModel})
	_ = s.addEdge(Edge{ID: "e2", Source: "tool-1", Target: "agent-1", Handle: HandleTools})
	return s
}

// LoadSeed builds a store from a TOML seed file. An empty path yields DefaultStore.
func LoadSeed(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return DefaultStore(opts...), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open graph seed: %w", err)
	}
	defer f.Close()
	return DecodeSeed(f, opts...)
}

// DecodeSeed builds a store from TOML.
func DecodeSeed(r io.Reader, opts ...Option) (*Store, error) {
	var seed seedFile
	md, err := toml.NewDecoder(r).Decode(&seed)
	if err != nil {
		return nil, fmt.Errorf("decode graph seed: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("decode graph seed: unknown keys %v", undecoded)
	}

	s := NewStore(opts...)
	for _, sn := range seed.Nodes {
		kind, err := ParseKind(sn.Kind)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", sn.ID, err)
		}
		if _, err := s.AddNode(Node{
			ID:       types.NodeID(sn.ID),
			Kind:     kind,
			Position: Position{X: sn.X, Y: sn.Y},
			Fields:   sn.Fields,
		}); err != nil {
			return nil, fmt.Errorf("node %q: %w", sn.ID, err)
		}
	}
	for _, se := range seed.Edges {
		if err := s.addEdge(Edge{
			ID:     types.EdgeID(se.ID),
			Source: types.NodeID(se.Source),
			Target: types.NodeID(se.Target),
			Handle: se.Handle,
		}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// EncodeSeed writes snap as a TOML seed file.
func EncodeSeed(w io.Writer, snap Snapshot) error {
	var seed seedFile
	for _, n := range snap.Nodes {
		fields := make(map[string]string, len(n.Fields))
		for k, v := range n.Fields {
			if v != "" {
				fields[k] = v
			}
		}
		seed.Nodes = append(seed.Nodes, seedNode{
			ID:     string(n.ID),
			Kind:   string(n.Kind),
			X:      n.Position.X,
			Y:      n.Position.Y,
			Fields: fields,
		})
	}
	for _, e := range snap.Edges {
		seed.Edges = append(seed.Edges, seedEdge{
			ID:     string(e.ID),
			Source: string(e.Source),
			Target: string(e.Target),
			Handle: e.Handle,
		})
	}
	if err := toml.NewEncoder(w).Encode(seed); err != nil {
		return fmt.Errorf("encode graph seed: %w", err)
	}
	return nil
}
