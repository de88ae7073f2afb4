package graph

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/user/agentflow/internal/types"
)

var (
	ErrNodeNotFound  = errors.New("node not found")
	ErrDuplicateNode = errors.New("node id already used")
	ErrUnknownField  = errors.New("unknown field for node kind")
	ErrEdgeNotFound  = errors.New("edge not found")
	ErrDuplicateEdge = errors.New("edge id already used")
)

// DanglingPolicy decides what happens to edges whose endpoint is removed.
type DanglingPolicy string

const (
	// DanglingCascade deletes every edge referencing a removed node.
	DanglingCascade DanglingPolicy = "cascade"
	// DanglingIgnore keeps such edges but leaves them out of snapshots.
	DanglingIgnore DanglingPolicy = "ignore"
)

// ParseDanglingPolicy maps a config value to a policy. Empty means cascade.
func ParseDanglingPolicy(s string) (DanglingPolicy, error) {
	switch DanglingPolicy(s) {
	case "", DanglingCascade:
		return DanglingCascade, nil
	case DanglingIgnore:
		return DanglingIgnore, nil
	}
	return "", fmt.Errorf("unknown dangling edge policy: %q", s)
}

// Option configures a Store.
type Option func(*Store)

// WithDanglingPolicy sets the edge policy applied on node removal.
func WithDanglingPolicy(p DanglingPolicy) Option {
	return func(s *Store) { s.dangling = p }
}

// Store holds nodes and edges for one editing session. Nodes are kept in
// insertion order; IDs are never reused, even after removal.
type Store struct {
	mu       sync.RWMutex
	order    []types.NodeID
	nodes    map[types.NodeID]*Node
	used     map[types.NodeID]struct{}
	edges    []Edge
	dangling DanglingPolicy
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		nodes:    make(map[types.NodeID]*Node),
		used:     make(map[types.NodeID]struct{}),
		dangling: DanglingCascade,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddNode inserts n, assigning an ID when n.ID is empty, and returns the ID.
// Fields not given are initialised to "".
func (s *Store) AddNode(n Node) (types.NodeID, error) {
	if _, ok := kindFields[n.Kind]; !ok {
		return "", fmt.Errorf("unknown node kind: %q", n.Kind)
	}
	if err := checkFields(n.Kind, n.Fields); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = types.NewNodeID()
	}
	if _, ok := s.used[n.ID]; ok {
		return "", fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
	}

	node := n.clone()
	for _, key := range n.Kind.Fields() {
		if _, ok := node.Fields[key]; !ok {
			node.Fields[key] = ""
		}
	}

	s.nodes[node.ID] = &node
	s.used[node.ID] = struct{}{}
	s.order = append(s.order, node.ID)
	return node.ID, nil
}

// RemoveNode deletes a node. Under DanglingCascade its edges go with it.
func (s *Store) RemoveNode(id types.NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	delete(s.nodes, id)
	s.order = slices.DeleteFunc(s.order, func(o types.NodeID) bool { return o == id })

	if s.dangling == DanglingCascade {
		s.edges = slices.DeleteFunc(s.edges, func(e Edge) bool {
			return e.Source == id || e.Target == id
		})
	}
	return nil
}

// MoveNode sets a node's canvas position.
func (s *Store) MoveNode(id types.NodeID, pos Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	n.Position = pos
	return nil
}

// UpdateNodeFields shallow-merges partial into the node's fields. Either every
// key is valid for the node's kind and all are applied, or none are.
func (s *Store) UpdateNodeFields(id types.NodeID, partial map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	if err := checkFields(n.Kind, partial); err != nil {
		return err
	}
	for k, v := range partial {
		n.Fields[k] = v
	}
	return nil
}

// Connect adds an edge from source to target. Both nodes must exist.
// Connecting the same pair and handle twice returns the existing edge.
func (s *Store) Connect(source, target types.NodeID, handle string) (types.EdgeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range []types.NodeID{source, target} {
		if _, ok := s.nodes[id]; !ok {
			return "", fmt.Errorf("connect: %w: %s", ErrNodeNotFound, id)
		}
	}
	for _, e := range s.edges {
		if e.Source == source && e.Target == target && e.Handle == handle {
			return e.ID, nil
		}
	}

	e := Edge{ID: types.NewEdgeID(), Source: source, Target: target, Handle: handle}
	s.edges = append(s.edges, e)
	return e.ID, nil
}

// Disconnect removes an edge.
func (s *Store) Disconnect(id types.EdgeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.edges, func(e Edge) bool { return e.ID == id })
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrEdgeNotFound, id)
	}
	s.edges = slices.Delete(s.edges, i, i+1)
	return nil
}

// addEdge inserts an edge with a caller-chosen ID. Used by seed loading.
func (s *Store) addEdge(e Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range []types.NodeID{e.Source, e.Target} {
		if _, ok := s.nodes[id]; !ok {
			return fmt.Errorf("edge %s: %w: %s", e.ID, ErrNodeNotFound, id)
		}
	}
	if e.ID == "" {
		e.ID = types.NewEdgeID()
	}
	if slices.ContainsFunc(s.edges, func(x Edge) bool { return x.ID == e.ID }) {
		return fmt.Errorf("%w: %s", ErrDuplicateEdge, e.ID)
	}
	s.edges = append(s.edges, e)
	return nil
}

// Node returns a copy of the node with the given ID.
func (s *Store) Node(id types.NodeID) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[id]
	if !ok {
		return Node{}, false
	}
	return n.clone(), true
}

// Len returns the number of nodes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// NodesOfKind iterates over a point-in-time copy of the nodes of kind k, in
// insertion order.
func (s *Store) NodesOfKind(k Kind) iter.Seq[Node] {
	return s.Snapshot().NodesOfKind(k)
}

// Snapshot copies the graph atomically. Later edits never show through.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Nodes: make([]Node, 0, len(s.order)),
		Edges: make([]Edge, 0, len(s.edges)),
	}
	for _, id := range s.order {
		snap.Nodes = append(snap.Nodes, s.nodes[id].clone())
	}
	for _, e := range s.edges {
		_, srcOK := s.nodes[e.Source]
		_, dstOK := s.nodes[e.Target]
		if srcOK && dstOK {
			snap.Edges = append(snap.Edges, e)
		}
	}
	return snap
}

func checkFields(k Kind, fields map[string]string) error {
	for key := range fields {
		if !k.hasField(key) {
			return fmt.Errorf("%w: %s has no field %q", ErrUnknownField, k, key)
		}
	}
	return nil
}

// Snapshot is an immutable copy of a Store.
type Snapshot struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// NodesOfKind iterates over nodes of kind k in insertion order.
func (s Snapshot) NodesOfKind(k Kind) iter.Seq[Node] {
	return func(yield func(Node) bool) {
		for _, n := range s.Nodes {
			if n.Kind != k {
				continue
			}
			if !yield(n) {
				return
			}
		}
	}
}

// Node looks up a node by ID.
func (s Snapshot) Node(id types.NodeID) (Node, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Neighbors returns the nodes connected to id in either direction, in edge
// order, without duplicates.
func (s Snapshot) Neighbors(id types.NodeID) []Node {
	var out []Node
	seen := make(map[types.NodeID]bool)
	for _, e := range s.Edges {
		var other types.NodeID
		switch id {
		case e.Source:
			other = e.Target
		case e.Target:
			other = e.Source
		default:
			continue
		}
		if seen[other] {
			continue
		}
		if n, ok := s.Node(other); ok {
			seen[other] = true
			out = append(out, n)
		}
	}
	return out
}

// IsActive reports whether a model node feeds the agent's model handle.
// Display state only; derivation does not consult it.
func (s Snapshot) IsActive(agentID types.NodeID) bool {
	for _, e := range s.Edges {
		if e.Target != agentID || e.Handle != HandleModel {
			continue
		}
		if n, ok := s.Node(e.Source); ok && n.Kind == KindModel {
			return true
		}
	}
	return false
}
