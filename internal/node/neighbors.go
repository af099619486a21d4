package node

import (
	"signal-testbed/internal/mesh"
)

type edge struct {
	to     *Node
	weight float64
}

// Edge is a read-only view of one outgoing edge.
type Edge struct {
	To     mesh.NodeID `json:"to" msgpack:"to"`
	Weight float64     `json:"weight" msgpack:"weight"`
}

// AddNeighbor inserts the edge n -> other and replays every live signal n
// would forward across it. It is a no-op for nil, self, an existing
// neighbor or an invalid weight.
func (n *Node) AddNeighbor(other *Node, weight float64) bool {
	if !n.link(other, weight) {
		return false
	}
	n.replayTo(other, weight)
	return true
}

// Connect links a and b (and b and a when bidirectional) before either side
// replays its state, so no replay runs against a half-built edge pair.
func Connect(a, b *Node, weight float64, bidirectional bool) bool {
	if a == nil || b == nil {
		return false
	}
	ab := a.link(b, weight)
	ba := bidirectional && b.link(a, weight)
	if ab {
		a.replayTo(b, weight)
	}
	if ba {
		b.replayTo(a, weight)
	}
	return ab || ba
}

// RemoveNeighbor drops the edge n -> other. Signal state is left alone.
func (n *Node) RemoveNeighbor(other *Node) bool {
	n.normalizeEdges()
	if other == nil {
		return false
	}
	for i, e := range n.edges {
		if e.to == other {
			n.edges = append(n.edges[:i:i], n.edges[i+1:]...)
			return true
		}
	}
	return false
}

// ClearNeighbors drops every outgoing edge.
func (n *Node) ClearNeighbors() {
	n.edges = nil
}

// Neighbors returns the adjacency in insertion order.
func (n *Node) Neighbors() []*Node {
	out := make([]*Node, 0, len(n.edges))
	for _, e := range n.edges {
		out = append(out, e.to)
	}
	return out
}

// Edges returns the outgoing edges in insertion order.
func (n *Node) Edges() []Edge {
	out := make([]Edge, 0, len(n.edges))
	for _, e := range n.edges {
		out = append(out, Edge{To: e.to.id, Weight: e.weight})
	}
	return out
}

func (n *Node) NeighborCount() int {
	return len(n.edges)
}

func (n *Node) HasNeighbor(other *Node) bool {
	_, ok := n.TryGetNeighborDistance(other)
	return ok
}

// TryGetNeighborDistance returns the weight of n -> other.
func (n *Node) TryGetNeighborDistance(other *Node) (float64, bool) {
	if other == nil {
		return 0, false
	}
	for _, e := range n.edges {
		if e.to == other {
			return e.weight, true
		}
	}
	return 0, false
}

func (n *Node) link(other *Node, weight float64) bool {
	n.normalizeEdges()
	if other == nil || other == n || !validWeight(weight) || n.HasNeighbor(other) {
		return false
	}
	n.edges = append(n.edges, edge{to: other, weight: weight})
	return true
}

func (n *Node) replayTo(other *Node, weight float64) {
	var initial []delivery
	for _, id := range n.liveIDs() {
		s := n.live[id]
		if !n.TryRepeatSignal(s) {
			continue
		}
		initial = append(initial, delivery{to: other, from: n.id, sig: s, weight: weight})
	}
	flood(initial)
}

// normalizeEdges repairs the adjacency in place: nil targets, self loops,
// duplicates and unusable weights are dropped, first entry wins.
func (n *Node) normalizeEdges() {
	var seen map[*Node]bool
	kept := n.edges[:0]
	for _, e := range n.edges {
		if e.to == nil || e.to == n || !validWeight(e.weight) {
			continue
		}
		if seen == nil {
			seen = make(map[*Node]bool, len(n.edges))
		}
		if seen[e.to] {
			continue
		}
		seen[e.to] = true
		kept = append(kept, e)
	}
	for i := len(kept); i < len(n.edges); i++ {
		n.edges[i] = edge{}
	}
	n.edges = kept
}
