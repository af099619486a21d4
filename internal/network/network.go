package network

import (
	"log"

	"signal-testbed/internal/eventBus"
	"signal-testbed/internal/mesh"
	"signal-testbed/internal/node"
	"signal-testbed/internal/signal"

	"github.com/google/uuid"
)

// minSeparation is the distance under which two nodes count as coincident
// and are never linked.
const minSeparation = 1e-4

// Verbose enables per-node membership logging.
var Verbose bool

// Config controls how edges are built.
type Config struct {
	// MaxDistance is the edge cutoff. 0 means unlimited.
	MaxDistance float64 `yaml:"max_distance" json:"max_distance"`
	// Bidirectional inserts both directions of every admissible pair.
	Bidirectional bool `yaml:"bidirectional" json:"bidirectional"`
}

// Source lists the nodes whose owning entities the host currently
// considers active. RebuildGraph pulls from it.
type Source interface {
	ActiveNodes() []*node.Node
}

// SourceFunc adapts a plain function to Source.
type SourceFunc func() []*node.Node

func (f SourceFunc) ActiveNodes() []*node.Node {
	return f()
}

// Manager is the node registry. It owns the node set and builds edges from
// positions, the distance cutoff and the occlusion oracle.
//
// Like the nodes it manages, a Manager is not safe for concurrent use.
type Manager struct {
	cfg    Config
	oracle mesh.Oracle
	source Source
	bus    *eventBus.EventBus

	nodes  []*node.Node
	byID   map[mesh.NodeID]*node.Node
	byKey  map[uuid.UUID]*node.Node
	detach map[mesh.NodeID]func()
}

type Option func(*Manager)

// WithOracle sets the occlusion oracle. The default is OpenSpace.
func WithOracle(o mesh.Oracle) Option {
	return func(m *Manager) {
		if o != nil {
			m.oracle = o
		}
	}
}

func WithSource(s Source) Option {
	return func(m *Manager) { m.source = s }
}

// WithEventBus publishes membership and signal events to bus.
func WithEventBus(bus *eventBus.EventBus) Option {
	return func(m *Manager) { m.bus = bus }
}

func NewManager(cfg Config, opts ...Option) *Manager {
	m := &Manager{
		cfg:    cfg,
		oracle: OpenSpace{},
		byID:   make(map[mesh.NodeID]*node.Node),
		byKey:  make(map[uuid.UUID]*node.Node),
		detach: make(map[mesh.NodeID]func()),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cfg.MaxDistance < 0 {
		m.cfg.MaxDistance = 0
	}
	return m
}

func (m *Manager) Config() Config {
	return m.cfg
}

// RegisterNode adds n and connects it to every node already present.
// Registering nil or a node already in the set is a no-op.
func (m *Manager) RegisterNode(n *node.Node) bool {
	if !m.add(n) {
		return false
	}
	m.connectIncremental(n)
	if Verbose {
		log.Printf("[network] Node %s registered with %d neighbors", n.ID(), n.NeighborCount())
	}
	m.publishNode(eventBus.EventNodeRegistered, n)
	return true
}

// UnregisterNode removes n from the set and every edge that touches it.
// Signals already delivered elsewhere are left alone.
func (m *Manager) UnregisterNode(n *node.Node) bool {
	if n == nil || m.byID[n.ID()] != n {
		return false
	}
	m.forget(n)
	for _, other := range m.nodes {
		other.RemoveNeighbor(n)
	}
	n.ClearNeighbors()
	if Verbose {
		log.Printf("[network] Node %s unregistered", n.ID())
	}
	m.publishNode(eventBus.EventNodeUnregistered, n)
	return true
}

// Refresh re-derives n's edges after it moved. Signals n originates are
// retracted over the old edges and re-originated once the new ones exist,
// so no copy downstream keeps a distance measured from the old position.
// Entries n received from elsewhere are dropped and repopulated by the
// neighbors' replay.
func (m *Manager) Refresh(n *node.Node) bool {
	if n == nil || m.byID[n.ID()] != n {
		return false
	}
	var own []string
	for _, s := range n.LiveSignals() {
		if s.IsOriginAt(n.ID()) {
			own = append(own, s.ID)
		}
	}
	for _, id := range own {
		n.TurnOffSignal(id)
	}

	for _, other := range m.nodes {
		other.RemoveNeighbor(n)
	}
	n.ClearNeighbors()
	n.ClearForeignSignals()
	m.connectIncremental(n)

	for _, id := range own {
		n.ReceiveSignal(signal.New(id, n.ID()), n, 0)
	}
	m.publishNode(eventBus.EventNodeMoved, n)
	return true
}

// RebuildGraph drops nodes that are no longer active, adds active nodes the
// source knows about, and recomputes every edge from scratch. Foreign live
// signals are cleared first; self-originated ones replay across the new
// edges.
func (m *Manager) RebuildGraph() {
	if m.source != nil {
		for _, n := range m.source.ActiveNodes() {
			m.add(n)
		}
	}

	kept := make([]*node.Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		n.ClearNeighbors()
		if !n.IsActive() {
			m.unindex(n)
			continue
		}
		kept = append(kept, n)
	}
	m.nodes = kept

	for _, n := range m.nodes {
		n.ClearForeignSignals()
	}

	edges := 0
	for i := 0; i < len(m.nodes); i++ {
		for j := i + 1; j < len(m.nodes); j++ {
			a, b := m.nodes[i], m.nodes[j]
			w, ok := m.canConnect(a, b)
			if !ok {
				continue
			}
			if node.Connect(a, b, w, m.cfg.Bidirectional) {
				edges++
			}
		}
	}
	log.Printf("[network] Rebuilt graph: %d nodes, %d links", len(m.nodes), edges)
	if m.bus != nil {
		m.bus.Publish(eventBus.Event{Type: eventBus.EventGraphRebuilt, Payload: "rebuild"})
	}
}

// Nodes returns the registered nodes in registration order.
func (m *Manager) Nodes() []*node.Node {
	out := make([]*node.Node, len(m.nodes))
	copy(out, m.nodes)
	return out
}

func (m *Manager) Node(id mesh.NodeID) (*node.Node, bool) {
	n, ok := m.byID[id]
	return n, ok
}

func (m *Manager) NodeByKey(key uuid.UUID) (*node.Node, bool) {
	n, ok := m.byKey[key]
	return n, ok
}

func (m *Manager) Len() int {
	return len(m.nodes)
}

// EdgeCount is the number of directed edges in the graph.
func (m *Manager) EdgeCount() int {
	total := 0
	for _, n := range m.nodes {
		total += n.NeighborCount()
	}
	return total
}

func (m *Manager) add(n *node.Node) bool {
	if n == nil {
		return false
	}
	if _, ok := m.byID[n.ID()]; ok {
		return false
	}
	m.nodes = append(m.nodes, n)
	m.byID[n.ID()] = n
	m.byKey[n.Key()] = n
	m.attach(n)
	return true
}

func (m *Manager) forget(n *node.Node) {
	for i, other := range m.nodes {
		if other == n {
			m.nodes = append(m.nodes[:i:i], m.nodes[i+1:]...)
			break
		}
	}
	m.unindex(n)
}

func (m *Manager) unindex(n *node.Node) {
	delete(m.byID, n.ID())
	delete(m.byKey, n.Key())
	if cancel, ok := m.detach[n.ID()]; ok {
		cancel()
		delete(m.detach, n.ID())
	}
}

func (m *Manager) connectIncremental(n *node.Node) {
	for _, other := range m.nodes {
		if other == n {
			continue
		}
		w, ok := m.canConnect(n, other)
		if !ok {
			continue
		}
		node.Connect(n, other, w, m.cfg.Bidirectional)
	}
}

// canConnect applies the cutoff, the coincidence guard and the oracle, in
// that order. An oracle error counts as obstructed.
func (m *Manager) canConnect(a, b *node.Node) (float64, bool) {
	d := a.Position().DistanceTo(b.Position())
	if m.cfg.MaxDistance > 0 && d > m.cfg.MaxDistance {
		return 0, false
	}
	if d < minSeparation {
		return 0, false
	}
	obstructed, err := m.oracle.IsObstructed(a.Position(), b.Position(), m.cfg.MaxDistance)
	if err != nil {
		log.Printf("[network] Occlusion query %s-%s failed, treating as obstructed: %v", a.ID(), b.ID(), err)
		return 0, false
	}
	if obstructed {
		return 0, false
	}
	return d, true
}
