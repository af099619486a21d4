package node

import (
	"log"
	"sync/atomic"

	"signal-testbed/internal/mesh"
	"signal-testbed/internal/signal"

	"github.com/google/uuid"
)

// Verbose enables lifecycle logging for every node.
var Verbose bool

var lastID atomic.Uint32

// Registrar owns node membership and edges. A node registers itself on
// activation and unregisters on deactivation.
type Registrar interface {
	RegisterNode(n *Node) bool
	UnregisterNode(n *Node) bool
}

// lifecycleHooks let node variants run code around activation without
// subclassing.
type lifecycleHooks struct {
	activated    func()
	deactivating func()
}

// Node is a graph vertex holding weighted edges, the live table of best
// known signals and an optional record history.
//
// A Node is not safe for concurrent use. The whole graph is mutated from
// one goroutine.
type Node struct {
	id       mesh.NodeID
	key      uuid.UUID
	position mesh.Coordinates

	repeater bool
	policy   RepeatPolicy

	edges []edge
	live  map[string]signal.Signal

	trackRecords bool
	recordFilter string
	records      map[string]signal.Signal

	trackCounters      bool
	newSignalsReceived int
	signalImprovements int
	intensityFactor    float64

	active    bool
	registrar Registrar
	hooks     lifecycleHooks

	newSignal      observerList[SignalHandler]
	improved       observerList[ImprovementHandler]
	recordImproved observerList[ImprovementHandler]
	removed        observerList[SignalHandler]
}

// New creates an inactive node at pos. Nodes repeat by default.
func New(pos mesh.Coordinates, opts ...Option) *Node {
	n := &Node{
		id:              mesh.NodeID(lastID.Add(1)),
		key:             uuid.New(),
		position:        pos,
		repeater:        true,
		live:            make(map[string]signal.Signal),
		records:         make(map[string]signal.Signal),
		intensityFactor: defaultIntensityFactor,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// ID returns the node's registry handle.
func (n *Node) ID() mesh.NodeID {
	return n.id
}

// Key returns the node's external identity.
func (n *Node) Key() uuid.UUID {
	return n.key
}

func (n *Node) Position() mesh.Coordinates {
	return n.position
}

// SetPosition moves the node. Edges are not rebuilt; callers refresh the
// node through its manager.
func (n *Node) SetPosition(pos mesh.Coordinates) {
	n.position = pos
}

func (n *Node) RepeaterEnabled() bool {
	return n.repeater
}

func (n *Node) SetRepeater(enabled bool) {
	n.repeater = enabled
}

// SetRepeatPolicy replaces the repeat strategy. A nil policy restores the
// repeater flag behaviour.
func (n *Node) SetRepeatPolicy(p RepeatPolicy) {
	n.policy = p
}

func (n *Node) IsActive() bool {
	return n.active
}

// Activate marks the node active and registers it with r (if non-nil).
// Activating an active node is a no-op.
func (n *Node) Activate(r Registrar) {
	if n.active {
		return
	}
	n.active = true
	n.registrar = r
	if r != nil {
		r.RegisterNode(n)
	}
	if Verbose {
		log.Printf("[graph] Node %s: activated at (%.2f, %.2f, %.2f)", n.id, n.position.X, n.position.Y, n.position.Z)
	}
	if n.hooks.activated != nil {
		n.hooks.activated()
	}
}

// Deactivate clears the live signals (firing removal events) and
// unregisters the node. Records survive.
func (n *Node) Deactivate() {
	if !n.active {
		return
	}
	if n.hooks.deactivating != nil {
		n.hooks.deactivating()
	}
	n.active = false
	n.ClearSignals()
	if n.registrar != nil {
		n.registrar.UnregisterNode(n)
		n.registrar = nil
	}
	if Verbose {
		log.Printf("[graph] Node %s: deactivated", n.id)
	}
}

// NewSignalsReceivedCount is the number of ids that went Absent -> Live
// while counters were enabled.
func (n *Node) NewSignalsReceivedCount() int {
	return n.newSignalsReceived
}

// SignalImprovementsCount is the number of Live -> Live(better)
// transitions while counters were enabled.
func (n *Node) SignalImprovementsCount() int {
	return n.signalImprovements
}

func (n *Node) TrackCounters() bool {
	return n.trackCounters
}

// ResetCounters zeroes the instrumentation counters without touching
// signals.
func (n *Node) ResetCounters() {
	n.newSignalsReceived = 0
	n.signalImprovements = 0
}

func (n *Node) TrackRecords() bool {
	return n.trackRecords
}

func (n *Node) RecordFilter() string {
	return n.recordFilter
}

// SetRecordFilter restricts future records to ids starting with filter.
// Existing records are kept.
func (n *Node) SetRecordFilter(filter string) {
	n.recordFilter = filter
}
