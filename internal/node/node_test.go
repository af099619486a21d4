package node_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-testbed/internal/mesh"
	"signal-testbed/internal/node"
	"signal-testbed/internal/signal"
)

// ------------------------------------------------------------------------
// helpers
// ------------------------------------------------------------------------

func newRelays(count int, opts ...node.Option) []*node.Node {
	out := make([]*node.Node, count)
	for i := range out {
		out[i] = node.New(mesh.CreateCoordinates(float64(i), 0, 0), opts...)
	}
	return out
}

// inject makes n the origin of id.
func inject(n *node.Node, id string) bool {
	return n.ReceiveSignal(signal.New(id, n.ID()), n, 0)
}

func distance(t *testing.T, n *node.Node, id string) float64 {
	t.Helper()
	s, ok := n.TryGetSignal(id)
	require.True(t, ok, "node %s does not hold %q", n.ID(), id)
	return s.Distance
}

// registry connects every registered node to every other one.
type registry struct {
	nodes  []*node.Node
	weight float64
}

func (r *registry) RegisterNode(n *node.Node) bool {
	for _, o := range r.nodes {
		if o == n {
			return false
		}
	}
	r.nodes = append(r.nodes, n)
	for _, o := range r.nodes[:len(r.nodes)-1] {
		node.Connect(n, o, r.weight, true)
	}
	return true
}

func (r *registry) UnregisterNode(n *node.Node) bool {
	for i, o := range r.nodes {
		if o == n {
			r.nodes = append(r.nodes[:i], r.nodes[i+1:]...)
			for _, rest := range r.nodes {
				rest.RemoveNeighbor(n)
			}
			n.ClearNeighbors()
			return true
		}
	}
	return false
}

// ------------------------------------------------------------------------
// 1. Relaxation
// ------------------------------------------------------------------------

func TestLineGraph_BroadcasterReachesAndRetracts(t *testing.T) {
	a := node.NewBroadcaster(mesh.CreateCoordinates(0, 0, 0), "base")
	b := node.New(mesh.CreateCoordinates(1, 0, 0))
	c := node.New(mesh.CreateCoordinates(2, 0, 0))
	require.True(t, node.Connect(a.Node, b, 1, true))
	require.True(t, node.Connect(b, c, 1, true))

	a.Activate(nil)
	require.Equal(t, "base.0", a.SignalID())

	assert.Equal(t, 0.0, distance(t, a.Node, "base.0"))
	assert.Equal(t, 1.0, distance(t, b, "base.0"))
	assert.Equal(t, 2.0, distance(t, c, "base.0"))

	a.Deactivate()
	_, okB := b.TryGetSignal("base.0")
	_, okC := c.TryGetSignal("base.0")
	assert.False(t, okB)
	assert.False(t, okC)
	assert.False(t, a.Emitted())
}

func TestTriangle_TerminatesWithoutRepeatedPropagation(t *testing.T) {
	a := node.NewBroadcaster(mesh.CreateCoordinates(0, 0, 0), "base", node.WithCounters())
	b := node.New(mesh.CreateCoordinates(1, 0, 0), node.WithCounters())
	c := node.New(mesh.CreateCoordinates(0, 1, 0), node.WithCounters())
	node.Connect(a.Node, b, 1, true)
	node.Connect(b, c, 1, true)
	node.Connect(c, a.Node, 1, true)

	a.Activate(nil)

	assert.Equal(t, 1.0, distance(t, b, "base.0"))
	assert.Equal(t, 1.0, distance(t, c, "base.0"))
	for _, n := range []*node.Node{a.Node, b, c} {
		assert.Equal(t, 1, n.NewSignalsReceivedCount(), "node %s", n.ID())
		assert.Equal(t, 0, n.SignalImprovementsCount(), "node %s", n.ID())
	}
}

func TestRecordFilter_OnlyMatchingScope(t *testing.T) {
	src := node.New(mesh.CreateCoordinates(0, 0, 0))
	agent := node.New(mesh.CreateCoordinates(1, 0, 0), node.WithRecords("2."))

	require.True(t, agent.ReceiveSignal(signal.New("5.base.0", src.ID()), src, 1))
	require.True(t, agent.ReceiveSignal(signal.New("2.base.3", src.ID()), src, 1))

	_, ok := agent.TryGetRecord("5.base.0")
	assert.False(t, ok)
	rec, ok := agent.TryGetRecord("2.base.3")
	require.True(t, ok)
	assert.Equal(t, 1.0, rec.Distance)

	// the live table is not filtered
	assert.Equal(t, 2, agent.LiveCount())
}

func TestMonotonicity_LongPathArrivesFirst(t *testing.T) {
	n := newRelays(3)
	a, b, c := n[0], n[1], n[2]
	node.Connect(a, b, 10, true)
	node.Connect(a, c, 1, true)
	node.Connect(c, b, 1, true)

	var seen []float64
	var improvements []float64
	b.OnNewSignalReceived(func(_ *node.Node, s signal.Signal) { seen = append(seen, s.Distance) })
	b.OnSignalImproved(func(_ *node.Node, s signal.Signal, imp float64) {
		seen = append(seen, s.Distance)
		improvements = append(improvements, imp)
	})

	require.True(t, inject(a, "s.0"))

	assert.Equal(t, []float64{10, 2}, seen)
	assert.Equal(t, []float64{8}, improvements)
	got, _ := b.TryGetSignal("s.0")
	assert.Equal(t, c.ID(), got.LastPropagator)
	assert.Equal(t, a.ID(), got.Origin)
}

func TestNonImprovingReceipt_IsIdempotent(t *testing.T) {
	src := node.New(mesh.CreateCoordinates(0, 0, 0))
	dst := node.New(mesh.CreateCoordinates(1, 0, 0), node.WithCounters(), node.WithRecords(""))
	require.True(t, dst.ReceiveSignal(signal.New("x.0", src.ID()), src, 3))

	calls := 0
	dst.OnNewSignalReceived(func(*node.Node, signal.Signal) { calls++ })
	dst.OnSignalImproved(func(*node.Node, signal.Signal, float64) { calls++ })
	dst.OnRecordImproved(func(*node.Node, signal.Signal, float64) { calls++ })

	before := dst.Signals()
	assert.False(t, dst.ReceiveSignal(signal.New("x.0", src.ID()), src, 3))
	assert.False(t, dst.ReceiveSignal(signal.New("x.0", src.ID()), src, 7))

	assert.Equal(t, 0, calls)
	assert.Equal(t, before, dst.Signals())
	assert.Equal(t, 1, dst.NewSignalsReceivedCount())
	assert.Equal(t, 0, dst.SignalImprovementsCount())
}

func TestReceiveSignal_RejectsInvalidInput(t *testing.T) {
	src := node.New(mesh.CreateCoordinates(0, 0, 0))
	dst := node.New(mesh.CreateCoordinates(1, 0, 0))

	assert.False(t, dst.ReceiveSignal(signal.New("x.0", src.ID()), nil, 1))
	assert.False(t, dst.ReceiveSignal(signal.New("", src.ID()), src, 1))
	assert.False(t, dst.ReceiveSignal(signal.New("x.0", src.ID()), src, -1))
	assert.Equal(t, 0, dst.LiveCount())
}

func TestNonRepeater_DoesNotForward(t *testing.T) {
	n := newRelays(3)
	n[1].SetRepeater(false)
	node.Connect(n[0], n[1], 1, true)
	node.Connect(n[1], n[2], 1, true)

	inject(n[0], "s.0")
	assert.Equal(t, 1.0, distance(t, n[1], "s.0"))
	_, ok := n[2].TryGetSignal("s.0")
	assert.False(t, ok)
}

func TestCustomRepeatPolicy(t *testing.T) {
	n := newRelays(3)
	n[1].SetRepeatPolicy(node.RepeatPolicyFunc(func(_ *node.Node, s signal.Signal) bool {
		return signal.HasPrefix(s.ID, "keep.")
	}))
	node.Connect(n[0], n[1], 1, true)
	node.Connect(n[1], n[2], 1, true)

	inject(n[0], "keep.0")
	inject(n[0], "drop.0")
	assert.Equal(t, 2.0, distance(t, n[2], "keep.0"))
	_, ok := n[2].TryGetSignal("drop.0")
	assert.False(t, ok)
}

func TestLongChain_DoesNotRecurse(t *testing.T) {
	const size = 20000
	chain := newRelays(size)
	for i := 1; i < size; i++ {
		node.Connect(chain[i-1], chain[i], 1, true)
	}

	inject(chain[0], "far.0")
	assert.Equal(t, float64(size-1), distance(t, chain[size-1], "far.0"))

	require.True(t, chain[0].TurnOffSignal("far.0"))
	_, ok := chain[size-1].TryGetSignal("far.0")
	assert.False(t, ok)
}

// ------------------------------------------------------------------------
// 2. Retraction
// ------------------------------------------------------------------------

func TestRetraction_CycleRemovesEachNodeOnce(t *testing.T) {
	ring := newRelays(6)
	for i := range ring {
		node.Connect(ring[i], ring[(i+1)%len(ring)], 1, true)
	}
	node.Connect(ring[0], ring[3], 1, true)

	removed := make(map[mesh.NodeID]int)
	for _, n := range ring {
		n.OnSignalRemoved(func(n *node.Node, s signal.Signal) {
			assert.Equal(t, "s.0", s.ID)
			removed[n.ID()]++
		})
	}

	inject(ring[0], "s.0")
	assert.Equal(t, 2.0, distance(t, ring[4], "s.0"))

	require.True(t, ring[0].TurnOffSignal("s.0"))
	for _, n := range ring {
		assert.Equal(t, 1, removed[n.ID()], "node %s", n.ID())
		assert.Equal(t, 0, n.LiveCount())
	}
	assert.False(t, ring[0].TurnOffSignal("s.0"))
}

func TestRetraction_NeverFlowsBackToPropagator(t *testing.T) {
	n := newRelays(3)
	node.Connect(n[0], n[1], 1, true)
	node.Connect(n[1], n[2], 1, true)
	inject(n[0], "s.0")

	require.True(t, n[1].TurnOffSignal("s.0"))

	assert.Equal(t, 0.0, distance(t, n[0], "s.0"))
	_, ok := n[2].TryGetSignal("s.0")
	assert.False(t, ok)
}

func TestRetraction_LeavesRecords(t *testing.T) {
	n := newRelays(2)
	n[1] = node.New(mesh.CreateCoordinates(1, 0, 0), node.WithRecords(""))
	node.Connect(n[0], n[1], 4, true)
	inject(n[0], "s.0")

	n[0].TurnOffSignal("s.0")
	_, live := n[1].TryGetSignal("s.0")
	rec, ok := n[1].TryGetRecord("s.0")
	assert.False(t, live)
	require.True(t, ok)
	assert.Equal(t, 4.0, rec.Distance)
}

// ------------------------------------------------------------------------
// 3. Records
// ------------------------------------------------------------------------

func TestRecords_NeverRegress(t *testing.T) {
	src := node.New(mesh.CreateCoordinates(0, 0, 0))
	r := node.New(mesh.CreateCoordinates(1, 0, 0), node.WithRecords(""))

	var improvements []float64
	r.OnRecordImproved(func(_ *node.Node, _ signal.Signal, imp float64) { improvements = append(improvements, imp) })

	at := func(d float64) signal.Signal {
		s := signal.New("x.0", src.ID())
		s.Distance = d
		return s
	}

	r.ReceiveSignal(at(5), src, 1)
	r.ReceiveSignal(at(2), src, 1)
	r.TurnOffSignal("x.0")
	r.ReceiveSignal(at(10), src, 1)

	live, _ := r.TryGetSignal("x.0")
	rec, _ := r.TryGetRecord("x.0")
	assert.Equal(t, 11.0, live.Distance)
	assert.Equal(t, 3.0, rec.Distance)
	assert.Equal(t, []float64{3}, improvements)

	r.ClearSignals()
	_, ok := r.TryGetRecord("x.0")
	assert.True(t, ok)

	r.ClearSignalsAndRecords()
	_, ok = r.TryGetRecord("x.0")
	assert.False(t, ok)
	assert.Empty(t, r.Records())
}

func TestRecords_DisabledByDefault(t *testing.T) {
	n := newRelays(1)[0]
	inject(n, "s.0")
	_, ok := n.TryGetRecord("s.0")
	assert.False(t, ok)
	assert.Nil(t, n.Records())
}

// ------------------------------------------------------------------------
// 4. Topology
// ------------------------------------------------------------------------

func TestConnect_ReplaysBothDirectionsOnce(t *testing.T) {
	a := node.NewBroadcaster(mesh.CreateCoordinates(0, 0, 0), "a", node.WithCounters())
	b := node.NewBroadcaster(mesh.CreateCoordinates(2, 0, 0), "b", node.WithCounters())
	a.Activate(nil)
	b.Activate(nil)

	require.True(t, node.Connect(a.Node, b.Node, 2, true))
	assert.Equal(t, 2.0, distance(t, a.Node, "b.0"))
	assert.Equal(t, 2.0, distance(t, b.Node, "a.0"))
	assert.Equal(t, 2, a.NewSignalsReceivedCount())
	assert.Equal(t, 2, b.NewSignalsReceivedCount())

	// a does not repeat foreign signals, so only its own family is replayed
	c := node.New(mesh.CreateCoordinates(-1, 0, 0))
	node.Connect(a.Node, c, 1, true)
	assert.Equal(t, 1.0, distance(t, c, "a.0"))
	_, ok := c.TryGetSignal("b.0")
	assert.False(t, ok)
}

func TestAddNeighbor_OneDirection(t *testing.T) {
	n := newRelays(2)
	inject(n[0], "s.0")
	inject(n[1], "t.0")

	require.True(t, n[0].AddNeighbor(n[1], 3))
	assert.Equal(t, 3.0, distance(t, n[1], "s.0"))
	_, ok := n[0].TryGetSignal("t.0")
	assert.False(t, ok)
	assert.False(t, n[1].HasNeighbor(n[0]))
}

func TestAddNeighbor_NoOps(t *testing.T) {
	n := newRelays(2)
	assert.False(t, n[0].AddNeighbor(nil, 1))
	assert.False(t, n[0].AddNeighbor(n[0], 1))
	assert.False(t, n[0].AddNeighbor(n[1], -2))
	require.True(t, n[0].AddNeighbor(n[1], 1))
	assert.False(t, n[0].AddNeighbor(n[1], 5))

	w, ok := n[0].TryGetNeighborDistance(n[1])
	require.True(t, ok)
	assert.Equal(t, 1.0, w)
	assert.Equal(t, 1, n[0].NeighborCount())
	assert.False(t, node.Connect(nil, n[1], 1, true))
}

func TestRemoveNeighbor_KeepsSignals(t *testing.T) {
	n := newRelays(2)
	node.Connect(n[0], n[1], 1, true)
	inject(n[0], "s.0")

	require.True(t, n[1].RemoveNeighbor(n[0]))
	require.True(t, n[0].RemoveNeighbor(n[1]))
	assert.False(t, n[0].RemoveNeighbor(n[1]))
	assert.False(t, n[0].RemoveNeighbor(nil))

	assert.Equal(t, 1.0, distance(t, n[1], "s.0"))
	assert.Empty(t, n[0].Neighbors())
}

func TestEdges_InsertionOrder(t *testing.T) {
	n := newRelays(4)
	n[0].AddNeighbor(n[2], 2)
	n[0].AddNeighbor(n[1], 1)
	n[0].AddNeighbor(n[3], 3)

	assert.Equal(t, []node.Edge{
		{To: n[2].ID(), Weight: 2},
		{To: n[1].ID(), Weight: 1},
		{To: n[3].ID(), Weight: 3},
	}, n[0].Edges())
	n[0].ClearNeighbors()
	assert.Equal(t, 0, n[0].NeighborCount())
}

// ------------------------------------------------------------------------
// 5. Queries, observers, lifecycle
// ------------------------------------------------------------------------

func TestPrefixQueries(t *testing.T) {
	src := node.New(mesh.CreateCoordinates(0, 0, 0))
	n := node.New(mesh.CreateCoordinates(1, 0, 0))
	n.ReceiveSignal(signal.New("2.base.0", src.ID()), src, 5)
	n.ReceiveSignal(signal.New("2.base.1", src.ID()), src, 3)
	n.ReceiveSignal(signal.New("5.other.0", src.ID()), src, 1)

	closest, ok := n.TryGetClosestSignalByPrefix("2.")
	require.True(t, ok)
	assert.Equal(t, "2.base.1", closest.ID)

	first, ok := n.TryGetFirstSignalByPrefix("2.base.")
	require.True(t, ok)
	assert.True(t, signal.HasPrefix(first.ID, "2.base."))

	_, ok = n.TryGetClosestSignalByPrefix("")
	assert.False(t, ok)
	_, ok = n.TryGetFirstSignalByPrefix("9.")
	assert.False(t, ok)
	_, ok = n.TryGetSignal("missing")
	assert.False(t, ok)

	assert.Equal(t, []node.SignalView{
		{ID: "2.base.0", Distance: 5},
		{ID: "2.base.1", Distance: 3},
		{ID: "5.other.0", Distance: 1},
	}, n.Signals())
}

func TestObservers_RegistrationOrderAndCancel(t *testing.T) {
	n := newRelays(1)[0]
	var order []string
	n.OnNewSignalReceived(func(*node.Node, signal.Signal) { order = append(order, "first") })
	cancel := n.OnNewSignalReceived(func(*node.Node, signal.Signal) { order = append(order, "second") })
	n.OnNewSignalReceived(func(*node.Node, signal.Signal) { order = append(order, "third") })
	require.Equal(t, 3, n.ObserverCount())

	cancel()
	cancel()
	inject(n, "s.0")

	assert.Equal(t, []string{"first", "third"}, order)
	assert.Equal(t, 2, n.ObserverCount())
}

func TestClearSignals_FiresRemovalPerEntry(t *testing.T) {
	n := newRelays(2)
	node.Connect(n[0], n[1], 1, true)
	inject(n[0], "a.0")
	inject(n[0], "b.0")

	var removed []string
	n[1].OnSignalRemoved(func(_ *node.Node, s signal.Signal) { removed = append(removed, s.ID) })
	n[1].ClearSignals()

	assert.Equal(t, []string{"a.0", "b.0"}, removed)
	assert.Equal(t, 2, n[0].LiveCount())
}

func TestIntensity(t *testing.T) {
	src := node.New(mesh.CreateCoordinates(0, 0, 0))
	n := node.New(mesh.CreateCoordinates(1, 0, 0))
	assert.Equal(t, 0.0, n.Intensity())

	n.ReceiveSignal(signal.New("s.0", src.ID()), src, 1)
	assert.InDelta(t, 1.5, n.Intensity(), 1e-9)

	bright := node.New(mesh.CreateCoordinates(0, 0, 0), node.WithIntensityFactor(30))
	inject(bright, "s.0")
	assert.Equal(t, 10.0, bright.Intensity())
}

func TestLifecycle_RegistersAndRetracts(t *testing.T) {
	reg := &registry{weight: 1}
	relay := node.New(mesh.CreateCoordinates(0, 0, 0), node.WithRecords(""))
	bc := node.NewBroadcaster(mesh.CreateCoordinates(1, 0, 0), "base")

	relay.Activate(reg)
	bc.Activate(reg)
	require.True(t, bc.IsActive())
	assert.Equal(t, 1.0, distance(t, relay, "base.0"))

	bc.Deactivate()
	assert.False(t, bc.IsActive())
	assert.Equal(t, 0, relay.LiveCount())
	assert.Equal(t, 0, relay.NeighborCount())
	assert.Len(t, reg.nodes, 1)
	_, ok := relay.TryGetRecord("base.0")
	assert.True(t, ok)

	bc.Activate(reg)
	assert.Equal(t, "base.1", bc.SignalID())
	assert.Equal(t, 1.0, distance(t, relay, "base.1"))

	relay.Deactivate()
	relay.Deactivate()
	assert.Equal(t, 0, relay.LiveCount())
	assert.Equal(t, 0, bc.NeighborCount())
}
