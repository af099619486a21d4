package sim

import (
	"fmt"
	"log"
	"math"
	"math/rand"

	eb "signal-testbed/internal/eventBus"
	"signal-testbed/internal/mesh"
	"signal-testbed/internal/network"
	"signal-testbed/internal/node"

	"github.com/google/uuid"
)

// World owns every entity of a run and advances them one tick at a time.
// It is not safe for concurrent use; the Runner serializes access.
type World struct {
	sc  *Scenario
	rng *rand.Rand
	bus *eb.EventBus
	mgr *network.Manager

	relays       []*node.Node
	broadcasters []*node.Broadcaster
	resources    []*Resource
	agents       []*Agent

	tick int
}

// NewWorld places relays, agents and resources and registers them. bus may
// be nil.
func NewWorld(sc *Scenario, bus *eb.EventBus) (*World, error) {
	if sc == nil {
		return nil, fmt.Errorf("%w: nil scenario", ErrInvalidScenario)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	w := &World{
		sc:  sc,
		rng: rand.New(rand.NewSource(sc.Seed)),
		bus: bus,
	}
	var oracle mesh.Oracle = network.OpenSpace{}
	if len(sc.Obstacles) > 0 {
		oracle = network.SphereObstacles(sc.Obstacles)
	}
	w.mgr = network.NewManager(sc.Graph.Config,
		network.WithOracle(oracle),
		network.WithSource(w),
		network.WithEventBus(bus),
	)

	for _, pos := range w.relayPositions() {
		w.AddRelay(pos, *sc.Relays.Repeater)
	}
	for i := 1; i <= sc.Agents.Count; i++ {
		a := newAgent(i, w.randomPosition(), sc.Agents)
		a.Activate(w.mgr)
		w.agents = append(w.agents, a)
	}
	for i := 0; i < sc.Resources.Count; i++ {
		owner := 0
		if len(sc.Resources.Owners) > 0 {
			owner = sc.Resources.Owners[i%len(sc.Resources.Owners)]
		}
		r := newResource(i, owner, w.randomPosition(), sc.Resources)
		w.resources = append(w.resources, r)
		w.spawn(r)
	}

	log.Printf("[sim] World ready: %d relays, %d agents, %d resources, %d links",
		len(w.relays), len(w.agents), len(w.resources), w.mgr.EdgeCount())
	return w, nil
}

func (w *World) Manager() *network.Manager { return w.mgr }
func (w *World) Tick() int                 { return w.tick }
func (w *World) Agents() []*Agent          { return w.agents }
func (w *World) Resources() []*Resource    { return w.resources }
func (w *World) Relays() []*node.Node      { return w.relays }

// ActiveNodes lists every active entity node, for graph rebuilds.
func (w *World) ActiveNodes() []*node.Node {
	var out []*node.Node
	for _, n := range w.relays {
		if n.IsActive() {
			out = append(out, n)
		}
	}
	for _, b := range w.broadcasters {
		if b.IsActive() {
			out = append(out, b.Node)
		}
	}
	for _, r := range w.resources {
		if r.IsActive() {
			out = append(out, r.Node)
		}
	}
	for _, a := range w.agents {
		if a.IsActive() {
			out = append(out, a.Node)
		}
	}
	return out
}

// IsMobile reports whether n belongs to an agent.
func (w *World) IsMobile(n *node.Node) bool {
	for _, a := range w.agents {
		if a.Node == n {
			return true
		}
	}
	return false
}

// Step advances the world by one tick: resource lifetimes, agent moves and
// pickups, then the periodic rebuild.
func (w *World) Step() {
	w.tick++
	w.publish(eb.Event{Type: eb.EventTick, Tick: w.tick})
	w.stepResources()
	w.stepAgents()
	if every := w.sc.Graph.RebuildEvery; every > 0 && w.tick%every == 0 {
		w.mgr.RebuildGraph()
	}
}

// Shutdown deactivates every entity, retracting all signals.
func (w *World) Shutdown() {
	for _, r := range w.resources {
		r.Deactivate()
	}
	for _, b := range w.broadcasters {
		b.Deactivate()
	}
	for _, a := range w.agents {
		a.cancel()
		a.Deactivate()
	}
	for _, n := range w.relays {
		n.Deactivate()
	}
}

// AddRelay creates and registers a relay at pos.
func (w *World) AddRelay(pos mesh.Coordinates, repeater bool, opts ...node.Option) *node.Node {
	n := node.New(pos, append([]node.Option{node.WithRepeater(repeater), node.WithCounters()}, opts...)...)
	n.Activate(w.mgr)
	w.relays = append(w.relays, n)
	return n
}

// AddBroadcaster creates and activates a free-standing broadcaster.
func (w *World) AddBroadcaster(pos mesh.Coordinates, baseID string, opts ...node.Option) *node.Broadcaster {
	b := node.NewBroadcaster(pos, baseID, append([]node.Option{node.WithCounters()}, opts...)...)
	b.Activate(w.mgr)
	w.broadcasters = append(w.broadcasters, b)
	return b
}

// HasBroadcasterBase reports whether a broadcaster or resource already
// emits under base.
func (w *World) HasBroadcasterBase(base string) bool {
	for _, b := range w.broadcasters {
		if b.BaseID() == base {
			return true
		}
	}
	for _, r := range w.resources {
		if r.BaseID() == base {
			return true
		}
	}
	return false
}

// Lookup finds any node the world owns, registered or not.
func (w *World) Lookup(id mesh.NodeID) (*node.Node, bool) {
	if n, ok := w.mgr.Node(id); ok {
		return n, true
	}
	for _, n := range w.ActiveOrIdleNodes() {
		if n.ID() == id {
			return n, true
		}
	}
	return nil, false
}

// LookupKey finds a node by its external key.
func (w *World) LookupKey(key uuid.UUID) (*node.Node, bool) {
	if n, ok := w.mgr.NodeByKey(key); ok {
		return n, true
	}
	for _, n := range w.ActiveOrIdleNodes() {
		if n.Key() == key {
			return n, true
		}
	}
	return nil, false
}

// ActiveOrIdleNodes lists every node the world owns.
func (w *World) ActiveOrIdleNodes() []*node.Node {
	out := append([]*node.Node(nil), w.relays...)
	for _, b := range w.broadcasters {
		out = append(out, b.Node)
	}
	for _, r := range w.resources {
		out = append(out, r.Node)
	}
	for _, a := range w.agents {
		out = append(out, a.Node)
	}
	return out
}

// RemoveNode deactivates the node and forgets it for good. Resources and
// agents cannot be removed, only toggled.
func (w *World) RemoveNode(id mesh.NodeID) error {
	for i, n := range w.relays {
		if n.ID() == id {
			n.Deactivate()
			w.relays = append(w.relays[:i:i], w.relays[i+1:]...)
			return nil
		}
	}
	for i, b := range w.broadcasters {
		if b.ID() == id {
			b.Deactivate()
			w.broadcasters = append(w.broadcasters[:i:i], w.broadcasters[i+1:]...)
			return nil
		}
	}
	if _, ok := w.Lookup(id); ok {
		return fmt.Errorf("node %s is not removable, toggle it instead", id)
	}
	return fmt.Errorf("%w: %s", ErrUnknownNode, id)
}

// MoveNode repositions a node and refreshes its edges. Agents get only the
// incremental refresh they get every tick; any other node is followed by a
// full rebuild so copies it forwarded from its old position are re-derived.
func (w *World) MoveNode(id mesh.NodeID, pos mesh.Coordinates) error {
	n, ok := w.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	n.SetPosition(pos)
	if !n.IsActive() {
		return nil
	}
	w.mgr.Refresh(n)
	if !w.IsMobile(n) {
		w.mgr.RebuildGraph()
	}
	return nil
}

// SetActive activates or deactivates a node. Activating an inactive
// resource spawns it with a fresh lifetime; deactivating one starts its
// respawn countdown.
func (w *World) SetActive(id mesh.NodeID, active bool) error {
	n, ok := w.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	r := w.resourceOf(n)
	switch {
	case active && r != nil:
		if !r.IsActive() {
			w.spawn(r)
		}
	case active:
		n.Activate(w.mgr)
	case r != nil && r.IsActive():
		sid := r.SignalID()
		r.Deactivate()
		r.RespawnIn = w.sc.Resources.RespawnTicks
		w.publishResource(eb.EventResourceExpired, r, sid, nil)
	default:
		n.Deactivate()
	}
	return nil
}

func (w *World) resourceOf(n *node.Node) *Resource {
	for _, r := range w.resources {
		if r.Node == n {
			return r
		}
	}
	return nil
}

// SetRepeater changes a node's base repeat flag. Existing state is not
// re-flooded.
func (w *World) SetRepeater(id mesh.NodeID, enabled bool) error {
	n, ok := w.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	n.SetRepeater(enabled)
	return nil
}

func (w *World) stepResources() {
	for _, r := range w.resources {
		if r.IsActive() {
			r.Remaining--
			if r.Remaining <= 0 {
				id := r.SignalID()
				r.Deactivate()
				r.RespawnIn = w.sc.Resources.RespawnTicks
				w.publishResource(eb.EventResourceExpired, r, id, nil)
			}
			continue
		}
		r.RespawnIn--
		if r.RespawnIn <= 0 {
			r.SetPosition(w.randomPosition())
			w.spawn(r)
		}
	}
}

func (w *World) spawn(r *Resource) {
	cfg := w.sc.Resources
	r.Lifetime = cfg.MinLifetime + w.rng.Intn(cfg.MaxLifetime-cfg.MinLifetime+1)
	r.Remaining = r.Lifetime
	r.Activate(w.mgr)
	w.publishResource(eb.EventResourceSpawned, r, r.SignalID(), nil)
}

func (w *World) stepAgents() {
	step := w.sc.Agents.Step
	for _, a := range w.agents {
		if !a.IsActive() {
			continue
		}
		pos := a.Position()
		target := pos
		if s, ok := a.bestSignal(w.resources); ok {
			a.Target = s.ID
			if p, ok := w.mgr.Node(s.LastPropagator); ok && p != a.Node {
				target = p.Position()
			}
		} else {
			a.Target = ""
			angle := w.rng.Float64() * 2 * math.Pi
			target = pos.Add(mesh.CreateCoordinates(math.Cos(angle), math.Sin(angle), 0).Scale(step))
		}
		next := clampToArea(stepToward(pos, target, step), w.sc.Area)
		if !next.Equals(pos) {
			a.SetPosition(next)
			w.mgr.Refresh(a.Node)
		}
		w.collect(a)
	}
}

// collect picks up every eligible resource within the pickup radius.
func (w *World) collect(a *Agent) {
	for _, r := range w.resources {
		if !r.IsActive() || !r.CollectableBy(a.Number) {
			continue
		}
		if a.Position().DistanceTo(r.Position()) > w.sc.Resources.PickupRadius {
			continue
		}
		id := r.SignalID()
		r.Deactivate()
		r.RespawnIn = w.sc.Resources.RespawnTicks
		r.Collected++
		a.Collected++
		a.Score++
		w.publishResource(eb.EventResourceCollected, r, id, a)
		if node.Verbose {
			log.Printf("[sim] Agent %d collected %q at tick %d", a.Number, id, w.tick)
		}
	}
}

func (w *World) relayPositions() []mesh.Coordinates {
	count := w.sc.Relays.Count
	out := make([]mesh.Coordinates, 0, count)
	if w.sc.Relays.Placement == "uniform" {
		for i := 0; i < count; i++ {
			out = append(out, w.randomPosition())
		}
		return out
	}
	// grid
	cols := int(math.Ceil(math.Sqrt(float64(count))))
	if cols == 0 {
		return out
	}
	rows := int(math.Ceil(float64(count) / float64(cols)))
	dx := w.sc.Area.Width / float64(cols)
	dy := w.sc.Area.Height / float64(rows)
	for i := 0; i < count; i++ {
		c, r := i%cols, i/cols
		out = append(out, mesh.CreateCoordinates((float64(c)+0.5)*dx, (float64(r)+0.5)*dy, 0))
	}
	return out
}

func (w *World) randomPosition() mesh.Coordinates {
	return mesh.CreateCoordinates(w.rng.Float64()*w.sc.Area.Width, w.rng.Float64()*w.sc.Area.Height, 0)
}

func (w *World) publish(e eb.Event) {
	if w.bus != nil {
		w.bus.Publish(e)
	}
}

func (w *World) publishResource(t eb.EventType, r *Resource, signalID string, by *Agent) {
	pos := r.Position()
	e := eb.Event{
		Type:     t,
		NodeID:   uint32(r.ID()),
		NodeKey:  r.Key(),
		SignalID: signalID,
		Tick:     w.tick,
		X:        pos.X,
		Y:        pos.Y,
		Z:        pos.Z,
	}
	if by != nil {
		e.OtherNodeID = uint32(by.ID())
		e.Payload = fmt.Sprintf("agent %d", by.Number)
	}
	w.publish(e)
}
