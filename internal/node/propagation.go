package node

import (
	"math"

	"signal-testbed/internal/mesh"
	"signal-testbed/internal/signal"

	"github.com/emirpasic/gods/queues/arrayqueue"
)

// delivery is one pending ReceiveSignal call.
type delivery struct {
	to     *Node
	from   mesh.NodeID
	sig    signal.Signal
	weight float64
}

func validWeight(w float64) bool {
	return w >= 0 && !math.IsInf(w, 0) && !math.IsNaN(w)
}

func validSignal(s signal.Signal) bool {
	return s.ID != "" && validWeight(s.Distance)
}

// ReceiveSignal relaxes s arriving from fromNode over an edge of weight
// edgeWeight. It reports whether this node's entry improved. Improvements
// are forwarded breadth-first through a worklist until the graph is
// quiescent again; the call returns only after that.
func (n *Node) ReceiveSignal(s signal.Signal, fromNode *Node, edgeWeight float64) bool {
	if fromNode == nil || !validSignal(s) || !validWeight(edgeWeight) {
		return false
	}
	stored, ok := n.relax(s, fromNode.id, edgeWeight)
	if !ok {
		return false
	}
	if n.TryRepeatSignal(stored) {
		flood(n.fanOut(stored))
	}
	return true
}

// PropagateSignal pushes s to every neighbor, subject to the repeat policy.
func (n *Node) PropagateSignal(s signal.Signal) {
	if !validSignal(s) || !n.TryRepeatSignal(s) {
		return
	}
	flood(n.fanOut(s))
}

// relax is the single-node relaxation step. It never forwards.
func (n *Node) relax(s signal.Signal, from mesh.NodeID, edgeWeight float64) (signal.Signal, bool) {
	candidate := s.Distance + edgeWeight
	existing, had := n.live[s.ID]
	if had && candidate >= existing.Distance {
		return existing, false
	}

	stored := s.WithPropagator(from, edgeWeight)
	n.live[s.ID] = stored
	n.updateRecord(stored)

	if had {
		if n.trackCounters {
			n.signalImprovements++
		}
		improvement := existing.Distance - stored.Distance
		n.improved.each(func(fn ImprovementHandler) { fn(n, stored, improvement) })
	} else {
		if n.trackCounters {
			n.newSignalsReceived++
		}
		n.newSignal.each(func(fn SignalHandler) { fn(n, stored) })
	}
	return stored, true
}

func (n *Node) updateRecord(candidate signal.Signal) {
	if !n.trackRecords {
		return
	}
	if n.recordFilter != "" && !signal.HasPrefix(candidate.ID, n.recordFilter) {
		return
	}
	existing, ok := n.records[candidate.ID]
	if !ok {
		n.records[candidate.ID] = candidate
		return
	}
	if candidate.Distance < existing.Distance {
		n.records[candidate.ID] = candidate
		improvement := existing.Distance - candidate.Distance
		n.recordImproved.each(func(fn ImprovementHandler) { fn(n, candidate, improvement) })
	}
}

func (n *Node) fanOut(s signal.Signal) []delivery {
	out := make([]delivery, 0, len(n.edges))
	for _, e := range n.edges {
		out = append(out, delivery{to: e.to, from: n.id, sig: s, weight: e.weight})
	}
	return out
}

// flood drains deliveries in FIFO order. A node only enqueues its
// neighbors after a strict improvement, which bounds the work on cyclic
// graphs.
func flood(initial []delivery) {
	if len(initial) == 0 {
		return
	}
	queue := arrayqueue.New()
	for _, d := range initial {
		queue.Enqueue(d)
	}
	for !queue.Empty() {
		v, _ := queue.Dequeue()
		d := v.(delivery)
		stored, ok := d.to.relax(d.sig, d.from, d.weight)
		if !ok || !d.to.TryRepeatSignal(stored) {
			continue
		}
		for _, e := range d.to.edges {
			queue.Enqueue(delivery{to: e.to, from: d.to.id, sig: stored, weight: e.weight})
		}
	}
}

// TurnOffSignal removes id from this node and walks the removal outward to
// every neighbor except the one that delivered the removed copy. Records are
// untouched. It reports whether this node held the id.
func (n *Node) TurnOffSignal(id string) bool {
	if _, ok := n.live[id]; !ok {
		return false
	}
	queue := arrayqueue.New()
	queue.Enqueue(n)
	for !queue.Empty() {
		v, _ := queue.Dequeue()
		cur := v.(*Node)
		removed, ok := cur.live[id]
		if !ok {
			continue
		}
		delete(cur.live, id)
		cur.removed.each(func(fn SignalHandler) { fn(cur, removed) })
		for _, e := range cur.edges {
			if e.to.id == removed.LastPropagator {
				continue
			}
			queue.Enqueue(e.to)
		}
	}
	return true
}

// ClearSignals drops every live entry, firing a removal notification for
// each. Neighbors are not told.
func (n *Node) ClearSignals() {
	for _, id := range n.liveIDs() {
		s := n.live[id]
		delete(n.live, id)
		n.removed.each(func(fn SignalHandler) { fn(n, s) })
	}
}

// ClearSignalsAndRecords also empties the record history.
func (n *Node) ClearSignalsAndRecords() {
	n.records = make(map[string]signal.Signal)
	n.ClearSignals()
}

// ClearForeignSignals drops live entries this node did not originate, firing
// a removal notification for each. Used when the topology is rebuilt from
// scratch.
func (n *Node) ClearForeignSignals() {
	for _, id := range n.liveIDs() {
		s := n.live[id]
		if s.IsOriginAt(n.id) {
			continue
		}
		delete(n.live, id)
		n.removed.each(func(fn SignalHandler) { fn(n, s) })
	}
}
