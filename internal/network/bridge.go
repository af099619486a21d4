package network

import (
	"signal-testbed/internal/eventBus"
	"signal-testbed/internal/node"
	"signal-testbed/internal/signal"
)

// attach subscribes to n's observers and republishes them on the bus.
func (m *Manager) attach(n *node.Node) {
	if m.bus == nil {
		return
	}
	cancels := []func(){
		n.OnNewSignalReceived(func(n *node.Node, s signal.Signal) {
			m.publishSignal(eventBus.EventSignalNew, n, s, 0)
		}),
		n.OnSignalImproved(func(n *node.Node, s signal.Signal, improvement float64) {
			m.publishSignal(eventBus.EventSignalImproved, n, s, improvement)
		}),
		n.OnRecordImproved(func(n *node.Node, s signal.Signal, improvement float64) {
			m.publishSignal(eventBus.EventRecordImproved, n, s, improvement)
		}),
		n.OnSignalRemoved(func(n *node.Node, s signal.Signal) {
			m.publishSignal(eventBus.EventSignalRemoved, n, s, 0)
		}),
	}
	m.detach[n.ID()] = func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

func (m *Manager) publishSignal(t eventBus.EventType, n *node.Node, s signal.Signal, improvement float64) {
	pos := n.Position()
	m.bus.Publish(eventBus.Event{
		Type:        t,
		NodeID:      uint32(n.ID()),
		NodeKey:     n.Key(),
		OtherNodeID: uint32(s.LastPropagator),
		SignalID:    s.ID,
		Distance:    s.Distance,
		Improvement: improvement,
		X:           pos.X,
		Y:           pos.Y,
		Z:           pos.Z,
	})
}

func (m *Manager) publishNode(t eventBus.EventType, n *node.Node) {
	if m.bus == nil {
		return
	}
	pos := n.Position()
	m.bus.Publish(eventBus.Event{
		Type:    t,
		NodeID:  uint32(n.ID()),
		NodeKey: n.Key(),
		X:       pos.X,
		Y:       pos.Y,
		Z:       pos.Z,
	})
}
