package node

import (
	"signal-testbed/internal/signal"
)

// SignalHandler observes a signal arriving at or leaving a node.
type SignalHandler func(n *Node, s signal.Signal)

// ImprovementHandler observes a distance getting strictly smaller.
// improvement is always > 0.
type ImprovementHandler func(n *Node, s signal.Signal, improvement float64)

type observerEntry[F any] struct {
	id uint64
	fn F
}

// observerList invokes handlers in registration order. Handlers may
// subscribe or cancel while a dispatch is running; the change applies to
// the next dispatch.
type observerList[F any] struct {
	next    uint64
	entries []observerEntry[F]
}

func (l *observerList[F]) add(fn F) func() {
	l.next++
	id := l.next
	l.entries = append(l.entries, observerEntry[F]{id: id, fn: fn})
	return func() { l.remove(id) }
}

func (l *observerList[F]) remove(id uint64) {
	for i, e := range l.entries {
		if e.id == id {
			// copy so an in-flight range keeps its view
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return
		}
	}
}

func (l *observerList[F]) each(call func(F)) {
	for _, e := range l.entries {
		call(e.fn)
	}
}

func (l *observerList[F]) len() int {
	return len(l.entries)
}

// OnNewSignalReceived subscribes to Absent -> Live transitions. The
// returned func cancels the subscription.
func (n *Node) OnNewSignalReceived(fn SignalHandler) func() {
	return n.newSignal.add(fn)
}

// OnSignalImproved subscribes to Live -> Live(better) transitions.
func (n *Node) OnSignalImproved(fn ImprovementHandler) func() {
	return n.improved.add(fn)
}

// OnRecordImproved subscribes to record history improvements. The first
// record for an id is not an improvement and is not reported.
func (n *Node) OnRecordImproved(fn ImprovementHandler) func() {
	return n.recordImproved.add(fn)
}

// OnSignalRemoved subscribes to Live -> Absent transitions.
func (n *Node) OnSignalRemoved(fn SignalHandler) func() {
	return n.removed.add(fn)
}

// ObserverCount returns the number of live subscriptions across all
// notification kinds.
func (n *Node) ObserverCount() int {
	return n.newSignal.len() + n.improved.len() + n.recordImproved.len() + n.removed.len()
}
