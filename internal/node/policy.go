package node

import (
	"signal-testbed/internal/signal"
)

// RepeatPolicy decides whether n forwards s to its neighbors.
type RepeatPolicy interface {
	Repeats(n *Node, s signal.Signal) bool
}

// RepeatPolicyFunc adapts a function to RepeatPolicy.
type RepeatPolicyFunc func(n *Node, s signal.Signal) bool

func (f RepeatPolicyFunc) Repeats(n *Node, s signal.Signal) bool {
	return f(n, s)
}

// TryRepeatSignal reports whether this node forwards s.
func (n *Node) TryRepeatSignal(s signal.Signal) bool {
	if n.policy != nil {
		return n.policy.Repeats(n, s)
	}
	return n.repeater
}
