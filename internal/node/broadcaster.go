package node

import (
	"log"
	"regexp"

	"signal-testbed/internal/mesh"
	"signal-testbed/internal/signal"
)

// ScopeFunc reports the numeric scope the next emission is prefixed with,
// typically the id of the agent allowed to claim a co-located resource.
type ScopeFunc func() (scope int, ok bool)

// Broadcaster is a node that originates one family of signals. Every
// activation emits a fresh id (base plus an incrementing sequence) and
// every deactivation retracts it. It always forwards its own family, even
// when the repeater flag is off.
type Broadcaster struct {
	*Node

	baseID   string
	scope    ScopeFunc
	sequence int
	signalID string
	emitted  bool

	pattern     *regexp.Regexp
	patternBase string
}

// NewBroadcaster creates an inactive broadcaster. An empty baseID is
// replaced by the node id on first activation. Broadcasters do not repeat
// foreign signals unless WithRepeater(true) is passed.
func NewBroadcaster(pos mesh.Coordinates, baseID string, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		Node:   New(pos, append([]Option{WithRepeater(false)}, opts...)...),
		baseID: baseID,
	}
	b.Node.policy = b
	b.Node.hooks = lifecycleHooks{
		activated:    b.emit,
		deactivating: b.retract,
	}
	return b
}

// SetScope installs the scope accessor consulted on each emission.
func (b *Broadcaster) SetScope(fn ScopeFunc) {
	b.scope = fn
}

func (b *Broadcaster) BaseID() string {
	return b.baseID
}

// SetBaseID changes the family for later emissions.
func (b *Broadcaster) SetBaseID(base string) {
	b.baseID = base
}

// SignalID is the id of the most recent emission.
func (b *Broadcaster) SignalID() string {
	return b.signalID
}

// Emitted reports whether the most recent emission is still live.
func (b *Broadcaster) Emitted() bool {
	return b.emitted
}

// Sequence is the suffix the next emission will carry.
func (b *Broadcaster) Sequence() int {
	return b.sequence
}

// FamilyPrefix is the sequence-less prefix consumers use to find this
// broadcaster's signal, e.g. "2.17.".
func (b *Broadcaster) FamilyPrefix() string {
	scope, scoped := b.currentScope()
	return signal.FamilyPrefix(scope, scoped, b.resolvedBase())
}

// Repeats always forwards the own family and defers to the repeater flag
// for everything else.
func (b *Broadcaster) Repeats(n *Node, s signal.Signal) bool {
	if base := b.resolvedBase(); base != "" {
		if b.pattern == nil || b.patternBase != base {
			b.pattern = signal.FamilyPattern(base)
			b.patternBase = base
		}
		if b.pattern.MatchString(s.ID) {
			return true
		}
	}
	return n.repeater
}

func (b *Broadcaster) resolvedBase() string {
	if b.baseID != "" {
		return b.baseID
	}
	return b.ID().String()
}

func (b *Broadcaster) currentScope() (int, bool) {
	if b.scope == nil {
		return 0, false
	}
	return b.scope()
}

func (b *Broadcaster) emit() {
	if b.baseID == "" {
		b.baseID = b.ID().String()
	}
	scope, scoped := b.currentScope()
	b.signalID = signal.FamilyID(scope, scoped, b.baseID, b.sequence)
	b.sequence++

	b.ReceiveSignal(signal.New(b.signalID, b.ID()), b.Node, 0)
	b.emitted = true
	if Verbose {
		log.Printf("[graph] Broadcaster %s: emitted %q", b.ID(), b.signalID)
	}
}

func (b *Broadcaster) retract() {
	if !b.emitted {
		return
	}
	b.TurnOffSignal(b.signalID)
	b.emitted = false
	if Verbose {
		log.Printf("[graph] Broadcaster %s: retracted %q", b.ID(), b.signalID)
	}
}
