package node

import (
	"github.com/google/uuid"
)

const defaultIntensityFactor = 3.0

// Option configures a Node at construction time.
type Option func(*Node)

// WithRepeater sets the base forwarding policy.
func WithRepeater(enabled bool) Option {
	return func(n *Node) { n.repeater = enabled }
}

// WithRecords enables the record history. A non-empty filter keeps only ids
// starting with it, e.g. "2.".
func WithRecords(filter string) Option {
	return func(n *Node) {
		n.trackRecords = true
		n.recordFilter = filter
	}
}

// WithCounters enables the new/improved instrumentation counters.
func WithCounters() Option {
	return func(n *Node) { n.trackCounters = true }
}

// WithKey overrides the generated external identity.
func WithKey(key uuid.UUID) Option {
	return func(n *Node) { n.key = key }
}

// WithIntensityFactor sets the numerator of Intensity.
func WithIntensityFactor(f float64) Option {
	return func(n *Node) {
		if f > 0 {
			n.intensityFactor = f
		}
	}
}

// WithRepeatPolicy installs a custom repeat strategy.
func WithRepeatPolicy(p RepeatPolicy) Option {
	return func(n *Node) { n.policy = p }
}
