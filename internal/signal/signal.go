// Package signal defines the value that floods through the node graph.
package signal

import (
	"signal-testbed/internal/mesh"
)

// Signal is one flooded quantity as held by a single node. Values are never
// mutated; relaxation produces a new Signal.
type Signal struct {
	ID             string      `json:"id" msgpack:"id"`
	Distance       float64     `json:"distance" msgpack:"distance"`
	Origin         mesh.NodeID `json:"origin" msgpack:"origin"`
	LastPropagator mesh.NodeID `json:"last_propagator" msgpack:"last_propagator"`
}

// New creates a self-originated signal at distance 0.
func New(id string, origin mesh.NodeID) Signal {
	return Signal{
		ID:             id,
		Distance:       0,
		Origin:         origin,
		LastPropagator: origin,
	}
}

// WithPropagator returns a copy delivered by propagator over an edge of
// the given additional distance.
func (s Signal) WithPropagator(propagator mesh.NodeID, additionalDistance float64) Signal {
	return Signal{
		ID:             s.ID,
		Distance:       s.Distance + additionalDistance,
		Origin:         s.Origin,
		LastPropagator: propagator,
	}
}

// IsOriginAt reports whether the signal was created by node id.
func (s Signal) IsOriginAt(id mesh.NodeID) bool {
	return s.Origin == id
}
