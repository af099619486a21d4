package node

import (
	"math"
	"sort"

	"signal-testbed/internal/signal"
)

const maxIntensity = 10.0

// SignalView is a diagnostic row for one live entry or record.
type SignalView struct {
	ID           string  `json:"id" msgpack:"id"`
	Distance     float64 `json:"distance" msgpack:"distance"`
	IsOriginHere bool    `json:"is_origin_here" msgpack:"is_origin_here"`
}

// TryGetSignal returns the live entry for id.
func (n *Node) TryGetSignal(id string) (signal.Signal, bool) {
	s, ok := n.live[id]
	return s, ok
}

// TryGetRecord returns the best distance ever recorded for id.
func (n *Node) TryGetRecord(id string) (signal.Signal, bool) {
	s, ok := n.records[id]
	return s, ok
}

// TryGetClosestSignalByPrefix returns the live entry with the smallest
// distance among ids starting with prefix. Ties go to the smaller id.
func (n *Node) TryGetClosestSignalByPrefix(prefix string) (signal.Signal, bool) {
	var (
		closest signal.Signal
		found   bool
	)
	if prefix == "" {
		return closest, false
	}
	for id, s := range n.live {
		if !signal.HasPrefix(id, prefix) {
			continue
		}
		if !found || s.Distance < closest.Distance || (s.Distance == closest.Distance && id < closest.ID) {
			closest = s
			found = true
		}
	}
	return closest, found
}

// TryGetFirstSignalByPrefix returns any live entry whose id starts with
// prefix. Which one is unspecified.
func (n *Node) TryGetFirstSignalByPrefix(prefix string) (signal.Signal, bool) {
	if prefix == "" {
		return signal.Signal{}, false
	}
	for id, s := range n.live {
		if signal.HasPrefix(id, prefix) {
			return s, true
		}
	}
	return signal.Signal{}, false
}

// LiveCount is the number of live entries.
func (n *Node) LiveCount() int {
	return len(n.live)
}

// Signals lists the live table sorted by id.
func (n *Node) Signals() []SignalView {
	return n.views(n.live)
}

// Records lists the record history sorted by id, or nil when records are
// disabled.
func (n *Node) Records() []SignalView {
	if !n.trackRecords {
		return nil
	}
	return n.views(n.records)
}

// Intensity is factor / (1 + closest live distance), clamped to [0, 10].
// It is 0 when the node holds nothing.
func (n *Node) Intensity() float64 {
	minDist := math.Inf(1)
	for _, s := range n.live {
		if s.Distance < minDist {
			minDist = s.Distance
		}
	}
	if math.IsInf(minDist, 1) {
		return 0
	}
	return math.Min(maxIntensity, n.intensityFactor/(1+math.Max(0, minDist)))
}

func (n *Node) views(table map[string]signal.Signal) []SignalView {
	out := make([]SignalView, 0, len(table))
	for id, s := range table {
		out = append(out, SignalView{ID: id, Distance: s.Distance, IsOriginHere: s.IsOriginAt(n.id)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// liveIDs returns the live ids sorted, so replays and bulk removals run in
// a reproducible order.
func (n *Node) liveIDs() []string {
	ids := make([]string, 0, len(n.live))
	for id := range n.live {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LiveSignals returns full copies of the live table sorted by id.
func (n *Node) LiveSignals() []signal.Signal {
	out := make([]signal.Signal, 0, len(n.live))
	for _, id := range n.liveIDs() {
		out = append(out, n.live[id])
	}
	return out
}
