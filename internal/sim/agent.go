package sim

import (
	"math"

	"signal-testbed/internal/mesh"
	"signal-testbed/internal/node"
	"signal-testbed/internal/signal"
)

// Agent is a mobile consumer. It follows the gradient of the signals it
// may collect: each step moves toward the neighbor that delivered the
// closest one.
type Agent struct {
	*node.Node

	Number    int
	Score     float64
	Collected int
	// Target is the signal id followed on the last step, empty when
	// wandering.
	Target string

	cancel func()
}

func newAgent(number int, pos mesh.Coordinates, cfg AgentCfg) *Agent {
	opts := []node.Option{node.WithRepeater(cfg.Repeater), node.WithCounters()}
	if cfg.TrackRecords != nil && *cfg.TrackRecords {
		opts = append(opts, node.WithRecords(signal.ScopePrefix(number)))
	}
	a := &Agent{Node: node.New(pos, opts...), Number: number}
	a.cancel = a.OnRecordImproved(func(_ *node.Node, _ signal.Signal, improvement float64) {
		if improvement <= cfg.MaxImprovement {
			a.Score += cfg.ImprovementReward * improvement
		}
	})
	return a
}

// bestSignal picks the closest live signal among the resources a may
// collect.
func (a *Agent) bestSignal(resources []*Resource) (signal.Signal, bool) {
	var (
		best  signal.Signal
		found bool
	)
	for _, r := range resources {
		if !r.IsActive() || !r.CollectableBy(a.Number) {
			continue
		}
		s, ok := a.TryGetClosestSignalByPrefix(r.FamilyPrefix())
		if !ok {
			continue
		}
		if !found || s.Distance < best.Distance {
			best, found = s, true
		}
	}
	return best, found
}

// stepToward returns the position one step of length step from from toward
// to, stopping at to.
func stepToward(from, to mesh.Coordinates, step float64) mesh.Coordinates {
	d := from.DistanceTo(to)
	if d <= step || d == 0 {
		return to
	}
	return from.Add(to.Sub(from).Scale(step / d))
}

func clampToArea(p mesh.Coordinates, area AreaCfg) mesh.Coordinates {
	p.X = math.Max(0, math.Min(area.Width, p.X))
	p.Y = math.Max(0, math.Min(area.Height, p.Y))
	return p
}
