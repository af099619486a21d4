package sim

import (
	"fmt"

	"signal-testbed/internal/mesh"
	"signal-testbed/internal/node"
)

// Resource is a time-limited collectible that broadcasts while it is
// active. Owner 0 means any agent may collect it; otherwise the emitted id
// is scoped to the owning agent.
type Resource struct {
	*node.Broadcaster

	Index     int
	Owner     int
	Lifetime  int
	Remaining int
	RespawnIn int
	Collected int
}

func newResource(index, owner int, pos mesh.Coordinates, cfg ResourceCfg) *Resource {
	opts := []node.Option{node.WithRepeater(cfg.RepeatForeign)}
	if cfg.IntensityFactor > 0 {
		opts = append(opts, node.WithIntensityFactor(cfg.IntensityFactor))
	}
	r := &Resource{
		Broadcaster: node.NewBroadcaster(pos, fmt.Sprintf("r%d", index), opts...),
		Index:       index,
		Owner:       owner,
	}
	r.SetScope(func() (int, bool) { return r.Owner, r.Owner != 0 })
	return r
}

// CollectableBy reports whether agent may pick the resource up.
func (r *Resource) CollectableBy(agent int) bool {
	return r.Owner == 0 || r.Owner == agent
}

// RemainingFraction is the share of the lifetime left, in [0, 1].
func (r *Resource) RemainingFraction() float64 {
	if r.Lifetime <= 0 || !r.IsActive() {
		return 0
	}
	return float64(r.Remaining) / float64(r.Lifetime)
}
