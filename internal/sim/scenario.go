package sim

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"signal-testbed/internal/network"

	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidScenario = errors.New("invalid scenario")
	ErrUnknownNode     = errors.New("unknown node")
)

type AreaCfg struct {
	Width  float64 `yaml:"width" json:"width"`
	Height float64 `yaml:"height" json:"height"`
}

type GraphCfg struct {
	network.Config `yaml:",inline"`
	// RebuildEvery recomputes the whole topology every N ticks. 0 disables it.
	RebuildEvery int `yaml:"rebuild_every" json:"rebuild_every"`
}

type RelayCfg struct {
	Count     int    `yaml:"count" json:"count"`
	Placement string `yaml:"placement" json:"placement"` // grid | uniform
	Repeater  *bool  `yaml:"repeater" json:"repeater"`
}

type ResourceCfg struct {
	Count int `yaml:"count" json:"count"`
	// Owners are cycled over the resources. 0 means any agent may collect.
	Owners          []int   `yaml:"owners" json:"owners"`
	MinLifetime     int     `yaml:"min_lifetime_ticks" json:"min_lifetime_ticks"`
	MaxLifetime     int     `yaml:"max_lifetime_ticks" json:"max_lifetime_ticks"`
	RespawnTicks    int     `yaml:"respawn_ticks" json:"respawn_ticks"`
	PickupRadius    float64 `yaml:"pickup_radius" json:"pickup_radius"`
	RepeatForeign   bool    `yaml:"repeat_foreign" json:"repeat_foreign"`
	IntensityFactor float64 `yaml:"intensity_factor" json:"intensity_factor"`
}

type AgentCfg struct {
	Count        int     `yaml:"count" json:"count"`
	Repeater     bool    `yaml:"repeater" json:"repeater"`
	TrackRecords *bool   `yaml:"track_records" json:"track_records"`
	Step         float64 `yaml:"step" json:"step"`
	// ImprovementReward scales record improvements into score. Single
	// improvements above MaxImprovement earn nothing.
	ImprovementReward float64 `yaml:"improvement_reward" json:"improvement_reward"`
	MaxImprovement    float64 `yaml:"max_improvement" json:"max_improvement"`
}

type LogCfg struct {
	MetricsFile  string `yaml:"metrics_file" json:"metrics_file"`
	SnapshotFile string `yaml:"snapshot_file" json:"snapshot_file"`
	Verbose      bool   `yaml:"verbose" json:"verbose"`
}

type Scenario struct {
	Seed         int64            `yaml:"seed" json:"seed"`
	Ticks        int              `yaml:"ticks" json:"ticks"`
	TickInterval time.Duration    `yaml:"tick_interval" json:"tick_interval"`
	Area         AreaCfg          `yaml:"area" json:"area"`
	Graph        GraphCfg         `yaml:"graph" json:"graph"`
	Relays       RelayCfg         `yaml:"relays" json:"relays"`
	Resources    ResourceCfg      `yaml:"resources" json:"resources"`
	Agents       AgentCfg         `yaml:"agents" json:"agents"`
	Obstacles    []network.Sphere `yaml:"obstacles" json:"obstacles"`
	Logging      LogCfg           `yaml:"logging" json:"logging"`
}

// DefaultScenario is a small bidirectional world used when no scenario file
// is given.
func DefaultScenario() *Scenario {
	sc := &Scenario{
		Seed:         1,
		TickInterval: 200 * time.Millisecond,
		Graph:        GraphCfg{Config: network.Config{MaxDistance: 20, Bidirectional: true}, RebuildEvery: 100},
		Relays:       RelayCfg{Count: 36, Placement: "grid"},
		Resources:    ResourceCfg{Count: 4, Owners: []int{0, 1, 2}},
		Agents:       AgentCfg{Count: 2},
	}
	sc.ApplyDefaults()
	return sc
}

func LoadScenario(path string) (*Scenario, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sc := &Scenario{}
	if yerr := yaml.Unmarshal(f, sc); yerr != nil {
		// fallback JSON
		sc = &Scenario{}
		if err := json.Unmarshal(f, sc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, errors.Join(yerr, err))
		}
	}
	sc.ApplyDefaults()
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

// ApplyDefaults fills every zero field that has a sensible default.
// graph.max_distance is left alone: 0 means unlimited.
func (sc *Scenario) ApplyDefaults() {
	if sc.Area.Width == 0 {
		sc.Area.Width = 100
	}
	if sc.Area.Height == 0 {
		sc.Area.Height = 100
	}
	if sc.Relays.Placement == "" {
		sc.Relays.Placement = "grid"
	}
	if sc.Relays.Repeater == nil {
		on := true
		sc.Relays.Repeater = &on
	}
	if sc.Resources.MinLifetime == 0 {
		sc.Resources.MinLifetime = 50
	}
	if sc.Resources.MaxLifetime == 0 {
		sc.Resources.MaxLifetime = 150
	}
	if sc.Resources.RespawnTicks == 0 {
		sc.Resources.RespawnTicks = 10
	}
	if sc.Resources.PickupRadius == 0 {
		sc.Resources.PickupRadius = 2
	}
	if sc.Agents.TrackRecords == nil {
		on := true
		sc.Agents.TrackRecords = &on
	}
	if sc.Agents.Step == 0 {
		sc.Agents.Step = 2
	}
	if sc.Agents.ImprovementReward == 0 {
		sc.Agents.ImprovementReward = 0.01
	}
	if sc.Agents.MaxImprovement == 0 {
		sc.Agents.MaxImprovement = 5
	}
}

// Validate reports the first inconsistent field, wrapped in
// ErrInvalidScenario.
func (sc *Scenario) Validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidScenario, fmt.Sprintf(format, args...))
	}
	switch {
	case sc.Ticks < 0:
		return fail("ticks must be >= 0, got %d", sc.Ticks)
	case sc.TickInterval < 0:
		return fail("tick_interval must be >= 0, got %s", sc.TickInterval)
	case sc.Area.Width <= 0 || sc.Area.Height <= 0:
		return fail("area must be positive, got %gx%g", sc.Area.Width, sc.Area.Height)
	case sc.Graph.MaxDistance < 0:
		return fail("graph.max_distance must be >= 0, got %g", sc.Graph.MaxDistance)
	case sc.Graph.RebuildEvery < 0:
		return fail("graph.rebuild_every must be >= 0, got %d", sc.Graph.RebuildEvery)
	case sc.Relays.Count < 0 || sc.Resources.Count < 0 || sc.Agents.Count < 0:
		return fail("counts must be >= 0")
	case sc.Relays.Placement != "grid" && sc.Relays.Placement != "uniform":
		return fail("relays.placement must be grid or uniform, got %q", sc.Relays.Placement)
	case sc.Resources.MinLifetime < 1 || sc.Resources.MaxLifetime < sc.Resources.MinLifetime:
		return fail("resource lifetime range [%d, %d] is empty", sc.Resources.MinLifetime, sc.Resources.MaxLifetime)
	case sc.Resources.RespawnTicks < 0:
		return fail("resources.respawn_ticks must be >= 0")
	case sc.Resources.PickupRadius < 0:
		return fail("resources.pickup_radius must be >= 0")
	case sc.Agents.Step < 0:
		return fail("agents.step must be >= 0")
	}
	for _, owner := range sc.Resources.Owners {
		if owner < 0 || owner > sc.Agents.Count {
			return fail("resource owner %d does not name an agent (1..%d) or 0", owner, sc.Agents.Count)
		}
	}
	for i, o := range sc.Obstacles {
		if o.Radius < 0 {
			return fail("obstacle %d has negative radius", i)
		}
	}
	return nil
}
