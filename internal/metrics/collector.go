package metrics

import (
	"encoding/json"
	"os"
	"sync"

	eb "signal-testbed/internal/eventBus"
)

type Counters struct {
	Ticks              uint64            `json:"ticks"`
	NodesRegistered    uint64            `json:"nodes_registered"`
	NodesUnregistered  uint64            `json:"nodes_unregistered"`
	NodesMoved         uint64            `json:"nodes_moved"`
	GraphRebuilds      uint64            `json:"graph_rebuilds"`
	SignalsNew         uint64            `json:"signals_new"`
	SignalImprovements uint64            `json:"signal_improvements"`
	SignalsRemoved     uint64            `json:"signals_removed"`
	RecordImprovements uint64            `json:"record_improvements"`
	ImprovementSum     float64           `json:"improvement_sum"`
	ResourcesSpawned   uint64            `json:"resources_spawned"`
	ResourcesExpired   uint64            `json:"resources_expired"`
	ResourcesCollected uint64            `json:"resources_collected"`
	CollectedBySignal  map[string]uint64 `json:"collected_by_signal,omitempty"`
	AuditedSignals     uint64            `json:"audited_signals"`
	AuditMismatches    uint64            `json:"audit_mismatches"`
	DroppedEvents      uint64            `json:"dropped_events"`
}

type Collector struct {
	mu sync.Mutex
	Counters
}

func NewCollector() *Collector {
	return &Collector{Counters: Counters{CollectedBySignal: make(map[string]uint64)}}
}

// Observe folds one bus event into the counters.
func (c *Collector) Observe(ev eb.Event) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch ev.Type {
	case eb.EventTick:
		c.Ticks++
	case eb.EventNodeRegistered:
		c.NodesRegistered++
	case eb.EventNodeUnregistered:
		c.NodesUnregistered++
	case eb.EventNodeMoved:
		c.NodesMoved++
	case eb.EventGraphRebuilt:
		c.GraphRebuilds++
	case eb.EventSignalNew:
		c.SignalsNew++
	case eb.EventSignalImproved:
		c.SignalImprovements++
		c.ImprovementSum += ev.Improvement
	case eb.EventSignalRemoved:
		c.SignalsRemoved++
	case eb.EventRecordImproved:
		c.RecordImprovements++
	case eb.EventResourceSpawned:
		c.ResourcesSpawned++
	case eb.EventResourceExpired:
		c.ResourcesExpired++
	case eb.EventResourceCollected:
		c.ResourcesCollected++
		c.CollectedBySignal[ev.SignalID]++
	}
}

// AddAudit records the outcome of a shortest-path audit.
func (c *Collector) AddAudit(signals, mismatches int) {
	c.mu.Lock()
	c.AuditedSignals += uint64(signals)
	c.AuditMismatches += uint64(mismatches)
	c.mu.Unlock()
}

func (c *Collector) SetDropped(n uint64) {
	c.mu.Lock()
	c.DroppedEvents = n
	c.mu.Unlock()
}

// Snapshot returns a copy of the counters.
func (c *Collector) Snapshot() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.Counters
	out.CollectedBySignal = make(map[string]uint64, len(c.CollectedBySignal))
	for k, v := range c.CollectedBySignal {
		out.CollectedBySignal[k] = v
	}
	return out
}

func (c *Collector) Flush(file string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c.Counters)
}
