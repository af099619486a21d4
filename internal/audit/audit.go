// Package audit checks live distances against a batch shortest-path
// computation over the same topology.
package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"signal-testbed/internal/mesh"
	"signal-testbed/internal/node"
	"signal-testbed/internal/signal"
)

var ErrNilManager = errors.New("audit: nil node set")

const defaultTolerance = 1e-9

// Graph is the node set under audit. *network.Manager satisfies it.
type Graph interface {
	Nodes() []*node.Node
}

// Mismatch is one node whose live entry disagrees with the shortest path.
// Want is +Inf when no repeating path reaches the node.
type Mismatch struct {
	Node     mesh.NodeID `json:"node"`
	SignalID string      `json:"signal_id"`
	Want     float64     `json:"want"`
	Got      float64     `json:"got"`
	Held     bool        `json:"held"`
}

func (m Mismatch) String() string {
	if !m.Held {
		return fmt.Sprintf("node %s: %q missing, want %.4f", m.Node, m.SignalID, m.Want)
	}
	return fmt.Sprintf("node %s: %q at %.4f, want %.4f", m.Node, m.SignalID, m.Got, m.Want)
}

// MarshalJSON writes an unreachable Want as null.
func (m Mismatch) MarshalJSON() ([]byte, error) {
	type plain Mismatch
	out := struct {
		plain
		Want *float64 `json:"want"`
	}{plain: plain(m)}
	if !math.IsInf(m.Want, 0) {
		out.Want = &m.Want
	}
	return json.Marshal(out)
}

type Report struct {
	Signals    int        `json:"signals"`
	Checked    int        `json:"checked"`
	Mismatches []Mismatch `json:"mismatches"`
}

func (r Report) OK() bool {
	return len(r.Mismatches) == 0
}

type config struct {
	include   func(*node.Node) bool
	tolerance float64
}

type Option func(*config)

// WithFilter restricts which nodes are checked. Every node still
// contributes edges.
func WithFilter(include func(*node.Node) bool) Option {
	return func(c *config) { c.include = include }
}

func WithTolerance(tol float64) Option {
	return func(c *config) {
		if tol >= 0 {
			c.tolerance = tol
		}
	}
}

// Verify recomputes, for every signal with a live origin, the distance each
// node should hold and compares it with the node's live table. Only edges
// leaving nodes that would repeat the signal are followed. Entries held for
// ids with no live origin are reported as unreachable.
func Verify(g Graph, opts ...Option) (Report, error) {
	if g == nil {
		return Report{}, ErrNilManager
	}
	cfg := config{tolerance: defaultTolerance}
	for _, opt := range opts {
		opt(&cfg)
	}

	nodes := g.Nodes()
	origins := make(map[string]*node.Node)
	for _, n := range nodes {
		for _, s := range n.LiveSignals() {
			if s.IsOriginAt(n.ID()) {
				origins[s.ID] = n
			}
		}
	}
	ids := make([]string, 0, len(origins))
	for id := range origins {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var report Report
	report.Signals = len(ids)
	for _, id := range ids {
		origin := origins[id]
		origSig, _ := origin.TryGetSignal(id)
		shortest := path.DijkstraFrom(simple.Node(int64(origin.ID())), repeatGraph(nodes, origSig))

		for _, n := range nodes {
			if cfg.include != nil && !cfg.include(n) {
				continue
			}
			want := shortest.WeightTo(int64(n.ID()))
			got, held := n.TryGetSignal(id)
			switch {
			case math.IsInf(want, 1) && !held:
			case held && math.Abs(got.Distance-want) <= cfg.tolerance:
			default:
				report.Mismatches = append(report.Mismatches, Mismatch{
					Node: n.ID(), SignalID: id, Want: want, Got: got.Distance, Held: held,
				})
			}
		}
	}

	for _, n := range nodes {
		if cfg.include != nil && !cfg.include(n) {
			continue
		}
		report.Checked++
		for _, s := range n.LiveSignals() {
			if _, ok := origins[s.ID]; ok {
				continue
			}
			report.Mismatches = append(report.Mismatches, Mismatch{
				Node: n.ID(), SignalID: s.ID, Want: math.Inf(1), Got: s.Distance, Held: true,
			})
		}
	}
	return report, nil
}

// repeatGraph builds the directed graph a signal actually travels: every
// node is present, but only nodes that would forward s contribute edges.
func repeatGraph(nodes []*node.Node, s signal.Signal) *simple.WeightedDirectedGraph {
	g := simple.NewWeightedDirectedGraph(0, math.Inf(1))
	for _, n := range nodes {
		if g.Node(int64(n.ID())) == nil {
			g.AddNode(simple.Node(int64(n.ID())))
		}
	}
	for _, n := range nodes {
		if !n.TryRepeatSignal(s) {
			continue
		}
		for _, e := range n.Edges() {
			if g.Node(int64(e.To)) == nil {
				// neighbor outside the audited set
				g.AddNode(simple.Node(int64(e.To)))
			}
			g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(int64(n.ID())), simple.Node(int64(e.To)), e.Weight))
		}
	}
	return g
}
