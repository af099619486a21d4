// Package snapshot serializes the graph state for offline inspection.
package snapshot

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"signal-testbed/internal/mesh"
	"signal-testbed/internal/node"
	"signal-testbed/internal/signal"
)

// Version is bumped whenever the encoded layout changes.
const Version = 1

var ErrVersion = errors.New("snapshot: unsupported version")

// Graph is the node set being captured.
type Graph interface {
	Nodes() []*node.Node
}

type NodeState struct {
	ID       mesh.NodeID       `msgpack:"id" json:"id"`
	Key      string            `msgpack:"key" json:"key"`
	Position mesh.Coordinates  `msgpack:"position" json:"position"`
	Active   bool              `msgpack:"active" json:"active"`
	Repeater bool              `msgpack:"repeater" json:"repeater"`
	Edges    []node.Edge       `msgpack:"edges" json:"edges"`
	Signals  []signal.Signal   `msgpack:"signals" json:"signals"`
	Records  []node.SignalView `msgpack:"records,omitempty" json:"records,omitempty"`
}

type Snapshot struct {
	Version int         `msgpack:"version" json:"version"`
	Tick    int         `msgpack:"tick" json:"tick"`
	TakenAt time.Time   `msgpack:"taken_at" json:"taken_at"`
	Nodes   []NodeState `msgpack:"nodes" json:"nodes"`
}

// Capture copies the current state of every node in g.
func Capture(g Graph, tick int) Snapshot {
	s := Snapshot{Version: Version, Tick: tick, TakenAt: time.Now().UTC()}
	for _, n := range g.Nodes() {
		s.Nodes = append(s.Nodes, NodeState{
			ID:       n.ID(),
			Key:      n.Key().String(),
			Position: n.Position(),
			Active:   n.IsActive(),
			Repeater: n.RepeaterEnabled(),
			Edges:    n.Edges(),
			Signals:  n.LiveSignals(),
			Records:  n.Records(),
		})
	}
	return s
}

// Find returns the state captured for id.
func (s Snapshot) Find(id mesh.NodeID) (NodeState, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodeState{}, false
}

func Write(w io.Writer, s Snapshot) error {
	return msgpack.NewEncoder(w).Encode(&s)
}

func Read(r io.Reader) (Snapshot, error) {
	var s Snapshot
	if err := msgpack.NewDecoder(r).Decode(&s); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: decode: %w", err)
	}
	if s.Version != Version {
		return Snapshot{}, fmt.Errorf("%w: %d", ErrVersion, s.Version)
	}
	return s, nil
}

func WriteFile(path string, s Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func ReadFile(path string) (Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, err
	}
	defer f.Close()
	return Read(f)
}
