package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"signal-testbed/internal/audit"
	"signal-testbed/internal/mesh"
	"signal-testbed/internal/metrics"
	"signal-testbed/internal/node"
	"signal-testbed/internal/sim"
	"signal-testbed/internal/snapshot"

	"github.com/google/uuid"
)

// NodeView is the JSON shape of one node.
type NodeView struct {
	NodeID    string            `json:"node_id"`
	ID        mesh.NodeID       `json:"id"`
	Position  mesh.Coordinates  `json:"position"`
	Active    bool              `json:"active"`
	Repeater  bool              `json:"repeater"`
	Intensity float64           `json:"intensity"`
	NewCount  int               `json:"new_signals_received"`
	Improved  int               `json:"signal_improvements"`
	Edges     []node.Edge       `json:"edges,omitempty"`
	Signals   []node.SignalView `json:"signals,omitempty"`
	Records   []node.SignalView `json:"records,omitempty"`
}

func viewOf(n *node.Node, detailed bool) NodeView {
	v := NodeView{
		NodeID:    n.Key().String(),
		ID:        n.ID(),
		Position:  n.Position(),
		Active:    n.IsActive(),
		Repeater:  n.RepeaterEnabled(),
		Intensity: n.Intensity(),
		NewCount:  n.NewSignalsReceivedCount(),
		Improved:  n.SignalImprovementsCount(),
	}
	if detailed {
		v.Edges = n.Edges()
		v.Signals = n.Signals()
		v.Records = n.Records()
	}
	return v
}

// CreateNodePayload defines the expected JSON payload for node creation. A
// non-empty Broadcaster creates a broadcaster with that base id.
type CreateNodePayload struct {
	NodeID      string  `json:"node_id,omitempty"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Z           float64 `json:"z"`
	Repeater    *bool   `json:"repeater,omitempty"`
	Broadcaster string  `json:"broadcaster,omitempty"`
}

// CreateNodeHandler creates a node and registers it with the graph.
func CreateNodeHandler(runner *sim.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload CreateNodePayload
		if !decode(w, r, &payload) {
			return
		}
		var opts []node.Option
		if payload.NodeID != "" {
			key, err := uuid.Parse(payload.NodeID)
			if err != nil {
				http.Error(w, "Invalid node_id", http.StatusBadRequest)
				return
			}
			opts = append(opts, node.WithKey(key))
		}

		var view NodeView
		err := runner.Do(r.Context(), func(world *sim.World) error {
			created, err := Create(world, payload, opts...)
			if err != nil {
				return err
			}
			view = viewOf(created, false)
			return nil
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, view)
	}
}

var (
	// ErrDuplicateKey is returned when a node with the requested key exists.
	ErrDuplicateKey = errors.New("node_id already in use")
	// ErrDuplicateBase is returned when another broadcaster already emits
	// under the requested base id. Two origins sharing an id would retract
	// each other's copies.
	ErrDuplicateBase = errors.New("broadcaster base id already in use")
)

// Create adds the node described by payload. Shared by the HTTP and MQTT
// surfaces; must run on the runner goroutine.
func Create(world *sim.World, payload CreateNodePayload, opts ...node.Option) (*node.Node, error) {
	if payload.NodeID != "" {
		if key, err := uuid.Parse(payload.NodeID); err == nil {
			if _, exists := world.LookupKey(key); exists {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, key)
			}
		}
	}
	pos := mesh.CreateCoordinates(payload.X, payload.Y, payload.Z)
	if payload.Broadcaster != "" {
		if world.HasBroadcasterBase(payload.Broadcaster) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateBase, payload.Broadcaster)
		}
		if payload.Repeater != nil {
			opts = append(opts, node.WithRepeater(*payload.Repeater))
		}
		return world.AddBroadcaster(pos, payload.Broadcaster, opts...).Node, nil
	}
	repeater := true
	if payload.Repeater != nil {
		repeater = *payload.Repeater
	}
	return world.AddRelay(pos, repeater, opts...), nil
}

// RemoveNodePayload defines the expected JSON payload for removing a node.
type RemoveNodePayload struct {
	NodeID string `json:"node_id"`
}

// RemoveNodeHandler removes a relay or broadcaster from the graph.
func RemoveNodeHandler(runner *sim.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload RemoveNodePayload
		if !decode(w, r, &payload) {
			return
		}
		key, ok := parseKey(w, payload.NodeID)
		if !ok {
			return
		}
		err := runner.Do(r.Context(), func(world *sim.World) error {
			n, err := resolve(world, key)
			if err != nil {
				return err
			}
			return world.RemoveNode(n.ID())
		})
		if err != nil {
			writeError(w, err)
			return
		}
		w.Write([]byte("Node removed from the graph"))
	}
}

type MoveNodePayload struct {
	NodeID string  `json:"node_id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      float64 `json:"z"`
}

// MoveNodeHandler repositions a node and refreshes its edges.
func MoveNodeHandler(runner *sim.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload MoveNodePayload
		if !decode(w, r, &payload) {
			return
		}
		key, ok := parseKey(w, payload.NodeID)
		if !ok {
			return
		}
		err := runner.Do(r.Context(), func(world *sim.World) error {
			n, err := resolve(world, key)
			if err != nil {
				return err
			}
			return world.MoveNode(n.ID(), mesh.CreateCoordinates(payload.X, payload.Y, payload.Z))
		})
		if err != nil {
			writeError(w, err)
			return
		}
		w.Write([]byte("Node moved"))
	}
}

type ToggleNodePayload struct {
	NodeID string `json:"node_id"`
	Active bool   `json:"active"`
}

// ToggleNodeHandler activates or deactivates a node. Deactivating a
// broadcaster retracts its signal.
func ToggleNodeHandler(runner *sim.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload ToggleNodePayload
		if !decode(w, r, &payload) {
			return
		}
		key, ok := parseKey(w, payload.NodeID)
		if !ok {
			return
		}
		err := runner.Do(r.Context(), func(world *sim.World) error {
			n, err := resolve(world, key)
			if err != nil {
				return err
			}
			return world.SetActive(n.ID(), payload.Active)
		})
		if err != nil {
			writeError(w, err)
			return
		}
		w.Write([]byte(fmt.Sprintf("Node active=%t", payload.Active)))
	}
}

type RepeaterPayload struct {
	NodeID  string `json:"node_id"`
	Enabled bool   `json:"enabled"`
}

// RepeaterHandler flips a node's repeater flag.
func RepeaterHandler(runner *sim.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload RepeaterPayload
		if !decode(w, r, &payload) {
			return
		}
		key, ok := parseKey(w, payload.NodeID)
		if !ok {
			return
		}
		err := runner.Do(r.Context(), func(world *sim.World) error {
			n, err := resolve(world, key)
			if err != nil {
				return err
			}
			return world.SetRepeater(n.ID(), payload.Enabled)
		})
		if err != nil {
			writeError(w, err)
			return
		}
		w.Write([]byte(fmt.Sprintf("Node repeater=%t", payload.Enabled)))
	}
}

// ListNodesHandler returns a summary of every node the world owns.
func ListNodesHandler(runner *sim.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var views []NodeView
		err := runner.Do(r.Context(), func(world *sim.World) error {
			for _, n := range world.ActiveOrIdleNodes() {
				views = append(views, viewOf(n, false))
			}
			return nil
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, views)
	}
}

// NodeStateHandler returns one node with its edges, signals and records.
// The node is selected with the node_id query parameter.
func NodeStateHandler(runner *sim.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, ok := parseKey(w, r.URL.Query().Get("node_id"))
		if !ok {
			return
		}
		var view NodeView
		err := runner.Do(r.Context(), func(world *sim.World) error {
			n, err := resolve(world, key)
			if err != nil {
				return err
			}
			view = viewOf(n, true)
			return nil
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// RebuildHandler recomputes the whole topology.
func RebuildHandler(runner *sim.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := runner.Do(r.Context(), func(world *sim.World) error {
			world.Manager().RebuildGraph()
			return nil
		})
		if err != nil {
			writeError(w, err)
			return
		}
		w.Write([]byte("Graph rebuilt"))
	}
}

// AuditHandler compares live distances with a batch shortest-path run.
func AuditHandler(runner *sim.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var report audit.Report
		err := runner.Do(r.Context(), func(world *sim.World) error {
			var err error
			report, err = sim.AuditWorld(world)
			return err
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// SnapshotHandler streams a msgpack snapshot of the graph.
func SnapshotHandler(runner *sim.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var snap snapshot.Snapshot
		err := runner.Do(r.Context(), func(world *sim.World) error {
			snap = snapshot.Capture(world.Manager(), world.Tick())
			return nil
		})
		if err != nil {
			writeError(w, err)
			return
		}
		var buf bytes.Buffer
		if err := snapshot.Write(&buf, snap); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/msgpack")
		w.Write(buf.Bytes())
	}
}

// MetricsHandler returns the current counters.
func MetricsHandler(coll *metrics.Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, coll.Snapshot())
	}
}

func resolve(world *sim.World, key uuid.UUID) (*node.Node, error) {
	n, ok := world.LookupKey(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", sim.ErrUnknownNode, key)
	}
	return n, nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func parseKey(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	key, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "Invalid node_id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return key, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sim.ErrUnknownNode):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrDuplicateKey), errors.Is(err, ErrDuplicateBase):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, sim.ErrStopped):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}
