package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"signal-testbed/internal/commands"
	"signal-testbed/internal/eventBus"
	"signal-testbed/internal/metrics"
	"signal-testbed/internal/sim"

	"github.com/gorilla/websocket"
)

// Define a WebSocket upgrader.
var upgrader = websocket.Upgrader{
	// Allow any origin, the front end is served separately.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const writeWait = 5 * time.Second

// wsHandler upgrades the connection to WebSocket and pushes events from the
// EventBus. An optional types query parameter, a comma separated list of
// event types, restricts what is sent.
func wsHandler(eb *eventBus.EventBus, w http.ResponseWriter, r *http.Request) {
	var only map[eventBus.EventType]bool
	if raw := r.URL.Query().Get("types"); raw != "" {
		only = make(map[eventBus.EventType]bool)
		for _, t := range strings.Split(raw, ",") {
			only[eventBus.EventType(strings.TrimSpace(t))] = true
		}
	}

	// Subscribe before the handshake completes so nothing published after
	// the client connects is missed.
	eventCh := eb.Subscribe()
	defer eb.Unsubscribe(eventCh)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[server] Upgrade error: %v", err)
		return
	}
	defer conn.Close()

	// The client never sends anything useful; reading is how a close is
	// noticed.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case event, ok := <-eventCh:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeWait))
				return
			}
			if only != nil && !only[event.Type] {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				log.Printf("[server] Write error: %v", err)
				return
			}
		}
	}
}

// NewMux wires the websocket feed and the node API.
func NewMux(runner *sim.Runner, eb *eventBus.EventBus, coll *metrics.Collector) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		wsHandler(eb, w, r)
	})

	// Setup command endpoints.
	mux.HandleFunc("POST /nodeAPI/create", commands.CreateNodeHandler(runner))
	mux.HandleFunc("POST /nodeAPI/remove", commands.RemoveNodeHandler(runner))
	mux.HandleFunc("POST /nodeAPI/move", commands.MoveNodeHandler(runner))
	mux.HandleFunc("POST /nodeAPI/toggle", commands.ToggleNodeHandler(runner))
	mux.HandleFunc("POST /nodeAPI/repeater", commands.RepeaterHandler(runner))
	mux.HandleFunc("POST /nodeAPI/rebuild", commands.RebuildHandler(runner))
	mux.HandleFunc("GET /nodeAPI/nodes", commands.ListNodesHandler(runner))
	mux.HandleFunc("GET /nodeAPI/state", commands.NodeStateHandler(runner))
	mux.HandleFunc("GET /nodeAPI/audit", commands.AuditHandler(runner))
	mux.HandleFunc("GET /nodeAPI/snapshot", commands.SnapshotHandler(runner))
	mux.HandleFunc("GET /nodeAPI/metrics", commands.MetricsHandler(coll))
	return mux
}

// StartServer serves handler on addr until ctx is cancelled, then shuts
// down gracefully.
func StartServer(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler}
	errc := make(chan error, 1)
	go func() {
		log.Printf("[server] Server started on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Printf("[server] Server on %s stopped", addr)
	return nil
}
