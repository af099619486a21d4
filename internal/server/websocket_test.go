package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"signal-testbed/internal/eventBus"
	"signal-testbed/internal/metrics"
	"signal-testbed/internal/sim"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *eventBus.EventBus) {
	t.Helper()
	sc := &sim.Scenario{
		TickInterval: time.Hour,
		Relays:       sim.RelayCfg{Count: 4},
	}
	sc.ApplyDefaults()
	bus := eventBus.NewEventBus()
	runner, err := sim.NewRunner(sc, bus, metrics.NewCollector())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go runner.Run(ctx)
	srv := httptest.NewServer(NewMux(runner, bus, metrics.NewCollector()))
	t.Cleanup(func() {
		bus.Close()
		srv.Close()
		cancel()
		<-runner.Stopped()
	})
	return srv, bus
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) eventBus.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev eventBus.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestWebSocketStreamsEvents(t *testing.T) {
	srv, bus := newTestServer(t)
	conn := dial(t, srv, "")

	bus.Publish(eventBus.Event{Type: eventBus.EventSignalNew, NodeID: 3, SignalID: "beacon.0", Distance: 2.5})
	ev := readEvent(t, conn)
	assert.Equal(t, eventBus.EventSignalNew, ev.Type)
	assert.Equal(t, uint32(3), ev.NodeID)
	assert.Equal(t, "beacon.0", ev.SignalID)
	assert.Equal(t, 2.5, ev.Distance)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestWebSocketTypeFilter(t *testing.T) {
	srv, bus := newTestServer(t)
	conn := dial(t, srv, "?types=RESOURCE_COLLECTED,TICK")

	bus.Publish(eventBus.Event{Type: eventBus.EventSignalNew})
	bus.Publish(eventBus.Event{Type: eventBus.EventNodeMoved})
	bus.Publish(eventBus.Event{Type: eventBus.EventResourceCollected, SignalID: "1.r0.0"})

	ev := readEvent(t, conn)
	assert.Equal(t, eventBus.EventResourceCollected, ev.Type)
	assert.Equal(t, "1.r0.0", ev.SignalID)
}

func TestWebSocketClosesOnBusClose(t *testing.T) {
	srv, bus := newTestServer(t)
	conn := dial(t, srv, "")

	bus.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "%v", err)
}

func TestNodeAPIRoutes(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/nodeAPI/nodes")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var nodes []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&nodes))
	assert.Len(t, nodes, 4)

	resp2, err := http.Get(srv.URL + "/nodeAPI/create")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp2.StatusCode)
}

func TestStartServerStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- StartServer(ctx, addr, http.NotFoundHandler()) }()

	require.Eventually(t, func() bool {
		c, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		c.Close()
		return true
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
