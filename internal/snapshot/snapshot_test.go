package snapshot_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"signal-testbed/internal/mesh"
	"signal-testbed/internal/network"
	"signal-testbed/internal/node"
	"signal-testbed/internal/snapshot"
)

func buildLine(t *testing.T) (*network.Manager, *node.Broadcaster, *node.Node) {
	t.Helper()
	m := network.NewManager(network.Config{MaxDistance: 1.5, Bidirectional: true})
	relay := node.New(mesh.CreateCoordinates(1, 0, 0), node.WithRecords(""))
	relay.Activate(m)
	res := node.NewBroadcaster(mesh.CreateCoordinates(0, 0, 0), "res")
	res.Activate(m)
	return m, res, relay
}

func TestCaptureAndReadFile(t *testing.T) {
	m, res, relay := buildLine(t)
	snap := snapshot.Capture(m, 12)

	file := filepath.Join(t.TempDir(), "graph.msgpack")
	require.NoError(t, snapshot.WriteFile(file, snap))
	got, err := snapshot.ReadFile(file)
	require.NoError(t, err)

	assert.Equal(t, 12, got.Tick)
	require.Len(t, got.Nodes, 2)

	r, ok := got.Find(relay.ID())
	require.True(t, ok)
	assert.Equal(t, relay.Key().String(), r.Key)
	assert.True(t, r.Active)
	require.Len(t, r.Signals, 1)
	assert.Equal(t, "res.0", r.Signals[0].ID)
	assert.Equal(t, res.ID(), r.Signals[0].Origin)
	assert.Equal(t, res.ID(), r.Signals[0].LastPropagator)
	assert.InDelta(t, 1.0, r.Signals[0].Distance, 1e-9)
	require.Len(t, r.Records, 1)
	require.Len(t, r.Edges, 1)
	assert.Equal(t, res.ID(), r.Edges[0].To)

	_, ok = got.Find(mesh.NoNode)
	assert.False(t, ok)
}

func TestReadRejectsUnknownVersion(t *testing.T) {
	m, _, _ := buildLine(t)
	snap := snapshot.Capture(m, 0)
	snap.Version = snapshot.Version + 1

	var buf bytes.Buffer
	require.NoError(t, msgpack.NewEncoder(&buf).Encode(&snap))
	_, err := snapshot.Read(&buf)
	assert.ErrorIs(t, err, snapshot.ErrVersion)

	_, err = snapshot.Read(bytes.NewReader([]byte{0xc1}))
	assert.Error(t, err)
}
