package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatorStopsWhenRunEnds(t *testing.T) {
	dir := t.TempDir()
	scenario := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(scenario, []byte(`
ticks: 5
tick_interval: 1ms
relays: {count: 9}
resources: {count: 1}
agents: {count: 1}
logging:
  metrics_file: `+filepath.Join(dir, "metrics.json")+`
`), 0o644))

	cmd := newRootCmd()
	cmd.SetArgs([]string{
		"--scenario", scenario,
		"--addr", "127.0.0.1:0",
		"--monitor", "1h",
		"--logs", filepath.Join(dir, "logs"),
	})

	done := make(chan error, 1)
	go func() { done <- cmd.Execute() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("simulator did not stop")
	}
	assert.FileExists(t, filepath.Join(dir, "metrics.json"))
}

func TestSimulatorBadScenario(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{
		"--scenario", filepath.Join(t.TempDir(), "missing.yaml"),
		"--logs", filepath.Join(t.TempDir(), "logs"),
	})
	assert.Error(t, cmd.Execute())
}
