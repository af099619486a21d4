package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	eb "signal-testbed/internal/eventBus"
	"signal-testbed/internal/metrics"
	"signal-testbed/internal/mqtt"
	"signal-testbed/internal/network"
	"signal-testbed/internal/node"
	"signal-testbed/internal/server"
	"signal-testbed/internal/sim"
	"signal-testbed/internal/utils"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// registerTopic carries node commands from physical or scripted clients.
const registerTopic = "simulation/register"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulator",
		Short: "Run a scenario live with a websocket feed and node API",
		Long: `simulator ticks a scenario in real time and serves the event stream on
/ws and node commands under /nodeAPI/. With --mqtt-broker set, node
commands are also accepted on the simulation/register topic and every
event is republished under the --mqtt-prefix topic tree.`,
		SilenceUsage: true,
		RunE:         runSimulator,
	}
	cmd.Flags().String("scenario", "", "YAML or JSON scenario description (built-in default when empty)")
	cmd.Flags().String("addr", ":8080", "HTTP listen address")
	cmd.Flags().String("mqtt-broker", "", "MQTT broker URL, e.g. tcp://localhost:1883 (disabled when empty)")
	cmd.Flags().String("mqtt-client", "signal-testbed", "MQTT client id")
	cmd.Flags().String("mqtt-prefix", "testbed/events", "topic prefix for relayed events")
	cmd.Flags().Duration("monitor", 0, "log goroutine and heap usage at this interval (disabled when 0)")
	cmd.Flags().String("logs", "logs", "directory for the run log")
	cmd.Flags().Bool("verbose", false, "log node lifecycle and membership changes")
	return cmd
}

func runSimulator(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	logsDir, _ := flags.GetString("logs")
	logFile, err := utils.SetupLogFile(logsDir)
	if err != nil {
		return err
	}
	defer logFile.Close()

	sc := sim.DefaultScenario()
	if path, _ := flags.GetString("scenario"); path != "" {
		if sc, err = sim.LoadScenario(path); err != nil {
			return fmt.Errorf("scenario: %w", err)
		}
	}
	if flags.Changed("verbose") {
		sc.Logging.Verbose, _ = flags.GetBool("verbose")
	}
	node.Verbose = sc.Logging.Verbose
	network.Verbose = sc.Logging.Verbose

	bus := eb.NewEventBus()
	coll := metrics.NewCollector()
	runner, err := sim.NewRunner(sc, bus, coll)
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	// The run ending, for any reason, winds everything else down.
	g.Go(func() error {
		defer cancel()
		defer bus.Close()
		return runner.Run(gctx)
	})

	addr, _ := flags.GetString("addr")
	g.Go(func() error {
		return server.StartServer(gctx, addr, server.NewMux(runner, bus, coll))
	})

	if interval, _ := flags.GetDuration("monitor"); interval > 0 {
		g.Go(func() error {
			utils.MonitorResources(gctx, interval)
			return nil
		})
	}

	if broker, _ := flags.GetString("mqtt-broker"); broker != "" {
		clientID, _ := flags.GetString("mqtt-client")
		prefix, _ := flags.GetString("mqtt-prefix")
		mgr, err := mqtt.New(broker, clientID)
		if err != nil {
			cancel()
			g.Wait()
			return err
		}
		defer mgr.Disconnect()
		if err := mgr.Subscribe(registerTopic, 1, mqtt.ProcessMqttNodeMessage(runner, mgr)); err != nil {
			log.Printf("[mqtt] Subscribe %s failed: %v", registerTopic, err)
		}
		g.Go(func() error {
			mqtt.RelayEvents(gctx, bus, mgr, prefix)
			return nil
		})
	}

	start := time.Now()
	err = g.Wait()
	log.Printf("[sim] Simulator stopped after %s", time.Since(start).Round(time.Second))
	return err
}
