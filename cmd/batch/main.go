package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	eb "signal-testbed/internal/eventBus"
	"signal-testbed/internal/metrics"
	"signal-testbed/internal/network"
	"signal-testbed/internal/node"
	"signal-testbed/internal/sim"
	"signal-testbed/internal/utils"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run a scenario headless and write metrics and a graph snapshot",
		Long: `batch runs a signal propagation scenario as fast as the tick interval
allows, audits every live distance against a shortest-path recomputation
at the end, and writes the metrics and snapshot files named by the
scenario or the flags below.`,
		SilenceUsage: true,
		RunE:         runBatch,
	}
	cmd.Flags().String("scenario", "", "YAML or JSON scenario description (built-in default when empty)")
	cmd.Flags().Int("ticks", 0, "override the scenario tick budget")
	cmd.Flags().Duration("interval", 0, "override the scenario tick interval")
	cmd.Flags().String("metrics", "", "override the metrics output file")
	cmd.Flags().String("snapshot", "", "override the snapshot output file")
	cmd.Flags().String("logs", "logs", "directory for the run log")
	cmd.Flags().Bool("verbose", false, "log node lifecycle and membership changes")
	return cmd
}

func runBatch(cmd *cobra.Command, args []string) error {
	logsDir, _ := cmd.Flags().GetString("logs")
	logFile, err := utils.SetupLogFile(logsDir)
	if err != nil {
		return err
	}
	defer logFile.Close()

	sc, err := loadScenario(cmd)
	if err != nil {
		return err
	}
	if sc.Ticks == 0 {
		return fmt.Errorf("batch runs need a tick budget, set ticks in the scenario or --ticks")
	}
	log.Println("[batch] Starting simulation...")

	bus := eb.NewEventBus()
	defer bus.Close()
	coll := metrics.NewCollector()
	runner, err := sim.NewRunner(sc, bus, coll)
	if err != nil {
		return err
	}

	// catch Ctrl-C / SIGTERM / SIGHUP; the runner still audits and flushes
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()
	if err := runner.Run(ctx); err != nil {
		return fmt.Errorf("runner: %w", err)
	}

	report := runner.Report()
	if !report.OK() {
		return fmt.Errorf("audit found %d mismatches over %d signals", len(report.Mismatches), report.Signals)
	}
	log.Printf("[batch] Run complete after %d ticks, %d signals audited", runner.World().Tick(), report.Signals)
	return nil
}

func loadScenario(cmd *cobra.Command) (*sim.Scenario, error) {
	path, _ := cmd.Flags().GetString("scenario")
	sc := sim.DefaultScenario()
	if path != "" {
		loaded, err := sim.LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("scenario: %w", err)
		}
		sc = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("ticks") {
		sc.Ticks, _ = flags.GetInt("ticks")
	}
	if flags.Changed("interval") {
		sc.TickInterval, _ = flags.GetDuration("interval")
	}
	if flags.Changed("metrics") {
		sc.Logging.MetricsFile, _ = flags.GetString("metrics")
	}
	if flags.Changed("snapshot") {
		sc.Logging.SnapshotFile, _ = flags.GetString("snapshot")
	}
	if flags.Changed("verbose") {
		sc.Logging.Verbose, _ = flags.GetBool("verbose")
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	node.Verbose = sc.Logging.Verbose
	network.Verbose = sc.Logging.Verbose
	return sc, nil
}
