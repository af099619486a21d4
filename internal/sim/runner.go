package sim

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"signal-testbed/internal/audit"
	eb "signal-testbed/internal/eventBus"
	"signal-testbed/internal/metrics"
	"signal-testbed/internal/node"
	"signal-testbed/internal/snapshot"
)

// ErrStopped is returned by Do once the run loop has exited.
var ErrStopped = errors.New("runner stopped")

type command struct {
	fn   func(*World) error
	done chan error
}

// Runner drives a World from a single goroutine. Anything else that wants
// to touch the graph submits a closure through Do.
type Runner struct {
	sc    *Scenario
	bus   *eb.EventBus
	coll  *metrics.Collector
	world *World

	cmds    chan command
	stopped chan struct{}
	wg      sync.WaitGroup

	report audit.Report
}

// NewRunner builds the world for sc. bus and coll may be nil.
func NewRunner(sc *Scenario, bus *eb.EventBus, coll *metrics.Collector) (*Runner, error) {
	w, err := NewWorld(sc, bus)
	if err != nil {
		return nil, err
	}
	return &Runner{
		sc:      sc,
		bus:     bus,
		coll:    coll,
		world:   w,
		cmds:    make(chan command),
		stopped: make(chan struct{}),
	}, nil
}

// Run ticks the world until the scenario's tick budget is spent or ctx is
// cancelled, then audits, flushes metrics and writes the snapshot.
// A zero tick interval runs as fast as possible; zero ticks runs until ctx
// is done.
func (r *Runner) Run(ctx context.Context) error {
	var sub chan eb.Event
	if r.bus != nil && r.coll != nil {
		sub = r.bus.SubscribeBuffered(1 << 16)
		r.wg.Add(1)
		go func() { defer r.wg.Done(); r.consumeEvents(sub) }()
	}

	var tick <-chan time.Time
	if r.sc.TickInterval > 0 {
		t := time.NewTicker(r.sc.TickInterval)
		defer t.Stop()
		tick = t.C
	}

	start := time.Now()
	log.Printf("[sim] Run started: ticks=%d interval=%s", r.sc.Ticks, r.sc.TickInterval)
loop:
	for r.sc.Ticks == 0 || r.world.Tick() < r.sc.Ticks {
		if tick != nil {
			select {
			case <-ctx.Done():
				break loop
			case c := <-r.cmds:
				c.done <- c.fn(r.world)
				continue
			case <-tick:
			}
		} else {
			select {
			case <-ctx.Done():
				break loop
			case c := <-r.cmds:
				c.done <- c.fn(r.world)
				continue
			default:
			}
		}
		r.world.Step()
	}
	log.Printf("[sim] Run finished after %d ticks in %s", r.world.Tick(), time.Since(start).Round(time.Millisecond))

	return r.finish(sub)
}

// Do runs fn on the run goroutine and returns its error.
func (r *Runner) Do(ctx context.Context, fn func(*World) error) error {
	c := command{fn: fn, done: make(chan error, 1)}
	select {
	case r.cmds <- c:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stopped:
		return ErrStopped
	}
	select {
	case err := <-c.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stopped is closed once Run has returned.
func (r *Runner) Stopped() <-chan struct{} {
	return r.stopped
}

// Report is the audit taken at the end of the run.
func (r *Runner) Report() audit.Report {
	return r.report
}

// World gives direct access to the world. Only use it before Run starts or
// after it returned.
func (r *Runner) World() *World {
	return r.world
}

// AuditWorld verifies every non-agent node. Agents are excluded because a
// moved node keeps no guarantee about copies it forwarded before moving.
func AuditWorld(w *World) (audit.Report, error) {
	return audit.Verify(w.Manager(), audit.WithFilter(func(n *node.Node) bool {
		return !w.IsMobile(n)
	}))
}

func (r *Runner) finish(sub chan eb.Event) error {
	defer close(r.stopped)

	var errs []error
	report, err := AuditWorld(r.world)
	if err != nil {
		errs = append(errs, fmt.Errorf("audit: %w", err))
	} else {
		r.report = report
		log.Printf("[sim] Audit: %d signals over %d nodes, %d mismatches", report.Signals, report.Checked, len(report.Mismatches))
		for i, m := range report.Mismatches {
			if i == 10 {
				log.Printf("[sim] Audit: %d more mismatches omitted", len(report.Mismatches)-i)
				break
			}
			log.Printf("[sim] Audit: %s", m)
		}
	}

	if path := r.sc.Logging.SnapshotFile; path != "" {
		if err := snapshot.WriteFile(path, snapshot.Capture(r.world.Manager(), r.world.Tick())); err != nil {
			errs = append(errs, fmt.Errorf("write snapshot: %w", err))
		} else {
			log.Printf("[sim] Snapshot written to %s", path)
		}
	}

	if sub != nil {
		r.bus.Unsubscribe(sub)
		r.wg.Wait()
	}
	if r.coll != nil {
		if err == nil {
			r.coll.AddAudit(report.Signals, len(report.Mismatches))
		}
		if r.bus != nil {
			r.coll.SetDropped(r.bus.Dropped())
		}
		if path := r.sc.Logging.MetricsFile; path != "" {
			if err := r.coll.Flush(path); err != nil {
				errs = append(errs, fmt.Errorf("flush metrics: %w", err))
			} else {
				log.Printf("[sim] Metrics written to %s", path)
			}
		}
	}
	return errors.Join(errs...)
}

func (r *Runner) consumeEvents(ch chan eb.Event) {
	for ev := range ch {
		r.coll.Observe(ev)
	}
}
