// Package controller runs the remote's dispatch loop: every tick it samples
// the inputs, then lets the link state machine forward whatever changed.
package controller

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mil-ad/duploctl/command"
	"github.com/mil-ad/duploctl/input"
	"github.com/mil-ad/duploctl/link"
)

// TickPeriod is the polling cadence. Drift is not compensated.
const TickPeriod = 10 * time.Millisecond

// Snapshot describes the controller after a tick.
type Snapshot struct {
	Time    time.Time
	Link    link.Status
	Command command.Snapshot

	// Sensors holds the latest reading of each hub sensor seen so far.
	Sensors map[link.SensorKind]int
}

// Controller binds the command store, input sampler and link state machine.
// All of them run on the goroutine calling Tick or Run.
type Controller struct {
	l hclog.Logger

	store    *command.Store
	sampler  *input.Sampler
	machine  *link.Machine
	readings <-chan link.SensorReading
	sensors  map[link.SensorKind]int

	observe func(Snapshot)
}

// Option enables variadic configuration of a Controller.
type Option func(*Controller)

// WithObserver registers f to receive a snapshot after every tick. f runs on
// the loop goroutine and must not block.
func WithObserver(f func(Snapshot)) Option {
	return func(c *Controller) { c.observe = f }
}

// New wires a controller reading pins and driving d. If d also implements
// link.SensorSource its readings are logged and included in snapshots.
func New(pins input.Pins, d link.Driver, start time.Time, l hclog.Logger, opts ...Option) *Controller {
	store := command.NewStore()
	c := &Controller{
		l:       l.Named("controller"),
		store:   store,
		sampler: input.NewSampler(pins, store, l),
		machine: link.NewMachine(d, store, start, l),
		sensors: make(map[link.SensorKind]int),
	}
	if src, ok := d.(link.SensorSource); ok {
		c.readings = src.Readings()
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Controller) Store() *command.Store { return c.store }
func (c *Controller) Status() link.Status    { return c.machine.Status() }

// Tick runs one iteration of the loop at time now.
func (c *Controller) Tick(now time.Time) {
	c.sampler.Sample(now)
	c.machine.Update(now)
	c.drainReadings()

	if c.observe != nil {
		c.observe(c.snapshot(now))
	}
}

func (c *Controller) drainReadings() {
	for {
		select {
		case r := <-c.readings:
			if prev, ok := c.sensors[r.Kind]; ok && prev == r.Value {
				continue
			}
			c.sensors[r.Kind] = r.Value
			c.l.Info("sensor", "kind", r.Kind, "value", r.Value)
		default:
			return
		}
	}
}

func (c *Controller) snapshot(now time.Time) Snapshot {
	sensors := make(map[link.SensorKind]int, len(c.sensors))
	for k, v := range c.sensors {
		sensors[k] = v
	}
	return Snapshot{
		Time:    now,
		Link:    c.machine.Status(),
		Command: c.store.Snapshot(),
		Sensors: sensors,
	}
}

// Run ticks every TickPeriod until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(TickPeriod)
	defer ticker.Stop()

	c.l.Info("dispatch loop started", "tick", TickPeriod)
	for {
		select {
		case <-ctx.Done():
			c.l.Info("dispatch loop stopped")
			return nil
		case now := <-ticker.C:
			c.Tick(now)
		}
	}
}
