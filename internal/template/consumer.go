package template

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/illallangi/alfaoperator/internal/eventbus"
)

// DefaultCooldown is the debounce window spec §4.5 specifies when the
// operator's configuration does not override it.
const DefaultCooldown = 5 * time.Second

// Consumer implements the cooldown gate of spec §4.5: collapse bursts of
// inbound watch events into one synchronous render cycle per cooldown
// window, strictly serialized per template.
type Consumer struct {
	Spec       Spec
	Bus        *eventbus.Bus
	Reconciler Reconciler
	Log        logr.Logger
	Cooldown   time.Duration

	// sleep is overridable for tests; production code leaves it nil and
	// gets the real timer-based implementation.
	sleep func(ctx context.Context, d time.Duration)
}

// Run blocks for one event, sleeps the cooldown window, drains whatever
// accumulated during the sleep, then reconciles synchronously -- forever,
// until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	cooldown := c.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	sleep := c.sleep
	if sleep == nil {
		sleep = realSleep
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.Bus.Events():
		}

		sleep(ctx, cooldown)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		drained := c.drain()
		c.Log.V(1).Info("render cycle starting", "template", c.Spec.Name, "drainedEvents", drained)

		if err := c.Reconciler.Reconcile(ctx, c.Spec); err != nil {
			c.Log.Error(err, "render cycle failed", "template", c.Spec.Name)
		}
	}
}

// drain non-blockingly removes every event already queued on the bus,
// returning how many it removed.
func (c *Consumer) drain() int {
	n := 0
	for {
		select {
		case <-c.Bus.Events():
			n++
		default:
			return n
		}
	}
}

func realSleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
