package template

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/illallangi/alfaoperator/internal/apikind"
	"github.com/illallangi/alfaoperator/internal/eventbus"
	"github.com/illallangi/alfaoperator/internal/watcher"
	"golang.org/x/sync/errgroup"
)

// Reconciler is the render-and-apply side of one cooldown cycle, injected
// so this package never imports the aggregate/render/reconcile packages
// directly (spec §4.4 treats the render pipeline as the consumer's
// collaborator, not the controller's).
type Reconciler interface {
	Reconcile(ctx context.Context, spec Spec) error
}

// Controller owns one Consumer and one Watcher per kind in
// {parent.kind} ∪ monitored[].kind, all sharing a single event bus, per
// spec §4.4. Cancelling the controller cancels every watcher and the
// consumer together.
type Controller struct {
	Spec       Spec
	Registry   *apikind.Registry
	Reconciler Reconciler
	Log        logr.Logger
	Cooldown   time.Duration
}

// Run starts every watcher and the cooldown consumer and blocks until ctx
// is cancelled or one of them returns a non-cancellation error.
func (c *Controller) Run(ctx context.Context) error {
	bus := eventbus.New(64)
	log := c.Log.WithValues("template", c.Spec.Name)

	group, groupCtx := errgroup.WithContext(ctx)
	for _, kindName := range c.Spec.Kinds() {
		kind, err := c.Registry.Kind(kindName)
		if err != nil {
			return err
		}
		w := watcher.New(watcher.NewRESTKind(kind), bus, log)
		group.Go(func() error { return w.Run(groupCtx) })
	}

	consumer := &Consumer{
		Spec:       c.Spec,
		Bus:        bus,
		Reconciler: c.Reconciler,
		Log:        log,
		Cooldown:   c.Cooldown,
	}
	group.Go(func() error { return consumer.Run(groupCtx) })

	err := group.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}
