// Package cluster implements the top-level controller (spec §4.3): it
// watches AlfaTemplate objects for the operator's configured parent kind
// and keeps exactly one running template.Controller per matching
// AlfaTemplate name, replacing it atomically on every Added/Modified
// event and tearing it down on every name collision or Deleted event.
package cluster

import (
	"context"
	"regexp"

	"github.com/go-logr/logr"
	"github.com/illallangi/alfaoperator/internal/apikind"
	"github.com/illallangi/alfaoperator/internal/document"
	"github.com/illallangi/alfaoperator/internal/eventbus"
	"github.com/illallangi/alfaoperator/internal/watcher"
	"golang.org/x/sync/errgroup"
)

// TemplateRunner is the subset of template.Controller the cluster
// consumer needs, kept as an interface so tests can substitute a fake
// controller instead of standing up real watchers.
type TemplateRunner interface {
	Run(ctx context.Context) error
}

// RunnerFactory builds a TemplateRunner for a freshly observed
// AlfaTemplate document. Injected so the cluster package never imports
// the template package directly, keeping the dependency edge one-way
// (template controllers are owned by, not owning, the cluster tier).
type RunnerFactory func(ctx context.Context, alfaTemplate document.Doc) (TemplateRunner, error)

// Controller owns the AlfaTemplate watcher and the Consumer that reacts
// to it, sharing a single event bus between them per spec §4.3.
type Controller struct {
	Registry *apikind.Registry
	Log      logr.Logger

	ParentKind     string
	TemplateFilter *regexp.Regexp
	AppFilter      *regexp.Regexp

	NewRunner RunnerFactory
}

// Run discovers the AlfaTemplate watcher, starts the consumer, and blocks
// until ctx is cancelled, at which point every running TemplateController
// is cancelled too.
func (c *Controller) Run(ctx context.Context) error {
	kind, err := c.Registry.Kind("AlfaTemplate")
	if err != nil {
		return err
	}

	bus := eventbus.New(64)
	w := watcher.New(watcher.NewRESTKind(kind), bus, c.Log)

	consumer := &Consumer{
		Bus:            bus,
		Log:            c.Log,
		ParentKind:     c.ParentKind,
		TemplateFilter: c.TemplateFilter,
		AppFilter:      c.AppFilter,
		NewRunner:      c.NewRunner,
		table:          newControllerTable(),
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return w.Run(groupCtx) })
	group.Go(func() error { return consumer.Run(groupCtx) })

	err = group.Wait()
	consumer.table.cancelAll()
	if err == context.Canceled {
		return nil
	}
	return err
}
