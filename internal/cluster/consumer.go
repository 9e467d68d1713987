package cluster

import (
	"context"
	"regexp"
	"sync"

	"github.com/go-logr/logr"
	"github.com/illallangi/alfaoperator/internal/document"
	"github.com/illallangi/alfaoperator/internal/eventbus"
)

// entry pairs a running TemplateRunner with the cancel function that
// tears it down.
type entry struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// controllerTable is the in-memory "one running controller per template
// name" registry, replaced atomically on every Added/Modified event per
// spec §4.3 step 3-4. It is the cluster-tier equivalent of the teacher's
// recordKeeper.registrars map.
type controllerTable struct {
	mu      sync.Mutex
	running map[string]entry
}

func newControllerTable() *controllerTable {
	return &controllerTable{running: make(map[string]entry)}
}

// replace cancels any controller already running under name, waits for it
// to exit, and returns after the slot is empty. Callers insert the new
// entry themselves once the replacement controller is started.
func (t *controllerTable) replace(name string) {
	t.mu.Lock()
	old, ok := t.running[name]
	delete(t.running, name)
	t.mu.Unlock()

	if ok {
		old.cancel()
		<-old.done
	}
}

func (t *controllerTable) insert(name string, cancel context.CancelFunc, done chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running[name] = entry{cancel: cancel, done: done}
}

func (t *controllerTable) cancelAll() {
	t.mu.Lock()
	entries := make([]entry, 0, len(t.running))
	for _, e := range t.running {
		entries = append(entries, e)
	}
	t.running = make(map[string]entry)
	t.mu.Unlock()

	for _, e := range entries {
		e.cancel()
		<-e.done
	}
}

// Consumer is the single-goroutine loop described in spec §4.3: every
// AlfaTemplate event is filtered by parent kind and by the
// template-name/app-name regexes, then used to atomically replace the
// running TemplateController for that name.
type Consumer struct {
	Bus            *eventbus.Bus
	Log            logr.Logger
	ParentKind     string
	TemplateFilter *regexp.Regexp
	AppFilter      *regexp.Regexp
	NewRunner      RunnerFactory

	table *controllerTable
}

// Run processes events from Bus until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	if c.table == nil {
		c.table = newControllerTable()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-c.Bus.Events():
			c.handle(ctx, ev)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, ev eventbus.Event) {
	name := document.GetString(ev.Object, "metadata.name", "")
	if name == "" {
		return
	}

	parentKind := document.GetString(ev.Object, "spec.kinds.parent.kind", "")
	if parentKind != c.ParentKind {
		c.Log.V(1).Info("ignoring alfatemplate for different parent kind", "template", name, "parentKind", parentKind)
		return
	}
	if c.TemplateFilter != nil && !c.TemplateFilter.MatchString(name) {
		c.Log.V(1).Info("ignoring alfatemplate filtered by template-name regex", "template", name)
		return
	}
	appName, _ := document.RecursiveGet(ev.Object, "metadata#labels#app.kubernetes.io/name", "#").(string)
	if c.AppFilter != nil && !c.AppFilter.MatchString(appName) {
		c.Log.V(1).Info("ignoring alfatemplate filtered by app-name regex", "template", name, "app", appName)
		return
	}

	c.table.replace(name)

	if ev.Type != eventbus.Added && ev.Type != eventbus.Modified {
		return
	}

	runner, err := c.NewRunner(ctx, ev.Object)
	if err != nil {
		c.Log.Error(err, "failed to build template controller", "template", name)
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.table.insert(name, cancel, done)

	go func() {
		defer close(done)
		if err := runner.Run(runCtx); err != nil && err != context.Canceled {
			c.Log.Error(err, "template controller exited", "template", name)
		}
	}()
}
