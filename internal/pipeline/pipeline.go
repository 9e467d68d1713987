// Package pipeline wires the fetch-aggregate-render-reconcile sequence
// spec §4.6's Design Note calls "strictly sequential" into a single
// template.Reconciler, the per-cycle collaborator the cooldown consumer
// calls synchronously.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/illallangi/alfaoperator/internal/aggregate"
	"github.com/illallangi/alfaoperator/internal/apikind"
	"github.com/illallangi/alfaoperator/internal/document"
	"github.com/illallangi/alfaoperator/internal/dump"
	"github.com/illallangi/alfaoperator/internal/metrics"
	"github.com/illallangi/alfaoperator/internal/reconcile"
	"github.com/illallangi/alfaoperator/internal/render"
	"github.com/illallangi/alfaoperator/internal/template"
)

// Lister fetches the current items for one kind, the "fresh listURL(kind)
// GET per referenced kind, followed by per-item GETs" of spec §4.6.
type Lister interface {
	List(ctx context.Context, kind apikind.APIKind, namespace string) ([]document.Doc, error)
	Get(ctx context.Context, kind apikind.APIKind, namespace, name string) (document.Doc, error)
}

// Pipeline implements template.Reconciler by fetching every referenced
// kind's items, aggregating them per spec §4.6, rendering per §4.7, and
// reconciling per §4.8.
type Pipeline struct {
	Registry *apikind.Registry
	Lister   Lister
	Renderer render.Renderer
	Reconciler *reconcile.Reconciler
	Dump     *dump.Writer
	Log      logr.Logger
}

// Reconcile runs exactly one fetch-aggregate-render-reconcile cycle for
// spec, in the strictly sequential order spec §4.6's Design Note requires.
func (p *Pipeline) Reconcile(ctx context.Context, spec template.Spec) error {
	cycleID := uuid.NewString()
	log := p.Log.WithValues("template", spec.Name, "cycle", cycleID)
	start := time.Now()
	defer func() {
		metrics.RenderCycleDuration.WithLabelValues(spec.Name).Observe(time.Since(start).Seconds())
	}()

	items, parentItems, err := p.fetch(ctx, spec)
	if err != nil {
		return err
	}
	p.Dump.WriteStage(spec.Name, dump.StageKinds, items)

	parentKind, err := p.Registry.Kind(spec.Parent.Kind)
	if err != nil {
		return err
	}
	childKind, err := p.Registry.Kind(spec.Child.Kind)
	if err != nil {
		return err
	}

	cfg := aggregate.Config{
		TemplateName:    spec.Name,
		ParentKind:      spec.Parent.Kind,
		ChildKind:       spec.Child.Kind,
		ChildGroup:      childKind.Group,
		ChildVersion:    childKind.Version,
		OwnerReferences: spec.OwnerReferences,
		Component:       spec.Component,
		LabelName:       "name",
		LabelInstance:   "instance",
		LabelDomainName: "domainName",
		LabelComponent:  "component",
		LabelManagedBy:  "managedBy",
	}
	cycle := aggregate.NewCycle(cfg, parentItems)

	p.Dump.WriteStage(spec.Name, dump.StageObjects, cycle.Objects())
	p.Dump.WriteStage(spec.Name, dump.StageDomains, cycle.Domains())
	p.Dump.WriteStage(spec.Name, dump.StageNamespaces, cycle.Namespaces())
	p.Dump.WriteStage(spec.Name, dump.StageClusters, cycle.Cluster())
	p.Dump.WriteStage(spec.Name, dump.StageTemplate, spec.Template)

	scopeItems, err := cycle.ForScope(string(spec.Scope))
	if err != nil {
		return err
	}

	renderCtx := render.Context{
		Parent:          parentKind,
		Child:           childKind,
		LabelName:       cfg.LabelName,
		LabelInstance:   cfg.LabelInstance,
		LabelDomainName: cfg.LabelDomainName,
		LabelComponent:  cfg.LabelComponent,
		LabelManagedBy:  cfg.LabelManagedBy,
		Component:       spec.Component,
		ManagedBy:       spec.Name,
	}

	itemsSpread := make(map[string][]interface{}, len(items))
	for kind, docs := range items {
		spread := make([]interface{}, len(docs))
		for i, d := range docs {
			spread[i] = d
		}
		itemsSpread[strings.ToLower(kind)+"s"] = spread
	}

	rendered, err := p.Renderer.Render(spec.Template, itemsSpread, scopeItems, renderCtx)
	if err != nil {
		log.Error(err, "render cycle aborted")
		return err
	}
	p.Dump.WriteStage(spec.Name, dump.StageRenders, rendered)

	results := p.Reconciler.Apply(ctx, rendered)
	for _, result := range results {
		metrics.ReconcileTotal.WithLabelValues(spec.Name, result.Kind, string(result.Outcome)).Inc()
		p.Dump.WriteResult(result)
		if result.Err != nil {
			log.Error(result.Err, "reconcile failed", "kind", result.Kind, "name", result.Name)
		}
	}

	metrics.RenderCyclesTotal.WithLabelValues(spec.Name).Inc()
	log.Info("render cycle complete", "renderedCount", len(rendered), "scopeItemCount", len(scopeItems))
	return nil
}

// fetch lists every referenced kind and re-fetches each item individually,
// per spec §4.6's "listing followed by per-item GET is retained to pick up
// fields that list endpoints elide". Returns both the full items map (for
// the renderer's spread) and the parent kind's items alone (for
// aggregation).
func (p *Pipeline) fetch(ctx context.Context, spec template.Spec) (map[string][]document.Doc, []document.Doc, error) {
	items := make(map[string][]document.Doc, len(spec.Kinds()))
	for _, kindName := range spec.Kinds() {
		kind, err := p.Registry.Kind(kindName)
		if err != nil {
			p.Log.Error(err, "skipping unknown kind", "kind", kindName, "template", spec.Name)
			continue
		}
		listed, err := p.Lister.List(ctx, kind, "")
		if err != nil {
			return nil, nil, err
		}
		full := make([]document.Doc, 0, len(listed))
		for _, item := range listed {
			namespace := document.GetString(item, "metadata.namespace", "")
			name := document.GetString(item, "metadata.name", "")
			if name == "" {
				continue
			}
			fetched, err := p.Lister.Get(ctx, kind, namespace, name)
			if err != nil {
				p.Log.Error(err, "per-item get failed, using list body", "kind", kindName, "name", name)
				fetched = item
			}
			full = append(full, fetched)
		}
		items[kindName] = full
	}
	return items, items[spec.Parent.Kind], nil
}
