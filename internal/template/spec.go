// Package template holds the parsed shape of an AlfaTemplate custom
// resource (spec §4.3) and the controller/consumer pair that turn a
// stream of watch events on its parent and monitored kinds into
// render-and-reconcile cycles.
package template

import (
	"fmt"

	"github.com/illallangi/alfaoperator/internal/document"
)

// Scope selects which projection of the aggregated object graph a
// template renders against, per spec §4.6.
type Scope string

const (
	ScopeObject    Scope = "Object"
	ScopeDomain    Scope = "Domain"
	ScopeNamespace Scope = "Namespace"
	ScopeCluster   Scope = "Cluster"
)

// KindRef names one kind referenced by a template (parent, monitored or
// child). It carries the kind name only.
type KindRef struct {
	Kind string
}

// Labels holds the spec.labels.* and spec.component values parsed from an
// AlfaTemplate. The aggregation and render path does not read it:
// internal/pipeline stamps objects using the fixed label keys name,
// instance, domainName, component and managedBy.
type Labels struct {
	Name       string
	Instance   string
	DomainName string
	Component  string
	ManagedBy  string
}

// Spec is the parsed body of one AlfaTemplate resource.
type Spec struct {
	Name string

	Parent    KindRef
	Monitored []KindRef
	Child     KindRef

	Scope    Scope
	Template string

	Update          bool
	OwnerReferences bool

	Component string
	Labels    Labels
}

// Kinds returns the deduplicated set of kinds this template's controller
// must watch: the parent kind plus every monitored kind, per spec §4.3's
// "one Watcher per kind in parent ∪ monitored[]".
func (s Spec) Kinds() []string {
	seen := map[string]bool{s.Parent.Kind: true}
	out := []string{s.Parent.Kind}
	for _, m := range s.Monitored {
		if seen[m.Kind] {
			continue
		}
		seen[m.Kind] = true
		out = append(out, m.Kind)
	}
	return out
}

// ParseSpec extracts a Spec from an AlfaTemplate custom resource's raw
// document, the Go mirror of the Python source's templateController
// constructor argument handling.
func ParseSpec(doc document.Doc) (Spec, error) {
	name := document.GetString(doc, "metadata.name", "")
	if name == "" {
		return Spec{}, fmt.Errorf("alfatemplate missing metadata.name")
	}

	spec := document.GetMap(doc, "spec")
	parentKind := document.GetString(spec, "kinds.parent.kind", "")
	if parentKind == "" {
		return Spec{}, fmt.Errorf("alfatemplate %q missing spec.kinds.parent.kind", name)
	}
	childKind := document.GetString(spec, "kinds.child.kind", "")
	if childKind == "" {
		return Spec{}, fmt.Errorf("alfatemplate %q missing spec.kinds.child.kind", name)
	}

	templateText := document.GetString(spec, "template", "")
	if templateText == "" {
		return Spec{}, fmt.Errorf("alfatemplate %q missing spec.template", name)
	}

	scope := Scope(document.GetString(spec, "scope", string(ScopeObject)))
	switch scope {
	case ScopeObject, ScopeDomain, ScopeNamespace, ScopeCluster:
	default:
		return Spec{}, fmt.Errorf("alfatemplate %q has unknown scope %q", name, scope)
	}

	var monitored []KindRef
	for _, raw := range document.GetSlice(spec, "kinds.monitored") {
		m, ok := raw.(document.Doc)
		if !ok {
			continue
		}
		kind := document.GetString(m, "kind", "")
		if kind == "" {
			continue
		}
		monitored = append(monitored, KindRef{Kind: kind})
	}

	instanceLabel := document.GetString(spec, "labels.instance", name)

	return Spec{
		Name:            name,
		Parent:          KindRef{Kind: parentKind},
		Monitored:       monitored,
		Child:           KindRef{Kind: childKind},
		Scope:           scope,
		Template:        templateText,
		Update:          document.GetBool(spec, "update", true),
		OwnerReferences: document.GetBool(spec, "ownerReferences", true),
		Component:       document.GetString(spec, "component", name),
		Labels: Labels{
			Name:       document.GetString(spec, "labels.name", name),
			Instance:   instanceLabel,
			DomainName: document.GetString(spec, "labels.domainName", ""),
			Component:  document.GetString(spec, "component", name),
			ManagedBy:  "alfaoperator",
		},
	}, nil
}
