// Package aggregate implements the projection pipeline of spec §4.6: it
// turns the flat set of current parent and monitored objects into the
// Objects/Domains/Namespaces/Clusters views the renderer selects between
// by a template's scope.
package aggregate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/illallangi/alfaoperator/internal/document"
)

// Config names the pieces of an AlfaTemplate the aggregator needs,
// independent of the template package's Spec type so this package never
// imports it (the projection math only cares about these values, not
// about watch kinds or cooldown).
type Config struct {
	TemplateName string

	ParentKind   string
	ChildKind    string
	ChildGroup   string
	ChildVersion string

	OwnerReferences bool
	Component       string

	LabelName       string
	LabelInstance   string
	LabelDomainName string
	LabelComponent  string
	LabelManagedBy  string
}

// Cycle holds one render cycle's parent item list and its lazily computed
// projections. Every getter memoizes within the cycle but a Cycle must
// never be reused across render cycles, since the underlying parent items
// are a point-in-time snapshot (spec §4.6 Design Note).
type Cycle struct {
	cfg          Config
	parentItems  []document.Doc
	objects      []document.Doc
	objectsDone  bool
	domains      []document.Doc
	domainsDone  bool
	namespaces   []document.Doc
	namespacesDone bool
	cluster      document.Doc
	clusterDone  bool
}

// NewCycle starts a fresh aggregation cycle over the given parent items.
func NewCycle(cfg Config, parentItems []document.Doc) *Cycle {
	return &Cycle{cfg: cfg, parentItems: parentItems}
}

// Objects returns the per-parent-item projection (spec §4.6.1), computing
// it on first call and memoizing thereafter.
func (c *Cycle) Objects() []document.Doc {
	if c.objectsDone {
		return c.objects
	}
	out := make([]document.Doc, 0, len(c.parentItems))
	for _, p := range c.parentItems {
		out = append(out, c.objectFor(p))
	}
	c.objects = out
	c.objectsDone = true
	return c.objects
}

func (c *Cycle) objectFor(p document.Doc) document.Doc {
	cfg := c.cfg
	name := document.GetString(p, "metadata.labels."+cfg.LabelName, strings.ToLower(cfg.ParentKind))
	instance := document.GetString(p, "metadata.labels."+cfg.LabelInstance, document.GetString(p, "metadata.name", ""))
	domainName := document.GetString(p, "metadata.labels."+cfg.LabelDomainName, document.GetString(p, "spec.domainName", ""))
	component := document.GetString(p, "metadata.labels."+cfg.LabelComponent, cfg.Component)

	hash, _ := document.CheapHash(domainName, 6)

	var owners []interface{}
	if cfg.OwnerReferences {
		owners = []interface{}{ownerRef(p)}
	} else {
		owners = []interface{}{}
	}

	labels := document.Doc{
		cfg.LabelName:       name,
		cfg.LabelInstance:   instance,
		cfg.LabelDomainName: domainName,
		cfg.LabelComponent:  component,
		cfg.LabelManagedBy:  cfg.TemplateName,
	}

	return document.Doc{
		"kind":       cfg.ChildKind,
		"apiVersion": document.JoinNonEmpty("/", cfg.ChildGroup, cfg.ChildVersion),
		"metadata": document.Doc{
			"namespace":       document.GetString(p, "metadata.namespace", ""),
			"labels":          labels,
			"ownerReferences": owners,
		},
		"selector": document.Clone(labels),
		"_name":    document.JoinNonEmpty("-", strings.ToLower(cfg.ParentKind), document.GetString(p, "metadata.name", ""), hash, component),
		"spec":     document.GetMap(p, "spec"),
		"subsets":  document.RecursiveGet(p, "subsets", "."),
	}
}

func ownerRef(p document.Doc) document.Doc {
	return document.Doc{
		"apiVersion":         document.GetString(p, "apiVersion", ""),
		"kind":               document.GetString(p, "kind", ""),
		"name":               document.GetString(p, "metadata.name", ""),
		"uid":                document.GetString(p, "metadata.uid", ""),
		"controller":         true,
		"blockOwnerDeletion": true,
	}
}

// Domains returns the spec.domainName-grouped projection (spec §4.6.2).
func (c *Cycle) Domains() []document.Doc {
	if c.domainsDone {
		return c.domains
	}
	objects := c.Objects()
	groups := groupBySpecDomainName(objects)

	out := make([]document.Doc, 0, len(groups))
	for _, key := range sortedKeys(groups) {
		members := groups[key]
		base := document.CommonAll(members)

		hash, _ := document.CheapHash(key, 6)
		patch := document.Doc{
			"metadata": document.Doc{
				"labels": document.Doc{c.cfg.LabelInstance: ""},
			},
			"_name":   document.JoinNonEmpty("-", strings.ToLower(c.cfg.ParentKind), hash, c.cfg.Component),
			"objects": toInterfaceSlice(members),
		}
		if c.cfg.OwnerReferences {
			patch = document.Merge(patch, document.Doc{
				"metadata": document.Doc{"ownerReferences": c.ownerRefsForDomain(key)},
			})
		}
		out = append(out, document.Merge(base, patch))
	}
	c.domains = out
	c.domainsDone = true
	return c.domains
}

func (c *Cycle) ownerRefsForDomain(domainName string) []interface{} {
	var refs []interface{}
	for _, p := range c.parentItems {
		if document.GetString(p, "spec.domainName", "") != domainName {
			continue
		}
		refs = append(refs, ownerRef(p))
	}
	if refs == nil {
		refs = []interface{}{}
	}
	return refs
}

// Namespaces returns the metadata.namespace-grouped projection (spec
// §4.6.3).
func (c *Cycle) Namespaces() []document.Doc {
	if c.namespacesDone {
		return c.namespaces
	}
	objects := c.Objects()
	groups := groupBy(objects, "__namespace__")
	domains := c.Domains()

	out := make([]document.Doc, 0, len(groups))
	for _, ns := range sortedKeys(groups) {
		members := groups[ns]
		base := document.CommonAll(members)

		var nsDomains []interface{}
		for _, d := range domains {
			for _, raw := range document.GetSlice(d, "objects") {
				obj, ok := raw.(document.Doc)
				if ok && document.GetString(obj, "metadata.namespace", "") == ns {
					nsDomains = append(nsDomains, d)
					break
				}
			}
		}
		if nsDomains == nil {
			nsDomains = []interface{}{}
		}

		patch := document.Doc{
			"metadata": document.Doc{
				"labels": document.Doc{c.cfg.LabelDomainName: ""},
			},
			"_name":      document.JoinNonEmpty("-", strings.ToLower(c.cfg.ParentKind), c.cfg.Component),
			"domains":    nsDomains,
			"objects":    toInterfaceSlice(members),
		}
		if c.cfg.OwnerReferences {
			patch = document.Merge(patch, document.Doc{
				"metadata": document.Doc{"ownerReferences": c.ownerRefsForNamespace(ns)},
			})
		}
		out = append(out, document.Merge(base, patch))
	}
	c.namespaces = out
	c.namespacesDone = true
	return c.namespaces
}

func (c *Cycle) ownerRefsForNamespace(ns string) []interface{} {
	var refs []interface{}
	for _, p := range c.parentItems {
		if document.GetString(p, "metadata.namespace", "") != ns {
			continue
		}
		refs = append(refs, ownerRef(p))
	}
	if refs == nil {
		refs = []interface{}{}
	}
	return refs
}

// Cluster returns the single-element whole-graph projection (spec
// §4.6.4).
func (c *Cycle) Cluster() document.Doc {
	if c.clusterDone {
		return c.cluster
	}
	objects := c.Objects()
	base := document.CommonAll(objects)

	var owners []interface{}
	if c.cfg.OwnerReferences {
		for _, p := range c.parentItems {
			owners = append(owners, ownerRef(p))
		}
	}
	if owners == nil {
		owners = []interface{}{}
	}

	patch := document.Doc{
		"metadata": document.Doc{
			"namespace":       nil,
			"ownerReferences": owners,
		},
		"_name":      document.JoinNonEmpty("-", strings.ToLower(c.cfg.ParentKind), c.cfg.Component),
		"namespaces": toInterfaceSlice(c.Namespaces()),
		"domains":    toInterfaceSlice(c.Domains()),
		"objects":    toInterfaceSlice(objects),
	}
	c.cluster = document.Merge(base, patch)
	c.clusterDone = true
	return c.cluster
}

// ForScope resolves a scope name to the corresponding projection, wrapping
// Cluster's single document in a one-element slice so every scope yields
// a list of render inputs per spec §4.6.
func (c *Cycle) ForScope(scope string) ([]document.Doc, error) {
	switch scope {
	case "Object":
		return c.Objects(), nil
	case "Domain":
		return c.Domains(), nil
	case "Namespace":
		return c.Namespaces(), nil
	case "Cluster":
		return []document.Doc{c.Cluster()}, nil
	default:
		return nil, fmt.Errorf("aggregate: unknown scope %q", scope)
	}
}

func groupBy(objects []document.Doc, labelKey string) map[string][]document.Doc {
	groups := make(map[string][]document.Doc)
	for _, o := range objects {
		var key string
		if labelKey == "__namespace__" {
			key = document.GetString(o, "metadata.namespace", "")
		} else {
			key = document.GetString(o, "metadata.labels."+labelKey, "")
		}
		groups[key] = append(groups[key], o)
	}
	return groups
}

// groupBySpecDomainName groups by each Object's raw spec.domainName field
// (copied verbatim from the parent item's spec), per spec §4.6.2 — not by
// the label-overridden domain name objectFor computes, since a parent
// carrying an explicit domainName label would otherwise group under a key
// no parent's raw spec.domainName ever matches.
func groupBySpecDomainName(objects []document.Doc) map[string][]document.Doc {
	groups := make(map[string][]document.Doc)
	for _, o := range objects {
		key := document.GetString(o, "spec.domainName", "")
		groups[key] = append(groups[key], o)
	}
	return groups
}

func sortedKeys(groups map[string][]document.Doc) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func toInterfaceSlice(docs []document.Doc) []interface{} {
	out := make([]interface{}, len(docs))
	for i, d := range docs {
		out[i] = d
	}
	return out
}
