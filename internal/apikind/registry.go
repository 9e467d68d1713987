// Package apikind implements the API kind registry (spec §4.1): the
// startup discovery pass that turns a Kubernetes-style API server's group
// list into a kind -> {group, version, resource, URL} map, plus the typed
// REST façade every other component calls through instead of talking to
// discovery or URL construction again.
package apikind

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
)

// APIKind is the immutable, discovered description of one Kubernetes kind:
// its group/version/resource coordinates and the REST client that talks to
// that group-version's API root.
type APIKind struct {
	Kind       string
	Group      string
	Version    string
	Resource   string
	Namespaced bool

	client rest.Interface
}

// GroupVersion returns "group/version", or bare "version" for the legacy
// unversioned core group, matching the apiVersion field Kubernetes objects
// carry.
func (k APIKind) GroupVersion() string {
	if k.Group == "" {
		return k.Version
	}
	return k.Group + "/" + k.Version
}

func (k APIKind) groupVersionRoot() string {
	if k.Group == "" {
		return "/api/" + k.Version
	}
	return "/apis/" + k.Group + "/" + k.Version
}

// ListURL returns the collection path for this kind, optionally scoped to a
// namespace for namespaced kinds.
func (k APIKind) ListURL(namespace string) string {
	if k.Namespaced && namespace != "" {
		return fmt.Sprintf("%s/namespaces/%s/%s", k.groupVersionRoot(), namespace, k.Resource)
	}
	return fmt.Sprintf("%s/%s", k.groupVersionRoot(), k.Resource)
}

// ItemURL returns the single-object path for this kind, per spec §6's
// namespaced/cluster-scoped URL patterns.
func (k APIKind) ItemURL(namespace, name string) string {
	return k.ListURL(namespace) + "/" + name
}

// RESTClient returns the raw REST client for this kind's group-version, for
// callers (the watcher, the reconciler) that need to issue arbitrary
// verbs/params beyond what this package models.
func (k APIKind) RESTClient() rest.Interface {
	return k.client
}

// Registry is the discovered kind -> APIKind map. It is built once at
// startup and never mutated afterward, per spec §4.1's "immutable
// afterward" invariant.
type Registry struct {
	cfg       *rest.Config
	discovery discovery.DiscoveryInterface
	log       logr.Logger

	kinds   map[string]APIKind
	clients map[schema.GroupVersion]rest.Interface
}

// NewRegistry builds a Registry against the given REST config. Discover
// must be called before Kind/ListURL/ItemURL are used.
func NewRegistry(cfg *rest.Config, log logr.Logger) (*Registry, error) {
	disco, err := discovery.NewDiscoveryClientForConfig(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "building discovery client")
	}
	return &Registry{
		cfg:       cfg,
		discovery: disco,
		log:       log.WithName("apikind"),
		kinds:     make(map[string]APIKind),
		clients:   make(map[schema.GroupVersion]rest.Interface),
	}, nil
}

// Discover enumerates the unversioned core group and every API group,
// preferring each group's PreferredVersion while still including every
// non-preferred group-version, per spec §4.1. Resources whose name
// contains a "/" (subresources) are skipped. Failure here is fatal at
// startup, per spec §7.
func (r *Registry) Discover(ctx context.Context) error {
	core, err := r.discovery.ServerResourcesForGroupVersion("v1")
	if err != nil {
		return errors.Wrap(err, "discovering core/v1 resources")
	}
	if err := r.addGroupVersion(schema.GroupVersion{Version: "v1"}, core.APIResources); err != nil {
		return err
	}

	groups, err := r.discovery.ServerGroups()
	if err != nil {
		return errors.Wrap(err, "discovering API groups")
	}

	for _, group := range groups.Groups {
		versions := map[string]bool{}
		if group.PreferredVersion.Version != "" {
			gv := schema.GroupVersion{Group: group.Name, Version: group.PreferredVersion.Version}
			if err := r.discoverGroupVersion(gv); err != nil {
				return err
			}
			versions[group.PreferredVersion.Version] = true
		}
		for _, v := range group.Versions {
			if versions[v.Version] {
				continue
			}
			gv := schema.GroupVersion{Group: group.Name, Version: v.Version}
			if err := r.discoverGroupVersion(gv); err != nil {
				return err
			}
			versions[v.Version] = true
		}
	}

	r.log.Info("discovery complete", "kinds", len(r.kinds))
	return nil
}

func (r *Registry) discoverGroupVersion(gv schema.GroupVersion) error {
	list, err := r.discovery.ServerResourcesForGroupVersion(gv.String())
	if err != nil {
		return errors.Wrapf(err, "discovering %s resources", gv)
	}
	return r.addGroupVersion(gv, list.APIResources)
}

func (r *Registry) addGroupVersion(gv schema.GroupVersion, resources []metav1.APIResource) error {
	client, err := r.clientFor(gv)
	if err != nil {
		return err
	}
	for _, res := range resources {
		if strings.Contains(res.Name, "/") {
			continue // subresource (status, scale, ...)
		}
		kind := APIKind{
			Kind:       res.Kind,
			Group:      gv.Group,
			Version:    gv.Version,
			Resource:   res.Name,
			Namespaced: res.Namespaced,
			client:     client,
		}
		if existing, ok := r.kinds[kind.Kind]; ok {
			r.log.V(1).Info("kind already registered, keeping first seen", "kind", kind.Kind, "existingGroupVersion", existing.GroupVersion(), "skippedGroupVersion", kind.GroupVersion())
			continue
		}
		r.kinds[kind.Kind] = kind
	}
	return nil
}

func (r *Registry) clientFor(gv schema.GroupVersion) (rest.Interface, error) {
	if c, ok := r.clients[gv]; ok {
		return c, nil
	}
	cfg := *r.cfg
	cfg.GroupVersion = &gv
	if gv.Group == "" {
		cfg.APIPath = "/api"
	} else {
		cfg.APIPath = "/apis"
	}
	cfg.NegotiatedSerializer = scheme.Codecs.WithoutConversion()
	client, err := rest.RESTClientFor(&cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "building REST client for %s", gv)
	}
	r.clients[gv] = client
	return client, nil
}

// NewStaticRegistry builds a Registry from an already-known kind map,
// bypassing discovery. Used by tests and by callers (such as the
// reconciler's own tests) that need an APIKind without a live API server.
func NewStaticRegistry(kinds map[string]APIKind) *Registry {
	return &Registry{kinds: kinds}
}

// Kind resolves a kind name to its discovered APIKind, with a fuzzy-match
// hint in the error when the kind is unknown (spec §7 "Unknown kind
// referenced by template").
func (r *Registry) Kind(kind string) (APIKind, error) {
	if k, ok := r.kinds[kind]; ok {
		return k, nil
	}
	if hint := r.fuzzyMatch(kind); hint != "" {
		return APIKind{}, errors.Errorf("unknown kind %q, did you mean %q?", kind, hint)
	}
	return APIKind{}, errors.Errorf("unknown kind %q", kind)
}

func (r *Registry) fuzzyMatch(kind string) string {
	lower := strings.ToLower(kind)
	for k := range r.kinds {
		if strings.EqualFold(k, kind) || strings.Contains(strings.ToLower(k), lower) {
			return k
		}
	}
	return ""
}

// ListURL resolves kind to its collection path.
func (r *Registry) ListURL(kind, namespace string) (string, error) {
	k, err := r.Kind(kind)
	if err != nil {
		return "", err
	}
	return k.ListURL(namespace), nil
}

// ItemURL resolves kind to a single-object path.
func (r *Registry) ItemURL(kind, namespace, name string) (string, error) {
	k, err := r.Kind(kind)
	if err != nil {
		return "", err
	}
	return k.ItemURL(namespace, name), nil
}
