package apikind

import (
	"strings"
	"testing"
)

func TestAPIKindURLs(t *testing.T) {
	namespaced := APIKind{Kind: "Service", Group: "", Version: "v1", Resource: "services", Namespaced: true}
	if got, want := namespaced.ListURL("ns1"), "/api/v1/namespaces/ns1/services"; got != want {
		t.Fatalf("ListURL() = %q, want %q", got, want)
	}
	if got, want := namespaced.ItemURL("ns1", "a"), "/api/v1/namespaces/ns1/services/a"; got != want {
		t.Fatalf("ItemURL() = %q, want %q", got, want)
	}

	clusterScoped := APIKind{Kind: "AlfaTemplate", Group: "illallangi.enterprises", Version: "v1alpha1", Resource: "alfatemplates", Namespaced: false}
	if got, want := clusterScoped.ListURL(""), "/apis/illallangi.enterprises/v1alpha1/alfatemplates"; got != want {
		t.Fatalf("ListURL() = %q, want %q", got, want)
	}
	if got, want := clusterScoped.GroupVersion(), "illallangi.enterprises/v1alpha1"; got != want {
		t.Fatalf("GroupVersion() = %q, want %q", got, want)
	}
}

func TestAPIKindGroupVersionCoreGroup(t *testing.T) {
	k := APIKind{Kind: "Pod", Version: "v1"}
	if got, want := k.GroupVersion(), "v1"; got != want {
		t.Fatalf("GroupVersion() = %q, want %q", got, want)
	}
}

func TestRegistryFuzzyMatchHint(t *testing.T) {
	r := &Registry{kinds: map[string]APIKind{
		"ConfigMap": {Kind: "ConfigMap"},
	}}

	_, err := r.Kind("Configmap")
	if err == nil {
		t.Fatalf("expected error for unknown exact case")
	}
	if want := `did you mean "ConfigMap"?`; !strings.Contains(err.Error(), want) {
		t.Fatalf("Kind() error = %q, want it to contain %q", err.Error(), want)
	}
}
