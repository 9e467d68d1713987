package reconcile

import (
	"context"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/illallangi/alfaoperator/internal/apikind"
	"github.com/illallangi/alfaoperator/internal/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	existing map[string]document.Doc
	creates  []document.Doc
	updates  []document.Doc
	nextRV   string
}

func key(namespace, name string) string { return namespace + "/" + name }

func (f *fakeClient) Get(ctx context.Context, kind apikind.APIKind, namespace, name string) (document.Doc, error) {
	d, ok := f.existing[key(namespace, name)]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

func (f *fakeClient) Create(ctx context.Context, kind apikind.APIKind, namespace string, body document.Doc) (document.Doc, error) {
	f.creates = append(f.creates, body)
	return body, nil
}

func (f *fakeClient) Update(ctx context.Context, kind apikind.APIKind, namespace, name string, body document.Doc) (document.Doc, error) {
	f.updates = append(f.updates, body)
	out := document.Clone(body)
	out["metadata"].(document.Doc)["resourceVersion"] = f.nextRV
	return out, nil
}

func newReconciler(t *testing.T, fc *fakeClient) *Reconciler {
	return &Reconciler{Registry: apikind.NewStaticRegistry(nil), Client: fc, Log: testr.New(t)}
}

func registryWith(t *testing.T, kind, resource, group, version string, namespaced bool) *apikind.Registry {
	t.Helper()
	return apikind.NewStaticRegistry(map[string]apikind.APIKind{
		kind: {Kind: kind, Resource: resource, Group: group, Version: version, Namespaced: namespaced},
	})
}

func TestApplyCreatesWhenMissing(t *testing.T) {
	fc := &fakeClient{existing: map[string]document.Doc{}}
	r := newReconciler(t, fc)
	r.Registry = registryWith(t, "ConfigMap", "configmaps", "", "v1", true)

	doc := document.Doc{"kind": "ConfigMap", "metadata": document.Doc{"namespace": "ns1", "name": "widget-a"}}
	results := r.Apply(context.Background(), []document.Doc{doc})

	require.Len(t, results, 1)
	assert.Equal(t, OutcomeCreated, results[0].Outcome)
	assert.Len(t, fc.creates, 1)
}

func TestApplySkipsUpdateFalse(t *testing.T) {
	fc := &fakeClient{existing: map[string]document.Doc{
		"ns1/widget-a": {"kind": "ConfigMap", "metadata": document.Doc{"namespace": "ns1", "name": "widget-a", "resourceVersion": "1"}},
	}}
	r := newReconciler(t, fc)
	r.Registry = registryWith(t, "ConfigMap", "configmaps", "", "v1", true)

	doc := document.Doc{
		"kind":     "ConfigMap",
		"metadata": document.Doc{"namespace": "ns1", "name": "widget-a"},
		"spec":     document.Doc{"update": false},
	}
	results := r.Apply(context.Background(), []document.Doc{doc})

	require.Len(t, results, 1)
	assert.Equal(t, OutcomeSkipped, results[0].Outcome)
	assert.Empty(t, fc.updates)
}

func TestApplySkipsPersistentVolumeClaim(t *testing.T) {
	fc := &fakeClient{existing: map[string]document.Doc{
		"ns1/data": {"kind": "PersistentVolumeClaim", "metadata": document.Doc{"namespace": "ns1", "name": "data", "resourceVersion": "1"}},
	}}
	r := newReconciler(t, fc)
	r.Registry = registryWith(t, "PersistentVolumeClaim", "persistentvolumeclaims", "", "v1", true)

	doc := document.Doc{"kind": "PersistentVolumeClaim", "metadata": document.Doc{"namespace": "ns1", "name": "data"}}
	results := r.Apply(context.Background(), []document.Doc{doc})

	require.Len(t, results, 1)
	assert.Equal(t, OutcomeSkipped, results[0].Outcome)
}

func TestApplyPreservesClusterIPAndReportsUpdated(t *testing.T) {
	fc := &fakeClient{
		nextRV: "2",
		existing: map[string]document.Doc{
			"ns1/svc": {
				"kind": "Service",
				"metadata": document.Doc{"namespace": "ns1", "name": "svc", "resourceVersion": "1"},
				"spec": document.Doc{
					"clusterIP":             "10.0.0.5",
					"externalTrafficPolicy": "Local",
					"healthCheckNodePort":   float64(30000),
				},
			},
		},
	}
	r := newReconciler(t, fc)
	r.Registry = registryWith(t, "Service", "services", "", "v1", true)

	doc := document.Doc{
		"kind":     "Service",
		"metadata": document.Doc{"namespace": "ns1", "name": "svc"},
		"spec":     document.Doc{"type": "ClusterIP"},
	}
	results := r.Apply(context.Background(), []document.Doc{doc})

	require.Len(t, results, 1)
	assert.Equal(t, OutcomeUpdated, results[0].Outcome)
	require.Len(t, fc.updates, 1)
	appliedSpec := fc.updates[0]["spec"].(document.Doc)
	assert.Equal(t, "10.0.0.5", appliedSpec["clusterIP"])
	assert.Equal(t, float64(30000), appliedSpec["healthCheckNodePort"])
}

func TestApplySkipsDocumentWithNoKind(t *testing.T) {
	fc := &fakeClient{existing: map[string]document.Doc{}}
	r := newReconciler(t, fc)

	results := r.Apply(context.Background(), []document.Doc{{"metadata": document.Doc{"name": "x"}}})
	assert.Empty(t, results)
}
