package pipeline

import (
	"context"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/illallangi/alfaoperator/internal/apikind"
	"github.com/illallangi/alfaoperator/internal/document"
	"github.com/illallangi/alfaoperator/internal/dump"
	"github.com/illallangi/alfaoperator/internal/reconcile"
	"github.com/illallangi/alfaoperator/internal/render"
	"github.com/illallangi/alfaoperator/internal/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	byKind map[string][]document.Doc
}

func (f *fakeLister) List(ctx context.Context, kind apikind.APIKind, namespace string) ([]document.Doc, error) {
	return f.byKind[kind.Kind], nil
}

func (f *fakeLister) Get(ctx context.Context, kind apikind.APIKind, namespace, name string) (document.Doc, error) {
	for _, d := range f.byKind[kind.Kind] {
		if document.GetString(d, "metadata.name", "") == name {
			return d, nil
		}
	}
	return nil, reconcile.ErrNotFound
}

type fakeReconcileClient struct {
	created []document.Doc
}

func (f *fakeReconcileClient) Get(ctx context.Context, kind apikind.APIKind, namespace, name string) (document.Doc, error) {
	return nil, reconcile.ErrNotFound
}

func (f *fakeReconcileClient) Create(ctx context.Context, kind apikind.APIKind, namespace string, body document.Doc) (document.Doc, error) {
	f.created = append(f.created, body)
	return body, nil
}

func (f *fakeReconcileClient) Update(ctx context.Context, kind apikind.APIKind, namespace, name string, body document.Doc) (document.Doc, error) {
	return body, nil
}

func TestPipelineReconcileEndToEnd(t *testing.T) {
	registry := apikind.NewStaticRegistry(map[string]apikind.APIKind{
		"Widget":    {Kind: "Widget", Resource: "widgets", Version: "v1", Namespaced: true},
		"ConfigMap": {Kind: "ConfigMap", Resource: "configmaps", Version: "v1", Namespaced: true},
	})

	lister := &fakeLister{byKind: map[string][]document.Doc{
		"Widget": {
			{
				"apiVersion": "v1",
				"kind":       "Widget",
				"metadata":   document.Doc{"name": "widget-a", "namespace": "ns1"},
				"spec":       document.Doc{"domainName": "example.com"},
			},
		},
	}}

	rc := &fakeReconcileClient{}
	p := &Pipeline{
		Registry: registry,
		Lister:   lister,
		Renderer: render.NewTextTemplateRenderer(),
		Reconciler: &reconcile.Reconciler{
			Registry: registry,
			Client:   rc,
			Log:      testr.New(t),
		},
		Dump: &dump.Writer{},
		Log:  testr.New(t),
	}

	spec := template.Spec{
		Name:            "widget-config",
		Parent:          template.KindRef{Kind: "Widget"},
		Child:           template.KindRef{Kind: "ConfigMap"},
		Scope:           template.ScopeObject,
		Template:        "kind: ConfigMap\nmetadata:\n  name: {{ .name }}-{{ .instance }}\n",
		OwnerReferences: true,
		Component:       "routing",
	}

	err := p.Reconcile(context.Background(), spec)
	require.NoError(t, err)
	require.Len(t, rc.created, 1)
	assert.Equal(t, "ConfigMap", rc.created[0]["kind"])
}
