// Package reconcile implements the convergence loop of spec §4.8: for
// every rendered document, GET its target URL, then POST (create) or PUT
// (update) it, applying the server-assigned-field preservation carve-outs
// Kubernetes-style APIs require on update.
package reconcile

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/illallangi/alfaoperator/internal/apikind"
	"github.com/illallangi/alfaoperator/internal/document"
)

// Outcome classifies what happened to one rendered document, mirroring
// spec §9's supplemented per-reconcile outcome log.
type Outcome string

const (
	OutcomeCreated  Outcome = "created"
	OutcomeUpdated  Outcome = "updated"
	OutcomeNoChange Outcome = "no_change"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// Client is the REST surface reconcile needs against one discovered kind:
// get-by-name (ErrNotFound on 404), create, and update.
type Client interface {
	Get(ctx context.Context, kind apikind.APIKind, namespace, name string) (document.Doc, error)
	Create(ctx context.Context, kind apikind.APIKind, namespace string, body document.Doc) (document.Doc, error)
	Update(ctx context.Context, kind apikind.APIKind, namespace, name string, body document.Doc) (document.Doc, error)
}

// ErrNotFound is returned by Client.Get when the target object does not
// exist, triggering the create path.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "reconcile: object not found" }

// Result records the outcome of reconciling one document, for dump/metric
// consumers.
type Result struct {
	Kind      string
	Namespace string
	Name      string
	Outcome   Outcome
	Err       error

	Existing document.Doc
	Applied  document.Doc
}

// Reconciler converges rendered documents against the discovered API
// surface, logging and continuing past any single document's failure
// (spec §4.8 "All per-document errors are caught and logged").
type Reconciler struct {
	Registry *apikind.Registry
	Client   Client
	Log      logr.Logger

	// DryRun renders and classifies outcomes but never calls Create or
	// Update, per the supplemented --dry-run flag (spec §9 Open Question 2).
	DryRun bool
}

// Apply reconciles every rendered document in order, skipping documents
// with no kind silently per spec §4.8, and returns one Result per
// document that was attempted.
func (r *Reconciler) Apply(ctx context.Context, rendered []document.Doc) []Result {
	results := make([]Result, 0, len(rendered))
	for _, doc := range rendered {
		kindName := document.GetString(doc, "kind", "")
		if kindName == "" {
			continue
		}
		results = append(results, r.apply(ctx, kindName, doc))
	}
	return results
}

func (r *Reconciler) apply(ctx context.Context, kindName string, rendered document.Doc) Result {
	namespace := document.GetString(rendered, "metadata.namespace", "")
	name := document.GetString(rendered, "metadata.name", "")
	result := Result{Kind: kindName, Namespace: namespace, Name: name, Applied: rendered}

	kind, err := r.Registry.Kind(kindName)
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Err = err
		r.Log.Error(err, "unknown kind in rendered document", "kind", kindName, "name", name)
		return result
	}

	existing, err := r.Client.Get(ctx, kind, namespace, name)
	if err == ErrNotFound {
		return r.create(ctx, kind, namespace, rendered, result)
	}
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Err = err
		r.Log.Error(err, "get failed", "kind", kindName, "namespace", namespace, "name", name)
		return result
	}

	result.Existing = existing
	return r.update(ctx, kind, namespace, name, existing, rendered, result)
}

func (r *Reconciler) create(ctx context.Context, kind apikind.APIKind, namespace string, rendered document.Doc, result Result) Result {
	if r.DryRun {
		result.Outcome = OutcomeCreated
		return result
	}
	_, err := r.Client.Create(ctx, kind, namespace, rendered)
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Err = err
		r.Log.Error(err, "create failed", "kind", kind.Kind, "namespace", namespace, "name", result.Name)
		return result
	}
	result.Outcome = OutcomeCreated
	return result
}

func (r *Reconciler) update(ctx context.Context, kind apikind.APIKind, namespace, name string, existing, rendered document.Doc, result Result) Result {
	if !document.GetBool(rendered, "spec.update", true) {
		result.Outcome = OutcomeSkipped
		return result
	}
	if kind.Kind == "PersistentVolumeClaim" {
		result.Outcome = OutcomeSkipped
		return result
	}

	toApply := document.Clone(rendered)
	setResourceVersion(toApply, document.GetString(existing, "metadata.resourceVersion", ""))
	preserveServerAssignedFields(existing, toApply)

	existingRV := document.GetString(existing, "metadata.resourceVersion", "")

	if r.DryRun {
		result.Outcome = OutcomeNoChange
		result.Applied = toApply
		return result
	}

	updated, err := r.Client.Update(ctx, kind, namespace, name, toApply)
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Err = err
		r.Log.Error(err, "update failed", "kind", kind.Kind, "namespace", namespace, "name", name)
		return result
	}
	result.Applied = updated

	newRV := document.GetString(updated, "metadata.resourceVersion", "")
	if newRV != existingRV {
		result.Outcome = OutcomeUpdated
	} else {
		result.Outcome = OutcomeNoChange
	}
	return result
}

// preserveServerAssignedFields copies the three server-assigned fields
// spec §4.8 step 4d names from existing into toApply, so a PUT does not
// clobber state only the server ever sets.
func preserveServerAssignedFields(existing, toApply document.Doc) {
	if rev, _ := document.RecursiveGet(existing, "metadata#annotations#deployment.kubernetes.io/revision", "#").(string); rev != "" {
		setAnnotation(toApply, "deployment.kubernetes.io/revision", rev)
	}
	if clusterIP := document.GetString(existing, "spec.clusterIP", ""); clusterIP != "" {
		setSpecField(toApply, "clusterIP", clusterIP)
	}
	if document.GetString(existing, "kind", "") == "Service" &&
		document.GetString(existing, "spec.externalTrafficPolicy", "") == "Local" {
		if port := document.RecursiveGet(existing, "spec.healthCheckNodePort", "."); port != nil {
			setSpecField(toApply, "healthCheckNodePort", port)
		}
	}
}

func setResourceVersion(doc document.Doc, rv string) {
	meta, ok := doc["metadata"].(document.Doc)
	if !ok {
		meta = document.Doc{}
		doc["metadata"] = meta
	}
	meta["resourceVersion"] = rv
}

func setAnnotation(doc document.Doc, key, value string) {
	meta, ok := doc["metadata"].(document.Doc)
	if !ok {
		meta = document.Doc{}
		doc["metadata"] = meta
	}
	annotations, ok := meta["annotations"].(document.Doc)
	if !ok {
		annotations = document.Doc{}
		meta["annotations"] = annotations
	}
	annotations[key] = value
}

func setSpecField(doc document.Doc, key string, value interface{}) {
	spec, ok := doc["spec"].(document.Doc)
	if !ok {
		spec = document.Doc{}
		doc["spec"] = spec
	}
	spec[key] = value
}
