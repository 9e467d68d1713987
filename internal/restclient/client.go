// Package restclient adapts client-go's raw rest.Interface into the
// narrow Get/List/Create/Update surface internal/reconcile and
// internal/pipeline need, translating HTTP status codes into the reconcile package's
// ErrNotFound sentinel per spec §4.8.
package restclient

import (
	"context"
	"encoding/json"

	"github.com/illallangi/alfaoperator/internal/apikind"
	"github.com/illallangi/alfaoperator/internal/document"
	"github.com/illallangi/alfaoperator/internal/reconcile"
	"github.com/pkg/errors"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// Client is the concrete reconcile.Client and pipeline.Lister implementation
// talking to a discovered kind's REST endpoint.
type Client struct{}

// New returns a ready-to-use Client.
func New() *Client { return &Client{} }

// Get fetches one object, returning reconcile.ErrNotFound on a 404.
func (c *Client) Get(ctx context.Context, kind apikind.APIKind, namespace, name string) (document.Doc, error) {
	result := kind.RESTClient().Get().AbsPath(kind.ItemURL(namespace, name)).Do(ctx)
	if err := result.Error(); err != nil {
		if apierrors.IsNotFound(err) {
			return nil, reconcile.ErrNotFound
		}
		return nil, err
	}
	raw, err := result.Raw()
	if err != nil {
		return nil, err
	}
	return decode(raw)
}

// List fetches the collection for kind, returning its items.
func (c *Client) List(ctx context.Context, kind apikind.APIKind, namespace string) ([]document.Doc, error) {
	result := kind.RESTClient().Get().AbsPath(kind.ListURL(namespace)).Do(ctx)
	if err := result.Error(); err != nil {
		return nil, err
	}
	rawBytes, err := result.Raw()
	if err != nil {
		return nil, err
	}
	raw, err := decode(rawBytes)
	if err != nil {
		return nil, err
	}
	items := document.GetSlice(raw, "items")
	out := make([]document.Doc, 0, len(items))
	for _, item := range items {
		if d, ok := item.(document.Doc); ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// Create POSTs body to kind's collection URL, failing per spec §4.8 step 3
// when the response is not valid JSON or is a Status/Failure body.
func (c *Client) Create(ctx context.Context, kind apikind.APIKind, namespace string, body document.Doc) (document.Doc, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	result := kind.RESTClient().Post().AbsPath(kind.ListURL(namespace)).Body(encoded).Do(ctx)
	if err := result.Error(); err != nil {
		return nil, err
	}
	raw, err := result.Raw()
	if err != nil {
		return nil, err
	}
	return decodeChecked(raw)
}

// Update PUTs body to the item's URL, same failure taxonomy as Create.
func (c *Client) Update(ctx context.Context, kind apikind.APIKind, namespace, name string, body document.Doc) (document.Doc, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	result := kind.RESTClient().Put().AbsPath(kind.ItemURL(namespace, name)).Body(encoded).Do(ctx)
	if err := result.Error(); err != nil {
		return nil, err
	}
	raw, err := result.Raw()
	if err != nil {
		return nil, err
	}
	return decodeChecked(raw)
}

func decode(raw []byte) (document.Doc, error) {
	var doc document.Doc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "restclient: decoding response")
	}
	return doc, nil
}

// decodeChecked applies spec §4.8 step 3's failure taxonomy: a body
// shaped like {kind:"Status", status:"Failure"} is a failure even though
// the HTTP layer reported success.
func decodeChecked(raw []byte) (document.Doc, error) {
	doc, err := decode(raw)
	if err != nil {
		return nil, err
	}
	if document.GetString(doc, "kind", "") == "Status" && document.GetString(doc, "status", "") == "Failure" {
		return nil, errors.Errorf("restclient: server returned Status Failure: %s", document.GetString(doc, "message", ""))
	}
	return doc, nil
}
