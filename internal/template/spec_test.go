package template

import (
	"testing"

	"github.com/illallangi/alfaoperator/internal/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDoc() document.Doc {
	return document.Doc{
		"metadata": document.Doc{
			"name":   "ingress-routes",
			"labels": document.Doc{"app": "routing"},
		},
		"spec": document.Doc{
			"kinds": document.Doc{
				"parent": document.Doc{"kind": "Ingress"},
				"child":  document.Doc{"kind": "ConfigMap"},
				"monitored": []interface{}{
					document.Doc{"kind": "Service"},
					document.Doc{"kind": "Ingress"},
				},
			},
			"scope":    "Domain",
			"template": "kind: ConfigMap",
		},
	}
}

func TestParseSpecHappyPath(t *testing.T) {
	spec, err := ParseSpec(validDoc())
	require.NoError(t, err)

	assert.Equal(t, "ingress-routes", spec.Name)
	assert.Equal(t, ScopeDomain, spec.Scope)
	assert.Equal(t, []string{"Ingress", "Service"}, spec.Kinds())
	assert.True(t, spec.Update)
	assert.True(t, spec.OwnerReferences)
}

func TestParseSpecRejectsMissingFields(t *testing.T) {
	_, err := ParseSpec(document.Doc{"metadata": document.Doc{"name": "x"}})
	assert.Error(t, err)

	noTemplate := validDoc()
	delete(noTemplate["spec"].(document.Doc), "template")
	_, err = ParseSpec(noTemplate)
	assert.Error(t, err)
}

func TestParseSpecRejectsUnknownScope(t *testing.T) {
	doc := validDoc()
	doc["spec"].(document.Doc)["scope"] = "Galaxy"
	_, err := ParseSpec(doc)
	assert.Error(t, err)
}
