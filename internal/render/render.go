// Package render implements the template engine of spec §4.7: given
// template text and a scope item, produce zero or more rendered API
// object documents.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/illallangi/alfaoperator/internal/apikind"
	"github.com/illallangi/alfaoperator/internal/document"
	"gopkg.in/yaml.v3"
)

// Renderer is the pluggable engine boundary spec §4.7 and the Design Note
// in spec §9 call out explicitly: SPEC_FULL pins TextTemplateRenderer as
// the concrete default while keeping this interface swappable.
type Renderer interface {
	// Render executes templateText once per scope item, returning every
	// parsed YAML document from every item's output, in order.
	Render(templateText string, items map[string][]interface{}, scopeItems []document.Doc, ctx Context) ([]document.Doc, error)
}

// Context carries the per-render scalar inputs spec §4.7 lists alongside
// the spread item/x maps: parent/child kind coordinates and the five
// label key names.
type Context struct {
	Parent apikind.APIKind
	Child  apikind.APIKind

	LabelName       string
	LabelInstance   string
	LabelDomainName string
	LabelComponent  string
	LabelManagedBy  string

	Component string
	ManagedBy string
}

// TextTemplateRenderer renders with Go's text/template, augmented with the
// FuncMap filter/test contract of spec §4.7.
type TextTemplateRenderer struct {
	funcs template.FuncMap
}

// NewTextTemplateRenderer builds the default renderer with the full
// filter/test registry wired in.
func NewTextTemplateRenderer() *TextTemplateRenderer {
	return &TextTemplateRenderer{funcs: FuncMap()}
}

// Render implements Renderer. Parse failure or filter failure aborts the
// entire render cycle with no partial results, per spec §4.7.
func (r *TextTemplateRenderer) Render(templateText string, items map[string][]interface{}, scopeItems []document.Doc, ctx Context) ([]document.Doc, error) {
	tmpl, err := template.New("alfatemplate").Funcs(r.funcs).Parse(templateText)
	if err != nil {
		return nil, fmt.Errorf("render: parsing template: %w", err)
	}

	var rendered []document.Doc
	for _, x := range scopeItems {
		data := buildTemplateData(items, x, ctx)

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("render: executing template: %w", err)
		}

		docs, err := parseYAMLStream(buf.String())
		if err != nil {
			return nil, fmt.Errorf("render: parsing template output: %w", err)
		}

		for _, doc := range docs {
			rendered = append(rendered, applyDefaults(x, doc, ctx))
		}
	}
	return rendered, nil
}

// buildTemplateData spreads items (one key per kind) and x (the scope
// item's own fields) into one map alongside the scalar context values, the
// Go mirror of the Python source's `render(**items, **x, parent=..., ...)`
// keyword spread.
func buildTemplateData(items map[string][]interface{}, x document.Doc, ctx Context) document.Doc {
	data := document.Doc{
		"parent":        ctx.Parent,
		"child":         ctx.Child,
		"namespace":     document.GetString(x, "metadata.namespace", ""),
		"name":          document.GetString(x, "metadata.labels."+ctx.LabelName, ""),
		"instance":      document.GetString(x, "metadata.labels."+ctx.LabelInstance, ""),
		"domain_name":   document.GetString(x, "metadata.labels."+ctx.LabelDomainName, ""),
		"component":     ctx.Component,
		"managed_by":    ctx.ManagedBy,
		"labels_name":       ctx.LabelName,
		"labels_instance":   ctx.LabelInstance,
		"labels_domainName": ctx.LabelDomainName,
		"labels_component":  ctx.LabelComponent,
		"labels_managedBy":  ctx.LabelManagedBy,
	}
	for k, v := range items {
		data[k] = v
	}
	for k, v := range x {
		data[k] = v
	}
	return data
}

// parseYAMLStream splits rendered text on "---" document separators and
// decodes each into a document.Doc, skipping empty documents.
func parseYAMLStream(text string) ([]document.Doc, error) {
	decoder := yaml.NewDecoder(strings.NewReader(text))
	var docs []document.Doc
	for {
		var raw map[string]interface{}
		err := decoder.Decode(&raw)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if len(raw) == 0 {
			continue
		}
		docs = append(docs, document.Doc(raw))
	}
	return docs, nil
}

// applyDefaults computes merge({apiVersion, kind, metadata} from x, r) and
// defaults metadata.name when absent, per spec §4.7's final renders step.
func applyDefaults(x, r document.Doc, ctx Context) document.Doc {
	base := document.Doc{}
	for _, k := range []string{"apiVersion", "kind", "metadata"} {
		if v, ok := x[k]; ok {
			base[k] = v
		}
	}
	merged := document.Merge(base, r)

	meta, ok := merged["metadata"].(document.Doc)
	if !ok {
		meta = document.Doc{}
		merged["metadata"] = meta
	}
	if name, ok := meta["name"].(string); !ok || name == "" {
		domainName := document.GetString(x, "metadata.labels."+ctx.LabelDomainName, "")
		hash, _ := document.CheapHash(domainName, 6)
		meta["name"] = document.JoinNonEmpty("-",
			document.GetString(x, "metadata.labels."+ctx.LabelName, ""),
			document.GetString(x, "metadata.labels."+ctx.LabelInstance, ""),
			hash,
			ctx.Component,
		)
	}
	return merged
}
