package render

import (
	"encoding/base64"
	"fmt"
	"net"
	"strings"

	"github.com/illallangi/alfaoperator/internal/document"
	"github.com/jmespath/go-jmespath"
)

// FuncMap returns the full filter/test contract of spec §4.7 as a
// text/template FuncMap. Each function takes the filtered value as its
// first argument, so templates call them directly (`{{ json_query $x
// "foo[].bar" }}`); the piped form passes the value last and does not match.
func FuncMap() map[string]interface{} {
	return map[string]interface{}{
		"b64decode":        b64decode,
		"ipaddr":           ipaddr,
		"json_query":       jsonQuery,
		"json_query_one":   jsonQueryOne,
		"json_query_unique": jsonQueryUnique,
		"unique_dict":      document.UniqueDicts,
		"cheap_hash":       cheapHash,
		"path_join":        pathJoin,
		"merge":            mergeFilter,
		"alfa_query":       alfaQuery,
		"one_by_labels":    oneByLabels,
		"many_by_labels":   manyByLabels,
		"is_subset":        document.IsSubset,
		"is_superset":      func(superset, subset interface{}) bool { return document.IsSubset(subset, superset) },
		"loop":             loopExpand,
	}
}

func b64decode(s string) (string, error) {
	out, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("b64decode: %w", err)
	}
	return string(out), nil
}

// ipaddr implements the single 'revdns' mode spec §4.7 names: a
// reverse-DNS PTR name for value, trailing dot stripped.
func ipaddr(value, mode string) (string, error) {
	if mode != "revdns" {
		return "", fmt.Errorf("ipaddr: unsupported mode %q", mode)
	}
	names, err := net.LookupAddr(value)
	if err != nil {
		return "", fmt.Errorf("ipaddr revdns lookup for %q: %w", value, err)
	}
	if len(names) == 0 {
		return "", fmt.Errorf("ipaddr revdns lookup for %q: no records", value)
	}
	return strings.TrimSuffix(names[0], "."), nil
}

func jsonQuery(input interface{}, expr string) ([]interface{}, error) {
	result, err := jmespath.Search(expr, input)
	if err != nil {
		return nil, fmt.Errorf("json_query %q: %w", expr, err)
	}
	switch v := result.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		return v, nil
	default:
		return []interface{}{v}, nil
	}
}

func jsonQueryOne(input interface{}, expr string) (interface{}, error) {
	results, err := jsonQuery(input, expr)
	if err != nil {
		return nil, err
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("json_query_one %q: expected exactly one result, got %d", expr, len(results))
	}
	return results[0], nil
}

func jsonQueryUnique(input interface{}, expr string) ([]interface{}, error) {
	results, err := jsonQuery(input, expr)
	if err != nil {
		return nil, err
	}
	docs := make([]document.Doc, 0, len(results))
	var nonDocs []interface{}
	for _, r := range results {
		if d, ok := r.(document.Doc); ok {
			docs = append(docs, d)
		} else {
			nonDocs = append(nonDocs, r)
		}
	}
	unique := document.UniqueDicts(docs)
	out := make([]interface{}, 0, len(unique)+len(nonDocs))
	for _, d := range unique {
		out = append(out, d)
	}
	out = append(out, nonDocs...)
	return out, nil
}

func cheapHash(s string, length int) string {
	h, ok := document.CheapHash(s, length)
	if !ok {
		return ""
	}
	return h
}

func pathJoin(parts ...string) string {
	return strings.Join(parts, "/")
}

func mergeFilter(original, patch document.Doc) document.Doc {
	return document.Merge(original, patch)
}

// alfaQuery assembles owner-referenced child-object skeletons from every
// item of kind parentKind found in input, per spec §4.7's alfa_query
// contract: for each matching parent, optionally loop-expanded via
// spec.<specFilter>.count, build a new document of kind childKind whose
// labels/name are derived from the parent's own labels and which owns a
// single ownerReference back to that parent.
func alfaQuery(input interface{}, parentKind, childKind, childGroup, childVersion string, specFilter ...string) ([]interface{}, error) {
	apiVersion := document.JoinNonEmpty("/", childGroup, childVersion)
	expr := fmt.Sprintf("[?kind=='%s']", parentKind)
	matched, err := jsonQuery(input, expr)
	if err != nil {
		return nil, fmt.Errorf("alfa_query: %w", err)
	}

	var filterField string
	if len(specFilter) > 0 {
		filterField = specFilter[0]
	}

	out := make([]interface{}, 0, len(matched))
	for _, c := range matched {
		item, ok := c.(document.Doc)
		if !ok {
			continue
		}

		var copies []interface{}
		if filterField == "" {
			copies = []interface{}{item}
		} else {
			count, ok := specFilterCount(item, filterField)
			if !ok || count <= 0 {
				continue
			}
			copies = loopExpand(item, count)
		}

		for _, raw := range copies {
			childItem, ok := raw.(document.Doc)
			if !ok {
				continue
			}
			out = append(out, alfaChildSkeleton(childItem, childKind, apiVersion))
		}
	}
	return out, nil
}

// specFilterCount reads spec.<field>.count off a matched parent item,
// defaulting to 1 when the field is present but carries no explicit count,
// mirroring the original's `[spec.<field>.count, 1][?@]|[0]` fallback.
func specFilterCount(item document.Doc, field string) (int, bool) {
	filterValue := document.RecursiveGet(item, "spec#"+field, "#")
	if filterValue == nil {
		return 0, false
	}
	filterDoc, ok := filterValue.(document.Doc)
	if !ok {
		return 1, true
	}
	switch v := filterDoc["count"].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	case nil:
		return 1, true
	default:
		return 1, true
	}
}

// alfaChildSkeleton builds one child-kind document owned by item, the Go
// mirror of alfa_query's embedded JMESPath multi-select-hash.
func alfaChildSkeleton(item document.Doc, childKind, apiVersion string) document.Doc {
	name, _ := document.RecursiveGet(item, "metadata#labels#app.kubernetes.io/name", "#").(string)
	if name == "" {
		name = strings.ToLower(document.GetString(item, "kind", ""))
	}
	instance, _ := document.RecursiveGet(item, "metadata#labels#app.kubernetes.io/instance", "#").(string)
	if instance == "" {
		instance = document.GetString(item, "metadata.name", "")
	}
	component, _ := document.RecursiveGet(item, "metadata#labels#app.kubernetes.io/component", "#").(string)

	index, _ := item["__index"].(string)

	return document.Doc{
		"apiVersion": apiVersion,
		"kind":       childKind,
		"metadata": document.Doc{
			"namespace": document.GetString(item, "metadata.namespace", ""),
			"labels": document.Doc{
				"app.kubernetes.io/name":      name,
				"app.kubernetes.io/instance":  document.JoinNonEmpty("-", instance, index),
				"app.kubernetes.io/component": component,
			},
			"name": document.JoinNonEmpty("-", name, document.JoinNonEmpty("-", instance, index), component),
			"ownerReferences": []interface{}{
				document.Doc{
					"apiVersion":         document.GetString(item, "apiVersion", ""),
					"kind":               document.GetString(item, "kind", ""),
					"name":               document.GetString(item, "metadata.name", ""),
					"uid":                document.GetString(item, "metadata.uid", ""),
					"blockOwnerDeletion": true,
					"controller":         false,
				},
			},
		},
		"spec":     document.GetMap(item, "spec"),
		"__index":  item["__index"],
		"__number": item["__number"],
	}
}

// oneByLabels filters items to namespace whose labels match every label
// set given, requiring exactly one survivor per spec §4.7.
func oneByLabels(items []interface{}, namespace string, labelSets ...document.Doc) (document.Doc, error) {
	matches := manyByLabels(items, namespace, labelSets...)
	if len(matches) != 1 {
		return nil, fmt.Errorf("one_by_labels: expected exactly one match in namespace %q, got %d", namespace, len(matches))
	}
	d, _ := matches[0].(document.Doc)
	return d, nil
}

func manyByLabels(items []interface{}, namespace string, labelSets ...document.Doc) []interface{} {
	var out []interface{}
	for _, raw := range items {
		doc, ok := raw.(document.Doc)
		if !ok {
			continue
		}
		if namespace != "" && document.GetString(doc, "metadata.namespace", "") != namespace {
			continue
		}
		labels := document.GetMap(doc, "metadata.labels")
		matchesAll := true
		for _, set := range labelSets {
			if !document.IsSubset(set, labels) {
				matchesAll = false
				break
			}
		}
		if matchesAll {
			out = append(out, doc)
		}
	}
	return out
}

// loopExpand is the text/template-level equivalent of the Python source's
// custom JMESPath loop(obj, count) function: it expands obj into count+1
// copies -- the first unstamped (__number/__index both nil), then one per
// i in [0, count) stamped with __number=i and __index="%02d"%i.
func loopExpand(obj document.Doc, count int) []interface{} {
	out := make([]interface{}, 0, count+1)

	base := document.Clone(obj)
	base["__number"] = nil
	base["__index"] = nil
	out = append(out, base)

	for i := 0; i < count; i++ {
		copy := document.Clone(obj)
		copy["__number"] = i
		copy["__index"] = fmt.Sprintf("%02d", i)
		out = append(out, copy)
	}
	return out
}
