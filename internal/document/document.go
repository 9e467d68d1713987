// Package document implements the schemaless map/list/scalar tree that
// flows through the aggregation and rendering pipeline. API objects,
// template specs, and rendered output are all represented as Doc values
// rather than per-kind Go structs, because the renderer and aggregator
// need to traverse and merge arbitrary Kubernetes-shaped JSON without
// knowing its schema up front.
package document

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"sigs.k8s.io/yaml"
)

// Doc is one node of the tree: map[string]interface{}, []interface{}, or a
// scalar (string, float64, bool, nil). Most callers only ever hold the root
// map, but the helpers below operate on any node.
type Doc = map[string]interface{}

// RecursiveGet walks dotted (or sep-delimited) path segments through d,
// returning nil if any segment is missing or the walk hits a non-map node.
// Mirrors the Python source's recursive_get, minus its "{} means missing"
// sentinel trick.
func RecursiveGet(d interface{}, path string, sep string) interface{} {
	if sep == "" {
		sep = "."
	}
	cur := d
	for _, key := range strings.Split(path, sep) {
		m, ok := cur.(Doc)
		if !ok {
			return nil
		}
		v, found := m[key]
		if !found {
			return nil
		}
		cur = v
	}
	return cur
}

// GetString is RecursiveGet with a string-typed default for the common case
// of reading a label or a name.
func GetString(d interface{}, path string, def string) string {
	v := RecursiveGet(d, path, ".")
	s, ok := v.(string)
	if !ok || s == "" {
		return def
	}
	return s
}

// GetBool reads a boolean field, defaulting to def when absent or the wrong type.
func GetBool(d interface{}, path string, def bool) bool {
	v := RecursiveGet(d, path, ".")
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// GetMap reads a nested map field, returning an empty Doc (never nil) when absent.
func GetMap(d interface{}, path string) Doc {
	v := RecursiveGet(d, path, ".")
	m, ok := v.(Doc)
	if !ok {
		return Doc{}
	}
	return m
}

// GetSlice reads a nested list field, returning nil when absent or of the wrong type.
func GetSlice(d interface{}, path string) []interface{} {
	v := RecursiveGet(d, path, ".")
	s, ok := v.([]interface{})
	if !ok {
		return nil
	}
	return s
}

// Merge recursively unions patch into original; on a leaf conflict, patch
// wins. This is the "override" variant the spec's Open Questions mandate
// for every projection merge in the aggregator and renderer.
func Merge(original, patch Doc) Doc {
	result := make(Doc, len(original)+len(patch))
	keys := make(map[string]struct{}, len(original)+len(patch))
	for k := range original {
		keys[k] = struct{}{}
	}
	for k := range patch {
		keys[k] = struct{}{}
	}
	for k := range keys {
		ov, oOK := original[k]
		pv, pOK := patch[k]
		om, oIsMap := ov.(Doc)
		pm, pIsMap := pv.(Doc)
		switch {
		case oIsMap && pIsMap:
			result[k] = Merge(om, pm)
		case pOK:
			result[k] = pv
		case oOK:
			result[k] = ov
		}
	}
	return result
}

// MergeAll folds Merge left to right across docs, the Go equivalent of the
// Python source's functools.reduce(merge, [...]).
func MergeAll(docs ...Doc) Doc {
	result := Doc{}
	for _, d := range docs {
		result = Merge(result, d)
	}
	return result
}

// Common returns the recursive intersection of a and b: a key survives only
// when both sides have it with an equal scalar value, or with sub-maps that
// themselves intersect (possibly to an empty map).
func Common(a, b Doc) Doc {
	result := Doc{}
	for k, v1 := range a {
		v2, ok := b[k]
		if !ok {
			continue
		}
		m1, ok1 := v1.(Doc)
		m2, ok2 := v2.(Doc)
		if ok1 && ok2 {
			result[k] = Common(m1, m2)
			continue
		}
		if deepEqual(v1, v2) {
			result[k] = v1
		}
	}
	return result
}

// CommonAll folds Common left to right, matching the Python source's
// functools.reduce(common, objs). CommonAll of an empty slice is an empty Doc.
func CommonAll(docs []Doc) Doc {
	if len(docs) == 0 {
		return Doc{}
	}
	result := docs[0]
	for _, d := range docs[1:] {
		result = Common(result, d)
	}
	return result
}

func deepEqual(a, b interface{}) bool {
	ya, erra := yaml.Marshal(a)
	yb, errb := yaml.Marshal(b)
	if erra != nil || errb != nil {
		return false
	}
	return string(ya) == string(yb)
}

// CanonicalYAML renders d with map keys sorted, so equivalent documents
// produce byte-identical output regardless of original key order.
func CanonicalYAML(d interface{}) (string, error) {
	out, err := yaml.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// UniqueDicts deduplicates a list of documents by their canonical YAML form,
// matching the Python source's unique_dict. Order among survivors is
// insertion order of first occurrence.
func UniqueDicts(items []Doc) []Doc {
	seen := make(map[string]struct{}, len(items))
	out := make([]Doc, 0, len(items))
	for _, d := range items {
		key, err := CanonicalYAML(d)
		if err != nil {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, d)
	}
	return out
}

// CheapHash returns the first length hex digits of sha256(s), or ("", false)
// when s is empty -- the Go mirror of the Python source's cheap_hash, which
// returns None for an empty input so callers can filter it out of a
// join('-', [...]) the way the aggregator does for _name construction.
func CheapHash(s string, length int) (string, bool) {
	if s == "" {
		return "", false
	}
	sum := sha256.Sum256([]byte(s))
	hexSum := hex.EncodeToString(sum[:])
	if length > len(hexSum) {
		length = len(hexSum)
	}
	return hexSum[:length], true
}

// JoinNonEmpty joins the non-empty parts with sep, the Go mirror of the
// Python source's "-".join([i for i in [...] if i]).
func JoinNonEmpty(sep string, parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, sep)
}

// IsSubset reports whether every leaf of subset appears in superset with an
// equal value, recursing into nested maps. Backs the renderer's is_subset
// and is_superset template tests.
func IsSubset(subset, superset interface{}) bool {
	sm, ok := subset.(Doc)
	if !ok {
		return deepEqual(subset, superset)
	}
	bm, ok := superset.(Doc)
	if !ok {
		return false
	}
	for k, v := range sm {
		bv, found := bm[k]
		if !found {
			return false
		}
		if vm, ok := v.(Doc); ok {
			if !IsSubset(vm, bv) {
				return false
			}
			continue
		}
		if !deepEqual(v, bv) {
			return false
		}
	}
	return true
}

// SortedKeys returns the map's keys in lexical order, useful wherever
// deterministic iteration order matters for log output or dump files.
func SortedKeys(d Doc) []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone deep-copies a Doc through a YAML round-trip, sufficient for the
// pipeline's needs since every node is already JSON/YAML-shaped.
func Clone(d Doc) Doc {
	out, err := yaml.Marshal(d)
	if err != nil {
		return Doc{}
	}
	var result Doc
	if err := yaml.Unmarshal(out, &result); err != nil {
		return Doc{}
	}
	return result
}
