package document

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecursiveGet(t *testing.T) {
	d := Doc{
		"metadata": Doc{
			"labels": Doc{
				"app.kubernetes.io/name": "foo",
			},
			"name": "widget-a",
		},
	}

	require.Equal(t, "foo", RecursiveGet(d, "metadata#labels#app.kubernetes.io/name", "#"))
	require.Equal(t, "widget-a", RecursiveGet(d, "metadata#name", "#"))
	require.Nil(t, RecursiveGet(d, "spec.domainName", "."))
	require.Nil(t, RecursiveGet(d, "metadata.name.nope", "."))
}

func TestMergeOverridesOnLeafConflict(t *testing.T) {
	a := Doc{"metadata": Doc{"labels": Doc{"x": "1", "y": "2"}}}
	b := Doc{"metadata": Doc{"labels": Doc{"y": "3", "z": "4"}}}

	got := Merge(a, b)
	want := Doc{"metadata": Doc{"labels": Doc{"x": "1", "y": "3", "z": "4"}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Merge() mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeIdempotentAndAssociative(t *testing.T) {
	x := Doc{"a": "1", "b": Doc{"c": "2"}}
	assert.Equal(t, x, Merge(x, x))

	a := Doc{"a": "1"}
	b := Doc{"b": "2"}
	c := Doc{"c": "3"}
	left := Merge(Merge(a, b), c)
	right := Merge(a, Merge(b, c))
	assert.Equal(t, left, right)
}

func TestCommonIdempotentAndIntersects(t *testing.T) {
	x := Doc{"a": "1", "b": Doc{"c": "2", "d": "3"}}
	assert.Equal(t, x, Common(x, x))

	a := Doc{"a": "1", "b": Doc{"c": "2", "d": "3"}}
	b := Doc{"a": "1", "b": Doc{"c": "9", "d": "3"}}
	got := Common(a, b)
	want := Doc{"a": "1", "b": Doc{"d": "3"}}
	assert.Equal(t, want, got)
}

func TestUniqueDicts(t *testing.T) {
	in := []Doc{
		{"a": "1"},
		{"a": "1"},
		{"b": "2"},
	}
	got := UniqueDicts(in)
	assert.Len(t, got, 2)
	assert.Equal(t, got, UniqueDicts(got))
	assert.LessOrEqual(t, len(UniqueDicts(in)), len(in))
}

func TestCheapHash(t *testing.T) {
	h, ok := CheapHash("example.com", 6)
	require.True(t, ok)
	assert.Len(t, h, 6)

	_, ok = CheapHash("", 6)
	assert.False(t, ok)
}

func TestJoinNonEmpty(t *testing.T) {
	assert.Equal(t, "foo-bar", JoinNonEmpty("-", "foo", "", "bar"))
	assert.Equal(t, "", JoinNonEmpty("-", "", ""))
}

func TestIsSubset(t *testing.T) {
	superset := Doc{"a": "1", "b": Doc{"c": "2", "d": "3"}}
	subset := Doc{"b": Doc{"c": "2"}}
	assert.True(t, IsSubset(subset, superset))
	assert.False(t, IsSubset(Doc{"b": Doc{"c": "9"}}, superset))
}
