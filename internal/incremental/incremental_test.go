package incremental

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareFileHashes(t *testing.T) {
	old := map[string]string{"f1": "h1", "f2": "h2"}
	new := map[string]string{"f1": "h1", "f3": "h3"}

	c := CompareFileHashes(old, new)
	assert.Equal(t, []string{"f3"}, c.Added)
	assert.Equal(t, []string{"f2"}, c.Removed)
	assert.Equal(t, []string{"f1"}, c.Unchanged)
	assert.Empty(t, c.Modified)
}

func TestCompareFileHashesModified(t *testing.T) {
	c := CompareFileHashes(
		map[string]string{"f1": "h1"},
		map[string]string{"f1": "h1-changed"},
	)
	assert.Equal(t, []string{"f1"}, c.Modified)
	assert.Empty(t, c.Added)
	assert.Empty(t, c.Removed)
	assert.Empty(t, c.Unchanged)
}

func TestCompareFileHashesEmpty(t *testing.T) {
	c := CompareFileHashes(nil, nil)
	assert.Empty(t, c.Added)
	assert.Empty(t, c.Modified)
	assert.Empty(t, c.Removed)
	assert.Empty(t, c.Unchanged)
}

func TestChangedSet(t *testing.T) {
	c := Changes{Added: []string{"a"}, Modified: []string{"m"}, Unchanged: []string{"u"}}
	set := c.ChangedSet()
	assert.True(t, set["a"])
	assert.True(t, set["m"])
	assert.False(t, set["u"])
}

func TestMergeResultsDropOnMissing(t *testing.T) {
	cached := map[string]string{"A": "old-a", "B": "old-b", "C": "old-c"}
	fresh := map[string]string{"A": "new-a"}
	changed := map[string]bool{"A": true, "C": true}

	merged := MergeResults(cached, fresh, changed)

	// A takes the fresh value, B copies through, C is dropped entirely
	// rather than falling back to the stale cached value.
	assert.Equal(t, map[string]string{"A": "new-a", "B": "old-b"}, merged)
}

func TestMergeResultsIdempotentAndPure(t *testing.T) {
	cached := map[string]string{"A": "a", "B": "b"}
	fresh := map[string]string{"A": "a2"}
	changed := map[string]bool{"A": true}

	first := MergeResults(cached, fresh, changed)
	second := MergeResults(cached, fresh, changed)
	assert.Equal(t, first, second)

	// Inputs are untouched.
	assert.Equal(t, map[string]string{"A": "a", "B": "b"}, cached)
	assert.Equal(t, map[string]string{"A": "a2"}, fresh)
	assert.Equal(t, map[string]bool{"A": true}, changed)
}

func TestMergeResultsNoInventedKeys(t *testing.T) {
	// A key marked changed but absent from both inputs never appears.
	merged := MergeResults(
		map[string]string{"A": "a"},
		map[string]string{},
		map[string]bool{"ghost": true},
	)
	assert.Equal(t, map[string]string{"A": "a"}, merged)
}
