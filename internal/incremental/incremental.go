// Package incremental tracks per-subject file-hash snapshots so reviews can
// re-consult only for files whose content changed since the last run.
package incremental

import "sort"

// Changes holds the four disjoint path sets produced by comparing two
// file-hash snapshots. All slices are sorted.
type Changes struct {
	Added     []string `json:"added"`
	Modified  []string `json:"modified"`
	Removed   []string `json:"removed"`
	Unchanged []string `json:"unchanged"`
}

// ChangedSet returns added and modified paths as a set.
func (c Changes) ChangedSet() map[string]bool {
	set := make(map[string]bool, len(c.Added)+len(c.Modified))
	for _, p := range c.Added {
		set[p] = true
	}
	for _, p := range c.Modified {
		set[p] = true
	}
	return set
}

// CompareFileHashes classifies every path across two snapshots: modified if
// present in both with different hashes, added if only in new, removed if
// only in old, unchanged otherwise.
func CompareFileHashes(old, new map[string]string) Changes {
	var c Changes

	for path, newHash := range new {
		oldHash, ok := old[path]
		switch {
		case !ok:
			c.Added = append(c.Added, path)
		case oldHash != newHash:
			c.Modified = append(c.Modified, path)
		default:
			c.Unchanged = append(c.Unchanged, path)
		}
	}
	for path := range old {
		if _, ok := new[path]; !ok {
			c.Removed = append(c.Removed, path)
		}
	}

	sort.Strings(c.Added)
	sort.Strings(c.Modified)
	sort.Strings(c.Removed)
	sort.Strings(c.Unchanged)
	return c
}

// MergeResults combines cached per-file results with fresh ones. For every
// key in changed, the fresh entry is used only if present; a changed key
// missing from fresh is dropped entirely rather than falling back to the
// stale cached value. Keys not in changed copy through from cached.
//
// Pure: none of the inputs are mutated, and identical inputs always yield
// identical output.
func MergeResults(cached, fresh map[string]string, changed map[string]bool) map[string]string {
	merged := make(map[string]string, len(cached)+len(fresh))

	for key, value := range cached {
		if !changed[key] {
			merged[key] = value
		}
	}
	for key := range changed {
		if value, ok := fresh[key]; ok {
			merged[key] = value
		}
	}
	return merged
}
