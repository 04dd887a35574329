// Package statediff computes structural drift between two state documents.
// The walk is lock-step over the category trees; every reported path lands
// in exactly one of added, changed, or removed. schema_version and
// last_updated are metadata and never compared.
package statediff

import (
	"encoding/json"
	"strconv"

	"github.com/davidahmann/hoststate/core/canonjson"
	"github.com/davidahmann/hoststate/core/docvalue"
	"github.com/davidahmann/hoststate/core/fieldpath"
	"github.com/davidahmann/hoststate/core/statedoc"
)

// Change pairs the old and new value at one path.
type Change struct {
	Old docvalue.Value `json:"old"`
	New docvalue.Value `json:"new"`
}

// Result holds the three disjoint drift maps keyed by dotted path.
type Result struct {
	Added   map[string]docvalue.Value `json:"added"`
	Changed map[string]Change         `json:"changed"`
	Removed map[string]docvalue.Value `json:"removed"`
}

func newResult() Result {
	return Result{
		Added:   map[string]docvalue.Value{},
		Changed: map[string]Change{},
		Removed: map[string]docvalue.Value{},
	}
}

// Empty reports that no drift was found.
func (r Result) Empty() bool {
	return len(r.Added) == 0 && len(r.Changed) == 0 && len(r.Removed) == 0
}

// Count returns the total number of drifted paths.
func (r Result) Count() int {
	return len(r.Added) + len(r.Changed) + len(r.Removed)
}

// Compare walks the category trees of old and new. A path present only in
// new is added; only in old, removed; in both with unequal values, changed.
func Compare(old, new statedoc.Document) Result {
	return CompareTrees(old.Tree(), new.Tree(), "")
}

// CompareTrees diffs two bare value trees, for callers holding subtrees
// rather than whole documents.
func CompareTrees(old, new docvalue.Value, prefix string) Result {
	result := newResult()
	compareValues(old, new, prefix, &result)
	return result
}

func compareValues(old, new docvalue.Value, path string, result *Result) {
	switch {
	case old.Kind() == docvalue.KindMap && new.Kind() == docvalue.KindMap:
		compareMaps(old, new, path, result)
	case old.Kind() == docvalue.KindList && new.Kind() == docvalue.KindList:
		compareLists(old, new, path, result)
	default:
		if !old.Equal(new) {
			result.Changed[path] = Change{Old: old, New: new}
		}
	}
}

func compareMaps(old, new docvalue.Value, path string, result *Result) {
	for _, key := range new.MapKeys() {
		childPath := fieldpath.Join(path, key)
		newChild, _ := new.MapEntry(key)
		oldChild, present := old.MapEntry(key)
		if !present {
			result.Added[childPath] = newChild
			continue
		}
		compareValues(oldChild, newChild, childPath, result)
	}
	for _, key := range old.MapKeys() {
		if _, present := new.MapEntry(key); !present {
			oldChild, _ := old.MapEntry(key)
			result.Removed[fieldpath.Join(path, key)] = oldChild
		}
	}
}

// compareLists is positional: element i of old is compared against element i
// of new, so a reorder reports per-index changes. Content-aware matching is
// a known, deliberate omission.
func compareLists(old, new docvalue.Value, path string, result *Result) {
	oldLen := old.Len()
	newLen := new.Len()
	shared := oldLen
	if newLen < shared {
		shared = newLen
	}
	for i := 0; i < shared; i++ {
		oldItem, _ := old.ListItem(i)
		newItem, _ := new.ListItem(i)
		compareValues(oldItem, newItem, fieldpath.Join(path, strconv.Itoa(i)), result)
	}
	for i := shared; i < newLen; i++ {
		newItem, _ := new.ListItem(i)
		result.Added[fieldpath.Join(path, strconv.Itoa(i))] = newItem
	}
	for i := shared; i < oldLen; i++ {
		oldItem, _ := old.ListItem(i)
		result.Removed[fieldpath.Join(path, strconv.Itoa(i))] = oldItem
	}
}

// Fingerprint returns the RFC 8785 digest of a document's category tree,
// a stable identity for "has anything substantive changed".
func Fingerprint(document statedoc.Document) (string, error) {
	encoded, err := json.Marshal(document.Tree())
	if err != nil {
		return "", err
	}
	return canonjson.Digest(encoded)
}
