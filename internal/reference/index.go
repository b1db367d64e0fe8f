// Package reference resolves human-readable master-data names to identifiers.
package reference

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Kind names a master-data category.
type Kind string

const (
	KindDepartment  Kind = "department"
	KindDesignation Kind = "designation"
)

// DefaultSuggestionLimit is how many names Suggestions previews when no limit is given.
const DefaultSuggestionLimit = 5

// Plural is the user-facing collection name for k.
func (k Kind) Plural() string {
	return string(k) + "s"
}

// Entry is one master-data record.
type Entry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MissingMasterDataError aborts a job when a mandatory list is empty.
type MissingMasterDataError struct {
	Kind Kind
}

func (e *MissingMasterDataError) Error() string {
	return fmt.Sprintf("no %s found: configure %s before importing", e.Kind.Plural(), e.Kind.Plural())
}

// Index is an immutable per-job snapshot of reference lists.
type Index struct {
	byName  map[Kind]map[string]string
	entries map[Kind][]Entry
}

// Build snapshots lists. Any kind listed in mandatory must have at least one
// entry with a non-blank name.
func Build(lists map[Kind][]Entry, mandatory ...Kind) (*Index, error) {
	idx := &Index{
		byName:  make(map[Kind]map[string]string, len(lists)),
		entries: make(map[Kind][]Entry, len(lists)),
	}
	for k, list := range lists {
		names := make(map[string]string, len(list))
		kept := make([]Entry, 0, len(list))
		for _, e := range list {
			key := normalize(e.Name)
			if key == "" {
				continue
			}
			// first occurrence wins on duplicate names
			if _, dup := names[key]; !dup {
				names[key] = e.ID
			}
			kept = append(kept, e)
		}
		idx.byName[k] = names
		idx.entries[k] = kept
	}
	for _, k := range mandatory {
		if len(idx.entries[k]) == 0 {
			return nil, &MissingMasterDataError{Kind: k}
		}
	}
	return idx, nil
}

// Resolve looks raw up by trimmed, case-insensitive exact match.
func (x *Index) Resolve(kind Kind, raw string) (string, bool) {
	if x == nil {
		return "", false
	}
	id, ok := x.byName[kind][normalize(raw)]
	return id, ok
}

// Suggestions previews up to limit known names for kind, comma joined,
// with a trailing ellipsis marker when more exist.
func (x *Index) Suggestions(kind Kind, limit int) string {
	if x == nil {
		return ""
	}
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}
	list := x.entries[kind]
	n := min(limit, len(list))
	names := make([]string, 0, n+1)
	for _, e := range list[:n] {
		names = append(names, strings.TrimSpace(e.Name))
	}
	if len(list) > limit {
		names = append(names, "...")
	}
	return strings.Join(names, ", ")
}

// Closest returns the known name that best fuzzy-matches raw. It is only a hint
// for error messages; callers must never treat it as a resolution.
func (x *Index) Closest(kind Kind, raw string) (string, bool) {
	if x == nil {
		return "", false
	}
	q := strings.TrimSpace(raw)
	list := x.entries[kind]
	if q == "" || len(list) == 0 {
		return "", false
	}
	names := make([]string, len(list))
	for i, e := range list {
		names[i] = strings.TrimSpace(e.Name)
	}
	ranks := fuzzy.RankFindNormalizedFold(q, names)
	if len(ranks) == 0 {
		return "", false
	}
	sort.Sort(ranks)
	return ranks[0].Target, true
}

// Len reports how many entries kind holds.
func (x *Index) Len(kind Kind) int {
	if x == nil {
		return 0
	}
	return len(x.entries[kind])
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
