package lister

import (
	"sort"
	"strings"

	"github.com/meridianfm/meridian/mfs/engine/types"
)

// nameLess orders case-insensitively, breaking case-only ties with a raw
// comparison so the order is a deterministic total order.
func nameLess(a, b string) bool {
	al, bl := strings.ToLower(a), strings.ToLower(b)
	if al != bl {
		return al < bl
	}
	return a < b
}

func kindRank(k types.EntryKind) int {
	switch k {
	case types.KindDirectory:
		return 0
	case types.KindFile:
		return 1
	case types.KindSymlink:
		return 2
	default:
		return 3
	}
}

// keyLess is the strict ordering for a sort key, without tie-breaking.
func keyLess(key types.SortKey, a, b types.Entry) bool {
	switch key {
	case types.SortBySize:
		return a.Size < b.Size
	case types.SortByModifiedTime:
		return a.ModifiedAt.Before(b.ModifiedAt)
	case types.SortByKind:
		return kindRank(a.Kind) < kindRank(b.Kind)
	default:
		return nameLess(a.Name, b.Name)
	}
}

// sortEntries orders entries deterministically. A name pass establishes the
// tie-break order, then a stable pass applies the requested key, so entries
// that compare equal under the key stay in ascending name order. Kinds are
// not segregated unless the kind key itself is selected.
func sortEntries(entries []types.Entry, key types.SortKey, ascending bool) {
	sort.SliceStable(entries, func(i, j int) bool {
		return nameLess(entries[i].Name, entries[j].Name)
	})

	if key == types.SortByName || key == "" {
		if !ascending {
			reverse(entries)
		}
		return
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if ascending {
			return keyLess(key, entries[i], entries[j])
		}
		return keyLess(key, entries[j], entries[i])
	})
}

// sortNames orders bare names with the same comparator List uses, so a
// stream and a name-sorted snapshot agree on order.
func sortNames(names []string) {
	sort.Slice(names, func(i, j int) bool { return nameLess(names[i], names[j]) })
}

func reverse(entries []types.Entry) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
}
