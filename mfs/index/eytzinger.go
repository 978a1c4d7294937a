package index

import (
	"sort"

	roaring "github.com/RoaringBitmap/roaring"
)

// numericTree stores a sorted column in eytzinger (breadth-first) order so
// range extraction touches cache lines near the root first and prunes whole
// subtrees outside the requested window.
type numericTree struct {
	layout []int64
	ids    []EntryID
}

// buildNumericTree sorts a copy of the values and their parallel IDs, then
// maps them into eytzinger order.
func buildNumericTree(values []int64, ids []EntryID) *numericTree {
	n := len(values)
	sorted := make([]int64, n)
	sortedIDs := make([]EntryID, n)
	copy(sorted, values)
	copy(sortedIDs, ids)
	sortPairs(sorted, sortedIDs)

	t := &numericTree{
		layout: make([]int64, n),
		ids:    make([]EntryID, n),
	}
	pos := 0
	var dfs func(i int)
	dfs = func(i int) {
		if i > n {
			return
		}
		dfs(i << 1)
		t.layout[i-1] = sorted[pos]
		t.ids[i-1] = sortedIDs[pos]
		pos++
		dfs((i << 1) | 1)
	}
	dfs(1)
	return t
}

// rangeInto adds the IDs of all values within [lo, hi] to out, walking the
// implicit tree in order and skipping subtrees that cannot intersect the
// window.
func (t *numericTree) rangeInto(lo, hi int64, out *roaring.Bitmap) {
	n := len(t.layout)
	if n == 0 || lo > hi {
		return
	}
	var walk func(i int)
	walk = func(i int) {
		if i > n {
			return
		}
		v := t.layout[i-1]
		if v >= lo {
			walk(i << 1)
		}
		if v >= lo && v <= hi {
			out.Add(t.ids[i-1])
		}
		if v <= hi {
			walk((i << 1) | 1)
		}
	}
	walk(1)
}

// sortPairs sorts values ascending, permuting ids in tandem.
func sortPairs(values []int64, ids []EntryID) {
	sort.Sort(&pairSorter{values: values, ids: ids})
}

type pairSorter struct {
	values []int64
	ids    []EntryID
}

func (p *pairSorter) Len() int           { return len(p.values) }
func (p *pairSorter) Less(i, j int) bool { return p.values[i] < p.values[j] }
func (p *pairSorter) Swap(i, j int) {
	p.values[i], p.values[j] = p.values[j], p.values[i]
	p.ids[i], p.ids[j] = p.ids[j], p.ids[i]
}
