// Package index maintains a compact columnar snapshot of a directory tree
// for accelerating repeated searches under the same root. Attribute filters
// (kind, extension, size, modification time) narrow candidates through
// roaring bitmaps and eytzinger-ordered numeric trees before any path
// reaches the slower glob and content predicates.
package index

import (
	"math"
	"time"

	roaring "github.com/RoaringBitmap/roaring"
)

// EntryID is a dense identifier for an entry within one snapshot build.
// IDs are assigned in lexical path order, so they are stable for a given
// tree state.
type EntryID = uint32

// Record holds the attributes captured for one entry during a scan.
type Record struct {
	Path    string
	Name    string
	Size    int64
	ModTime int64 // unix seconds
	IsDir   bool
	Hidden  bool // dot-prefixed or inside a dot-prefixed directory
	ExtID   uint32
	Depth   uint16
}

// Meta captures summary information for a built snapshot.
type Meta struct {
	Root      string
	NumFiles  int
	NumDirs   int
	BuiltUnix int64
}

// Snapshot is the columnar form of a scanned tree. All column slices share
// one length and are indexed by EntryID.
type Snapshot struct {
	Meta Meta

	ExtDict []string // ExtID -> ".pdf" etc; slot 0 is the empty extension

	Paths    []string
	Names    []string
	Sizes    []int64
	ModTimes []int64
	IsDirs   []bool
	Hiddens  []bool
	ExtIDs   []uint32
	Depths   []uint16
}

// Len reports the number of indexed entries.
func (s *Snapshot) Len() int { return len(s.Paths) }

// Filter narrows index candidates. Zero values leave a dimension
// unconstrained.
type Filter struct {
	FilesOnly     bool
	DirsOnly      bool
	IncludeHidden bool
	Extensions    []string // lower-case, dot-prefixed
	MinSize       int64
	MaxSize       int64
	After         int64 // unix seconds
	Before        int64
}

// Index couples a snapshot with its query accelerators.
type Index struct {
	Snap *Snapshot
	Bits *Bitmaps

	sizes   *numericTree
	mtimes  *numericTree
	extToID map[string]uint32
}

// Build assembles the columnar snapshot and accelerators from scan records.
// Records must already be in lexical path order; Scan guarantees that.
func Build(root string, records []Record, extDict []string) *Index {
	n := len(records)
	snap := &Snapshot{
		Meta:     Meta{Root: root, BuiltUnix: time.Now().Unix()},
		ExtDict:  extDict,
		Paths:    make([]string, n),
		Names:    make([]string, n),
		Sizes:    make([]int64, n),
		ModTimes: make([]int64, n),
		IsDirs:   make([]bool, n),
		Hiddens:  make([]bool, n),
		ExtIDs:   make([]uint32, n),
		Depths:   make([]uint16, n),
	}
	for i, r := range records {
		snap.Paths[i] = r.Path
		snap.Names[i] = r.Name
		snap.Sizes[i] = r.Size
		snap.ModTimes[i] = r.ModTime
		snap.IsDirs[i] = r.IsDir
		snap.Hiddens[i] = r.Hidden
		snap.ExtIDs[i] = r.ExtID
		snap.Depths[i] = r.Depth
		if r.IsDir {
			snap.Meta.NumDirs++
		} else {
			snap.Meta.NumFiles++
		}
	}
	return fromSnapshot(snap)
}

// fromSnapshot derives bitmaps and numeric trees from the column data.
// Load reuses it so persisted and freshly built indexes behave identically.
func fromSnapshot(snap *Snapshot) *Index {
	n := snap.Len()
	ix := &Index{
		Snap:    snap,
		Bits:    newBitmaps(),
		extToID: make(map[string]uint32, len(snap.ExtDict)),
	}
	for id, ext := range snap.ExtDict {
		ix.extToID[ext] = uint32(id)
	}

	fileSizes := make([]int64, 0, n)
	fileSizeIDs := make([]EntryID, 0, n)
	mtimes := make([]int64, 0, n)
	mtimeIDs := make([]EntryID, 0, n)

	for i := 0; i < n; i++ {
		id := EntryID(i)
		ix.Bits.add(id, snap.IsDirs[i], snap.Hiddens[i], snap.ExtIDs[i])
		if !snap.IsDirs[i] {
			fileSizes = append(fileSizes, snap.Sizes[i])
			fileSizeIDs = append(fileSizeIDs, id)
		}
		mtimes = append(mtimes, snap.ModTimes[i])
		mtimeIDs = append(mtimeIDs, id)
	}

	ix.sizes = buildNumericTree(fileSizes, fileSizeIDs)
	ix.mtimes = buildNumericTree(mtimes, mtimeIDs)
	return ix
}

// Root reports the tree root this index was built from.
func (ix *Index) Root() string { return ix.Snap.Meta.Root }

// BuiltAt reports when the snapshot was taken.
func (ix *Index) BuiltAt() time.Time { return time.Unix(ix.Snap.Meta.BuiltUnix, 0) }

// Len reports the number of indexed entries.
func (ix *Index) Len() int { return ix.Snap.Len() }

// Candidates intersects the filter's dimensions into a bitmap of entry IDs.
// Callers apply residual predicates (name globs, content matching) by
// iterating the result against the snapshot columns.
func (ix *Index) Candidates(f Filter) *roaring.Bitmap {
	res := ix.all()
	if f.FilesOnly {
		res.And(ix.Bits.Files)
	}
	if f.DirsOnly {
		res.And(ix.Bits.Dirs)
	}
	if !f.IncludeHidden {
		res.AndNot(ix.Bits.Hidden)
	}
	if len(f.Extensions) > 0 {
		res.And(ix.Bits.UnionExt(ix.lookupExtIDs(f.Extensions)...))
	}
	if f.MinSize > 0 || f.MaxSize > 0 {
		hi := f.MaxSize
		if hi <= 0 {
			hi = math.MaxInt64
		}
		sized := roaring.New()
		ix.sizes.rangeInto(f.MinSize, hi, sized)
		res.And(sized)
	}
	if f.After > 0 || f.Before > 0 {
		hi := f.Before
		if hi <= 0 {
			hi = math.MaxInt64
		}
		recent := roaring.New()
		ix.mtimes.rangeInto(f.After, hi, recent)
		res.And(recent)
	}
	return res
}

func (ix *Index) all() *roaring.Bitmap {
	res := roaring.New()
	n := ix.Snap.Len()
	if n > 0 {
		res.AddRange(0, uint64(n))
	}
	return res
}

// lookupExtIDs drops extensions the dictionary has never seen; an unknown
// extension matches nothing.
func (ix *Index) lookupExtIDs(exts []string) []uint32 {
	ids := make([]uint32, 0, len(exts))
	for _, ext := range exts {
		if id, ok := ix.extToID[ext]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}
