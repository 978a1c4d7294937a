package index

import (
	roaring "github.com/RoaringBitmap/roaring"
)

// Bitmaps holds the attribute bitmaps derived from a snapshot. Extension
// bitmaps are keyed by dictionary ID; kind and visibility get dedicated
// bitmaps because every query touches them.
type Bitmaps struct {
	Ext    map[uint32]*roaring.Bitmap
	Files  *roaring.Bitmap
	Dirs   *roaring.Bitmap
	Hidden *roaring.Bitmap
}

func newBitmaps() *Bitmaps {
	return &Bitmaps{
		Ext:    make(map[uint32]*roaring.Bitmap),
		Files:  roaring.New(),
		Dirs:   roaring.New(),
		Hidden: roaring.New(),
	}
}

func (b *Bitmaps) add(id EntryID, isDir, hidden bool, extID uint32) {
	if isDir {
		b.Dirs.Add(id)
	} else {
		b.Files.Add(id)
		bm, ok := b.Ext[extID]
		if !ok {
			bm = roaring.New()
			b.Ext[extID] = bm
		}
		bm.Add(id)
	}
	if hidden {
		b.Hidden.Add(id)
	}
}

// UnionExt returns the union of the given extension bitmaps. An entry has
// exactly one extension, so a multi-extension filter is a union, never an
// intersection.
func (b *Bitmaps) UnionExt(extIDs ...uint32) *roaring.Bitmap {
	res := roaring.New()
	for _, id := range extIDs {
		if bm := b.Ext[id]; bm != nil {
			res.Or(bm)
		}
	}
	return res
}
