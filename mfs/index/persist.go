package index

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Binary snapshot format, little-endian:
// [magic "MFSX"] [u32 version] [root string] [u64 n] [u64 builtUnix]
// [u32 numFiles] [u32 numDirs] [ext dictionary] then the columns: paths,
// names, sizes, modtimes, isDirs, hiddens, extIDs, depths. Strings are
// u32-length-prefixed.
var snapshotMagic = [4]byte{'M', 'F', 'S', 'X'}

const snapshotVersion uint32 = 1

// Save persists the index snapshot to path. Accelerators are rebuilt on
// load, only the columns are written.
func Save(path string, ix *Index) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file %s: %w", path, err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	w := &binWriter{w: bw}
	snap := ix.Snap

	w.raw(snapshotMagic[:])
	w.u32(snapshotVersion)
	w.str(snap.Meta.Root)
	w.u64(uint64(snap.Len()))
	w.u64(uint64(snap.Meta.BuiltUnix))
	w.u32(uint32(snap.Meta.NumFiles))
	w.u32(uint32(snap.Meta.NumDirs))

	w.u32(uint32(len(snap.ExtDict)))
	for _, ext := range snap.ExtDict {
		w.str(ext)
	}
	for _, p := range snap.Paths {
		w.str(p)
	}
	for _, n := range snap.Names {
		w.str(n)
	}
	for _, v := range snap.Sizes {
		w.u64(uint64(v))
	}
	for _, v := range snap.ModTimes {
		w.u64(uint64(v))
	}
	w.bools(snap.IsDirs)
	w.bools(snap.Hiddens)
	for _, v := range snap.ExtIDs {
		w.u32(v)
	}
	for _, v := range snap.Depths {
		w.u16(v)
	}
	if w.err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", path, w.err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush snapshot %s: %w", path, err)
	}
	return nil
}

// Load reads a snapshot persisted with Save and rebuilds the accelerators.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot file %s: %w", path, err)
	}
	defer f.Close()

	r := &binReader{r: bufio.NewReader(f)}

	var magic [4]byte
	r.raw(magic[:])
	if r.err == nil && magic != snapshotMagic {
		return nil, fmt.Errorf("snapshot file %s has unexpected header", path)
	}
	if version := r.u32(); r.err == nil && version != snapshotVersion {
		return nil, fmt.Errorf("snapshot file %s has unsupported version %d", path, version)
	}

	snap := &Snapshot{}
	snap.Meta.Root = r.str()
	n := int(r.u64())
	snap.Meta.BuiltUnix = int64(r.u64())
	snap.Meta.NumFiles = int(r.u32())
	snap.Meta.NumDirs = int(r.u32())

	if r.err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, r.err)
	}

	snap.ExtDict = make([]string, r.u32())
	for i := range snap.ExtDict {
		snap.ExtDict[i] = r.str()
	}
	snap.Paths = make([]string, n)
	for i := range snap.Paths {
		snap.Paths[i] = r.str()
	}
	snap.Names = make([]string, n)
	for i := range snap.Names {
		snap.Names[i] = r.str()
	}
	snap.Sizes = make([]int64, n)
	for i := range snap.Sizes {
		snap.Sizes[i] = int64(r.u64())
	}
	snap.ModTimes = make([]int64, n)
	for i := range snap.ModTimes {
		snap.ModTimes[i] = int64(r.u64())
	}
	snap.IsDirs = r.bools(n)
	snap.Hiddens = r.bools(n)
	snap.ExtIDs = make([]uint32, n)
	for i := range snap.ExtIDs {
		snap.ExtIDs[i] = r.u32()
	}
	snap.Depths = make([]uint16, n)
	for i := range snap.Depths {
		snap.Depths[i] = r.u16()
	}

	if r.err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, r.err)
	}
	return fromSnapshot(snap), nil
}

// binWriter accumulates the first write error so call sites stay flat.
type binWriter struct {
	w   io.Writer
	err error
}

func (w *binWriter) raw(b []byte) {
	if w.err == nil {
		_, w.err = w.w.Write(b)
	}
}

func (w *binWriter) u16(v uint16) {
	if w.err == nil {
		w.err = binary.Write(w.w, binary.LittleEndian, v)
	}
}

func (w *binWriter) u32(v uint32) {
	if w.err == nil {
		w.err = binary.Write(w.w, binary.LittleEndian, v)
	}
}

func (w *binWriter) u64(v uint64) {
	if w.err == nil {
		w.err = binary.Write(w.w, binary.LittleEndian, v)
	}
}

func (w *binWriter) str(s string) {
	w.u32(uint32(len(s)))
	w.raw([]byte(s))
}

func (w *binWriter) bools(vs []bool) {
	buf := make([]byte, len(vs))
	for i, v := range vs {
		if v {
			buf[i] = 1
		}
	}
	w.raw(buf)
}

type binReader struct {
	r   io.Reader
	err error
}

func (r *binReader) raw(b []byte) {
	if r.err == nil {
		_, r.err = io.ReadFull(r.r, b)
	}
}

func (r *binReader) u16() uint16 {
	var v uint16
	if r.err == nil {
		r.err = binary.Read(r.r, binary.LittleEndian, &v)
	}
	return v
}

func (r *binReader) u32() uint32 {
	var v uint32
	if r.err == nil {
		r.err = binary.Read(r.r, binary.LittleEndian, &v)
	}
	return v
}

func (r *binReader) u64() uint64 {
	var v uint64
	if r.err == nil {
		r.err = binary.Read(r.r, binary.LittleEndian, &v)
	}
	return v
}

func (r *binReader) str() string {
	n := r.u32()
	if r.err != nil || n == 0 {
		return ""
	}
	buf := make([]byte, n)
	r.raw(buf)
	if r.err != nil {
		return ""
	}
	return string(buf)
}

func (r *binReader) bools(n int) []bool {
	buf := make([]byte, n)
	r.raw(buf)
	vs := make([]bool, n)
	if r.err != nil {
		return vs
	}
	for i, b := range buf {
		vs[i] = b == 1
	}
	return vs
}
