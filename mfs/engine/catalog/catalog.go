// Package catalog produces normalized Entry snapshots from single
// filesystem queries. It performs no caching; listing and search layers
// decide caching policy themselves.
package catalog

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/meridianfm/meridian/mfs/engine/common"
	"github.com/meridianfm/meridian/mfs/engine/types"
)

// Catalog resolves paths to Entry snapshots.
type Catalog struct{}

// New creates a new Catalog.
func New() *Catalog {
	return &Catalog{}
}

// Stat produces the Entry for path from one Lstat call. Symlinks are
// classified as symlinks, not followed; traversal through a link is the
// caller's decision.
func (c *Catalog) Stat(path string) (types.Entry, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return types.Entry{}, common.Classify(path, err)
	}
	return c.EntryFromInfo(path, info), nil
}

// EntryFromInfo builds an Entry from an already-obtained FileInfo, saving a
// second stat during directory scans.
func (c *Catalog) EntryFromInfo(path string, info fs.FileInfo) types.Entry {
	name := info.Name()
	if name == "" || name == "." {
		name = filepath.Base(path)
	}

	entry := types.Entry{
		Path:       path,
		Name:       name,
		Kind:       classifyKind(info.Mode()),
		ModifiedAt: info.ModTime(),
		CreatedAt:  creationTime(info),
		ReadOnly:   info.Mode().Perm()&0o200 == 0,
		Hidden:     isHidden(path, name),
	}

	if entry.Kind == types.KindFile {
		entry.Size = info.Size()
		entry.Extension = strings.ToLower(filepath.Ext(name))
	}

	return entry
}

// ResolveKind follows one level of symlink indirection to report what a
// link points at. Recursive search uses it to decide whether a symlink is
// traversable as a directory.
func (c *Catalog) ResolveKind(path string) (types.EntryKind, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", common.Classify(path, err)
	}
	return classifyKind(info.Mode()), nil
}

func classifyKind(mode fs.FileMode) types.EntryKind {
	switch {
	case mode.IsDir():
		return types.KindDirectory
	case mode&fs.ModeSymlink != 0:
		return types.KindSymlink
	case mode.IsRegular():
		return types.KindFile
	default:
		return types.KindSpecial
	}
}
