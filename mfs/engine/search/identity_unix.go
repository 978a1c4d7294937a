//go:build !windows

package search

import (
	"io/fs"
	"syscall"
)

// dirKey derives the identity of a directory from its device and inode, the
// cheapest form that survives any number of symlink aliases. Falls back to
// the resolved path when the platform stat carries no inode.
func dirKey(path string, info fs.FileInfo) (dirIdentity, bool) {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return dirIdentity{dev: uint64(st.Dev), ino: uint64(st.Ino)}, true
	}
	return resolvedKey(path)
}
