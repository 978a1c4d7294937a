//go:build windows

package search

import "io/fs"

// dirKey identifies a directory by its fully resolved path. Windows stat
// results expose no inode equivalent through the portable interface.
func dirKey(path string, _ fs.FileInfo) (dirIdentity, bool) {
	return resolvedKey(path)
}
