//go:build windows

package catalog

import (
	"strings"
	"syscall"
)

// isHidden consults the FILE_ATTRIBUTE_HIDDEN flag. Dot-prefixed names are
// also treated as hidden so trees copied from unix systems behave the same
// way on both platforms.
func isHidden(path, name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	p, err := syscall.UTF16PtrFromString(path)
	if err != nil {
		return false
	}
	attrs, err := syscall.GetFileAttributes(p)
	if err != nil {
		return false
	}
	return attrs&syscall.FILE_ATTRIBUTE_HIDDEN != 0
}
