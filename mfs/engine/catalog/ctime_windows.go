//go:build windows

package catalog

import (
	"io/fs"
	"syscall"
	"time"
)

// creationTime reads the CreationTime field from the Win32 file data.
func creationTime(info fs.FileInfo) time.Time {
	st, ok := info.Sys().(*syscall.Win32FileAttributeData)
	if !ok {
		return time.Time{}
	}
	return time.Unix(0, st.CreationTime.Nanoseconds())
}
