//go:build darwin

package catalog

import (
	"io/fs"
	"syscall"
	"time"
)

// creationTime reads the birth time from the underlying stat structure.
func creationTime(info fs.FileInfo) time.Time {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return time.Time{}
	}
	return time.Unix(st.Birthtimespec.Sec, st.Birthtimespec.Nsec)
}
