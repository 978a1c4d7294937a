//go:build !darwin && !windows

package catalog

import (
	"io/fs"
	"time"
)

// creationTime returns the zero time. Linux exposes no creation time
// through the portable stat interface; callers treat a zero CreatedAt as
// unavailable.
func creationTime(info fs.FileInfo) time.Time {
	return time.Time{}
}
