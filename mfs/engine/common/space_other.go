//go:build !linux && !darwin

package common

// FreeSpace reports the bytes available on the volume holding path.
// Not implemented on this platform; callers fall back to the filesystem
// surfacing ENOSPC at write time.
func FreeSpace(path string) (free int64, ok bool) {
	return 0, false
}

// VolumeSpace reports total and available bytes on the volume holding path.
// Not implemented on this platform.
func VolumeSpace(path string) (total, free uint64, ok bool) {
	return 0, 0, false
}
