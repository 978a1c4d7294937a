//go:build linux || darwin

package common

import "syscall"

// FreeSpace reports the bytes available to the current user on the volume
// holding path. ok is false when the platform cannot answer.
func FreeSpace(path string) (free int64, ok bool) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, false
	}
	return int64(stat.Bavail) * int64(stat.Bsize), true
}

// VolumeSpace reports total and available bytes on the volume holding path.
func VolumeSpace(path string) (total, free uint64, ok bool) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, 0, false
	}
	bsize := uint64(stat.Bsize)
	return uint64(stat.Blocks) * bsize, uint64(stat.Bavail) * bsize, true
}
