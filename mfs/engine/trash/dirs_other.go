//go:build !linux && !darwin

package trash

// platformTrashDirs reports no platform trash; callers use the managed
// fallback area.
func platformTrashDirs() (filesDir, infoDir string, ok bool) {
	return "", "", false
}
