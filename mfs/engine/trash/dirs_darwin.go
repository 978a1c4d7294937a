//go:build darwin

package trash

import (
	"os"
	"path/filepath"
)

// platformTrashDirs resolves the user trash folder. Finder keeps its own
// metadata, so there is no sidecar directory.
func platformTrashDirs() (filesDir, infoDir string, ok bool) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", false
	}
	return filepath.Join(home, ".Trash"), "", true
}
