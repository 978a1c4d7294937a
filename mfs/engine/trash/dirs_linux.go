//go:build linux

package trash

import (
	"os"
	"path/filepath"
)

// platformTrashDirs resolves the freedesktop home trash:
// $XDG_DATA_HOME/Trash, defaulting to ~/.local/share/Trash.
func platformTrashDirs() (filesDir, infoDir string, ok bool) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", false
		}
		base = filepath.Join(home, ".local", "share")
	}
	trash := filepath.Join(base, "Trash")
	return filepath.Join(trash, "files"), filepath.Join(trash, "info"), true
}
