//go:build !windows

package catalog

import "strings"

// isHidden reports dot-prefixed names as hidden. This is the convention on
// unix-like systems; there is no filesystem attribute to consult.
func isHidden(path, name string) bool {
	return strings.HasPrefix(name, ".")
}
