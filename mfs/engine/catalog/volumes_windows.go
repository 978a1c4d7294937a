//go:build windows

package catalog

import (
	"os"

	"github.com/meridianfm/meridian/mfs/engine/types"
)

// Volumes probes drive letters A through Z and reports the ones that
// resolve to a mounted root.
func (c *Catalog) Volumes() ([]types.VolumeInfo, error) {
	var volumes []types.VolumeInfo
	for letter := 'A'; letter <= 'Z'; letter++ {
		root := string(letter) + `:\`
		if _, err := os.Stat(root); err != nil {
			continue
		}
		volumes = append(volumes, types.VolumeInfo{
			Path:  root,
			Label: string(letter) + ":",
		})
	}
	return volumes, nil
}
