//go:build darwin

package catalog

import (
	"os"
	"path/filepath"

	"github.com/meridianfm/meridian/mfs/engine/common"
	"github.com/meridianfm/meridian/mfs/engine/types"
)

// Volumes enumerates the root volume plus everything mounted under
// /Volumes, which is where the OS places external and network mounts.
func (c *Catalog) Volumes() ([]types.VolumeInfo, error) {
	volumes := []types.VolumeInfo{systemVolume()}

	entries, err := os.ReadDir("/Volumes")
	if err != nil {
		return volumes, nil
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		mountPoint := filepath.Join("/Volumes", entry.Name())
		vol := types.VolumeInfo{Path: mountPoint, Label: entry.Name()}
		if total, free, ok := common.VolumeSpace(mountPoint); ok {
			vol.TotalBytes = total
			vol.FreeBytes = free
		}
		volumes = append(volumes, vol)
	}
	return volumes, nil
}

func systemVolume() types.VolumeInfo {
	vol := types.VolumeInfo{Path: "/", Label: "Macintosh HD"}
	if total, free, ok := common.VolumeSpace("/"); ok {
		vol.TotalBytes = total
		vol.FreeBytes = free
	}
	return vol
}
