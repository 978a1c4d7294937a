//go:build !linux && !darwin && !windows

package catalog

import (
	"github.com/meridianfm/meridian/mfs/engine/types"
)

// Volumes reports the filesystem root. Platform-specific enumeration is
// not implemented here.
func (c *Catalog) Volumes() ([]types.VolumeInfo, error) {
	return []types.VolumeInfo{{Path: "/"}}, nil
}
