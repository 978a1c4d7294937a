//go:build linux

package catalog

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/meridianfm/meridian/mfs/engine/common"
	"github.com/meridianfm/meridian/mfs/engine/types"
)

// pseudoFilesystems are mount types that never hold user files.
var pseudoFilesystems = map[string]bool{
	"proc":        true,
	"sysfs":       true,
	"devtmpfs":    true,
	"devpts":      true,
	"cgroup":      true,
	"cgroup2":     true,
	"securityfs":  true,
	"pstore":      true,
	"efivarfs":    true,
	"bpf":         true,
	"tracefs":     true,
	"debugfs":     true,
	"configfs":    true,
	"fusectl":     true,
	"mqueue":      true,
	"hugetlbfs":   true,
	"binfmt_misc": true,
	"autofs":      true,
	"rpc_pipefs":  true,
	"nsfs":        true,
	"overlay":     true,
	"squashfs":    true,
}

// Volumes enumerates mounted volumes from the mount table, skipping
// pseudo-filesystems and per-process mounts under /proc and /sys.
func (c *Catalog) Volumes() ([]types.VolumeInfo, error) {
	f, err := os.Open("/proc/self/mounts")
	if err != nil {
		return nil, fmt.Errorf("failed to read mount table: %w", err)
	}
	defer f.Close()

	var volumes []types.VolumeInfo
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		mountPoint, fsType := unescapeMount(fields[1]), fields[2]
		if pseudoFilesystems[fsType] || seen[mountPoint] {
			continue
		}
		if strings.HasPrefix(mountPoint, "/proc") || strings.HasPrefix(mountPoint, "/sys") ||
			strings.HasPrefix(mountPoint, "/dev") || strings.HasPrefix(mountPoint, "/run") {
			continue
		}
		seen[mountPoint] = true

		vol := types.VolumeInfo{Path: mountPoint, Label: volumeLabel(mountPoint)}
		if total, free, ok := common.VolumeSpace(mountPoint); ok {
			vol.TotalBytes = total
			vol.FreeBytes = free
		}
		volumes = append(volumes, vol)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan mount table: %w", err)
	}
	return volumes, nil
}

// unescapeMount decodes the octal escapes /proc/mounts uses for spaces and
// tabs in mount point paths.
func unescapeMount(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	replacer := strings.NewReplacer(`\040`, " ", `\011`, "\t", `\012`, "\n", `\134`, `\`)
	return replacer.Replace(s)
}

func volumeLabel(mountPoint string) string {
	if mountPoint == "/" {
		return "System"
	}
	return ""
}
