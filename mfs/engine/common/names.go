package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// NumberedName applies the collision-avoidance naming convention:
// "report.txt" with n=1 becomes "report (1).txt". Directories and
// extensionless names get the suffix appended to the whole name.
func NumberedName(name string, n int) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return fmt.Sprintf("%s (%d)%s", stem, n, ext)
}

// NextAvailableName probes dir for the first name that does not exist yet,
// starting with name itself and then its numbered variants. The probe is
// advisory; creation can still race and callers must handle an exists error.
func NextAvailableName(dir, name string) (string, error) {
	candidate := name
	for n := 1; ; n++ {
		_, err := os.Lstat(filepath.Join(dir, candidate))
		if os.IsNotExist(err) {
			return candidate, nil
		}
		if err != nil {
			return "", WrapPath(KindIOFailure, filepath.Join(dir, candidate), err)
		}
		if n > 10000 {
			return "", WrapPath(KindNameConflict, filepath.Join(dir, name), nil)
		}
		candidate = NumberedName(name, n)
	}
}
