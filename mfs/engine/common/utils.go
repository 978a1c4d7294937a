package common

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// PathUtils provides path manipulation utilities used across engine packages
type PathUtils struct{}

// NewPathUtils creates a new PathUtils instance
func NewPathUtils() *PathUtils {
	return &PathUtils{}
}

// NormalizePath normalizes a file path for cross-platform comparison
func (pu *PathUtils) NormalizePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return filepath.Clean(abs)
}

// IsSubpath checks if child is a subpath of parent
func (pu *PathUtils) IsSubpath(parent, child string) bool {
	parent = pu.NormalizePath(parent)
	child = pu.NormalizePath(child)

	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}

	return !strings.HasPrefix(rel, "..") && rel != "."
}

// SplitPath splits a path into directory, base name without extension, and
// extension components
func (pu *PathUtils) SplitPath(path string) (dir, name, ext string) {
	dir = filepath.Dir(path)
	name = filepath.Base(path)
	ext = filepath.Ext(name)

	if ext != "" {
		name = strings.TrimSuffix(name, ext)
	}

	return dir, name, ext
}

// ValidatePath validates that a path is structurally usable
func (pu *PathUtils) ValidatePath(path string) error {
	if path == "" {
		return WrapPath(KindInvalidName, path, fmt.Errorf("path cannot be empty"))
	}

	if strings.Contains(path, "\x00") {
		return WrapPath(KindInvalidName, path, fmt.Errorf("path contains null character"))
	}

	if len(path) > 4096 {
		return WrapPath(KindInvalidName, path, fmt.Errorf("path too long (max 4096 characters)"))
	}

	return nil
}

// windowsReservedNames are device names no file or directory may use on
// Windows regardless of extension.
var windowsReservedNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {},
	"COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {},
	"LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// ValidateName checks that name is a legal single path component on the
// host filesystem. It rejects empty names, separators, traversal components
// and characters the host platform forbids.
func (pu *PathUtils) ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return WrapPath(KindInvalidName, name, fmt.Errorf("name cannot be empty"))
	}
	if name == "." || name == ".." {
		return WrapPath(KindInvalidName, name, fmt.Errorf("name cannot be a traversal component"))
	}
	if strings.ContainsAny(name, "/\x00") || strings.ContainsRune(name, os.PathSeparator) {
		return WrapPath(KindInvalidName, name, fmt.Errorf("name contains a path separator"))
	}
	if runtime.GOOS == "windows" {
		if strings.ContainsAny(name, `<>:"\|?*`) {
			return WrapPath(KindInvalidName, name, fmt.Errorf("name contains characters invalid on windows"))
		}
		base := strings.ToUpper(name)
		if dot := strings.IndexByte(base, '.'); dot >= 0 {
			base = base[:dot]
		}
		if _, reserved := windowsReservedNames[base]; reserved {
			return WrapPath(KindInvalidName, name, fmt.Errorf("name is reserved on windows"))
		}
		if strings.HasSuffix(name, " ") || strings.HasSuffix(name, ".") {
			return WrapPath(KindInvalidName, name, fmt.Errorf("name cannot end with a space or dot on windows"))
		}
	}
	return nil
}

// SafetyUtils provides safety checks for bulk mutations
type SafetyUtils struct {
	pathUtils *PathUtils
}

// NewSafetyUtils creates a new SafetyUtils instance
func NewSafetyUtils() *SafetyUtils {
	return &SafetyUtils{pathUtils: NewPathUtils()}
}

// IsSafeOperation checks if a copy/move from srcPath to dstPath is safe to
// perform: no self-reference and no moving a parent into its own child.
func (su *SafetyUtils) IsSafeOperation(srcPath, dstPath string) error {
	if su.pathUtils.NormalizePath(srcPath) == su.pathUtils.NormalizePath(dstPath) {
		return fmt.Errorf("source and destination are the same: %s", srcPath)
	}

	if su.pathUtils.IsSubpath(srcPath, dstPath) {
		return fmt.Errorf("cannot place %s inside its own subtree %s", srcPath, dstPath)
	}

	return nil
}

// FileUtils provides file content utilities used across packages
type FileUtils struct{}

// NewFileUtils creates a new FileUtils instance
func NewFileUtils() *FileUtils {
	return &FileUtils{}
}

// ChecksumSHA256 calculates the SHA-256 digest of a file
func (fu *FileUtils) ChecksumSHA256(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("failed to calculate checksum for %s: %w", path, err)
	}

	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}

// CopyFileAttributes copies permissions and modification time from source
// to destination
func (fu *FileUtils) CopyFileAttributes(srcPath, dstPath string, preservePerms, preserveTimes bool) error {
	srcInfo, err := os.Stat(srcPath)
	if err != nil {
		return fmt.Errorf("failed to stat source %s: %w", srcPath, err)
	}

	if preservePerms {
		if err := os.Chmod(dstPath, srcInfo.Mode()); err != nil {
			return fmt.Errorf("failed to set permissions on %s: %w", dstPath, err)
		}
	}

	if preserveTimes {
		if err := os.Chtimes(dstPath, time.Now(), srcInfo.ModTime()); err != nil {
			return fmt.Errorf("failed to set times on %s: %w", dstPath, err)
		}
	}

	return nil
}

// IsTextExtension reports whether the extension names a file format content
// search is willing to read.
func (fu *FileUtils) IsTextExtension(ext string) bool {
	switch strings.ToLower(ext) {
	case ".txt", ".md", ".rst", ".log", ".csv", ".json", ".xml", ".yaml", ".yml",
		".toml", ".ini", ".cfg", ".conf", ".html", ".htm", ".css", ".js", ".ts",
		".go", ".py", ".rs", ".c", ".h", ".cpp", ".hpp", ".java", ".rb", ".php",
		".sh", ".bat", ".ps1", ".sql":
		return true
	}
	return false
}
