package archive

import (
	"archive/tar"
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/meridianfm/meridian/mfs/engine/common"
)

// Extract unpacks an archive into destDir, creating it if needed. Entries
// whose resolved path would escape destDir are skipped with a warning.
// File modes and modification times are restored where the archive carries
// them. The per-entry checkpoint runs before each member is written.
func Extract(ctx context.Context, archivePath, destDir string, onEntry EntryFunc) error {
	format, err := DetectFormat(archivePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return common.Classify(destDir, err)
	}
	if format == FormatZip {
		return extractZip(ctx, archivePath, destDir, onEntry)
	}
	return extractTar(ctx, archivePath, destDir, format, onEntry)
}

func extractZip(ctx context.Context, archivePath, destDir string, onEntry EntryFunc) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return common.Classify(archivePath, err)
	}
	defer r.Close()

	for _, f := range r.File {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		destPath, ok := containedPath(destDir, f.Name)
		if !ok {
			slog.Warn("Skipping archive entry escaping destination", "archive", archivePath, "entry", f.Name)
			continue
		}
		info := f.FileInfo()

		if onEntry != nil {
			if err := onEntry(destPath, info.Size()); err != nil {
				if errors.Is(err, ErrSkipEntry) {
					continue
				}
				return err
			}
		}

		if info.IsDir() {
			if err := os.MkdirAll(destPath, dirMode(info.Mode().Perm())); err != nil {
				return common.Classify(destPath, err)
			}
			continue
		}

		src, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to read archive entry %s: %w", f.Name, err)
		}
		err = writeExtracted(destPath, src, info.Mode().Perm(), f.Modified)
		src.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func extractTar(ctx context.Context, archivePath, destDir string, format Format, onEntry EntryFunc) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return common.Classify(archivePath, err)
	}
	defer f.Close()

	tr, closeReader, err := tarReader(f, format)
	if err != nil {
		return err
	}
	defer closeReader()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read archive %s: %w", archivePath, err)
		}

		destPath, ok := containedPath(destDir, header.Name)
		if !ok {
			slog.Warn("Skipping archive entry escaping destination", "archive", archivePath, "entry", header.Name)
			continue
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if onEntry != nil {
				if err := onEntry(destPath, 0); err != nil {
					if errors.Is(err, ErrSkipEntry) {
						continue
					}
					return err
				}
			}
			if err := os.MkdirAll(destPath, dirMode(os.FileMode(header.Mode).Perm())); err != nil {
				return common.Classify(destPath, err)
			}
		case tar.TypeReg:
			if onEntry != nil {
				if err := onEntry(destPath, header.Size); err != nil {
					if errors.Is(err, ErrSkipEntry) {
						continue
					}
					return err
				}
			}
			if err := writeExtracted(destPath, tr, os.FileMode(header.Mode).Perm(), header.ModTime); err != nil {
				return err
			}
		default:
			slog.Warn("Skipping unsupported archive entry", "archive", archivePath, "entry", header.Name, "type", header.Typeflag)
		}
	}
}

// containedPath joins name under destDir and rejects entries that resolve
// outside it.
func containedPath(destDir, name string) (string, bool) {
	destPath := filepath.Join(destDir, filepath.FromSlash(name))
	root := filepath.Clean(destDir)
	if destPath != root && !strings.HasPrefix(destPath, root+string(os.PathSeparator)) {
		return "", false
	}
	return destPath, true
}

func writeExtracted(destPath string, src io.Reader, perm os.FileMode, modified time.Time) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return common.Classify(destPath, err)
	}
	if perm == 0 {
		perm = 0o644
	}
	dst, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return common.Classify(destPath, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to extract %s: %w", destPath, err)
	}
	if err := dst.Close(); err != nil {
		return common.Classify(destPath, err)
	}
	if !modified.IsZero() {
		if err := os.Chtimes(destPath, modified, modified); err != nil {
			slog.Debug("Failed to restore entry times", "path", destPath, "error", err)
		}
	}
	return nil
}

func dirMode(perm os.FileMode) os.FileMode {
	if perm == 0 {
		return 0o755
	}
	return perm
}
