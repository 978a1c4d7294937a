// Package archive creates, lists and extracts zip and tar archives, with
// gzip and zstd compression for the tar variants. Every entry passes
// through a caller-supplied checkpoint so operations can report progress
// and cancel between entries.
package archive

import (
	"archive/tar"
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/meridianfm/meridian/mfs/engine/common"
)

// Format identifies an archive container and compression.
type Format string

const (
	FormatZip    Format = "zip"
	FormatTar    Format = "tar"
	FormatTarGz  Format = "tar.gz"
	FormatTarZst Format = "tar.zst"
)

// DetectFormat derives the format from a file name.
func DetectFormat(path string) (Format, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip, nil
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGz, nil
	case strings.HasSuffix(lower, ".tar.zst"), strings.HasSuffix(lower, ".tzst"):
		return FormatTarZst, nil
	case strings.HasSuffix(lower, ".tar"):
		return FormatTar, nil
	default:
		return "", fmt.Errorf("unsupported archive format for %s", path)
	}
}

// Extension returns the conventional file suffix for the format.
func (f Format) Extension() string {
	switch f {
	case FormatZip:
		return ".zip"
	case FormatTarGz:
		return ".tar.gz"
	case FormatTarZst:
		return ".tar.zst"
	default:
		return ".tar"
	}
}

// ErrSkipEntry, returned from an EntryFunc during extraction, skips the
// current member and continues with the rest of the archive.
var ErrSkipEntry = errors.New("skip archive entry")

// EntryFunc is invoked before each entry is written or extracted. A non-nil
// return aborts the whole operation with that error; during extraction
// ErrSkipEntry is handled as a per-entry skip instead.
type EntryFunc func(path string, size int64) error

// Entry describes one archive member for content listings.
type Entry struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
	IsDir    bool      `json:"is_dir"`
}

// Create writes an archive of the given sources to outPath. Directory
// sources are walked recursively and stored under their base name; file
// sources are stored flat. Symlinks and special files are skipped with a
// warning. On any failure, including cancellation, the partial output file
// is removed; Create either produces a complete archive or nothing.
func Create(ctx context.Context, format Format, outPath string, sources []string, onEntry EntryFunc) (err error) {
	out, err := os.Create(outPath)
	if err != nil {
		return common.Classify(outPath, err)
	}
	defer func() {
		if err != nil {
			out.Close()
			if rmErr := os.Remove(outPath); rmErr != nil {
				slog.Warn("Failed to remove partial archive", "path", outPath, "error", rmErr)
			}
		}
	}()

	switch format {
	case FormatZip:
		err = createZip(ctx, out, sources, onEntry)
	case FormatTar, FormatTarGz, FormatTarZst:
		err = createTar(ctx, out, format, sources, onEntry)
	default:
		err = fmt.Errorf("unsupported archive format %q", format)
	}
	if err != nil {
		return err
	}

	if err = out.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive %s: %w", outPath, err)
	}
	return nil
}

func createZip(ctx context.Context, out io.Writer, sources []string, onEntry EntryFunc) error {
	zw := zip.NewWriter(out)

	err := walkSources(ctx, sources, func(path, name string, info fs.FileInfo) error {
		if err := checkpoint(onEntry, path, info); err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return fmt.Errorf("failed to build header for %s: %w", path, err)
		}
		header.Name = name
		if info.IsDir() {
			header.Name += "/"
			_, err = zw.CreateHeader(header)
			return err
		}
		header.Method = zip.Deflate
		w, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", name, err)
		}
		return copyFileInto(w, path)
	})
	if err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

func createTar(ctx context.Context, out io.Writer, format Format, sources []string, onEntry EntryFunc) error {
	var (
		tw         *tar.Writer
		compressor io.Closer
	)
	switch format {
	case FormatTarGz:
		gz := gzip.NewWriter(out)
		compressor = gz
		tw = tar.NewWriter(gz)
	case FormatTarZst:
		enc, err := zstd.NewWriter(out)
		if err != nil {
			return fmt.Errorf("failed to initialize zstd writer: %w", err)
		}
		compressor = enc
		tw = tar.NewWriter(enc)
	default:
		tw = tar.NewWriter(out)
	}

	closeAll := func() error {
		if err := tw.Close(); err != nil {
			return err
		}
		if compressor != nil {
			return compressor.Close()
		}
		return nil
	}

	err := walkSources(ctx, sources, func(path, name string, info fs.FileInfo) error {
		if err := checkpoint(onEntry, path, info); err != nil {
			return err
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return fmt.Errorf("failed to build header for %s: %w", path, err)
		}
		header.Name = name
		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("failed to add %s: %w", name, err)
		}
		if info.IsDir() {
			return nil
		}
		return copyFileInto(tw, path)
	})
	if err != nil {
		closeAll()
		return err
	}
	return closeAll()
}

// walkSources visits every archive member across the sources in a stable
// order, disambiguating duplicate top-level names with the numbered naming
// convention.
func walkSources(ctx context.Context, sources []string, fn func(path, name string, info fs.FileInfo) error) error {
	seen := make(map[string]bool)

	claim := func(name string) string {
		candidate := name
		for n := 1; seen[candidate]; n++ {
			candidate = common.NumberedName(name, n)
		}
		seen[candidate] = true
		return candidate
	}

	for _, src := range sources {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		src = filepath.Clean(src)
		info, err := os.Lstat(src)
		if err != nil {
			return common.Classify(src, err)
		}
		base := claim(filepath.Base(src))

		switch {
		case info.IsDir():
			err = filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				if err != nil {
					return common.Classify(p, err)
				}
				if d.Type()&fs.ModeSymlink != 0 {
					slog.Warn("Skipping symlink in archive source", "path", p)
					return nil
				}
				if !d.IsDir() && !d.Type().IsRegular() {
					slog.Warn("Skipping special file in archive source", "path", p)
					return nil
				}
				entryInfo, err := d.Info()
				if err != nil {
					return common.Classify(p, err)
				}
				name := base
				if rel, relErr := filepath.Rel(src, p); relErr == nil && rel != "." {
					name = filepath.ToSlash(filepath.Join(base, rel))
				}
				return fn(p, name, entryInfo)
			})
			if err != nil {
				return err
			}
		case info.Mode().IsRegular():
			if err := fn(src, base, info); err != nil {
				return err
			}
		default:
			slog.Warn("Skipping unsupported archive source", "path", src, "mode", info.Mode().String())
		}
	}
	return nil
}

func checkpoint(onEntry EntryFunc, path string, info fs.FileInfo) error {
	if onEntry == nil {
		return nil
	}
	size := int64(0)
	if !info.IsDir() {
		size = info.Size()
	}
	return onEntry(path, size)
}

func copyFileInto(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return common.Classify(path, err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to archive %s: %w", path, err)
	}
	return nil
}

// List reads the member table of an archive without extracting anything.
func List(ctx context.Context, archivePath string) ([]Entry, error) {
	format, err := DetectFormat(archivePath)
	if err != nil {
		return nil, err
	}
	if format == FormatZip {
		return listZip(archivePath)
	}
	return listTar(ctx, archivePath, format)
}

func listZip(archivePath string) ([]Entry, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, common.Classify(archivePath, err)
	}
	defer r.Close()

	entries := make([]Entry, 0, len(r.File))
	for _, f := range r.File {
		info := f.FileInfo()
		entries = append(entries, Entry{
			Name:     f.Name,
			Size:     info.Size(),
			Modified: info.ModTime(),
			IsDir:    info.IsDir(),
		})
	}
	return entries, nil
}

func listTar(ctx context.Context, archivePath string, format Format) ([]Entry, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, common.Classify(archivePath, err)
	}
	defer f.Close()

	tr, closeReader, err := tarReader(f, format)
	if err != nil {
		return nil, err
	}
	defer closeReader()

	var entries []Entry
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read archive %s: %w", archivePath, err)
		}
		entries = append(entries, Entry{
			Name:     header.Name,
			Size:     header.Size,
			Modified: header.ModTime,
			IsDir:    header.Typeflag == tar.TypeDir,
		})
	}
	return entries, nil
}

// tarReader composes the decompression layer the format requires.
func tarReader(f *os.File, format Format) (*tar.Reader, func(), error) {
	switch format {
	case FormatTarGz:
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		return tar.NewReader(gz), func() { gz.Close() }, nil
	case FormatTarZst:
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open zstd stream: %w", err)
		}
		return tar.NewReader(dec), dec.Close, nil
	default:
		return tar.NewReader(f), func() {}, nil
	}
}
