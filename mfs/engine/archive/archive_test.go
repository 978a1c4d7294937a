package archive

import (
	"archive/zip"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sourceFixture builds a directory source and a standalone file source.
func sourceFixture(t *testing.T) (dir, file string) {
	t.Helper()
	root := t.TempDir()

	dir = filepath.Join(root, "project")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docs", "guide.txt"), []byte("guide contents"), 0o644))

	file = filepath.Join(root, "standalone.txt")
	require.NoError(t, os.WriteFile(file, []byte("standalone"), 0o644))
	return dir, file
}

// extractedFiles walks dir and returns relative slash paths mapped to
// file contents.
func extractedFiles(t *testing.T, dir string) map[string]string {
	t.Helper()
	files := make(map[string]string)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		require.NoError(t, err)
		if d.IsDir() {
			return nil
		}
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		rel, err := filepath.Rel(dir, p)
		require.NoError(t, err)
		files[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	require.NoError(t, err)
	return files
}

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		path   string
		format Format
	}{
		{"bundle.zip", FormatZip},
		{"bundle.ZIP", FormatZip},
		{"bundle.tar", FormatTar},
		{"bundle.tar.gz", FormatTarGz},
		{"bundle.tgz", FormatTarGz},
		{"bundle.tar.zst", FormatTarZst},
		{"bundle.tzst", FormatTarZst},
	}
	for _, tc := range cases {
		format, err := DetectFormat(tc.path)
		require.NoError(t, err, tc.path)
		assert.Equal(t, tc.format, format, tc.path)
	}

	_, err := DetectFormat("bundle.rar")
	assert.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatZip, FormatTar, FormatTarGz, FormatTarZst} {
		t.Run(string(format), func(t *testing.T) {
			dir, file := sourceFixture(t)
			out := filepath.Join(t.TempDir(), "bundle"+format.Extension())

			var entries int
			err := Create(context.Background(), format, out, []string{dir, file}, func(string, int64) error {
				entries++
				return nil
			})
			require.NoError(t, err)
			assert.GreaterOrEqual(t, entries, 4, "dir, subdir and three files pass the checkpoint")

			dest := filepath.Join(t.TempDir(), "out")
			require.NoError(t, Extract(context.Background(), out, dest, nil))

			assert.Equal(t, map[string]string{
				"project/readme.md":      "hello",
				"project/docs/guide.txt": "guide contents",
				"standalone.txt":         "standalone",
			}, extractedFiles(t, dest))
		})
	}
}

func TestListReportsMembers(t *testing.T) {
	dir, file := sourceFixture(t)
	out := filepath.Join(t.TempDir(), "bundle.tar.gz")
	require.NoError(t, Create(context.Background(), FormatTarGz, out, []string{dir, file}, nil))

	entries, err := List(context.Background(), out)
	require.NoError(t, err)

	names := make(map[string]bool, len(entries))
	var fileCount int
	for _, e := range entries {
		names[e.Name] = true
		if !e.IsDir {
			fileCount++
			assert.Positive(t, e.Size, e.Name)
		}
	}
	assert.True(t, names["project/readme.md"])
	assert.True(t, names["project/docs/guide.txt"])
	assert.True(t, names["standalone.txt"])
	assert.Equal(t, 3, fileCount)
}

func TestCreateCancelledRemovesPartialOutput(t *testing.T) {
	dir, file := sourceFixture(t)
	out := filepath.Join(t.TempDir(), "bundle.zip")

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Create(ctx, FormatZip, out, []string{dir, file}, func(string, int64) error {
		calls++
		if calls == 1 {
			cancel()
		}
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr), "cancelled create must not leave a partial archive")
}

func TestCreateAbortedByCheckpoint(t *testing.T) {
	dir, file := sourceFixture(t)
	out := filepath.Join(t.TempDir(), "bundle.tar")

	boom := errors.New("stop here")
	err := Create(context.Background(), FormatTar, out, []string{dir, file}, func(string, int64) error {
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCreateDisambiguatesDuplicateNames(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	fileA := filepath.Join(rootA, "notes.txt")
	fileB := filepath.Join(rootB, "notes.txt")
	require.NoError(t, os.WriteFile(fileA, []byte("first"), 0o644))
	require.NoError(t, os.WriteFile(fileB, []byte("second"), 0o644))

	out := filepath.Join(t.TempDir(), "bundle.zip")
	require.NoError(t, Create(context.Background(), FormatZip, out, []string{fileA, fileB}, nil))

	entries, err := List(context.Background(), out)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "notes.txt", entries[0].Name)
	assert.Equal(t, "notes (1).txt", entries[1].Name)
}

func TestExtractRejectsEscapingEntries(t *testing.T) {
	root := t.TempDir()
	archivePath := filepath.Join(root, "evil.zip")

	f, err := os.Create(archivePath)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("../evil.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("bad"))
	require.NoError(t, err)
	w, err = zw.Create("good.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("good"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	dest := filepath.Join(root, "out")
	require.NoError(t, Extract(context.Background(), archivePath, dest, nil))

	assert.Equal(t, map[string]string{"good.txt": "good"}, extractedFiles(t, dest))
	_, statErr := os.Stat(filepath.Join(root, "evil.txt"))
	assert.True(t, os.IsNotExist(statErr), "entries escaping the destination must be dropped")
}

func TestExtractPreservesFileMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits are not preserved on windows")
	}
	root := t.TempDir()
	script := filepath.Join(root, "run.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n"), 0o755))

	out := filepath.Join(root, "bundle.zip")
	require.NoError(t, Create(context.Background(), FormatZip, out, []string{script}, nil))

	dest := filepath.Join(root, "out")
	require.NoError(t, Extract(context.Background(), out, dest, nil))

	info, err := os.Stat(filepath.Join(dest, "run.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestExtractCancellation(t *testing.T) {
	dir, file := sourceFixture(t)
	out := filepath.Join(t.TempDir(), "bundle.tar.zst")
	require.NoError(t, Create(context.Background(), FormatTarZst, out, []string{dir, file}, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Extract(ctx, out, filepath.Join(t.TempDir(), "out"), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCreateMissingSource(t *testing.T) {
	out := filepath.Join(t.TempDir(), "bundle.zip")
	err := Create(context.Background(), FormatZip, out, []string{filepath.Join(t.TempDir(), "gone")}, nil)
	require.Error(t, err)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}
