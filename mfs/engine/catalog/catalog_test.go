package catalog

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianfm/meridian/mfs/engine/common"
	"github.com/meridianfm/meridian/mfs/engine/types"
)

func TestStatFile(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "report.TXT")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	c := New()
	entry, err := c.Stat(path)
	require.NoError(t, err)

	assert.Equal(t, path, entry.Path)
	assert.Equal(t, "report.TXT", entry.Name)
	assert.Equal(t, types.KindFile, entry.Kind)
	assert.Equal(t, int64(11), entry.Size)
	assert.Equal(t, ".txt", entry.Extension, "extension should be normalized to lower case")
	assert.False(t, entry.ModifiedAt.IsZero())
	assert.False(t, entry.Hidden)
	assert.False(t, entry.IsDir())
}

func TestStatDirectory(t *testing.T) {
	tempDir := t.TempDir()
	sub := filepath.Join(tempDir, "photos")
	require.NoError(t, os.Mkdir(sub, 0o755))

	c := New()
	entry, err := c.Stat(sub)
	require.NoError(t, err)

	assert.Equal(t, types.KindDirectory, entry.Kind)
	assert.True(t, entry.IsDir())
	assert.Empty(t, entry.Extension, "directories carry no extension")
	assert.Zero(t, entry.Size, "directory sizes are not reported")
}

func TestStatMissingPath(t *testing.T) {
	c := New()
	_, err := c.Stat(filepath.Join(t.TempDir(), "no-such-file"))
	require.Error(t, err)
	assert.Equal(t, common.KindNotFound, common.KindOf(err))
}

func TestStatSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires elevated privileges on windows")
	}
	tempDir := t.TempDir()
	target := filepath.Join(tempDir, "target")
	require.NoError(t, os.Mkdir(target, 0o755))
	link := filepath.Join(tempDir, "link")
	require.NoError(t, os.Symlink(target, link))

	c := New()
	entry, err := c.Stat(link)
	require.NoError(t, err)
	assert.Equal(t, types.KindSymlink, entry.Kind, "Stat must not follow links")

	kind, err := c.ResolveKind(link)
	require.NoError(t, err)
	assert.Equal(t, types.KindDirectory, kind, "ResolveKind follows the link to its target")
}

func TestHiddenDetection(t *testing.T) {
	tempDir := t.TempDir()
	hidden := filepath.Join(tempDir, ".secrets")
	require.NoError(t, os.WriteFile(hidden, []byte("x"), 0o644))

	c := New()
	entry, err := c.Stat(hidden)
	require.NoError(t, err)
	assert.True(t, entry.Hidden)
}

func TestReadOnlyDetection(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "locked.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o444))

	c := New()
	entry, err := c.Stat(path)
	require.NoError(t, err)
	assert.True(t, entry.ReadOnly)
}

func TestEntryFromInfoMatchesStat(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "data.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, 256), 0o644))

	info, err := os.Lstat(path)
	require.NoError(t, err)

	c := New()
	fromInfo := c.EntryFromInfo(path, info)
	fromStat, err := c.Stat(path)
	require.NoError(t, err)

	assert.Equal(t, fromStat, fromInfo)
}

func TestDetectMIME(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("plain text content\n"), 0o644))

	c := New()
	mime, err := c.DetectMIME(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(mime, "text/plain"), "got %q", mime)
}

func TestHasMediaMetadata(t *testing.T) {
	c := New()
	assert.True(t, c.HasMediaMetadata("/photos/IMG_0001.JPG"))
	assert.True(t, c.HasMediaMetadata("/photos/scan.tiff"))
	assert.False(t, c.HasMediaMetadata("/docs/readme.md"))
	assert.False(t, c.HasMediaMetadata("/bin/tool"))
}

func TestMediaMetadataRejectsNonImage(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "fake.jpg")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))

	c := New()
	_, err := c.MediaMetadata(path)
	assert.Error(t, err)
}

func TestVolumesReportsAtLeastOne(t *testing.T) {
	c := New()
	volumes, err := c.Volumes()
	require.NoError(t, err)
	assert.NotEmpty(t, volumes)
	for _, vol := range volumes {
		assert.NotEmpty(t, vol.Path)
	}
}

func TestModifiedTimeTracksWrites(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "clock.txt")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))

	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(path, past, past))

	c := New()
	entry, err := c.Stat(path)
	require.NoError(t, err)
	assert.WithinDuration(t, past, entry.ModifiedAt, time.Second)
}
