package lister

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianfm/meridian/mfs/engine/catalog"
	"github.com/meridianfm/meridian/mfs/engine/common"
	"github.com/meridianfm/meridian/mfs/engine/options"
	"github.com/meridianfm/meridian/mfs/engine/types"
)

func newTestLister() *Lister {
	return New(catalog.New())
}

func names(entries []types.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

// mixedFixture creates a directory where name order interleaves directories
// and files.
func mixedFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "Beta"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "delta"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alpha.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Gamma.txt"), []byte("g"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("h"), 0o644))
	return dir
}

func TestListNameOrderInterleavesKinds(t *testing.T) {
	dir := mixedFixture(t)
	l := newTestLister()

	snap, err := l.List(context.Background(), dir, options.DefaultListOptions())
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha.txt", "Beta", "delta", "Gamma.txt"}, names(snap.Entries),
		"name sort is case-insensitive and does not segregate directories")
	assert.Equal(t, dir, snap.Path)
	assert.Equal(t, types.SortByName, snap.SortKey)
	assert.False(t, snap.TakenAt.IsZero())
}

func TestListHiddenFiltering(t *testing.T) {
	dir := mixedFixture(t)
	l := newTestLister()

	opts := options.DefaultListOptions()
	snap, err := l.List(context.Background(), dir, opts)
	require.NoError(t, err)
	assert.NotContains(t, names(snap.Entries), ".hidden")

	opts.ShowHidden = true
	snap, err = l.List(context.Background(), dir, opts)
	require.NoError(t, err)
	assert.Contains(t, names(snap.Entries), ".hidden")
}

func TestListErrors(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	l := newTestLister()

	_, err := l.List(context.Background(), file, options.DefaultListOptions())
	assert.Equal(t, common.KindNotADirectory, common.KindOf(err))

	_, err = l.List(context.Background(), filepath.Join(dir, "gone"), options.DefaultListOptions())
	assert.Equal(t, common.KindNotFound, common.KindOf(err))
}

func TestListSortBySizeStableTieBreak(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), make([]byte, 100), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), make([]byte, 100), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.txt"), make([]byte, 50), 0o644))

	l := newTestLister()
	opts := options.ListOptions{SortKey: types.SortBySize, Ascending: true}

	snap, err := l.List(context.Background(), dir, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"c.txt", "a.txt", "b.txt"}, names(snap.Entries),
		"equal sizes stay in ascending name order")

	opts.Ascending = false
	snap, err = l.List(context.Background(), dir, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, names(snap.Entries),
		"descending inverts the key but not the name tie-break")
}

func TestListSortByKind(t *testing.T) {
	dir := mixedFixture(t)
	l := newTestLister()

	snap, err := l.List(context.Background(), dir, options.ListOptions{SortKey: types.SortByKind, Ascending: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Beta", "delta", "alpha.txt", "Gamma.txt"}, names(snap.Entries),
		"kind sort groups directories first, names ordered within each kind")
}

func TestListSortByModifiedTime(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.txt")
	recent := filepath.Join(dir, "new.txt")
	require.NoError(t, os.WriteFile(old, []byte("o"), 0o644))
	require.NoError(t, os.WriteFile(recent, []byte("n"), 0o644))

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	l := newTestLister()
	snap, err := l.List(context.Background(), dir, options.ListOptions{SortKey: types.SortByModifiedTime, Ascending: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"old.txt", "new.txt"}, names(snap.Entries))
}

func TestListDeterministicOrder(t *testing.T) {
	dir := mixedFixture(t)
	l := newTestLister()
	opts := options.ListOptions{SortKey: types.SortBySize, Ascending: true, ShowHidden: true}

	first, err := l.List(context.Background(), dir, opts)
	require.NoError(t, err)
	second, err := l.List(context.Background(), dir, opts)
	require.NoError(t, err)

	assert.Equal(t, names(first.Entries), names(second.Entries),
		"same tree state and options must yield identical order")
}

func TestGenerationStrictlyIncreases(t *testing.T) {
	dir := mixedFixture(t)
	other := t.TempDir()
	l := newTestLister()

	first, err := l.List(context.Background(), dir, options.DefaultListOptions())
	require.NoError(t, err)

	stream, err := l.Stream(context.Background(), dir, options.DefaultListOptions())
	require.NoError(t, err)

	second, err := l.List(context.Background(), dir, options.DefaultListOptions())
	require.NoError(t, err)

	assert.Greater(t, stream.Generation(), first.Generation)
	assert.Greater(t, second.Generation, stream.Generation())

	unrelated, err := l.List(context.Background(), other, options.DefaultListOptions())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), unrelated.Generation, "counters are per path")
}

func TestStreamMatchesNameSortedList(t *testing.T) {
	dir := mixedFixture(t)
	l := newTestLister()

	snap, err := l.List(context.Background(), dir, options.DefaultListOptions())
	require.NoError(t, err)

	stream, err := l.Stream(context.Background(), dir, options.DefaultListOptions())
	require.NoError(t, err)

	var streamed []string
	for {
		entry, ok := stream.Next()
		if !ok {
			break
		}
		streamed = append(streamed, entry.Name)
	}
	require.NoError(t, stream.Err())
	assert.Equal(t, names(snap.Entries), streamed)
}

func TestStreamRemainingCountsDown(t *testing.T) {
	dir := mixedFixture(t)
	l := newTestLister()

	stream, err := l.Stream(context.Background(), dir, options.ListOptions{ShowHidden: true, SortKey: types.SortByName, Ascending: true})
	require.NoError(t, err)

	total := stream.Remaining()
	require.Equal(t, 5, total)

	_, ok := stream.Next()
	require.True(t, ok)
	assert.Equal(t, total-1, stream.Remaining())
}

func TestStreamCancellation(t *testing.T) {
	dir := mixedFixture(t)
	l := newTestLister()

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := l.Stream(ctx, dir, options.DefaultListOptions())
	require.NoError(t, err)

	_, ok := stream.Next()
	require.True(t, ok)

	cancel()
	_, ok = stream.Next()
	assert.False(t, ok)
	assert.ErrorIs(t, stream.Err(), context.Canceled)
}

func TestStreamNotRestartable(t *testing.T) {
	dir := mixedFixture(t)
	l := newTestLister()

	stream, err := l.Stream(context.Background(), dir, options.DefaultListOptions())
	require.NoError(t, err)

	for {
		if _, ok := stream.Next(); !ok {
			break
		}
	}
	_, ok := stream.Next()
	assert.False(t, ok, "an exhausted stream stays exhausted")
	assert.NoError(t, stream.Err())
}

func TestNameLessCaseTieBreak(t *testing.T) {
	assert.True(t, nameLess("README", "readme"), "case-only ties break on raw bytes")
	assert.False(t, nameLess("readme", "README"))
	assert.True(t, nameLess("alpha", "Beta"), "comparison is case-insensitive first")
}

func TestListThroughDirectorySymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires elevated privileges on windows")
	}
	dir := mixedFixture(t)
	linkParent := t.TempDir()
	link := filepath.Join(linkParent, "view")
	if err := os.Symlink(dir, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	l := newTestLister()
	snap, err := l.List(context.Background(), link, options.DefaultListOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha.txt", "Beta", "delta", "Gamma.txt"}, names(snap.Entries))
}
