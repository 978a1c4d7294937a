package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianfm/meridian/mfs/config"
	"github.com/meridianfm/meridian/mfs/engine/common"
	"github.com/meridianfm/meridian/mfs/engine/options"
	"github.com/meridianfm/meridian/mfs/engine/types"
)

// fakeBackend stands in for the OS hook so tests can inject raw events and
// count watch installs deterministically.
type fakeBackend struct {
	mu      sync.Mutex
	watched map[string]bool
	adds    map[string]int
	events  chan fsnotify.Event
	errors  chan error
	closed  bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		watched: make(map[string]bool),
		adds:    make(map[string]int),
		events:  make(chan fsnotify.Event, 64),
		errors:  make(chan error, 4),
	}
}

func (b *fakeBackend) Add(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.watched[path] = true
	b.adds[path]++
	return nil
}

func (b *fakeBackend) Remove(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.watched[path] {
		return fmt.Errorf("not watched: %s", path)
	}
	delete(b.watched, path)
	return nil
}

func (b *fakeBackend) Events() <-chan fsnotify.Event { return b.events }
func (b *fakeBackend) Errors() <-chan error          { return b.errors }

func (b *fakeBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.events)
		close(b.errors)
	}
	return nil
}

func (b *fakeBackend) inject(op fsnotify.Op, path string) {
	b.events <- fsnotify.Event{Name: path, Op: op}
}

func (b *fakeBackend) watchedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.watched)
}

func (b *fakeBackend) isWatched(path string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.watched[path]
}

func (b *fakeBackend) addCount(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.adds[path]
}

func testConfig() config.WatcherConfig {
	return config.WatcherConfig{
		DebounceDelayMs:    20,
		MaxDebounceDelayMs: 400,
		QueueCapacity:      64,
	}
}

func newTestWatcher(t *testing.T, be backend) *Watcher {
	t.Helper()
	w := newWithBackend(testConfig(), be)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func collectEvent(t *testing.T, sub *Subscription) types.ChangeEvent {
	t.Helper()
	select {
	case event, ok := <-sub.Events():
		require.True(t, ok, "event channel closed before an event arrived")
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change event")
		return types.ChangeEvent{}
	}
}

func expectNoEvent(t *testing.T, sub *Subscription, wait time.Duration) {
	t.Helper()
	select {
	case event, ok := <-sub.Events():
		if ok {
			t.Fatalf("unexpected event %s for %s", event.Kind, event.Path)
		}
	case <-time.After(wait):
	}
}

func TestSubscribeLifecycle(t *testing.T) {
	be := newFakeBackend()
	w := newTestWatcher(t, be)
	dir := t.TempDir()

	sub, err := w.Subscribe(dir, options.WatchOptions{})
	require.NoError(t, err)

	assert.Equal(t, Active, sub.State())
	assert.Equal(t, filepath.Clean(dir), sub.Path())
	assert.False(t, sub.Recursive())
	assert.Equal(t, 1, be.watchedCount())
	assert.Equal(t, []string{filepath.Clean(dir)}, w.WatchedPaths())

	sub.Stop()
	assert.Equal(t, Stopped, sub.State())
	assert.Equal(t, 0, be.watchedCount())
	assert.Empty(t, w.WatchedPaths())

	_, open := <-sub.Events()
	assert.False(t, open, "event channel should close on stop")

	// Stopping again is a no-op.
	sub.Stop()
	assert.Equal(t, Stopped, sub.State())
}

func TestSubscribeErrors(t *testing.T) {
	be := newFakeBackend()
	w := newTestWatcher(t, be)
	dir := t.TempDir()

	_, err := w.Subscribe(filepath.Join(dir, "missing"), options.WatchOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrNotFound)

	file := filepath.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = w.Subscribe(file, options.WatchOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrNotADirectory)
}

func TestDisabledWatcher(t *testing.T) {
	w := &Watcher{cfg: withDefaults(config.WatcherConfig{}), disabled: true}

	assert.False(t, w.Enabled())
	assert.Nil(t, w.WatchedPaths())

	_, err := w.Subscribe(t.TempDir(), options.WatchOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrWatchUnavailable)

	assert.NoError(t, w.Close())
}

func TestBurstCoalescesToLatestKind(t *testing.T) {
	be := newFakeBackend()
	w := newTestWatcher(t, be)
	dir := t.TempDir()

	sub, err := w.Subscribe(dir, options.WatchOptions{})
	require.NoError(t, err)

	path := filepath.Join(dir, "doc.txt")
	be.inject(fsnotify.Create, path)
	be.inject(fsnotify.Write, path)
	be.inject(fsnotify.Write, path)

	event := collectEvent(t, sub)
	assert.Equal(t, types.ChangeModified, event.Kind)
	assert.Equal(t, path, event.Path)
	expectNoEvent(t, sub, 150*time.Millisecond)
}

func TestCreateThenRemoveCollapsesToRemove(t *testing.T) {
	be := newFakeBackend()
	w := newTestWatcher(t, be)
	dir := t.TempDir()

	sub, err := w.Subscribe(dir, options.WatchOptions{})
	require.NoError(t, err)

	path := filepath.Join(dir, "ephemeral.tmp")
	be.inject(fsnotify.Create, path)
	be.inject(fsnotify.Remove, path)

	event := collectEvent(t, sub)
	assert.Equal(t, types.ChangeRemoved, event.Kind)
	assert.Equal(t, path, event.Path)
	expectNoEvent(t, sub, 150*time.Millisecond)
}

func TestRenamePairsDepartureWithArrival(t *testing.T) {
	be := newFakeBackend()
	w := newTestWatcher(t, be)
	dir := t.TempDir()

	sub, err := w.Subscribe(dir, options.WatchOptions{})
	require.NoError(t, err)

	oldPath := filepath.Join(dir, "draft.txt")
	newPath := filepath.Join(dir, "final.txt")
	be.inject(fsnotify.Rename, oldPath)
	be.inject(fsnotify.Create, newPath)

	event := collectEvent(t, sub)
	assert.Equal(t, types.ChangeRenamed, event.Kind)
	assert.Equal(t, newPath, event.Path)
	assert.Equal(t, oldPath, event.OldPath)
	expectNoEvent(t, sub, 150*time.Millisecond)
}

func TestUnpairedRenameDecaysToRemoval(t *testing.T) {
	be := newFakeBackend()
	w := newTestWatcher(t, be)
	dir := t.TempDir()

	sub, err := w.Subscribe(dir, options.WatchOptions{})
	require.NoError(t, err)

	oldPath := filepath.Join(dir, "moved-away.txt")
	be.inject(fsnotify.Rename, oldPath)

	event := collectEvent(t, sub)
	assert.Equal(t, types.ChangeRemoved, event.Kind)
	assert.Equal(t, oldPath, event.Path)
	assert.Empty(t, event.OldPath)
}

func TestSharedPathInstallsOneWatch(t *testing.T) {
	be := newFakeBackend()
	w := newTestWatcher(t, be)
	dir := t.TempDir()
	clean := filepath.Clean(dir)

	first, err := w.Subscribe(dir, options.WatchOptions{})
	require.NoError(t, err)
	second, err := w.Subscribe(dir, options.WatchOptions{Recursive: true})
	require.NoError(t, err)

	assert.Equal(t, 1, be.addCount(clean), "second subscription must reuse the existing watch")
	assert.Equal(t, 1, be.watchedCount())

	first.Stop()
	assert.True(t, be.isWatched(clean), "watch must survive while a subscriber remains")

	second.Stop()
	assert.False(t, be.isWatched(clean))
	assert.Equal(t, 0, be.watchedCount())
}

func TestRecursiveFollowsDirectoryChurn(t *testing.T) {
	be := newFakeBackend()
	w := newTestWatcher(t, be)
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b"), 0o755))

	sub, err := w.Subscribe(root, options.WatchOptions{Recursive: true})
	require.NoError(t, err)
	assert.Equal(t, 3, be.watchedCount(), "root plus two existing subdirectories")

	// A new directory appears with a child already inside it.
	grown := filepath.Join(root, "c")
	require.NoError(t, os.MkdirAll(filepath.Join(grown, "d"), 0o755))
	be.inject(fsnotify.Create, grown)

	require.Eventually(t, func() bool { return be.watchedCount() == 5 },
		2*time.Second, 10*time.Millisecond, "new subtree should be watched")

	// The subtree disappears again.
	require.NoError(t, os.RemoveAll(grown))
	be.inject(fsnotify.Remove, grown)

	require.Eventually(t, func() bool { return be.watchedCount() == 3 },
		2*time.Second, 10*time.Millisecond, "removed subtree must release its watches")
	assert.False(t, be.isWatched(grown))
	assert.False(t, be.isWatched(filepath.Join(grown, "d")))

	sub.Stop()
	assert.Equal(t, 0, be.watchedCount(), "stop must release every watch the subscription held")
	assert.Equal(t, 0, w.reg.size())
}

func TestShallowDoesNotAdoptNewDirectories(t *testing.T) {
	be := newFakeBackend()
	w := newTestWatcher(t, be)
	root := t.TempDir()

	sub, err := w.Subscribe(root, options.WatchOptions{})
	require.NoError(t, err)

	child := filepath.Join(root, "child")
	require.NoError(t, os.Mkdir(child, 0o755))
	be.inject(fsnotify.Create, child)

	event := collectEvent(t, sub)
	assert.Equal(t, types.ChangeCreated, event.Kind)
	assert.True(t, event.IsDir)
	assert.Equal(t, 1, be.watchedCount(), "shallow subscriptions watch only their root")
}

func TestRenamedDirectoryMovesItsWatches(t *testing.T) {
	be := newFakeBackend()
	w := newTestWatcher(t, be)
	root := t.TempDir()
	oldDir := filepath.Join(root, "a")
	require.NoError(t, os.MkdirAll(filepath.Join(oldDir, "b"), 0o755))

	sub, err := w.Subscribe(root, options.WatchOptions{Recursive: true})
	require.NoError(t, err)
	require.Equal(t, 3, be.watchedCount())

	newDir := filepath.Join(root, "a2")
	require.NoError(t, os.Rename(oldDir, newDir))
	be.inject(fsnotify.Rename, oldDir)
	be.inject(fsnotify.Create, newDir)

	event := collectEvent(t, sub)
	assert.Equal(t, types.ChangeRenamed, event.Kind)
	assert.Equal(t, newDir, event.Path)
	assert.Equal(t, oldDir, event.OldPath)
	assert.True(t, event.IsDir)

	require.Eventually(t, func() bool {
		return be.isWatched(filepath.Join(newDir, "b")) && !be.isWatched(oldDir)
	}, 2*time.Second, 10*time.Millisecond, "watches should follow the renamed subtree")
	assert.Equal(t, 3, be.watchedCount())
}

func TestRoutingRespectsScope(t *testing.T) {
	be := newFakeBackend()
	w := newTestWatcher(t, be)
	root := t.TempDir()

	shallow, err := w.Subscribe(root, options.WatchOptions{})
	require.NoError(t, err)
	recursive, err := w.Subscribe(root, options.WatchOptions{Recursive: true})
	require.NoError(t, err)

	deep := filepath.Join(root, "nested", "deep.txt")
	be.inject(fsnotify.Write, deep)

	event := collectEvent(t, recursive)
	assert.Equal(t, deep, event.Path)
	expectNoEvent(t, shallow, 150*time.Millisecond)

	top := filepath.Join(root, "top.txt")
	be.inject(fsnotify.Write, top)

	assert.Equal(t, top, collectEvent(t, shallow).Path)
	assert.Equal(t, top, collectEvent(t, recursive).Path)
}

func TestChmodSurfacesAsModified(t *testing.T) {
	be := newFakeBackend()
	w := newTestWatcher(t, be)
	dir := t.TempDir()

	sub, err := w.Subscribe(dir, options.WatchOptions{})
	require.NoError(t, err)

	path := filepath.Join(dir, "perms.txt")
	be.inject(fsnotify.Chmod, path)

	event := collectEvent(t, sub)
	assert.Equal(t, types.ChangeModified, event.Kind)
	assert.Equal(t, path, event.Path)
}

func TestCloseStopsSubscriptions(t *testing.T) {
	be := newFakeBackend()
	w := newWithBackend(testConfig(), be)
	dir := t.TempDir()

	sub, err := w.Subscribe(dir, options.WatchOptions{})
	require.NoError(t, err)

	require.NoError(t, w.Close())
	assert.Equal(t, Stopped, sub.State())
	assert.Empty(t, w.WatchedPaths())

	_, open := <-sub.Events()
	assert.False(t, open)

	// Close is idempotent.
	assert.NoError(t, w.Close())
}

func TestCoalescerMaxDelayCapsHotPath(t *testing.T) {
	co := newCoalescer(50*time.Millisecond, 120*time.Millisecond, 8)
	defer co.close()

	tick := time.NewTicker(30 * time.Millisecond)
	defer tick.Stop()
	deadline := time.After(400 * time.Millisecond)

	var got *types.ChangeEvent
loop:
	for {
		select {
		case event := <-co.events():
			got = &event
			break loop
		case <-tick.C:
			co.add(types.ChangeEvent{Kind: types.ChangeModified, Path: "/hot/file", Timestamp: time.Now()})
		case <-deadline:
			break loop
		}
	}

	require.NotNil(t, got, "cap timer must flush a path that never goes quiet")
	assert.Equal(t, "/hot/file", got.Path)
}

func TestRegistryRefCounting(t *testing.T) {
	reg := newRegistry()

	assert.True(t, reg.acquire("/data/docs"), "first reference installs the watch")
	assert.False(t, reg.acquire("/data/docs"), "second reference reuses it")
	assert.True(t, reg.contains("/data/docs"))

	assert.False(t, reg.release("/data/docs"), "one reference remains")
	assert.True(t, reg.release("/data/docs"), "last reference removes the watch")
	assert.False(t, reg.contains("/data/docs"))
	assert.False(t, reg.release("/data/docs"), "releasing an unknown path is a no-op")
}

func TestRegistryPrefixWalkExcludesSiblings(t *testing.T) {
	reg := newRegistry()
	reg.acquire("/data/x")
	reg.acquire("/data/x/a")
	reg.acquire("/data/x/a/b")
	reg.acquire("/data/xyz")

	under := reg.watchedUnder("/data/x")
	assert.Equal(t, []string{"/data/x", "/data/x/a", "/data/x/a/b"}, under,
		"sibling sharing the name prefix must not match")

	assert.Equal(t, 4, reg.size())
	assert.Equal(t, []string{"/data/x", "/data/x/a", "/data/x/a/b", "/data/xyz"}, reg.paths())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "inactive", Inactive.String())
	assert.Equal(t, "active", Active.String())
	assert.Equal(t, "stopped", Stopped.String())
}

func TestRealBackendDeliversEvents(t *testing.T) {
	w := New(testConfig())
	if !w.Enabled() {
		t.Skip("no watch backend on this platform")
	}
	defer w.Close()

	dir := t.TempDir()
	sub, err := w.Subscribe(dir, options.WatchOptions{})
	require.NoError(t, err)

	path := filepath.Join(dir, "observed.txt")
	require.NoError(t, os.WriteFile(path, []byte("contents"), 0o644))

	event := collectEvent(t, sub)
	assert.Equal(t, path, event.Path)
	// Create and the following write may coalesce.
	assert.Contains(t, []types.ChangeKind{types.ChangeCreated, types.ChangeModified}, event.Kind)

	sub.Stop()
}
