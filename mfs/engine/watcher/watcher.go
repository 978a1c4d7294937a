// Package watcher delivers debounced filesystem change events for watched
// directories. One OS-level watch serves any number of subscriptions on the
// same path; recursive subscriptions follow their subtree as directories
// are created, renamed and removed. When the platform hook cannot be
// installed the watcher comes up disabled and subscriptions fail with
// WatchUnavailable, leaving the caller on manual refresh.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/meridianfm/meridian/mfs/config"
	"github.com/meridianfm/meridian/mfs/engine/common"
	"github.com/meridianfm/meridian/mfs/engine/options"
	"github.com/meridianfm/meridian/mfs/engine/types"
)

const (
	defaultDebounceDelayMs = 100
	defaultQueueCapacity   = 1000
)

// Watcher owns one watch backend and fans coalesced change events out to
// subscriptions. All OS watches are reference-counted through the registry,
// so overlapping subscriptions never install duplicate hooks.
type Watcher struct {
	cfg config.WatcherConfig

	backend backend
	reg     *registry
	co      *coalescer
	renames *renameTracker
	paths   *common.PathUtils

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	subsMu sync.RWMutex
	subs   map[uuid.UUID]*Subscription

	closeOnce sync.Once
	disabled  bool
}

// New probes the platform watch facility and starts the event loops. When
// no hook can be installed the watcher is returned disabled rather than
// failing: Subscribe reports WatchUnavailable and the rest of the engine
// keeps working.
func New(cfg config.WatcherConfig) *Watcher {
	be, err := newFSNotifyBackend()
	if err != nil {
		slog.Warn("Filesystem change watching unavailable", "error", err)
		return &Watcher{cfg: withDefaults(cfg), disabled: true}
	}
	slog.Info("Using fsnotify change backend")
	return newWithBackend(cfg, be)
}

func newWithBackend(cfg config.WatcherConfig, be backend) *Watcher {
	cfg = withDefaults(cfg)
	ctx, cancel := context.WithCancel(context.Background())

	w := &Watcher{
		cfg:     cfg,
		backend: be,
		reg:     newRegistry(),
		co:      newCoalescer(cfg.DebounceDelay(), cfg.MaxDebounceDelay(), cfg.QueueCapacity),
		renames: newRenameTracker(cfg.DebounceDelay()),
		paths:   common.NewPathUtils(),
		ctx:     ctx,
		cancel:  cancel,
		subs:    make(map[uuid.UUID]*Subscription),
	}

	w.wg.Add(2)
	go w.run()
	go w.dispatch()

	return w
}

func withDefaults(cfg config.WatcherConfig) config.WatcherConfig {
	if cfg.DebounceDelayMs <= 0 {
		cfg.DebounceDelayMs = defaultDebounceDelayMs
	}
	if cfg.MaxDebounceDelayMs <= cfg.DebounceDelayMs {
		cfg.MaxDebounceDelayMs = cfg.DebounceDelayMs * 20
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = defaultQueueCapacity
	}
	return cfg
}

// Enabled reports whether a watch backend is installed.
func (w *Watcher) Enabled() bool { return !w.disabled }

// Subscribe installs a watch on the directory at path and returns the
// active subscription. The directory must exist. With opts.Recursive every
// current subdirectory is watched as well, and new ones are picked up as
// they appear.
func (w *Watcher) Subscribe(path string, opts options.WatchOptions) (*Subscription, error) {
	if w.disabled {
		return nil, common.WrapPath(common.KindWatchUnavailable, path, errors.New("no watch backend"))
	}

	root := w.paths.NormalizePath(path)
	info, err := os.Stat(root)
	if err != nil {
		return nil, common.Classify(root, err)
	}
	if !info.IsDir() {
		return nil, common.WrapPath(common.KindNotADirectory, root, nil)
	}

	sub := &Subscription{
		id:        uuid.New(),
		root:      root,
		recursive: opts.Recursive,
		w:         w,
		events:    make(chan types.ChangeEvent, w.cfg.QueueCapacity),
		pinned:    make(map[string]struct{}),
	}

	if err := w.acquireFor(sub, root); err != nil {
		sub.state.Store(int32(Stopped))
		return nil, common.WrapPath(common.KindWatchUnavailable, root, err)
	}
	if opts.Recursive {
		w.pinSubtree(sub, root)
	}

	w.subsMu.Lock()
	w.subs[sub.id] = sub
	w.subsMu.Unlock()

	sub.state.Store(int32(Active))
	slog.Debug("Watch subscription started", "path", root, "recursive", opts.Recursive, "subscription", sub.id)
	return sub, nil
}

// WatchedPaths returns the distinct paths currently carrying an OS watch.
func (w *Watcher) WatchedPaths() []string {
	if w.disabled {
		return nil
	}
	return w.reg.paths()
}

// acquireFor pins path for sub and installs the OS watch when sub holds the
// first reference.
func (w *Watcher) acquireFor(sub *Subscription, path string) error {
	if !sub.pin(path) {
		return nil
	}
	if !w.reg.acquire(path) {
		return nil
	}
	if err := w.backend.Add(path); err != nil {
		w.reg.release(path)
		sub.unpin(path)
		return err
	}
	return nil
}

// releaseRef drops one registry reference and removes the OS watch when it
// was the last. Removal failures are expected for paths already gone from
// disk.
func (w *Watcher) releaseRef(path string) {
	if w.reg.release(path) {
		if err := w.backend.Remove(path); err != nil {
			slog.Debug("Failed to remove watch", "path", path, "error", err)
		}
	}
}

// pinSubtree watches every directory below root for sub. Unreadable
// directories are skipped so one denied subtree does not kill the
// subscription.
func (w *Watcher) pinSubtree(sub *Subscription, root string) {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("Skipping unreadable path during watch setup", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() || path == root {
			return nil
		}
		if err := w.acquireFor(sub, path); err != nil {
			slog.Warn("Failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
	if err != nil {
		slog.Warn("Watch setup walk aborted", "path", root, "error", err)
	}
}

// adoptDir extends every covering recursive subscription onto a directory
// that just appeared, including any children it already grew.
func (w *Watcher) adoptDir(path string) {
	w.subsMu.RLock()
	var covering []*Subscription
	for _, sub := range w.subs {
		if sub.recursive && sub.State() == Active && sub.coversPath(path) {
			covering = append(covering, sub)
		}
	}
	w.subsMu.RUnlock()

	for _, sub := range covering {
		if err := w.acquireFor(sub, path); err != nil {
			slog.Warn("Failed to watch new directory", "path", path, "error", err)
			continue
		}
		w.pinSubtree(sub, path)
	}
}

// dropSubtree releases every watch reference at or below root across all
// subscriptions. Directories that leave the tree by rename take their
// nested watches with them without producing per-child events, so teardown
// walks the registry prefix instead of waiting for events that never come.
func (w *Watcher) dropSubtree(root string) {
	watched := w.reg.watchedUnder(root)
	if len(watched) == 0 {
		return
	}

	w.subsMu.RLock()
	subs := make([]*Subscription, 0, len(w.subs))
	for _, sub := range w.subs {
		subs = append(subs, sub)
	}
	w.subsMu.RUnlock()

	for _, sub := range subs {
		for _, path := range watched {
			if sub.unpin(path) {
				w.releaseRef(path)
			}
		}
	}
}

// run consumes the raw backend streams until shutdown.
func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.backend.Events():
			if !ok {
				return
			}
			w.handleRaw(event)
		case err, ok := <-w.backend.Errors():
			if !ok {
				return
			}
			if err != nil {
				slog.Warn("Watch backend error", "error", err)
			}
		}
	}
}

// handleRaw converts one backend event, pairs rename halves and keeps
// recursive watches in step with directory churn before coalescing.
func (w *Watcher) handleRaw(event fsnotify.Event) {
	path := filepath.Clean(event.Name)
	now := time.Now()

	switch {
	case event.Has(fsnotify.Create):
		isDir := lstatIsDir(path)
		if oldPath, oldIsDir, ok := w.renames.match(path); ok {
			w.co.emit(types.ChangeEvent{
				Kind:      types.ChangeRenamed,
				Path:      path,
				OldPath:   oldPath,
				Timestamp: now,
				IsDir:     isDir || oldIsDir,
			})
			if oldIsDir {
				w.dropSubtree(oldPath)
			}
			if isDir {
				w.adoptDir(path)
			}
			return
		}
		w.co.add(types.ChangeEvent{Kind: types.ChangeCreated, Path: path, Timestamp: now, IsDir: isDir})
		if isDir {
			w.adoptDir(path)
		}

	case event.Has(fsnotify.Write):
		w.co.add(types.ChangeEvent{Kind: types.ChangeModified, Path: path, Timestamp: now, IsDir: lstatIsDir(path)})

	case event.Has(fsnotify.Remove):
		isDir := w.reg.contains(path)
		w.co.add(types.ChangeEvent{Kind: types.ChangeRemoved, Path: path, Timestamp: now, IsDir: isDir})
		if isDir {
			w.dropSubtree(path)
		}

	case event.Has(fsnotify.Rename):
		// The departure half. Held until the arrival half claims it or the
		// pairing window decays it into a removal.
		w.renames.track(path, w.reg.contains(path), w.decayRename)

	case event.Has(fsnotify.Chmod):
		w.co.add(types.ChangeEvent{Kind: types.ChangeModified, Path: path, Timestamp: now, IsDir: lstatIsDir(path)})
	}
}

func (w *Watcher) decayRename(path string, isDir bool) {
	w.co.add(types.ChangeEvent{Kind: types.ChangeRemoved, Path: path, Timestamp: time.Now(), IsDir: isDir})
	if isDir {
		w.dropSubtree(path)
	}
}

// dispatch routes coalesced events to every covering subscription.
func (w *Watcher) dispatch() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.co.events():
			if !ok {
				return
			}
			w.deliver(event)
		}
	}
}

func (w *Watcher) deliver(event types.ChangeEvent) {
	w.subsMu.RLock()
	defer w.subsMu.RUnlock()

	for _, sub := range w.subs {
		if !sub.covers(event) {
			continue
		}
		select {
		case sub.events <- event:
		default:
			slog.Warn("Subscription queue full, dropping change", "path", event.Path, "subscription", sub.id)
		}
	}
}

// stopSubscription moves sub to Stopped, releases its watch references and
// closes its event channel. Subsequent calls are no-ops.
func (w *Watcher) stopSubscription(s *Subscription) {
	if !s.state.CompareAndSwap(int32(Active), int32(Stopped)) &&
		!s.state.CompareAndSwap(int32(Inactive), int32(Stopped)) {
		return
	}

	w.subsMu.Lock()
	delete(w.subs, s.id)
	w.subsMu.Unlock()

	for _, path := range s.pinnedPaths() {
		if s.unpin(path) {
			w.releaseRef(path)
		}
	}

	// deliver can no longer reach this subscription once it left the map.
	close(s.events)
	slog.Debug("Watch subscription stopped", "path", s.root, "subscription", s.id)
}

// Close shuts down the backend, stops every subscription and waits for the
// event loops to drain.
func (w *Watcher) Close() error {
	if w.disabled {
		return nil
	}

	w.closeOnce.Do(func() {
		w.cancel()
		w.renames.close()
		w.co.close()
		if err := w.backend.Close(); err != nil {
			slog.Warn("Failed to close watch backend", "error", err)
		}
		w.wg.Wait()

		w.subsMu.Lock()
		subs := make([]*Subscription, 0, len(w.subs))
		for _, sub := range w.subs {
			subs = append(subs, sub)
		}
		w.subsMu.Unlock()
		for _, sub := range subs {
			w.stopSubscription(sub)
		}
	})
	return nil
}

func lstatIsDir(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.IsDir()
}
