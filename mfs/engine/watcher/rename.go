package watcher

import (
	"path/filepath"
	"sync"
	"time"
)

// renameTracker pairs the two halves of a rename. The OS reports a rename as
// a departure on the old path followed by a creation on the new path, with
// no shared token between them. A departure is held for one pairing window;
// a creation arriving in the same parent directory inside that window claims
// it, otherwise the departure decays into a plain removal.
//
// Moves across directories never pair and surface as a removal plus a
// creation.
type renameTracker struct {
	window time.Duration

	mu      sync.Mutex
	pending map[string]*pendingRename // parent dir -> departed entry
	closed  bool
}

type pendingRename struct {
	path  string
	isDir bool
	timer *time.Timer
}

func newRenameTracker(window time.Duration) *renameTracker {
	return &renameTracker{
		window:  window,
		pending: make(map[string]*pendingRename),
	}
}

// track records a departure from path. If the window elapses with no
// matching creation, decay is called with the departed path. A second
// departure in the same parent decays the first immediately.
func (t *renameTracker) track(path string, isDir bool, decay func(path string, isDir bool)) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}

	parent := filepath.Dir(path)
	if prev, ok := t.pending[parent]; ok {
		prev.timer.Stop()
		delete(t.pending, parent)
		t.mu.Unlock()
		decay(prev.path, prev.isDir)
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return
		}
	}

	p := &pendingRename{path: path, isDir: isDir}
	p.timer = time.AfterFunc(t.window, func() {
		t.mu.Lock()
		cur, ok := t.pending[parent]
		if !ok || cur != p || t.closed {
			t.mu.Unlock()
			return
		}
		delete(t.pending, parent)
		t.mu.Unlock()
		decay(p.path, p.isDir)
	})
	t.pending[parent] = p
	t.mu.Unlock()
}

// match claims the pending departure in newPath's parent directory, if any,
// and returns the old path it came from.
func (t *renameTracker) match(newPath string) (oldPath string, isDir bool, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	parent := filepath.Dir(newPath)
	p, found := t.pending[parent]
	if !found {
		return "", false, false
	}
	p.timer.Stop()
	delete(t.pending, parent)
	return p.path, p.isDir, true
}

// close stops all decay timers. Pending departures are discarded.
func (t *renameTracker) close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	for parent, p := range t.pending {
		p.timer.Stop()
		delete(t.pending, parent)
	}
}
