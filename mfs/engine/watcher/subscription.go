package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/meridianfm/meridian/mfs/engine/types"
)

// State is the lifecycle of one subscription. A subscription is Inactive
// until its OS watches are installed, Active while delivering events, and
// Stopped after Stop or Watcher shutdown. Stopped is terminal.
type State int32

const (
	Inactive State = iota
	Active
	Stopped
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Active:
		return "active"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Subscription delivers coalesced change events for one directory. Shallow
// subscriptions cover the directory and its direct children; recursive ones
// cover the whole subtree and follow it as directories appear and vanish.
type Subscription struct {
	id        uuid.UUID
	root      string
	recursive bool
	w         *Watcher

	state  atomic.Int32
	events chan types.ChangeEvent

	mu     sync.Mutex
	pinned map[string]struct{} // watch paths this subscription holds references on
}

// ID returns the subscription handle.
func (s *Subscription) ID() uuid.UUID { return s.id }

// Path returns the watched root.
func (s *Subscription) Path() string { return s.root }

// Recursive reports whether the subscription covers the whole subtree.
func (s *Subscription) Recursive() bool { return s.recursive }

// State returns the current lifecycle state.
func (s *Subscription) State() State { return State(s.state.Load()) }

// Events returns the coalesced change stream. The channel is closed when
// the subscription stops; events are dropped with a warning when the
// consumer falls behind.
func (s *Subscription) Events() <-chan types.ChangeEvent { return s.events }

// Stop detaches the subscription, releases its watch references and closes
// the event channel. Safe to call more than once.
func (s *Subscription) Stop() {
	s.w.stopSubscription(s)
}

// covers reports whether the subscription should hear about event. Renames
// match when either end of the move is in scope.
func (s *Subscription) covers(event types.ChangeEvent) bool {
	if s.State() != Active {
		return false
	}
	if s.coversPath(event.Path) {
		return true
	}
	return event.OldPath != "" && s.coversPath(event.OldPath)
}

func (s *Subscription) coversPath(path string) bool {
	if path == s.root {
		return true
	}
	if s.recursive {
		return strings.HasPrefix(path, s.root+string(os.PathSeparator))
	}
	return filepath.Dir(path) == s.root
}

// pin records that this subscription holds a reference on path. Returns
// false when the path was already pinned.
func (s *Subscription) pin(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pinned[path]; ok {
		return false
	}
	s.pinned[path] = struct{}{}
	return true
}

// unpin forgets the reference on path. Returns false when the path was not
// pinned.
func (s *Subscription) unpin(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pinned[path]; !ok {
		return false
	}
	delete(s.pinned, path)
	return true
}

// pinnedPaths returns a copy of the held references.
func (s *Subscription) pinnedPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	paths := make([]string, 0, len(s.pinned))
	for path := range s.pinned {
		paths = append(paths, path)
	}
	return paths
}
