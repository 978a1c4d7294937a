package watcher

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// backend is the OS-level watch hook. Exactly one backend instance serves
// all subscriptions of a Watcher; paths are added and removed as the
// registry reference counts cross zero.
type backend interface {
	Add(path string) error
	Remove(path string) error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
	Close() error
}

// fsnotifyBackend is the portable backend. It delegates straight to an
// fsnotify watcher; conversion and coalescing happen upstream.
type fsnotifyBackend struct {
	watcher *fsnotify.Watcher
}

var _ backend = (*fsnotifyBackend)(nil)

func newFSNotifyBackend() (*fsnotifyBackend, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &fsnotifyBackend{watcher: fw}, nil
}

func (b *fsnotifyBackend) Add(path string) error {
	return b.watcher.Add(path)
}

func (b *fsnotifyBackend) Remove(path string) error {
	return b.watcher.Remove(path)
}

func (b *fsnotifyBackend) Events() <-chan fsnotify.Event {
	return b.watcher.Events
}

func (b *fsnotifyBackend) Errors() <-chan error {
	return b.watcher.Errors
}

func (b *fsnotifyBackend) Close() error {
	return b.watcher.Close()
}
