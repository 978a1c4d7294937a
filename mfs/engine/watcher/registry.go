package watcher

import (
	"os"
	"strings"
	"sync"

	"github.com/armon/go-radix"
)

// registry reference-counts OS-level watches over cleaned paths. Several
// subscriptions may cover the same directory; the backend holds exactly one
// watch per path, installed on the first reference and removed on the last.
// The patricia tree keeps lookups O(k) in the path length and lets recursive
// teardown walk every watched descendant by prefix.
type registry struct {
	mu   sync.Mutex
	tree *radix.Tree // cleaned path -> *watchRef
}

type watchRef struct {
	count int
}

func newRegistry() *registry {
	return &registry{tree: radix.New()}
}

// acquire adds one reference to path and reports whether this was the first,
// meaning the caller must install the OS watch.
func (r *registry) acquire(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.tree.Get(path); ok {
		v.(*watchRef).count++
		return false
	}
	r.tree.Insert(path, &watchRef{count: 1})
	return true
}

// release drops one reference from path and reports whether it was the last,
// meaning the caller must remove the OS watch. Releasing an unknown path is
// a no-op.
func (r *registry) release(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.tree.Get(path)
	if !ok {
		return false
	}
	ref := v.(*watchRef)
	ref.count--
	if ref.count > 0 {
		return false
	}
	r.tree.Delete(path)
	return true
}

// contains reports whether path currently carries a watch. Used to infer
// that a removed or renamed-away path was a directory after it is gone from
// disk.
func (r *registry) contains(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.tree.Get(path)
	return ok
}

// watchedUnder returns every watched path equal to root or below it, in
// lexical order. The prefix walk stays cheap no matter how many unrelated
// paths are watched.
func (r *registry) watchedUnder(root string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	sep := string(os.PathSeparator)
	var paths []string
	r.tree.WalkPrefix(root, func(key string, _ interface{}) bool {
		if key == root || strings.HasPrefix(key, root+sep) {
			paths = append(paths, key)
		}
		return false
	})
	return paths
}

// paths returns every watched path in lexical order.
func (r *registry) paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	paths := make([]string, 0, r.tree.Len())
	r.tree.Walk(func(key string, _ interface{}) bool {
		paths = append(paths, key)
		return false
	})
	return paths
}

// size returns the number of distinct watched paths.
func (r *registry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.tree.Len()
}
