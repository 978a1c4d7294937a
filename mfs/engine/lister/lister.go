// Package lister produces ordered directory snapshots and lazy entry
// streams for progressive rendering of large directories.
package lister

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/meridianfm/meridian/mfs/engine/catalog"
	"github.com/meridianfm/meridian/mfs/engine/common"
	"github.com/meridianfm/meridian/mfs/engine/options"
	"github.com/meridianfm/meridian/mfs/engine/types"
)

// Lister reads directories into DirectorySnapshots. It tracks a generation
// counter per path so consumers can discard stale snapshots instead of
// merging them.
type Lister struct {
	catalog *catalog.Catalog
	paths   *common.PathUtils

	mu          sync.Mutex
	generations map[string]uint64
}

// New creates a Lister backed by the given catalog.
func New(cat *catalog.Catalog) *Lister {
	return &Lister{
		catalog:     cat,
		paths:       common.NewPathUtils(),
		generations: make(map[string]uint64),
	}
}

// List reads path and returns a sorted snapshot of its entries. Hidden
// entries are excluded unless opts.ShowHidden is set. The snapshot's
// generation strictly increases across calls for the same path.
func (l *Lister) List(ctx context.Context, path string, opts options.ListOptions) (types.DirectorySnapshot, error) {
	dir, err := l.openDir(path)
	if err != nil {
		return types.DirectorySnapshot{}, err
	}

	names, err := readNames(dir)
	if err != nil {
		return types.DirectorySnapshot{}, err
	}

	entries := make([]types.Entry, 0, len(names))
	for _, name := range names {
		select {
		case <-ctx.Done():
			return types.DirectorySnapshot{}, ctx.Err()
		default:
		}
		entry, err := l.catalog.Stat(filepath.Join(dir, name))
		if err != nil {
			// The entry may have vanished between the read and the stat.
			slog.Warn("Skipping unreadable entry", "dir", dir, "name", name, "error", err)
			continue
		}
		if !opts.ShowHidden && entry.Hidden {
			continue
		}
		entries = append(entries, entry)
	}

	sortEntries(entries, opts.SortKey, opts.Ascending)

	snapshot := types.DirectorySnapshot{
		Path:       dir,
		Entries:    entries,
		SortKey:    opts.SortKey,
		Ascending:  opts.Ascending,
		Generation: l.nextGeneration(dir),
		TakenAt:    time.Now(),
	}
	slog.Debug("Directory listed",
		"path", dir,
		"entries", len(entries),
		"generation", snapshot.Generation)
	return snapshot, nil
}

// Stream opens a lazy, name-ordered sequence over path. Names are read and
// ordered up front; each entry is resolved only when pulled, so rendering
// can begin before a large directory is fully stat'ed. The sequence is
// finite and not restartable. Sort keys other than name require the full
// listing and are served by List.
func (l *Lister) Stream(ctx context.Context, path string, opts options.ListOptions) (*EntryStream, error) {
	dir, err := l.openDir(path)
	if err != nil {
		return nil, err
	}
	names, err := readNames(dir)
	if err != nil {
		return nil, err
	}
	sortNames(names)

	return &EntryStream{
		ctx:        ctx,
		catalog:    l.catalog,
		dir:        dir,
		names:      names,
		showHidden: opts.ShowHidden,
		generation: l.nextGeneration(dir),
	}, nil
}

// openDir normalizes path and verifies it is a listable directory.
func (l *Lister) openDir(path string) (string, error) {
	dir := l.paths.NormalizePath(path)
	entry, err := l.catalog.Stat(dir)
	if err != nil {
		return "", err
	}
	if entry.Kind == types.KindSymlink {
		kind, err := l.catalog.ResolveKind(dir)
		if err != nil {
			return "", err
		}
		if kind != types.KindDirectory {
			return "", common.WrapPath(common.KindNotADirectory, dir, nil)
		}
		return dir, nil
	}
	if !entry.IsDir() {
		return "", common.WrapPath(common.KindNotADirectory, dir, nil)
	}
	return dir, nil
}

func (l *Lister) nextGeneration(dir string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.generations[dir]++
	return l.generations[dir]
}
