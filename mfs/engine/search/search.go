// Package search streams filter-matched entries out of a directory tree.
// Traversal is an iterative depth-first walk with a resolved-identity cycle
// guard, so symlink loops terminate branches instead of hanging the search.
// A columnar index, when attached, prunes candidates before the filesystem
// is consulted; the filesystem stays the source of truth.
package search

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	ignore "github.com/sabhiram/go-gitignore"

	internal "github.com/meridianfm/meridian/mfs"
	"github.com/meridianfm/meridian/mfs/config"
	"github.com/meridianfm/meridian/mfs/engine/catalog"
	"github.com/meridianfm/meridian/mfs/engine/common"
	"github.com/meridianfm/meridian/mfs/engine/types"
	"github.com/meridianfm/meridian/mfs/index"
)

const (
	defaultResultBuffer       = 256
	defaultContentSizeCapKB   = 1024
	defaultWarnBufferCapacity = 64
)

// Searcher runs queries against the live filesystem. It is safe for
// concurrent searches; each Search call owns its stream and traversal
// state.
type Searcher struct {
	cfg     config.SearchConfig
	catalog *catalog.Catalog
	files   *common.FileUtils
	paths   *common.PathUtils

	mu    sync.Mutex
	index *index.Index
}

// New returns a searcher resolving entries through cat.
func New(cat *catalog.Catalog, cfg config.SearchConfig) *Searcher {
	return &Searcher{
		cfg:     withDefaults(cfg),
		catalog: cat,
		files:   common.NewFileUtils(),
		paths:   common.NewPathUtils(),
	}
}

func withDefaults(cfg config.SearchConfig) config.SearchConfig {
	if cfg.ResultBuffer <= 0 {
		cfg.ResultBuffer = defaultResultBuffer
	}
	if cfg.ContentSizeCapKB <= 0 {
		cfg.ContentSizeCapKB = defaultContentSizeCapKB
	}
	if cfg.WarnBufferCapacity <= 0 {
		cfg.WarnBufferCapacity = defaultWarnBufferCapacity
	}
	return cfg
}

// UseIndex attaches a built index for candidate pruning. Passing nil
// detaches it and searches fall back to pure traversal.
func (s *Searcher) UseIndex(idx *index.Index) {
	s.mu.Lock()
	s.index = idx
	s.mu.Unlock()
	if idx != nil {
		slog.Info("Search index attached", "root", idx.Root(), "entries", idx.Len())
	}
}

// Search validates the query and starts the traversal. The returned stream
// delivers matches asynchronously; cancel via the stream or the context.
func (s *Searcher) Search(ctx context.Context, query types.SearchQuery) (*ResultStream, error) {
	root := s.paths.NormalizePath(query.Root)
	info, err := os.Stat(root)
	if err != nil {
		return nil, common.Classify(root, err)
	}
	if !info.IsDir() {
		return nil, common.WrapPath(common.KindNotADirectory, root, nil)
	}

	m, err := newMatcher(query, int64(s.cfg.ContentSizeCapKB)*1024, s.files)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	stream := newResultStream(cancel, s.cfg.ResultBuffer, s.cfg.WarnBufferCapacity)

	go s.run(runCtx, cancel, stream, m, root, info, query)
	return stream, nil
}

func (s *Searcher) run(ctx context.Context, cancel context.CancelFunc, stream *ResultStream, m *matcher, root string, rootInfo fs.FileInfo, query types.SearchQuery) {
	defer stream.finish()
	defer cancel()

	start := time.Now()
	if idx := s.acceleratedIndex(root, query); idx != nil {
		s.scanIndex(ctx, stream, idx, m, root, query)
	} else {
		s.walk(ctx, stream, m, root, rootInfo, query)
	}
	slog.Debug("Search finished", "root", root, "elapsed", time.Since(start))
}

// acceleratedIndex returns the attached index when it covers the query
// root. Shallow queries skip it: one directory read beats a full candidate
// scan.
func (s *Searcher) acceleratedIndex(root string, query types.SearchQuery) *index.Index {
	if !query.Recursive {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index == nil {
		return nil
	}
	idxRoot := s.index.Root()
	if root == idxRoot || strings.HasPrefix(root, idxRoot+string(os.PathSeparator)) {
		return s.index
	}
	return nil
}

// dirIdentity identifies a directory independent of the path that reached
// it, so revisits through symlink aliases terminate.
type dirIdentity struct {
	dev  uint64
	ino  uint64
	path string
}

func resolvedKey(path string) (dirIdentity, bool) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return dirIdentity{}, false
	}
	return dirIdentity{path: resolved}, true
}

// walk is the iterative depth-first traversal. Directory read failures
// become warnings and the walk moves on; only context cancellation stops
// it early.
func (s *Searcher) walk(ctx context.Context, stream *ResultStream, m *matcher, root string, rootInfo fs.FileInfo, query types.SearchQuery) {
	visited := make(map[dirIdentity]struct{})
	if key, ok := dirKey(root, rootInfo); ok {
		visited[key] = struct{}{}
	}

	stack := []string{root}
	emitted := 0

	for len(stack) > 0 {
		select {
		case <-ctx.Done():
			stream.fail(ctx.Err())
			return
		default:
		}

		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(dir)
		if err != nil {
			stream.warn(dir, common.Classify(dir, err))
			continue
		}
		ignored := s.ignoreFor(dir)

		var subdirs []string
		for _, de := range entries {
			select {
			case <-ctx.Done():
				stream.fail(ctx.Err())
				return
			default:
			}

			childPath := filepath.Join(dir, de.Name())
			if ignored != nil && ignored.MatchesPath(childPath) {
				slog.Debug("Skipping ignored entry", "path", childPath)
				continue
			}

			info, err := de.Info()
			if err != nil {
				stream.warn(childPath, common.Classify(childPath, err))
				continue
			}
			entry := s.catalog.EntryFromInfo(childPath, info)

			ok, merr := m.matches(entry, relTo(root, childPath))
			if merr != nil {
				stream.warn(childPath, merr)
			}
			if ok {
				if !stream.emit(ctx, entry) {
					return
				}
				emitted++
				if query.MaxResults > 0 && emitted >= query.MaxResults {
					slog.Debug("Search reached result cap", "root", root, "max_results", query.MaxResults)
					return
				}
			}

			if !query.Recursive {
				continue
			}
			descend := de.IsDir()
			descendInfo := info
			if !descend && entry.Kind == types.KindSymlink {
				target, err := os.Stat(childPath)
				if err == nil && target.IsDir() {
					descend = true
					descendInfo = target
				}
			}
			if !descend {
				continue
			}
			if key, known := dirKey(childPath, descendInfo); known {
				if _, seen := visited[key]; seen {
					slog.Debug("Skipping already visited directory", "path", childPath)
					continue
				}
				visited[key] = struct{}{}
			}
			subdirs = append(subdirs, childPath)
		}

		// Depth-first: push in reverse so the first subdirectory pops next.
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}
}

// scanIndex iterates pruned candidates instead of walking. Every hit is
// re-stat'd through the catalog and re-checked against the full matcher, so
// rows that went stale since the snapshot never surface.
func (s *Searcher) scanIndex(ctx context.Context, stream *ResultStream, idx *index.Index, m *matcher, root string, query types.SearchQuery) {
	f := index.Filter{
		IncludeHidden: true,
		Extensions:    m.normalizedExtensions(),
		MinSize:       query.MinSize,
		MaxSize:       query.MaxSize,
	}
	if !query.After.IsZero() {
		f.After = query.After.Unix()
	}
	if !query.Before.IsZero() {
		f.Before = query.Before.Unix()
	}
	switch query.Kind {
	case types.KindFile:
		f.FilesOnly = true
	case types.KindDirectory:
		f.DirsOnly = true
	}

	candidates := idx.Candidates(f)
	slog.Debug("Search using index candidates", "root", root, "candidates", candidates.GetCardinality())

	ignores := make(map[string]*ignore.GitIgnore)
	ignoreFor := func(dir string) *ignore.GitIgnore {
		compiled, cached := ignores[dir]
		if !cached {
			compiled = s.ignoreFor(dir)
			ignores[dir] = compiled
		}
		return compiled
	}

	sep := string(os.PathSeparator)
	emitted := 0

	it := candidates.Iterator()
	for it.HasNext() {
		select {
		case <-ctx.Done():
			stream.fail(ctx.Err())
			return
		default:
		}

		path := idx.Snap.Paths[it.Next()]
		if path == root || !strings.HasPrefix(path, root+sep) {
			continue
		}
		if ig := ignoreFor(filepath.Dir(path)); ig != nil && ig.MatchesPath(path) {
			continue
		}

		entry, err := s.catalog.Stat(path)
		if err != nil {
			if !errors.Is(err, common.ErrNotFound) {
				stream.warn(path, err)
			}
			continue
		}
		ok, merr := m.matches(entry, relTo(root, path))
		if merr != nil {
			stream.warn(path, merr)
		}
		if !ok {
			continue
		}
		if !stream.emit(ctx, entry) {
			return
		}
		emitted++
		if query.MaxResults > 0 && emitted >= query.MaxResults {
			return
		}
	}
}

// ignoreFor compiles the directory's ignore file, if present. Entries it
// matches are invisible to search in that directory.
func (s *Searcher) ignoreFor(dir string) *ignore.GitIgnore {
	path := filepath.Join(dir, internal.DefaultIgnoreFileName)
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	compiled, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		slog.Warn("Failed to compile ignore file", "path", path, "error", err)
		return nil
	}
	return compiled
}

func relTo(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.Base(path)
	}
	return rel
}
