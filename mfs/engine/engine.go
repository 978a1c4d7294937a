// Package engine is the single entry point a presentation layer drives.
// It composes the catalog, lister, watcher, search and executor services,
// owns the operation registry, and multiplexes watcher events, operation
// progress and search results into one ordered notification stream per
// subscriber, keyed by origin so a UI can attribute every event without
// racing.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/ZanzyTHEbar/assert-lib"
	"github.com/google/uuid"

	internal "github.com/meridianfm/meridian/mfs"
	"github.com/meridianfm/meridian/mfs/config"
	"github.com/meridianfm/meridian/mfs/engine/catalog"
	"github.com/meridianfm/meridian/mfs/engine/executor"
	"github.com/meridianfm/meridian/mfs/engine/interfaces"
	"github.com/meridianfm/meridian/mfs/engine/lister"
	"github.com/meridianfm/meridian/mfs/engine/options"
	"github.com/meridianfm/meridian/mfs/engine/search"
	"github.com/meridianfm/meridian/mfs/engine/trash"
	"github.com/meridianfm/meridian/mfs/engine/types"
	"github.com/meridianfm/meridian/mfs/engine/watcher"
	"github.com/meridianfm/meridian/mfs/index"
	"github.com/meridianfm/meridian/mfs/journal"
)

var (
	_ interfaces.DirectoryLister  = (*lister.Lister)(nil)
	_ interfaces.ChangeWatcher    = (*watcher.Watcher)(nil)
	_ interfaces.SearchService    = (*search.Searcher)(nil)
	_ interfaces.OperationRunner  = (*executor.Executor)(nil)
	_ interfaces.TrashBin         = (*trash.Trash)(nil)
	_ interfaces.OperationJournal = (*journal.Journal)(nil)
)

var errJournalDisabled = errors.New("journal is disabled")

// Engine is the facade over the file operation and indexing services. All
// exported methods are safe for concurrent use; none of them performs
// filesystem work on goroutines the engine does not own, beyond the
// synchronous metadata reads of List, Stat and Search validation.
type Engine struct {
	cfg config.EngineConfig

	catalog *catalog.Catalog
	lister  interfaces.DirectoryLister
	watcher interfaces.ChangeWatcher
	search  interfaces.SearchService
	exec    interfaces.OperationRunner
	bin     interfaces.TrashBin
	journal interfaces.OperationJournal

	asserts   *assert.AssertHandler
	broadcast *broadcaster

	mu       sync.Mutex
	watches  map[uuid.UUID]*WatchHandle
	searches map[uuid.UUID]*search.ResultStream
	closed   bool

	wg sync.WaitGroup
}

// New wires the engine from configuration. The cache directory is created
// eagerly; the journal opens only when enabled, and a failed watch backend
// leaves the engine up with watching reported unavailable.
func New(cfg config.EngineConfig) (*Engine, error) {
	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = internal.DefaultCacheDir
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", cacheDir, err)
	}

	trashDir := cfg.Trash.Dir
	if trashDir == "" {
		trashDir = internal.DefaultTrashDir
	}
	bin := trash.NewPlatform(trashDir)

	var (
		jnl interfaces.OperationJournal
		rec executor.Recorder
	)
	if cfg.Journal.Enabled {
		path := cfg.Journal.Path
		if path == "" {
			path = internal.DefaultJournalDBPath
		}
		j, err := journal.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		jnl = j
		rec = j
	}

	cat := catalog.New()
	b := newBroadcaster(cfg.Notify.MailboxCapacity)

	e := &Engine{
		cfg:       cfg,
		catalog:   cat,
		lister:    lister.New(cat),
		watcher:   watcher.New(cfg.Watcher),
		search:    search.New(cat, cfg.Search),
		exec:      executor.New(bin, rec, execEvents{b: b}, cfg.Executor),
		bin:       bin,
		journal:   jnl,
		asserts:   assert.NewAssertHandler(),
		broadcast: b,
		watches:   make(map[uuid.UUID]*WatchHandle),
		searches:  make(map[uuid.UUID]*search.ResultStream),
	}

	slog.Info("Engine started",
		"trash", bin.Location(),
		"journal", cfg.Journal.Enabled,
		"watching", e.watcher.Enabled())
	return e, nil
}

// Subscribe attaches a consumer to the unified notification stream. Events
// produced for one origin arrive in production order; no cross-origin
// ordering is promised.
func (e *Engine) Subscribe() *Subscriber {
	return e.broadcast.subscribe()
}

// Unsubscribe detaches a consumer and closes its notification channel.
func (e *Engine) Unsubscribe(id uuid.UUID) {
	e.broadcast.unsubscribe(id)
}

// List returns a sorted snapshot of the directory's entries.
func (e *Engine) List(ctx context.Context, path string, opts options.ListOptions) (types.DirectorySnapshot, error) {
	return e.lister.List(ctx, path, opts)
}

// ListStream opens a lazy, name-ordered entry sequence over a directory so
// very large listings can render progressively.
func (e *Engine) ListStream(ctx context.Context, path string, opts options.ListOptions) (*lister.EntryStream, error) {
	return e.lister.Stream(ctx, path, opts)
}

// Stat resolves one path to its Entry snapshot.
func (e *Engine) Stat(path string) (types.Entry, error) {
	return e.catalog.Stat(path)
}

// DetectMIME sniffs a file's content type on demand.
func (e *Engine) DetectMIME(path string) (string, error) {
	return e.catalog.DetectMIME(path)
}

// MediaMetadata extracts capture time, camera model and GPS position from
// image files that carry them.
func (e *Engine) MediaMetadata(path string) (types.MediaMetadata, error) {
	return e.catalog.MediaMetadata(path)
}

// Volumes enumerates mounted volume roots.
func (e *Engine) Volumes() ([]types.VolumeInfo, error) {
	return e.catalog.Volumes()
}

// WatchHandle represents one live watch on a directory. Change events
// arrive on the notification stream keyed by the watched path; the handle
// only identifies and stops the watch.
type WatchHandle struct {
	sub *watcher.Subscription
}

// ID returns the watch identity.
func (h *WatchHandle) ID() uuid.UUID { return h.sub.ID() }

// Path returns the watched directory.
func (h *WatchHandle) Path() string { return h.sub.Path() }

// Recursive reports whether the watch covers the whole subtree.
func (h *WatchHandle) Recursive() bool { return h.sub.Recursive() }

// Stop tears the watch down. Safe to call more than once.
func (h *WatchHandle) Stop() { h.sub.Stop() }

// Watch installs a debounced watch on a directory and routes its change
// events into the notification stream, keyed by the watched path. Fails
// with WatchUnavailable when no watch backend could be installed.
func (e *Engine) Watch(path string, opts options.WatchOptions) (*WatchHandle, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, errors.New("engine is closed")
	}
	e.mu.Unlock()

	sub, err := e.watcher.Subscribe(path, opts)
	if err != nil {
		return nil, err
	}
	h := &WatchHandle{sub: sub}

	e.mu.Lock()
	e.watches[sub.ID()] = h
	e.mu.Unlock()

	e.wg.Add(1)
	go e.pumpWatch(h)
	return h, nil
}

// Unwatch stops the watch with the given ID.
func (e *Engine) Unwatch(id uuid.UUID) error {
	e.mu.Lock()
	h, ok := e.watches[id]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown watch %s", id)
	}
	h.Stop()
	return nil
}

// WatchingEnabled reports whether the platform watch backend is installed.
// When false, Watch fails and callers fall back to manual refresh.
func (e *Engine) WatchingEnabled() bool { return e.watcher.Enabled() }

// pumpWatch forwards one subscription's events until it stops.
func (e *Engine) pumpWatch(h *WatchHandle) {
	defer e.wg.Done()

	origin := types.Origin{WatchPath: h.sub.Path()}
	for event := range h.sub.Events() {
		change := event
		e.broadcast.publish(types.Notification{
			Kind:   types.NotifyWatchEvent,
			Origin: origin,
			Change: &change,
		})
	}

	e.mu.Lock()
	delete(e.watches, h.sub.ID())
	e.mu.Unlock()
}

// Search starts a filtered search and returns its ID immediately. Matches,
// warnings and the final done marker arrive on the notification stream
// keyed by that ID, in traversal order.
func (e *Engine) Search(ctx context.Context, query types.SearchQuery) (uuid.UUID, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return uuid.Nil, errors.New("engine is closed")
	}
	e.mu.Unlock()

	stream, err := e.search.Search(ctx, query)
	if err != nil {
		return uuid.Nil, err
	}
	id := uuid.New()

	e.mu.Lock()
	e.searches[id] = stream
	e.mu.Unlock()

	e.wg.Add(1)
	go e.pumpSearch(id, stream)
	return id, nil
}

// CancelSearch stops a live search. Matches already queued stay delivered;
// the search's done notification carries the cancellation.
func (e *Engine) CancelSearch(id uuid.UUID) error {
	e.mu.Lock()
	stream, ok := e.searches[id]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown search %s", id)
	}
	stream.Cancel()
	return nil
}

// pumpSearch forwards one search's results and warnings, then publishes
// the done marker once the traversal has fully terminated.
func (e *Engine) pumpSearch(id uuid.UUID, stream *search.ResultStream) {
	defer e.wg.Done()

	origin := types.Origin{SearchID: id}
	results, warnings := stream.Results(), stream.Warnings()
	for results != nil || warnings != nil {
		select {
		case entry, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			match := entry
			e.broadcast.publish(types.Notification{
				Kind:   types.NotifySearchResult,
				Origin: origin,
				Entry:  &match,
			})
		case warning, ok := <-warnings:
			if !ok {
				warnings = nil
				continue
			}
			w := warning
			e.broadcast.publish(types.Notification{
				Kind:    types.NotifySearchWarning,
				Origin:  origin,
				Warning: &w,
			})
		}
	}

	<-stream.Done()
	done := types.Notification{Kind: types.NotifySearchDone, Origin: origin}
	if err := stream.Err(); err != nil {
		done.Error = err.Error()
	}
	e.broadcast.publish(done)

	e.mu.Lock()
	delete(e.searches, id)
	e.mu.Unlock()
}

// BuildIndex scans root and attaches the resulting snapshot index, so
// recursive searches under root are served by candidate pruning. Scanning
// is synchronous and cancellable; call it from a maintenance goroutine.
func (e *Engine) BuildIndex(ctx context.Context, root string) (int, error) {
	records, extDict, err := index.Scan(ctx, root, int(e.cfg.Search.MaxIndexedEntries))
	if err != nil {
		return 0, err
	}
	idx := index.Build(root, records, extDict)
	e.search.UseIndex(idx)
	return idx.Len(), nil
}

// Copy submits a copy of sources into the dest directory.
func (e *Engine) Copy(sources []string, dest string, opts options.CopyOptions) (uuid.UUID, error) {
	return e.submit(executor.Request{
		Kind:    types.OpCopy,
		Sources: sources,
		Dest:    dest,
		Copy:    opts,
	})
}

// Move submits a move of sources into the dest directory. Cross-volume
// moves degrade to copy-verify-delete.
func (e *Engine) Move(sources []string, dest string, opts options.MoveOptions) (uuid.UUID, error) {
	return e.submit(executor.Request{
		Kind:    types.OpMove,
		Sources: sources,
		Dest:    dest,
		Move:    opts,
	})
}

// Delete submits a delete of sources, through the trash by default.
func (e *Engine) Delete(sources []string, opts options.DeleteOptions) (uuid.UUID, error) {
	return e.submit(executor.Request{
		Kind:    types.OpDelete,
		Sources: sources,
		Delete:  opts,
	})
}

// Rename submits renaming one entry to newName within its directory.
func (e *Engine) Rename(path, newName string) (uuid.UUID, error) {
	return e.submit(executor.Request{
		Kind:    types.OpRename,
		Sources: []string{path},
		Name:    newName,
	})
}

// CreateFile submits creation of an empty file named name inside dir.
func (e *Engine) CreateFile(dir, name string) (uuid.UUID, error) {
	return e.submit(executor.Request{
		Kind: types.OpCreateFile,
		Dest: dir,
		Name: name,
	})
}

// CreateFolder submits creation of a directory named name inside dir.
func (e *Engine) CreateFolder(dir, name string) (uuid.UUID, error) {
	return e.submit(executor.Request{
		Kind: types.OpCreateFolder,
		Dest: dir,
		Name: name,
	})
}

// CreateArchive submits writing an archive at dest containing sources.
// The container format is derived from dest's extension.
func (e *Engine) CreateArchive(sources []string, dest string, opts options.ArchiveOptions) (uuid.UUID, error) {
	return e.submit(executor.Request{
		Kind:    types.OpArchiveCreate,
		Sources: sources,
		Dest:    dest,
		Archive: opts,
	})
}

// ExtractArchive submits reconstructing archivePath's tree under dest.
func (e *Engine) ExtractArchive(archivePath, dest string, opts options.ArchiveOptions) (uuid.UUID, error) {
	return e.submit(executor.Request{
		Kind:    types.OpArchiveExtract,
		Sources: []string{archivePath},
		Dest:    dest,
		Archive: opts,
	})
}

// submit hands the request to the executor. The operation ID exists before
// any work starts, so callers can cancel or reference it immediately.
func (e *Engine) submit(req executor.Request) (uuid.UUID, error) {
	op, err := e.exec.Submit(req)
	if err != nil {
		return uuid.Nil, err
	}
	return op.ID(), nil
}

// Cancel stops an operation at its next checkpoint.
func (e *Engine) Cancel(id uuid.UUID) error { return e.exec.Cancel(id) }

// Pause parks a running operation at its next checkpoint.
func (e *Engine) Pause(id uuid.UUID) error { return e.exec.Pause(id) }

// Resume releases a paused operation.
func (e *Engine) Resume(id uuid.UUID) error { return e.exec.Resume(id) }

// ResolveConflict answers an operation parked on a destination collision.
func (e *Engine) ResolveConflict(id uuid.UUID, res types.ConflictResolution) error {
	return e.exec.ResolveConflict(id, res)
}

// ConfirmPermanentDelete approves irreversible removal for a delete parked
// on an unavailable trash.
func (e *Engine) ConfirmPermanentDelete(id uuid.UUID) error {
	return e.exec.ConfirmPermanentDelete(id)
}

// Operation looks up the live handle for an operation ID, terminal
// operations included.
func (e *Engine) Operation(id uuid.UUID) (*executor.Operation, bool) {
	return e.exec.Get(id)
}

// Operations returns every known operation in submission order.
func (e *Engine) Operations() []*executor.Operation {
	return e.exec.Operations()
}

// TrashRecords lists every restorable trash record, oldest first.
func (e *Engine) TrashRecords() ([]trash.Record, error) {
	if e.journal == nil {
		return nil, errJournalDisabled
	}
	return e.journal.TrashRecords()
}

// RestoreFromTrash moves a trashed entry back to its original path and
// drops its record.
func (e *Engine) RestoreFromTrash(recordID uuid.UUID) error {
	if e.journal == nil {
		return errJournalDisabled
	}
	rec, ok, err := e.journal.FindTrashRecord(recordID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("unknown trash record %s", recordID)
	}
	e.asserts.Assert(context.Background(), rec.From != "", "trash record has no original path")

	if err := e.bin.Restore(rec); err != nil {
		return err
	}
	if err := e.journal.DeleteTrashRecord(recordID); err != nil {
		slog.Error("Restored entry but failed to drop its trash record", "record_id", recordID, "error", err)
	}
	slog.Info("Entry restored from trash", "path", rec.From)
	return nil
}

// PurgeTrash permanently removes a trashed entry and drops its record.
func (e *Engine) PurgeTrash(recordID uuid.UUID) error {
	if e.journal == nil {
		return errJournalDisabled
	}
	rec, ok, err := e.journal.FindTrashRecord(recordID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("unknown trash record %s", recordID)
	}
	if err := e.bin.Purge(rec); err != nil {
		return err
	}
	return e.journal.DeleteTrashRecord(recordID)
}

// RecentOperations returns the newest journaled operations, most recent
// first.
func (e *Engine) RecentOperations(limit int) ([]journal.OperationEntry, error) {
	if e.journal == nil {
		return nil, errJournalDisabled
	}
	return e.journal.RecentOperations(limit)
}

// Close cancels live searches, stops watches and operations, and drains
// every notification forwarder. The engine refuses new work afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	searches := make([]*search.ResultStream, 0, len(e.searches))
	for _, stream := range e.searches {
		searches = append(searches, stream)
	}
	watches := make([]*WatchHandle, 0, len(e.watches))
	for _, h := range e.watches {
		watches = append(watches, h)
	}
	e.mu.Unlock()

	for _, stream := range searches {
		stream.Cancel()
	}
	for _, h := range watches {
		h.Stop()
	}
	if err := e.watcher.Close(); err != nil {
		slog.Warn("Failed to close watcher", "error", err)
	}
	e.exec.Close()
	e.wg.Wait()
	e.broadcast.closeAll()

	if e.journal != nil {
		if err := e.journal.Close(); err != nil {
			slog.Warn("Failed to close journal", "error", err)
		}
	}
	slog.Info("Engine closed")
}
