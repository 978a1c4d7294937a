// Package interfaces defines the service contracts the engine facade
// composes. Concrete implementations live in the sibling packages; the
// facade depends on these interfaces so tests can substitute fakes.
package interfaces

import (
	"context"

	"github.com/google/uuid"

	"github.com/meridianfm/meridian/mfs/engine/executor"
	"github.com/meridianfm/meridian/mfs/engine/lister"
	"github.com/meridianfm/meridian/mfs/engine/options"
	"github.com/meridianfm/meridian/mfs/engine/search"
	"github.com/meridianfm/meridian/mfs/engine/trash"
	"github.com/meridianfm/meridian/mfs/engine/types"
	"github.com/meridianfm/meridian/mfs/engine/watcher"
	"github.com/meridianfm/meridian/mfs/index"
	"github.com/meridianfm/meridian/mfs/journal"
)

// DirectoryLister produces ordered directory snapshots and lazy entry
// streams.
type DirectoryLister interface {
	List(ctx context.Context, path string, opts options.ListOptions) (types.DirectorySnapshot, error)
	Stream(ctx context.Context, path string, opts options.ListOptions) (*lister.EntryStream, error)
}

// ChangeWatcher installs reference-counted directory watches and delivers
// coalesced change events.
type ChangeWatcher interface {
	Subscribe(path string, opts options.WatchOptions) (*watcher.Subscription, error)
	Enabled() bool
	WatchedPaths() []string
	Close() error
}

// SearchService runs filtered searches as cancellable result streams.
type SearchService interface {
	Search(ctx context.Context, query types.SearchQuery) (*search.ResultStream, error)
	UseIndex(idx *index.Index)
}

// OperationRunner queues and supervises bulk mutation operations.
type OperationRunner interface {
	Submit(req executor.Request) (*executor.Operation, error)
	Pause(id uuid.UUID) error
	Resume(id uuid.UUID) error
	Cancel(id uuid.UUID) error
	ResolveConflict(id uuid.UUID, res types.ConflictResolution) error
	ConfirmPermanentDelete(id uuid.UUID) error
	Get(id uuid.UUID) (*executor.Operation, bool)
	Operations() []*executor.Operation
	Close()
}

// TrashBin moves entries into a recoverable trash area and back.
type TrashBin interface {
	Put(path string) (trash.Record, error)
	Restore(rec trash.Record) error
	Purge(rec trash.Record) error
	Location() string
}

// OperationJournal persists the completed-operations log and the trash
// inventory.
type OperationJournal interface {
	RecordOperation(entry journal.OperationEntry) error
	RecentOperations(limit int) ([]journal.OperationEntry, error)
	RecordTrash(rec trash.Record, operationID uuid.UUID) error
	TrashRecords() ([]trash.Record, error)
	FindTrashRecord(id uuid.UUID) (trash.Record, bool, error)
	DeleteTrashRecord(id uuid.UUID) error
	Close() error
}
