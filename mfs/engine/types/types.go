package types

import (
	"time"

	"github.com/google/uuid"
)

// EntryKind classifies a filesystem entry.
type EntryKind string

const (
	KindFile      EntryKind = "file"
	KindDirectory EntryKind = "directory"
	KindSymlink   EntryKind = "symlink"
	KindSpecial   EntryKind = "special"
)

// Entry is an immutable metadata snapshot of one filesystem object.
// It is re-derived on each listing and never mutated in place.
type Entry struct {
	Path       string    `json:"path"`
	Name       string    `json:"name"`
	Kind       EntryKind `json:"kind"`
	Size       int64     `json:"size"` // files only, 0 for directories
	ModifiedAt time.Time `json:"modified_at"`
	CreatedAt  time.Time `json:"created_at,omitempty"` // zero when the platform cannot report it
	ReadOnly   bool      `json:"read_only"`
	Hidden     bool      `json:"hidden"`
	Extension  string    `json:"extension,omitempty"` // lowercase, with leading dot
	MIME       string    `json:"mime,omitempty"`      // filled on demand, never during bulk listing
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool { return e.Kind == KindDirectory }

// SortKey selects the attribute a directory listing is ordered by.
type SortKey string

const (
	SortByName         SortKey = "name"
	SortBySize         SortKey = "size"
	SortByModifiedTime SortKey = "modified_time"
	SortByKind         SortKey = "kind"
)

// DirectorySnapshot is an ordered listing of one directory at one point in
// time. Generation strictly increases on every re-listing of the same path;
// stale snapshots are replaced, never merged.
type DirectorySnapshot struct {
	Path       string    `json:"path"`
	Entries    []Entry   `json:"entries"`
	SortKey    SortKey   `json:"sort_key"`
	Ascending  bool      `json:"ascending"`
	Generation uint64    `json:"generation"`
	TakenAt    time.Time `json:"taken_at"`
}

// ChangeKind is the kind of a watcher change event.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeRemoved  ChangeKind = "removed"
	ChangeModified ChangeKind = "modified"
	ChangeRenamed  ChangeKind = "renamed"
)

// ChangeEvent is one coalesced filesystem change detected by the watcher.
type ChangeEvent struct {
	Kind      ChangeKind `json:"kind"`
	Path      string     `json:"path"`
	OldPath   string     `json:"old_path,omitempty"` // renames only
	Timestamp time.Time  `json:"timestamp"`
	IsDir     bool       `json:"is_dir"`
}

// OperationKind identifies the kind of bulk mutation an operation performs.
type OperationKind string

const (
	OpCopy           OperationKind = "copy"
	OpMove           OperationKind = "move"
	OpDelete         OperationKind = "delete"
	OpRename         OperationKind = "rename"
	OpArchiveCreate  OperationKind = "archive_create"
	OpArchiveExtract OperationKind = "archive_extract"
	OpCreateFile     OperationKind = "create_file"
	OpCreateFolder   OperationKind = "create_folder"
)

// OperationState is the lifecycle state of an operation.
// Queued -> Running -> {Completed | Failed | Cancelled}, with Paused
// reachable from Running for operations that support suspension.
type OperationState string

const (
	StateQueued    OperationState = "queued"
	StateRunning   OperationState = "running"
	StatePaused    OperationState = "paused"
	StateCompleted OperationState = "completed"
	StateFailed    OperationState = "failed"
	StateCancelled OperationState = "cancelled"
)

// Terminal reports whether the state is final.
func (s OperationState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Progress is a snapshot of an operation's counters against its
// pre-computed totals. Values are cumulative and monotonically
// non-decreasing for the lifetime of the operation.
type Progress struct {
	BytesDone   int64         `json:"bytes_done"`
	BytesTotal  int64         `json:"bytes_total"`
	ItemsDone   int64         `json:"items_done"`
	ItemsTotal  int64         `json:"items_total"`
	CurrentPath string        `json:"current_path,omitempty"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Percentage returns completion by bytes when byte totals exist,
// otherwise by items.
func (p Progress) Percentage() float64 {
	if p.BytesTotal > 0 {
		return float64(p.BytesDone) / float64(p.BytesTotal) * 100
	}
	if p.ItemsTotal > 0 {
		return float64(p.ItemsDone) / float64(p.ItemsTotal) * 100
	}
	return 0
}

// ItemResult records the outcome of one source item within an operation.
// Failed items carry the error kind so callers can retry only the failures.
type ItemResult struct {
	Source      string `json:"source"`
	Destination string `json:"destination,omitempty"`
	Success     bool   `json:"success"`
	Skipped     bool   `json:"skipped,omitempty"`
	Error       string `json:"error,omitempty"`
	ErrorKind   string `json:"error_kind,omitempty"`
}

// OperationResult is the terminal report of an operation. There is no
// cross-item rollback: completed destinations stay in place and the result
// lists exactly which sources succeeded and which failed.
type OperationResult struct {
	ID         uuid.UUID      `json:"id"`
	Kind       OperationKind  `json:"kind"`
	State      OperationState `json:"state"`
	Items      []ItemResult   `json:"items"`
	Progress   Progress       `json:"progress"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Error      string         `json:"error,omitempty"`
}

// Succeeded reports whether every non-skipped item completed.
func (r OperationResult) Succeeded() bool {
	if r.State != StateCompleted {
		return false
	}
	for _, item := range r.Items {
		if !item.Success && !item.Skipped {
			return false
		}
	}
	return true
}

// ConflictPolicy selects how a destination name collision is handled
// during copy/move.
type ConflictPolicy string

const (
	ConflictSkip      ConflictPolicy = "skip"
	ConflictOverwrite ConflictPolicy = "overwrite"
	ConflictRename    ConflictPolicy = "rename"
	ConflictAsk       ConflictPolicy = "ask"
)

// ConflictInfo describes one destination collision awaiting or produced by
// resolution.
type ConflictInfo struct {
	OperationID uuid.UUID `json:"operation_id"`
	SourcePath  string    `json:"source_path"`
	TargetPath  string    `json:"target_path"`
	TargetIsDir bool      `json:"target_is_dir"`
	Resolved    string    `json:"resolved,omitempty"` // path actually written, if any
}

// ConflictResolution is the caller's answer to an Ask conflict.
// ApplyToAll makes the chosen policy the operation's policy for all
// remaining collisions.
type ConflictResolution struct {
	Policy     ConflictPolicy `json:"policy"`
	ApplyToAll bool           `json:"apply_to_all"`
}

// SearchQuery is a stateless description of one search. All present filters
// are AND-composed.
type SearchQuery struct {
	Root        string    `json:"root"`
	Recursive   bool      `json:"recursive"`
	NamePattern string    `json:"name_pattern,omitempty"` // glob: * ? [..] **
	Extensions  []string  `json:"extensions,omitempty"`   // lowercase, with or without dot
	MinSize     int64     `json:"min_size,omitempty"`
	MaxSize     int64     `json:"max_size,omitempty"` // 0 = unbounded
	After       time.Time `json:"after,omitempty"`    // modified after
	Before      time.Time `json:"before,omitempty"`   // modified before
	Kind        EntryKind `json:"kind,omitempty"`     // empty = any
	Content     string    `json:"content,omitempty"`  // substring, text files only
	MaxResults  int       `json:"max_results,omitempty"`
}

// SearchWarning is a non-fatal problem encountered mid-traversal, such as a
// permission-denied subdirectory that was skipped.
type SearchWarning struct {
	Path string `json:"path"`
	Err  string `json:"err"`
}

// NotificationKind tags the payload carried by a Notification.
type NotificationKind string

const (
	NotifyWatchEvent         NotificationKind = "watch_event"
	NotifyOperationState     NotificationKind = "operation_state"
	NotifyOperationProgress  NotificationKind = "operation_progress"
	NotifyOperationConflict  NotificationKind = "operation_conflict"
	NotifyOperationStalled   NotificationKind = "operation_stalled"
	NotifyOperationResult    NotificationKind = "operation_result"
	NotifyDeleteConfirmation NotificationKind = "delete_confirmation"
	NotifySearchResult       NotificationKind = "search_result"
	NotifySearchWarning      NotificationKind = "search_warning"
	NotifySearchDone         NotificationKind = "search_done"
)

// Origin attributes a notification to its producer: a watched path, an
// operation ID, or a search ID. Exactly one field group is set.
type Origin struct {
	WatchPath   string    `json:"watch_path,omitempty"`
	OperationID uuid.UUID `json:"operation_id,omitempty"`
	SearchID    uuid.UUID `json:"search_id,omitempty"`
}

// Notification is one element of the unified engine event stream. Events
// for a single operation ID are delivered in the order produced; no
// cross-origin ordering is guaranteed.
type Notification struct {
	Kind      NotificationKind `json:"kind"`
	Origin    Origin           `json:"origin"`
	Timestamp time.Time        `json:"timestamp"`

	Change   *ChangeEvent     `json:"change,omitempty"`
	State    OperationState   `json:"state,omitempty"`
	Progress *Progress        `json:"progress,omitempty"`
	Conflict *ConflictInfo    `json:"conflict,omitempty"`
	Result   *OperationResult `json:"result,omitempty"`
	Entry    *Entry           `json:"entry,omitempty"`
	Warning  *SearchWarning   `json:"warning,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// VolumeInfo describes one mounted volume root.
type VolumeInfo struct {
	Path       string `json:"path"`
	Label      string `json:"label,omitempty"`
	TotalBytes uint64 `json:"total_bytes,omitempty"`
	FreeBytes  uint64 `json:"free_bytes,omitempty"`
}

// MediaMetadata holds optional media attributes extracted from file content.
type MediaMetadata struct {
	CapturedAt  time.Time `json:"captured_at,omitempty"`
	CameraModel string    `json:"camera_model,omitempty"`
	Latitude    float64   `json:"latitude,omitempty"`
	Longitude   float64   `json:"longitude,omitempty"`
	HasGPS      bool      `json:"has_gps,omitempty"`
}
