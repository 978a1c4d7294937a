package options

import (
	"github.com/meridianfm/meridian/mfs/engine/types"
)

// ListOptions configures directory listing.
type ListOptions struct {
	ShowHidden bool          // Include dot-prefixed / attribute-hidden entries
	SortKey    types.SortKey // Attribute the snapshot is ordered by
	Ascending  bool          // Sort direction
}

// CopyOptions configures copy operations.
type CopyOptions struct {
	Conflict       types.ConflictPolicy // How to handle destination name collisions
	PreservePerms  bool                 // Preserve file permissions
	PreserveTimes  bool                 // Preserve modification times
	FollowSymlinks bool                 // Copy symlink targets instead of the links
}

// MoveOptions configures move operations.
type MoveOptions struct {
	Conflict      types.ConflictPolicy // How to handle destination name collisions
	VerifyCopy    bool                 // Hash-verify cross-volume copies before deleting source
	PreservePerms bool
	PreserveTimes bool
}

// DeleteOptions configures delete operations.
type DeleteOptions struct {
	UseTrash bool // Route through the trash collaborator (default path)
	Force    bool // Remove read-only entries during permanent delete
}

// ArchiveOptions configures archive create/extract operations.
type ArchiveOptions struct {
	Conflict types.ConflictPolicy // Extract-side collision handling
}

// WatchOptions configures a watch subscription.
type WatchOptions struct {
	Recursive bool // Watch the whole subtree, re-registering as children appear
}

// DefaultListOptions returns the listing defaults the explorer starts with.
func DefaultListOptions() ListOptions {
	return ListOptions{
		ShowHidden: false,
		SortKey:    types.SortByName,
		Ascending:  true,
	}
}

// DefaultCopyOptions returns sensible defaults for copy operations.
func DefaultCopyOptions() CopyOptions {
	return CopyOptions{
		Conflict:       types.ConflictAsk,
		PreservePerms:  true,
		PreserveTimes:  true,
		FollowSymlinks: false,
	}
}

// DefaultMoveOptions returns sensible defaults for move operations.
func DefaultMoveOptions() MoveOptions {
	return MoveOptions{
		Conflict:      types.ConflictAsk,
		VerifyCopy:    true,
		PreservePerms: true,
		PreserveTimes: true,
	}
}

// DefaultDeleteOptions returns sensible defaults for delete operations.
func DefaultDeleteOptions() DeleteOptions {
	return DeleteOptions{
		UseTrash: true,
		Force:    false,
	}
}

// DefaultArchiveOptions returns sensible defaults for archive operations.
func DefaultArchiveOptions() ArchiveOptions {
	return ArchiveOptions{
		Conflict: types.ConflictOverwrite,
	}
}
