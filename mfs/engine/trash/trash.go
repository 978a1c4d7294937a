// Package trash moves entries into a recoverable trash area instead of
// unlinking them. On Linux it follows the freedesktop trash layout so
// trashed entries show up in desktop environments; elsewhere it falls back
// to a managed directory. Trash only ever renames within one volume; a
// cross-volume target is reported as unavailable so the caller can ask for
// explicit confirmation before deleting permanently.
package trash

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/meridianfm/meridian/mfs/engine/common"
)

// Record describes one trashed entry with enough information to restore it.
type Record struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"` // name inside the trash files directory
	From      string    `json:"from"` // original absolute path
	To        string    `json:"to"`   // current absolute path inside the trash
	IsDir     bool      `json:"is_dir"`
	TrashedAt time.Time `json:"trashed_at"`
}

// Trash is one trash area. filesDir holds the entries; infoDir holds
// freedesktop .trashinfo sidecars and is empty for managed layouts.
type Trash struct {
	filesDir string
	infoDir  string
	paths    *common.PathUtils
}

// New creates a managed trash area rooted at dir.
func New(dir string) *Trash {
	return &Trash{
		filesDir: filepath.Join(dir, "files"),
		paths:    common.NewPathUtils(),
	}
}

// NewPlatform resolves the platform trash area, falling back to a managed
// area at fallbackDir when the platform offers none.
func NewPlatform(fallbackDir string) *Trash {
	if filesDir, infoDir, ok := platformTrashDirs(); ok {
		return &Trash{
			filesDir: filesDir,
			infoDir:  infoDir,
			paths:    common.NewPathUtils(),
		}
	}
	slog.Debug("No platform trash area, using managed fallback", "dir", fallbackDir)
	return New(fallbackDir)
}

// Location reports the directory trashed entries are moved into.
func (t *Trash) Location() string { return t.filesDir }

// Put moves path into the trash and returns the record needed to restore
// it. A target on a different volume than the trash area fails with a
// trash-unavailable error without touching the entry.
func (t *Trash) Put(path string) (Record, error) {
	path = t.paths.NormalizePath(path)

	info, err := os.Lstat(path)
	if err != nil {
		return Record{}, common.Classify(path, err)
	}

	if err := os.MkdirAll(t.filesDir, 0o700); err != nil {
		return Record{}, common.WrapPath(common.KindTrashUnavailable, path, err)
	}

	name, err := t.claimName(filepath.Base(path), path)
	if err != nil {
		return Record{}, err
	}

	target := filepath.Join(t.filesDir, name)
	if err := os.Rename(path, target); err != nil {
		t.releaseName(name)
		if common.IsCrossDeviceError(err) {
			return Record{}, common.WrapPath(common.KindTrashUnavailable, path, err)
		}
		return Record{}, common.Classify(path, err)
	}

	rec := Record{
		ID:        uuid.New(),
		Name:      name,
		From:      path,
		To:        target,
		IsDir:     info.IsDir(),
		TrashedAt: time.Now(),
	}
	slog.Debug("Entry trashed", "from", rec.From, "to", rec.To)
	return rec, nil
}

// Restore moves a trashed entry back to its original path. It fails with
// NameConflict if the original path is occupied again, and recreates
// missing parent directories.
func (t *Trash) Restore(rec Record) error {
	if _, err := os.Lstat(rec.To); err != nil {
		return common.Classify(rec.To, err)
	}
	if _, err := os.Lstat(rec.From); err == nil {
		return common.WrapPath(common.KindNameConflict, rec.From, nil)
	} else if !os.IsNotExist(err) {
		return common.Classify(rec.From, err)
	}
	if err := os.MkdirAll(filepath.Dir(rec.From), 0o755); err != nil {
		return common.Classify(rec.From, err)
	}
	if err := os.Rename(rec.To, rec.From); err != nil {
		return common.Classify(rec.From, err)
	}
	t.releaseName(rec.Name)
	slog.Debug("Entry restored from trash", "path", rec.From)
	return nil
}

// Purge permanently removes a trashed entry.
func (t *Trash) Purge(rec Record) error {
	if err := os.RemoveAll(rec.To); err != nil {
		return common.Classify(rec.To, err)
	}
	t.releaseName(rec.Name)
	return nil
}

// claimName reserves a collision-free name inside the trash area. With a
// freedesktop layout the sidecar file is the claim; exclusive creation
// makes concurrent claims safe. Managed layouts probe the files directory.
func (t *Trash) claimName(base, originalPath string) (string, error) {
	if t.infoDir == "" {
		name, err := common.NextAvailableName(t.filesDir, base)
		if err != nil {
			return "", common.WrapPath(common.KindTrashUnavailable, originalPath, err)
		}
		return name, nil
	}

	if err := os.MkdirAll(t.infoDir, 0o700); err != nil {
		return "", common.WrapPath(common.KindTrashUnavailable, originalPath, err)
	}

	name := base
	for n := 1; ; n++ {
		infoPath := filepath.Join(t.infoDir, name+".trashinfo")
		f, err := os.OpenFile(infoPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if os.IsExist(err) {
			if n > 10000 {
				return "", common.WrapPath(common.KindTrashUnavailable, originalPath, err)
			}
			name = common.NumberedName(base, n)
			continue
		}
		if err != nil {
			return "", common.WrapPath(common.KindTrashUnavailable, originalPath, err)
		}
		_, werr := fmt.Fprintf(f, "[Trash Info]\nPath=%s\nDeletionDate=%s\n",
			escapeTrashPath(originalPath), time.Now().Format("2006-01-02T15:04:05"))
		if cerr := f.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			os.Remove(infoPath)
			return "", common.WrapPath(common.KindTrashUnavailable, originalPath, werr)
		}
		return name, nil
	}
}

// releaseName removes the sidecar claim, if the layout has one.
func (t *Trash) releaseName(name string) {
	if t.infoDir == "" {
		return
	}
	if err := os.Remove(filepath.Join(t.infoDir, name+".trashinfo")); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to remove trash sidecar", "name", name, "error", err)
	}
}

// escapeTrashPath percent-encodes the path the way the freedesktop spec
// requires, keeping slashes readable.
func escapeTrashPath(path string) string {
	return (&url.URL{Path: filepath.ToSlash(path)}).EscapedPath()
}
