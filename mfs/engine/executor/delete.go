package executor

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/meridianfm/meridian/mfs/engine/common"
)

func (x *Executor) runDelete(op *Operation) {
	permanent := !op.req.Delete.UseTrash || x.trash == nil

	// Trash requested but no trash area configured: ask for confirmation
	// once, before anything is touched.
	if op.req.Delete.UseTrash && x.trash == nil {
		cause := common.WrapPath(common.KindTrashUnavailable, op.req.Sources[0],
			errors.New("no trash area configured"))
		if err := x.awaitDeleteConfirmation(op, cause); err != nil {
			return
		}
	}

	for _, src := range op.req.Sources {
		if err := op.checkpoint(); err != nil {
			return
		}
		op.progress.setCurrent(src)

		if !permanent {
			rec, err := x.trash.Put(src)
			if err == nil {
				x.recordTrash(op, rec)
				t := op.sourceTotals(src)
				op.progress.addBytes(t.bytes)
				op.progress.addItems(t.items)
				op.itemDone(src, rec.To)
				continue
			}
			if common.KindOf(err) != common.KindTrashUnavailable {
				op.itemFailed(src, "", err)
				continue
			}
			slog.Warn("Trash unavailable, awaiting permanent delete confirmation",
				"path", src, "error", err)
			if cerr := x.awaitDeleteConfirmation(op, err); cerr != nil {
				return
			}
			permanent = true
		}

		x.permanentDelete(op, src)
	}
}

// awaitDeleteConfirmation parks the operation until ConfirmPermanentDelete
// approves irreversible removal. Cancelling the operation is the denial.
func (x *Executor) awaitDeleteConfirmation(op *Operation, cause error) error {
	select {
	case <-op.confirmations:
	default:
	}
	op.awaitingConfirm.Store(true)
	defer op.awaitingConfirm.Store(false)

	x.events.ConfirmationPending(op.id, cause)
	slog.Info("Delete awaiting permanent removal confirmation",
		"operation_id", op.id, "cause", cause)

	select {
	case <-op.confirmations:
		return nil
	case <-op.ctx.Done():
		return op.ctx.Err()
	}
}

// permanentDelete removes one source subtree bottom-up. Unremovable
// entries are counted rather than aborting, so the item reports how much
// of the tree survived.
func (x *Executor) permanentDelete(op *Operation, src string) {
	var failed int64
	var firstErr error
	x.removeTree(op, src, op.req.Delete.Force, &failed, &firstErr)
	if op.ctx.Err() != nil {
		return
	}
	if failed > 0 {
		op.itemFailed(src, "", fmt.Errorf("failed to remove %d entries under %s: %w", failed, src, firstErr))
		return
	}
	op.itemDone(src, "")
}

func (x *Executor) removeTree(op *Operation, path string, force bool, failed *int64, firstErr *error) {
	if err := op.checkpoint(); err != nil {
		return
	}
	info, err := os.Lstat(path)
	if err != nil {
		*failed++
		if *firstErr == nil {
			*firstErr = common.Classify(path, err)
		}
		return
	}

	isDir := info.IsDir()
	var size int64
	if info.Mode().IsRegular() {
		size = info.Size()
	}

	if isDir {
		if force {
			// Children cannot be unlinked from a directory we cannot write.
			if cerr := os.Chmod(path, 0o700); cerr != nil {
				slog.Debug("Failed to loosen directory permissions", "path", path, "error", cerr)
			}
		}
		entries, _ := os.ReadDir(path)
		for _, de := range entries {
			if op.ctx.Err() != nil {
				return
			}
			x.removeTree(op, filepath.Join(path, de.Name()), force, failed, firstErr)
		}
	}

	if rerr := removeOne(path, isDir, force); rerr != nil {
		*failed++
		if *firstErr == nil {
			*firstErr = rerr
		}
		return
	}
	op.progress.addItems(1)
	if size > 0 {
		op.progress.addBytes(size)
	}
}

// removeOne removes a single already-emptied entry. Force retries once
// after loosening permissions, which is what read-only attributes on
// Windows need.
func removeOne(path string, isDir, force bool) error {
	err := os.Remove(path)
	if err == nil {
		return nil
	}
	if force {
		mode := os.FileMode(0o600)
		if isDir {
			mode = 0o700
		}
		if os.Chmod(path, mode) == nil {
			if rerr := os.Remove(path); rerr == nil {
				return nil
			}
		}
	}
	return common.Classify(path, err)
}
