package executor

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/meridianfm/meridian/mfs/engine/common"
	"github.com/meridianfm/meridian/mfs/engine/options"
)

// renameItem is swapped in tests to force the cross-device path.
var renameItem = os.Rename

func (x *Executor) runMove(op *Operation) {
	for _, src := range op.req.Sources {
		if err := op.checkpoint(); err != nil {
			return
		}
		x.moveItem(op, src)
	}
}

func (x *Executor) moveItem(op *Operation, src string) {
	info, err := os.Lstat(src)
	if err != nil {
		op.itemFailed(src, "", common.Classify(src, err))
		return
	}

	target := filepath.Join(op.req.Dest, filepath.Base(src))
	if err := x.safety.IsSafeOperation(src, target); err != nil {
		op.itemFailed(src, target, common.WrapPath(common.KindInvalidName, target, err))
		return
	}

	resolved, skip, err := x.resolveTarget(op, src, target)
	if err != nil {
		if op.ctx.Err() != nil {
			return
		}
		op.itemFailed(src, target, err)
		return
	}
	if skip {
		op.itemSkipped(src, target)
		return
	}
	op.progress.setCurrent(src)

	// Overwrite resolution leaves the old target in place; clear it first
	// because rename cannot replace non-empty directories.
	if _, lerr := os.Lstat(resolved); lerr == nil {
		if rerr := os.RemoveAll(resolved); rerr != nil {
			op.itemFailed(src, resolved, common.Classify(resolved, rerr))
			return
		}
	}

	err = renameItem(src, resolved)
	if err == nil {
		t := op.sourceTotals(src)
		op.progress.addBytes(t.bytes)
		op.progress.addItems(t.items)
		op.itemDone(src, resolved)
		return
	}
	if !common.IsCrossDeviceError(err) {
		op.itemFailed(src, resolved, common.Classify(src, err))
		return
	}

	if err := x.crossDeviceMove(op, src, resolved, info); err != nil {
		if op.ctx.Err() != nil {
			return
		}
		op.itemFailed(src, resolved, err)
		return
	}
	op.itemDone(src, resolved)
}

// crossDeviceMove handles the rename that failed with EXDEV: copy to the
// destination volume, optionally verify, then delete the source. The
// source survives any failure before its removal.
func (x *Executor) crossDeviceMove(op *Operation, src, dst string, info os.FileInfo) error {
	slog.Info("Cross-volume move, copying then deleting source", "source", src, "target", dst)

	opts := options.CopyOptions{
		Conflict:      op.req.Move.Conflict,
		PreservePerms: op.req.Move.PreservePerms,
		PreserveTimes: op.req.Move.PreserveTimes,
	}
	if info.IsDir() {
		if err := x.copyTree(op, src, dst, opts, op.req.Move.VerifyCopy); err != nil {
			return err
		}
		if err := os.RemoveAll(src); err != nil {
			return common.Classify(src, err)
		}
		return nil
	}

	if err := x.copyEntry(op, src, dst, info, opts); err != nil {
		return err
	}
	if op.req.Move.VerifyCopy && info.Mode().IsRegular() {
		if err := x.verifyCopy(src, dst); err != nil {
			os.Remove(dst)
			return err
		}
	}
	if err := os.Remove(src); err != nil {
		return common.Classify(src, err)
	}
	return nil
}

// verifyCopy compares size and SHA-256 digest of source and copy. A
// mismatch is an io_failure on the destination path.
func (x *Executor) verifyCopy(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return common.Classify(src, err)
	}
	dstInfo, err := os.Stat(dst)
	if err != nil {
		return common.Classify(dst, err)
	}
	if srcInfo.Size() != dstInfo.Size() {
		return common.WrapPath(common.KindIOFailure, dst,
			fmt.Errorf("size mismatch after copy: %d != %d", dstInfo.Size(), srcInfo.Size()))
	}

	srcSum, err := x.files.ChecksumSHA256(src)
	if err != nil {
		return err
	}
	dstSum, err := x.files.ChecksumSHA256(dst)
	if err != nil {
		return err
	}
	if srcSum != dstSum {
		return common.WrapPath(common.KindIOFailure, dst, fmt.Errorf("checksum mismatch after copy"))
	}
	return nil
}
