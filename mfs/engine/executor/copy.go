package executor

import (
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/meridianfm/meridian/mfs/engine/common"
	"github.com/meridianfm/meridian/mfs/engine/options"
)

func (x *Executor) runCopy(op *Operation) {
	for _, src := range op.req.Sources {
		if err := op.checkpoint(); err != nil {
			return
		}
		x.copyItem(op, src)
	}
}

// copyItem copies one top-level source into the destination directory.
// Per-source failures are recorded on the item and do not stop the
// remaining sources; only cancellation does.
func (x *Executor) copyItem(op *Operation, src string) {
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
	if info.IsDir() {
		err = x.copyTree(op, src, resolved, op.req.Copy, false)
	} else {
		err = x.copyEntry(op, src, resolved, info, op.req.Copy)
	}
	if err != nil {
		if op.ctx.Err() != nil {
			return
		}
		op.itemFailed(src, resolved, err)
		return
	}
	op.itemDone(src, resolved)
}

// copyTree replicates srcDir under dstDir. With verify set, every regular
// file is checksum-compared after writing and a mismatch removes the copy.
func (x *Executor) copyTree(op *Operation, srcDir, dstDir string, opts options.CopyOptions, verify bool) error {
	return filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return common.Classify(path, err)
		}
		if cerr := op.checkpoint(); cerr != nil {
			return cerr
		}

		rel, rerr := filepath.Rel(srcDir, path)
		if rerr != nil {
			return rerr
		}
		target := dstDir
		if rel != "." {
			target = filepath.Join(dstDir, rel)
		}

		if d.IsDir() {
			perm := os.FileMode(0o755)
			if opts.PreservePerms {
				if info, ierr := d.Info(); ierr == nil {
					perm = info.Mode().Perm()
				}
			}
			if merr := os.MkdirAll(target, perm); merr != nil {
				return common.Classify(target, merr)
			}
			op.progress.addItems(1)
			return nil
		}

		info, ierr := d.Info()
		if ierr != nil {
			return common.Classify(path, ierr)
		}
		if cerr := x.copyEntry(op, path, target, info, opts); cerr != nil {
			return cerr
		}
		if verify && info.Mode().IsRegular() {
			if verr := x.verifyCopy(path, target); verr != nil {
				os.Remove(target)
				return verr
			}
		}
		return nil
	})
}

// copyEntry copies a single non-directory filesystem object. Symlinks are
// recreated as links unless FollowSymlinks is set, and even then directory
// links stay links so link cycles cannot turn into runaway tree copies.
func (x *Executor) copyEntry(op *Operation, src, dst string, info os.FileInfo, opts options.CopyOptions) error {
	if info.Mode()&os.ModeSymlink != 0 {
		if !opts.FollowSymlinks {
			if err := copySymlink(src, dst); err != nil {
				return err
			}
			op.progress.addItems(1)
			return nil
		}
		targetInfo, err := os.Stat(src)
		if err != nil {
			return common.Classify(src, err)
		}
		if targetInfo.IsDir() {
			slog.Debug("Recreating directory symlink as a link", "path", src)
			if err := copySymlink(src, dst); err != nil {
				return err
			}
			op.progress.addItems(1)
			return nil
		}
		info = targetInfo
	}

	perm := os.FileMode(0o644)
	if opts.PreservePerms {
		perm = info.Mode().Perm()
	}
	if err := x.copyFile(op, src, dst, perm); err != nil {
		return err
	}
	op.progress.addItems(1)

	if err := x.files.CopyFileAttributes(src, dst, opts.PreservePerms, opts.PreserveTimes); err != nil {
		slog.Warn("Failed to copy file attributes", "path", dst, "error", err)
	}
	return nil
}

// copyFile writes through a temp name in the destination directory and
// renames into place, so a crash or cancellation never leaves a truncated
// file under the final name.
func (x *Executor) copyFile(op *Operation, src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return common.Classify(src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return common.Classify(filepath.Dir(dst), err)
	}

	tmp := dst + partSuffix
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return common.Classify(tmp, err)
	}

	if err := x.copyChunks(op, in, out); err != nil {
		out.Close()
		if rerr := os.Remove(tmp); rerr != nil {
			slog.Warn("Failed to remove partial copy", "path", tmp, "error", rerr)
		}
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return common.Classify(tmp, err)
	}
	if err := renameOver(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// copyChunks moves bytes in buffer-sized pieces with a checkpoint before
// each read, which is what makes mid-file pause and cancel responsive.
func (x *Executor) copyChunks(op *Operation, in io.Reader, out io.Writer) error {
	buf := make([]byte, x.cfg.CopyBuffer())
	for {
		if err := op.checkpoint(); err != nil {
			return err
		}
		n, rerr := in.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return common.WrapPath(common.KindIOFailure, "", werr)
			}
			op.progress.addBytes(int64(n))
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return common.WrapPath(common.KindIOFailure, "", rerr)
		}
	}
}

// renameOver moves tmp onto dst, clearing a pre-existing dst when the
// platform refuses to replace it in place.
func renameOver(tmp, dst string) error {
	if err := os.Rename(tmp, dst); err != nil {
		if rerr := os.RemoveAll(dst); rerr == nil {
			if err = os.Rename(tmp, dst); err == nil {
				return nil
			}
		}
		return common.Classify(dst, err)
	}
	return nil
}

func copySymlink(src, dst string) error {
	linkTarget, err := os.Readlink(src)
	if err != nil {
		return common.Classify(src, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return common.Classify(filepath.Dir(dst), err)
	}
	if err := os.Symlink(linkTarget, dst); err != nil {
		if os.IsExist(err) {
			os.Remove(dst)
			err = os.Symlink(linkTarget, dst)
		}
		if err != nil {
			return common.Classify(dst, err)
		}
	}
	return nil
}
