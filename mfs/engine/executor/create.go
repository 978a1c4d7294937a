package executor

import (
	"os"
	"path/filepath"

	"github.com/meridianfm/meridian/mfs/engine/common"
)

// runRename renames a single entry in place; the new name lands next to
// the source. Renaming an entry onto an existing sibling is refused rather
// than resolved, matching how explorers treat inline rename.
func (x *Executor) runRename(op *Operation) {
	src := op.req.Sources[0]
	if _, err := os.Lstat(src); err != nil {
		op.itemFailed(src, "", common.Classify(src, err))
		return
	}

	target := filepath.Join(filepath.Dir(src), op.req.Name)
	if target == src {
		op.progress.addItems(1)
		op.itemDone(src, target)
		return
	}

	if _, err := os.Lstat(target); err == nil {
		op.itemFailed(src, target, common.WrapPath(common.KindNameConflict, target, nil))
		return
	} else if !os.IsNotExist(err) {
		op.itemFailed(src, target, common.Classify(target, err))
		return
	}

	if err := os.Rename(src, target); err != nil {
		op.itemFailed(src, target, common.Classify(src, err))
		return
	}
	op.progress.addItems(1)
	op.itemDone(src, target)
}

// runCreateFile creates an empty file. Exclusive create turns an existing
// name into a name_conflict without touching it.
func (x *Executor) runCreateFile(op *Operation) {
	target := filepath.Join(op.req.Dest, op.req.Name)
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		op.itemFailed(target, "", common.Classify(target, err))
		return
	}
	f.Close()
	op.progress.addItems(1)
	op.itemDone(target, "")
}

func (x *Executor) runCreateFolder(op *Operation) {
	target := filepath.Join(op.req.Dest, op.req.Name)
	if err := os.Mkdir(target, 0o755); err != nil {
		op.itemFailed(target, "", common.Classify(target, err))
		return
	}
	op.progress.addItems(1)
	op.itemDone(target, "")
}
