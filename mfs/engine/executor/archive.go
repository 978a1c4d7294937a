package executor

import (
	"log/slog"
	"os"

	"github.com/meridianfm/meridian/mfs/engine/archive"
	"github.com/meridianfm/meridian/mfs/engine/types"
)

// runArchiveCreate packs all sources into one archive at Dest. The
// conflict policy applies to the output name; a failure anywhere fails
// every source because they share the one output file.
func (x *Executor) runArchiveCreate(op *Operation) {
	resolved, skip, err := x.resolveTarget(op, op.req.Sources[0], op.req.Dest)
	if err != nil {
		if op.ctx.Err() != nil {
			return
		}
		x.failAllSources(op, op.req.Dest, err)
		return
	}
	if skip {
		for _, src := range op.req.Sources {
			op.itemSkipped(src, op.req.Dest)
		}
		return
	}

	onEntry := func(path string, size int64) error {
		if err := op.checkpoint(); err != nil {
			return err
		}
		op.progress.setCurrent(path)
		op.progress.addItems(1)
		op.progress.addBytes(size)
		return nil
	}

	if err := archive.Create(op.ctx, op.req.Format, resolved, op.req.Sources, onEntry); err != nil {
		if op.ctx.Err() != nil {
			return
		}
		x.failAllSources(op, resolved, err)
		return
	}
	for _, src := range op.req.Sources {
		op.itemDone(src, resolved)
	}
}

func (x *Executor) failAllSources(op *Operation, dst string, err error) {
	for _, src := range op.req.Sources {
		op.itemFailed(src, dst, err)
	}
}

// runArchiveExtract unpacks the single source archive into Dest. Only
// skip and overwrite collision policies are accepted here; extraction
// cannot park per entry the way copy can.
func (x *Executor) runArchiveExtract(op *Operation) {
	src := op.req.Sources[0]
	policy := op.currentPolicy()

	onEntry := func(path string, size int64) error {
		if err := op.checkpoint(); err != nil {
			return err
		}
		if policy == types.ConflictSkip {
			if _, err := os.Lstat(path); err == nil {
				slog.Debug("Skipping existing entry during extraction", "path", path)
				return archive.ErrSkipEntry
			}
		}
		op.progress.setCurrent(path)
		op.progress.addItems(1)
		op.progress.addBytes(size)
		return nil
	}

	if err := archive.Extract(op.ctx, src, op.req.Dest, onEntry); err != nil {
		if op.ctx.Err() != nil {
			return
		}
		op.itemFailed(src, op.req.Dest, err)
		return
	}
	op.itemDone(src, op.req.Dest)
}
