package executor

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/meridianfm/meridian/mfs/engine/common"
	"github.com/meridianfm/meridian/mfs/engine/types"
)

// resolveTarget applies the operation's conflict policy to one intended
// destination. It returns the path to actually write, or skip=true when
// the item should be passed over. An Ask policy parks the worker until
// ResolveConflict supplies a concrete answer or the operation is cancelled.
func (x *Executor) resolveTarget(op *Operation, src, target string) (resolved string, skip bool, err error) {
	info, err := os.Lstat(target)
	if os.IsNotExist(err) {
		return target, false, nil
	}
	if err != nil {
		return "", false, common.Classify(target, err)
	}

	policy := op.currentPolicy()
	for {
		switch policy {
		case types.ConflictSkip:
			return "", true, nil
		case types.ConflictOverwrite:
			return target, false, nil
		case types.ConflictRename:
			name, nerr := common.NextAvailableName(filepath.Dir(target), filepath.Base(target))
			if nerr != nil {
				return "", false, nerr
			}
			return filepath.Join(filepath.Dir(target), name), false, nil
		case types.ConflictAsk:
			res, aerr := x.askConflict(op, src, target, info.IsDir())
			if aerr != nil {
				return "", false, aerr
			}
			if res.ApplyToAll {
				op.setPolicy(res.Policy)
			}
			policy = res.Policy
		default:
			return "", false, fmt.Errorf("unknown conflict policy %q", policy)
		}
	}
}

// askConflict publishes the collision and parks until an answer arrives.
// Cancellation unparks with the context error.
func (x *Executor) askConflict(op *Operation, src, target string, targetIsDir bool) (types.ConflictResolution, error) {
	// Drop an answer left over from a park that was cancelled mid-flight.
	select {
	case <-op.resolutions:
	default:
	}
	op.awaitingConflict.Store(true)
	defer op.awaitingConflict.Store(false)

	x.events.ConflictPending(types.ConflictInfo{
		OperationID: op.id,
		SourcePath:  src,
		TargetPath:  target,
		TargetIsDir: targetIsDir,
	})
	slog.Info("Operation awaiting conflict resolution",
		"operation_id", op.id, "source", src, "target", target)

	select {
	case res := <-op.resolutions:
		return res, nil
	case <-op.ctx.Done():
		return types.ConflictResolution{}, op.ctx.Err()
	}
}
