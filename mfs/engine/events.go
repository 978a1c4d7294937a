package engine

import (
	"github.com/google/uuid"

	"github.com/meridianfm/meridian/mfs/engine/executor"
	"github.com/meridianfm/meridian/mfs/engine/types"
)

// execEvents translates executor lifecycle callbacks into notifications on
// the unified stream. Callbacks arrive on operation goroutines; publish
// only queues, so nothing here blocks the executor.
type execEvents struct {
	b *broadcaster
}

var _ executor.Events = execEvents{}

func (f execEvents) StateChanged(id uuid.UUID, _ types.OperationKind, state types.OperationState) {
	f.b.publish(types.Notification{
		Kind:   types.NotifyOperationState,
		Origin: types.Origin{OperationID: id},
		State:  state,
	})
}

func (f execEvents) ProgressUpdated(id uuid.UUID, p types.Progress) {
	f.b.publish(types.Notification{
		Kind:     types.NotifyOperationProgress,
		Origin:   types.Origin{OperationID: id},
		Progress: &p,
	})
}

func (f execEvents) ConflictPending(conflict types.ConflictInfo) {
	f.b.publish(types.Notification{
		Kind:     types.NotifyOperationConflict,
		Origin:   types.Origin{OperationID: conflict.OperationID},
		Conflict: &conflict,
	})
}

func (f execEvents) ConfirmationPending(id uuid.UUID, cause error) {
	n := types.Notification{
		Kind:   types.NotifyDeleteConfirmation,
		Origin: types.Origin{OperationID: id},
	}
	if cause != nil {
		n.Error = cause.Error()
	}
	f.b.publish(n)
}

func (f execEvents) Stalled(id uuid.UUID, p types.Progress) {
	f.b.publish(types.Notification{
		Kind:     types.NotifyOperationStalled,
		Origin:   types.Origin{OperationID: id},
		Progress: &p,
	})
}

func (f execEvents) Finished(result types.OperationResult) {
	f.b.publish(types.Notification{
		Kind:   types.NotifyOperationResult,
		Origin: types.Origin{OperationID: result.ID},
		Result: &result,
	})
}
