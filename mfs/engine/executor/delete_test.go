package executor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianfm/meridian/mfs/engine/common"
	"github.com/meridianfm/meridian/mfs/engine/options"
	"github.com/meridianfm/meridian/mfs/engine/trash"
	"github.com/meridianfm/meridian/mfs/engine/types"
)

func TestDeleteRoutesThroughTrash(t *testing.T) {
	tr := trash.New(filepath.Join(t.TempDir(), "trash"))
	rec := &memoryRecorder{}
	x := newTestExecutor(t, tr, rec, nil)

	src := filepath.Join(t.TempDir(), "old.txt")
	writeFile(t, src, "recoverable")

	op, err := x.Submit(Request{
		Kind:    types.OpDelete,
		Sources: []string{src},
		Delete:  options.DeleteOptions{UseTrash: true},
	})
	require.NoError(t, err)
	res := waitResult(t, op)

	require.Equal(t, types.StateCompleted, res.State)
	assert.NoFileExists(t, src)

	records := rec.trashRecords()
	require.Len(t, records, 1)
	assert.Equal(t, src, records[0].From)
	data, err := os.ReadFile(records[0].To)
	require.NoError(t, err)
	assert.Equal(t, "recoverable", string(data))
}

func TestDeleteWithoutTrashAsksBeforePermanent(t *testing.T) {
	ev := &recordingEvents{}
	x := newTestExecutor(t, nil, nil, ev)

	src := filepath.Join(t.TempDir(), "doomed.txt")
	writeFile(t, src, "gone for good")

	op, err := x.Submit(Request{
		Kind:    types.OpDelete,
		Sources: []string{src},
		Delete:  options.DeleteOptions{UseTrash: true},
	})
	require.NoError(t, err)
	require.Eventually(t, op.AwaitingConfirmation, 2*time.Second, 5*time.Millisecond)

	// Nothing is removed while the confirmation is pending.
	assert.FileExists(t, src)
	causes := ev.confirmsFor(op.ID())
	require.Len(t, causes, 1)
	assert.Equal(t, common.KindTrashUnavailable, common.KindOf(causes[0]))

	require.NoError(t, x.ConfirmPermanentDelete(op.ID()))
	res := waitResult(t, op)
	require.Equal(t, types.StateCompleted, res.State)
	assert.NoFileExists(t, src)
}

func TestDeleteConfirmationDeniedByCancel(t *testing.T) {
	ev := &recordingEvents{}
	x := newTestExecutor(t, nil, nil, ev)

	src := filepath.Join(t.TempDir(), "spared.txt")
	writeFile(t, src, "still here")

	op, err := x.Submit(Request{
		Kind:    types.OpDelete,
		Sources: []string{src},
		Delete:  options.DeleteOptions{UseTrash: true},
	})
	require.NoError(t, err)
	require.Eventually(t, op.AwaitingConfirmation, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, x.Cancel(op.ID()))
	res := waitResult(t, op)

	require.Equal(t, types.StateCancelled, res.State)
	data, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, "still here", string(data))
}
