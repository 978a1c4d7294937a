package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianfm/meridian/mfs/engine/trash"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndListOperations(t *testing.T) {
	j := openTestJournal(t)

	started := time.Now().Add(-time.Minute).Round(time.Millisecond)
	finished := time.Now().Round(time.Millisecond)

	first := OperationEntry{
		ID:         uuid.New(),
		Kind:       "copy",
		State:      "completed",
		Source:     "/src/a",
		Target:     "/dst/a",
		BytesDone:  4096,
		ItemsDone:  3,
		StartedAt:  started,
		FinishedAt: finished.Add(-time.Second),
	}
	second := OperationEntry{
		ID:          uuid.New(),
		Kind:        "delete",
		State:       "failed",
		Source:      "/src/b",
		ItemsFailed: 1,
		Error:       "access denied",
		StartedAt:   started,
		FinishedAt:  finished,
	}

	require.NoError(t, j.RecordOperation(first))
	require.NoError(t, j.RecordOperation(second))

	entries, err := j.RecentOperations(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, second.ID, entries[0].ID, "most recent first")
	assert.Equal(t, "failed", entries[0].State)
	assert.Equal(t, "access denied", entries[0].Error)
	assert.Equal(t, first.ID, entries[1].ID)
	assert.Equal(t, int64(4096), entries[1].BytesDone)
	assert.True(t, entries[1].StartedAt.Equal(started))
}

func TestRecentOperationsLimit(t *testing.T) {
	j := openTestJournal(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, j.RecordOperation(OperationEntry{
			ID:         uuid.New(),
			Kind:       "rename",
			State:      "completed",
			StartedAt:  time.Now(),
			FinishedAt: time.Now().Add(time.Duration(i) * time.Second),
		}))
	}

	entries, err := j.RecentOperations(3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestDuplicateOperationIDRejected(t *testing.T) {
	j := openTestJournal(t)

	entry := OperationEntry{
		ID:         uuid.New(),
		Kind:       "move",
		State:      "completed",
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
	}
	require.NoError(t, j.RecordOperation(entry))
	assert.Error(t, j.RecordOperation(entry), "operation ids are unique")
}

func TestTrashRecordLifecycle(t *testing.T) {
	j := openTestJournal(t)

	rec := trash.Record{
		ID:        uuid.New(),
		Name:      "doc.txt",
		From:      "/home/user/doc.txt",
		To:        "/home/user/.cache/trash/files/doc.txt",
		IsDir:     false,
		TrashedAt: time.Now().Round(time.Millisecond),
	}
	opID := uuid.New()
	require.NoError(t, j.RecordTrash(rec, opID))

	records, err := j.TrashRecords()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, rec.From, records[0].From)
	assert.Equal(t, rec.To, records[0].To)
	assert.True(t, records[0].TrashedAt.Equal(rec.TrashedAt))

	found, ok, err := j.FindTrashRecord(rec.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec.Name, found.Name)

	require.NoError(t, j.DeleteTrashRecord(rec.ID))

	_, ok, err = j.FindTrashRecord(rec.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	records, err = j.TrashRecords()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestTrashRecordsOrderedOldestFirst(t *testing.T) {
	j := openTestJournal(t)

	older := trash.Record{ID: uuid.New(), Name: "a", From: "/a", To: "/t/a", TrashedAt: time.Now().Add(-time.Hour)}
	newer := trash.Record{ID: uuid.New(), Name: "b", From: "/b", To: "/t/b", TrashedAt: time.Now()}

	require.NoError(t, j.RecordTrash(newer, uuid.New()))
	require.NoError(t, j.RecordTrash(older, uuid.New()))

	records, err := j.TrashRecords()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, older.ID, records[0].ID)
	assert.Equal(t, newer.ID, records[1].ID)
}

func TestOpenCreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "nested", "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.RecordOperation(OperationEntry{
		ID:         uuid.New(),
		Kind:       "copy",
		State:      "completed",
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
	}))
}
