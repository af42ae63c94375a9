package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracktide/tracktide/internal/domain"
)

func TestQueueStore_RoundTrip(t *testing.T) {
	file := filepath.Join(t.TempDir(), "state.json")

	store, err := NewQueueStore(file)
	require.NoError(t, err)

	task := domain.NewDownloadTask("42", "lossless", "b1")
	require.NoError(t, store.PutTask(task))
	require.NoError(t, store.PutBatch(&domain.BatchJob{
		ID:       "b1",
		Type:     domain.BatchAlbum,
		TrackIDs: []string{"42"},
		Total:    1,
	}))

	// A fresh store over the same file sees everything back.
	reopened, err := NewQueueStore(file)
	require.NoError(t, err)

	tasks := reopened.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "42", tasks[0].TrackID)
	assert.Equal(t, "lossless", tasks[0].Quality)
	assert.Equal(t, "b1", tasks[0].BatchID)
	assert.Equal(t, domain.StatusQueued, tasks[0].Status)

	batches := reopened.Batches()
	require.Len(t, batches, 1)
	assert.Equal(t, "b1", batches[0].ID)
	assert.Equal(t, domain.BatchAlbum, batches[0].Type)
}

func TestQueueStore_MissingFileStartsEmpty(t *testing.T) {
	store, err := NewQueueStore(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)
	assert.Empty(t, store.Tasks())
	assert.Empty(t, store.Batches())
}

func TestQueueStore_CorruptFileFails(t *testing.T) {
	file := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(file, []byte("{not json"), 0o644))

	_, err := NewQueueStore(file)
	assert.Error(t, err)
}

func TestQueueStore_ResetInterrupted(t *testing.T) {
	file := filepath.Join(t.TempDir(), "state.json")
	store, err := NewQueueStore(file)
	require.NoError(t, err)

	interrupted := domain.NewDownloadTask("1", "standard", "")
	require.NoError(t, interrupted.MarkDownloading())
	interrupted.SetProgress(500, 1000)
	require.NoError(t, store.PutTask(interrupted))

	finished := domain.NewDownloadTask("2", "standard", "")
	require.NoError(t, finished.MarkDownloading())
	require.NoError(t, finished.MarkCompleted("/music/x.mp3"))
	require.NoError(t, store.PutTask(finished))

	reset := store.ResetInterrupted()
	require.Len(t, reset, 1)
	assert.Equal(t, "1", reset[0].TrackID)
	assert.Equal(t, domain.StatusQueued, reset[0].Status)
	assert.Equal(t, int64(0), reset[0].BytesDownloaded)

	// The completed task is untouched.
	for _, task := range store.Tasks() {
		if task.TrackID == "2" {
			assert.Equal(t, domain.StatusCompleted, task.Status)
		}
	}
}

func TestQueueStore_DeleteTask(t *testing.T) {
	file := filepath.Join(t.TempDir(), "state.json")
	store, err := NewQueueStore(file)
	require.NoError(t, err)

	require.NoError(t, store.PutTask(domain.NewDownloadTask("1", "standard", "")))
	require.NoError(t, store.DeleteTask("1"))
	assert.Empty(t, store.Tasks())

	reopened, err := NewQueueStore(file)
	require.NoError(t, err)
	assert.Empty(t, reopened.Tasks())
}

func TestQueueStore_SnapshotsAreCopies(t *testing.T) {
	file := filepath.Join(t.TempDir(), "state.json")
	store, err := NewQueueStore(file)
	require.NoError(t, err)

	task := domain.NewDownloadTask("1", "standard", "")
	require.NoError(t, store.PutTask(task))

	// Mutating the caller's struct after Put must not leak into the store.
	task.Status = domain.StatusFailed

	stored := store.Tasks()
	require.Len(t, stored, 1)
	assert.Equal(t, domain.StatusQueued, stored[0].Status)

	// Mutating a returned snapshot must not leak back either.
	stored[0].Status = domain.StatusCancelled
	again := store.Tasks()
	assert.Equal(t, domain.StatusQueued, again[0].Status)
}
