package domain

import (
	"fmt"
	"time"
)

// TaskStatus represents the current state of a DownloadTask.
type TaskStatus string

const (
	StatusQueued      TaskStatus = "queued"
	StatusDownloading TaskStatus = "downloading"
	StatusCompleted   TaskStatus = "completed"
	StatusFailed      TaskStatus = "failed"
	StatusCancelled   TaskStatus = "cancelled"
)

// Terminal reports whether no further transition can occur from s.
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// DownloadTask is one unit of work: a single track download. Status and
// progress are only ever mutated through the transition methods below, and
// callers outside the scheduler see copies, never the live struct.
type DownloadTask struct {
	TrackID     string `json:"track_id"`
	Title       string `json:"title,omitempty"`
	Artist      string `json:"artist,omitempty"`
	Album       string `json:"album,omitempty"`
	TrackNumber int    `json:"track_number,omitempty"`
	Quality     string `json:"quality"`
	BatchID     string `json:"batch_id,omitempty"`

	Status          TaskStatus `json:"status"`
	Progress        float64    `json:"progress"`
	AttemptCount    int        `json:"attempt_count"`
	Error           string     `json:"error,omitempty"`
	BytesDownloaded int64      `json:"bytes_downloaded"`
	TotalBytes      int64      `json:"total_bytes"`
	FilePath        string     `json:"file_path,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDownloadTask creates a task in the Queued state.
func NewDownloadTask(trackID, quality, batchID string) *DownloadTask {
	now := time.Now()
	return &DownloadTask{
		TrackID:   trackID,
		Quality:   quality,
		BatchID:   batchID,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MarkDownloading moves the task into Downloading, counting the attempt and
// clearing any error left over from a previous one.
func (t *DownloadTask) MarkDownloading() error {
	if t.Status != StatusQueued {
		return t.invalidTransition(StatusDownloading)
	}
	t.Status = StatusDownloading
	t.AttemptCount++
	t.Error = ""
	t.UpdatedAt = time.Now()
	return nil
}

// MarkCompleted moves the task into Completed with the final file path.
func (t *DownloadTask) MarkCompleted(filePath string) error {
	if t.Status != StatusDownloading {
		return t.invalidTransition(StatusCompleted)
	}
	t.Status = StatusCompleted
	t.Progress = 1.0
	t.FilePath = filePath
	t.UpdatedAt = time.Now()
	return nil
}

// MarkFailed moves the task into Failed with a human-readable reason.
func (t *DownloadTask) MarkFailed(reason string) error {
	if t.Status != StatusDownloading && t.Status != StatusQueued {
		return t.invalidTransition(StatusFailed)
	}
	t.Status = StatusFailed
	t.Error = reason
	t.UpdatedAt = time.Now()
	return nil
}

// MarkCancelled moves the task into Cancelled. Valid from Queued or
// Downloading; a cancelled task is never retried.
func (t *DownloadTask) MarkCancelled() error {
	if t.Status.Terminal() {
		return t.invalidTransition(StatusCancelled)
	}
	t.Status = StatusCancelled
	t.UpdatedAt = time.Now()
	return nil
}

// Requeue returns the task to Queued after a retryable failure, resetting
// per-attempt progress. The attempt count is preserved; it increments again
// on the next dispatch.
func (t *DownloadTask) Requeue() error {
	if t.Status != StatusDownloading {
		return t.invalidTransition(StatusQueued)
	}
	t.Status = StatusQueued
	t.Progress = 0
	t.BytesDownloaded = 0
	t.UpdatedAt = time.Now()
	return nil
}

// SetProgress updates byte counters and the progress fraction. Progress is
// -1 (indeterminate) while the total is unknown.
func (t *DownloadTask) SetProgress(bytesDownloaded, totalBytes int64) {
	t.BytesDownloaded = bytesDownloaded
	t.TotalBytes = totalBytes
	if totalBytes > 0 {
		t.Progress = float64(bytesDownloaded) / float64(totalBytes)
	} else {
		t.Progress = -1
	}
	t.UpdatedAt = time.Now()
}

func (t *DownloadTask) invalidTransition(to TaskStatus) error {
	return fmt.Errorf("invalid task transition %s -> %s (track %s)", t.Status, to, t.TrackID)
}
