package domain

import "time"

// BatchType distinguishes how a batch was initiated.
type BatchType string

const (
	BatchAlbum     BatchType = "album"
	BatchPlaylist  BatchType = "playlist"
	BatchSelection BatchType = "selection"
)

// BatchOutcome summarises a finished batch.
type BatchOutcome string

const (
	OutcomeCompleted BatchOutcome = "completed"
	OutcomePartial   BatchOutcome = "partial"
	OutcomeFailed    BatchOutcome = "failed"
)

// BatchJob groups a set of DownloadTask identifiers under one batch ID. The
// coordinator owns the job; tasks are referenced by track ID only.
type BatchJob struct {
	ID       string    `json:"batch_id"`
	Type     BatchType `json:"type"`
	Title    string    `json:"title,omitempty"`
	TrackIDs []string  `json:"track_ids"`

	Total          int `json:"total"`
	CompletedCount int `json:"completed_count"`
	FailedCount    int `json:"failed_count"`
	CancelledCount int `json:"cancelled_count"`

	PlaylistPath string    `json:"playlist_path,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Terminal reports whether every constituent task has reached a terminal
// status.
func (b *BatchJob) Terminal() bool {
	return b.CompletedCount+b.FailedCount+b.CancelledCount >= b.Total
}

// Progress returns the completed fraction of the batch.
func (b *BatchJob) Progress() float64 {
	if b.Total == 0 {
		return 1.0
	}
	return float64(b.CompletedCount) / float64(b.Total)
}

// Outcome distinguishes all-succeeded, partial-failure and all-failed
// results. Only meaningful once the batch is terminal.
func (b *BatchJob) Outcome() BatchOutcome {
	switch {
	case b.CompletedCount == b.Total:
		return OutcomeCompleted
	case b.CompletedCount > 0:
		return OutcomePartial
	default:
		return OutcomeFailed
	}
}
