package domain

import "time"

// TaskEventType identifies what a TaskEvent reports.
type TaskEventType string

const (
	// EventProgress reports byte progress, transfer speed and ETA. Emission
	// may be throttled.
	EventProgress TaskEventType = "progress"
	// EventStatus reports a state transition. Emitted exactly once per
	// transition, never throttled.
	EventStatus TaskEventType = "status"
)

// TaskEvent is a snapshot of one task's observable state, emitted by the
// scheduler on every meaningful update.
type TaskEvent struct {
	Type    TaskEventType
	TrackID string
	BatchID string
	Status  TaskStatus

	// Progress is the completed fraction, or -1 while the total is unknown.
	Progress        float64
	BytesDownloaded int64
	TotalBytes      int64
	// Speed is the current transfer rate in bytes per second.
	Speed float64
	// ETA is the estimated time remaining; zero when unknown.
	ETA time.Duration

	Error    string
	FilePath string
}

// BatchEvent is the aggregate view of one batch, emitted whenever a
// constituent task reaches a terminal state.
type BatchEvent struct {
	BatchID        string
	Total          int
	CompletedCount int
	FailedCount    int
	CancelledCount int
	Progress       float64
	Done           bool
	Outcome        BatchOutcome
	PlaylistPath   string
}

// Observer receives engine events. Implementations must not block: events are
// delivered synchronously from scheduler goroutines.
type Observer interface {
	OnTaskEvent(TaskEvent)
	OnBatchEvent(BatchEvent)
}
