package service

import (
	"context"
	"log/slog"

	"github.com/tracktide/tracktide/internal/batch"
	"github.com/tracktide/tracktide/internal/domain"
	"github.com/tracktide/tracktide/internal/scheduler"
)

// Engine is the facade the HTTP layer talks to: single-track and batch
// enqueueing, cancellation, status queries and runtime settings.
type Engine struct {
	sched          *scheduler.Scheduler
	coordinator    *batch.Coordinator
	defaultQuality string
	logger         *slog.Logger
}

// NewEngine creates the engine facade.
func NewEngine(sched *scheduler.Scheduler, coordinator *batch.Coordinator, defaultQuality string, logger *slog.Logger) *Engine {
	return &Engine{
		sched:          sched,
		coordinator:    coordinator,
		defaultQuality: defaultQuality,
		logger:         logger,
	}
}

// EnqueueTrack enqueues a single track download.
func (e *Engine) EnqueueTrack(ctx context.Context, req *domain.EnqueueTrackRequest) (domain.DownloadTask, error) {
	quality := req.Quality
	if quality == "" {
		quality = e.defaultQuality
	}

	task := domain.NewDownloadTask(req.TrackID, quality, "")
	if err := e.sched.Enqueue(task); err != nil {
		return domain.DownloadTask{}, err
	}

	e.logger.Info("track enqueued", "track_id", req.TrackID, "quality", quality)
	return e.sched.Task(req.TrackID)
}

// EnqueueBatch enqueues an album, playlist or multi-selection batch.
func (e *Engine) EnqueueBatch(ctx context.Context, req *domain.EnqueueBatchRequest) (domain.BatchJob, error) {
	quality := req.Quality
	if quality == "" {
		quality = e.defaultQuality
	}

	job, err := e.coordinator.Enqueue(req, quality)
	if err != nil {
		return domain.BatchJob{}, err
	}
	return *job, nil
}

// Task returns a snapshot of one task.
func (e *Engine) Task(trackID string) (domain.DownloadTask, error) {
	return e.sched.Task(trackID)
}

// Tasks returns snapshots of all tracked tasks.
func (e *Engine) Tasks() []domain.DownloadTask {
	return e.sched.Tasks()
}

// Batch returns a snapshot of one batch.
func (e *Engine) Batch(batchID string) (domain.BatchJob, error) {
	return e.coordinator.Batch(batchID)
}

// RemoveTask cancels a non-terminal task, or clears a terminal one from
// tracking.
func (e *Engine) RemoveTask(trackID string) error {
	task, err := e.sched.Task(trackID)
	if err != nil {
		return err
	}
	if task.Status.Terminal() {
		return e.sched.Clear(trackID)
	}
	return e.sched.Cancel(trackID)
}

// CancelBatch cancels every non-terminal task of a batch.
func (e *Engine) CancelBatch(batchID string) error {
	return e.coordinator.Cancel(batchID)
}

// SetConcurrency changes the download concurrency limit at runtime.
func (e *Engine) SetConcurrency(limit int) error {
	return e.sched.SetConcurrencyLimit(limit)
}
