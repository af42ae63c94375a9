package batch

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tracktide/tracktide/internal/domain"
	errpkg "github.com/tracktide/tracktide/internal/errors"
	"github.com/tracktide/tracktide/internal/metrics"
	"github.com/tracktide/tracktide/internal/scheduler"
	"github.com/tracktide/tracktide/internal/storage"
	"github.com/tracktide/tracktide/internal/tag"
)

// batchState tracks one batch's constituent tasks until all are terminal.
type batchState struct {
	job      *domain.BatchJob
	terminal map[string]bool
	paths    map[string]string
}

// Coordinator fans a batch request out into one DownloadTask per track and
// aggregates their terminal outcomes. It observes the scheduler rather than
// polling it. Implements domain.Observer.
type Coordinator struct {
	mu      sync.Mutex
	batches map[string]*batchState

	sched       *scheduler.Scheduler
	store       *storage.QueueStore
	playlistDir string

	obsMu     sync.RWMutex
	observers []domain.Observer

	logger *slog.Logger
}

// NewCoordinator creates a Coordinator writing playlist files under
// playlistDir (the download root). It subscribes itself to the scheduler.
func NewCoordinator(sched *scheduler.Scheduler, store *storage.QueueStore, playlistDir string, logger *slog.Logger) *Coordinator {
	c := &Coordinator{
		batches:     make(map[string]*batchState),
		sched:       sched,
		store:       store,
		playlistDir: playlistDir,
		logger:      logger,
	}
	sched.Subscribe(c)
	return c
}

// Subscribe attaches an observer for batch events.
func (c *Coordinator) Subscribe(o domain.Observer) {
	c.obsMu.Lock()
	c.observers = append(c.observers, o)
	c.obsMu.Unlock()
}

// Enqueue creates one task per track and enqueues them all. Duplicate track
// IDs within the request are collapsed; a track already tracked non-terminal
// by the scheduler fails the whole batch before anything is enqueued.
func (c *Coordinator) Enqueue(req *domain.EnqueueBatchRequest, quality string) (*domain.BatchJob, error) {
	trackIDs := dedupe(req.TrackIDs)

	job := &domain.BatchJob{
		ID:        uuid.New().String(),
		Type:      req.Type,
		Title:     req.Title,
		TrackIDs:  trackIDs,
		Total:     len(trackIDs),
		CreatedAt: time.Now(),
	}

	tasks := make([]*domain.DownloadTask, 0, len(trackIDs))
	for _, trackID := range trackIDs {
		tasks = append(tasks, domain.NewDownloadTask(trackID, quality, job.ID))
	}

	state := &batchState{
		job:      job,
		terminal: make(map[string]bool, len(trackIDs)),
		paths:    make(map[string]string, len(trackIDs)),
	}

	c.mu.Lock()
	c.batches[job.ID] = state
	c.mu.Unlock()

	for _, task := range tasks {
		if err := c.sched.Enqueue(task); err != nil {
			// Roll back tasks already enqueued so a conflicting batch leaves
			// no stragglers behind.
			for _, enqueued := range tasks {
				if enqueued == task {
					break
				}
				_ = c.sched.Cancel(enqueued.TrackID)
			}
			c.mu.Lock()
			delete(c.batches, job.ID)
			c.mu.Unlock()
			return nil, fmt.Errorf("enqueue batch track %s: %w", task.TrackID, err)
		}
	}

	metrics.BatchesEnqueued.Inc()
	c.persist(job)
	c.logger.Info("batch enqueued",
		"batch_id", job.ID,
		"type", job.Type,
		"tracks", job.Total,
	)
	return job, nil
}

// Cancel cancels every non-terminal constituent task of a batch.
func (c *Coordinator) Cancel(batchID string) error {
	c.mu.Lock()
	state, ok := c.batches[batchID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", errpkg.ErrBatchNotFound, batchID)
	}
	trackIDs := make([]string, 0, len(state.job.TrackIDs))
	for _, trackID := range state.job.TrackIDs {
		if !state.terminal[trackID] {
			trackIDs = append(trackIDs, trackID)
		}
	}
	c.mu.Unlock()

	for _, trackID := range trackIDs {
		if err := c.sched.Cancel(trackID); err != nil {
			c.logger.Warn("batch cancel: task cancel failed", "batch_id", batchID, "track_id", trackID, "error", err)
		}
	}
	return nil
}

// Batch returns a snapshot of one batch job.
func (c *Coordinator) Batch(batchID string) (domain.BatchJob, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.batches[batchID]
	if !ok {
		return domain.BatchJob{}, fmt.Errorf("%w: %s", errpkg.ErrBatchNotFound, batchID)
	}
	return *state.job, nil
}

// OnTaskEvent feeds scheduler task transitions into batch accounting.
func (c *Coordinator) OnTaskEvent(ev domain.TaskEvent) {
	if ev.Type != domain.EventStatus || ev.BatchID == "" || !ev.Status.Terminal() {
		return
	}

	c.mu.Lock()
	state, ok := c.batches[ev.BatchID]
	if !ok || state.terminal[ev.TrackID] {
		c.mu.Unlock()
		return
	}
	state.terminal[ev.TrackID] = true

	job := state.job
	switch ev.Status {
	case domain.StatusCompleted:
		job.CompletedCount++
		state.paths[ev.TrackID] = ev.FilePath
	case domain.StatusFailed:
		job.FailedCount++
	case domain.StatusCancelled:
		job.CancelledCount++
	}

	done := job.Terminal()
	if done && job.Type == domain.BatchPlaylist {
		if path, err := c.writePlaylist(state); err != nil {
			c.logger.Warn("playlist file not written", "batch_id", job.ID, "error", err)
		} else if path != "" {
			job.PlaylistPath = path
		}
	}

	bev := domain.BatchEvent{
		BatchID:        job.ID,
		Total:          job.Total,
		CompletedCount: job.CompletedCount,
		FailedCount:    job.FailedCount,
		CancelledCount: job.CancelledCount,
		Progress:       job.Progress(),
		Done:           done,
		PlaylistPath:   job.PlaylistPath,
	}
	if done {
		bev.Outcome = job.Outcome()
	}
	snapshot := *job
	c.mu.Unlock()

	c.persist(&snapshot)
	if done {
		c.logger.Info("batch finished",
			"batch_id", snapshot.ID,
			"outcome", snapshot.Outcome(),
			"completed", snapshot.CompletedCount,
			"failed", snapshot.FailedCount,
			"cancelled", snapshot.CancelledCount,
			"total", snapshot.Total,
		)
	}
	c.emitBatch(bev)
}

// OnBatchEvent satisfies domain.Observer; the coordinator produces batch
// events rather than consuming them.
func (c *Coordinator) OnBatchEvent(domain.BatchEvent) {}

// writePlaylist writes the .m3u index of successfully downloaded files in
// original playlist order, skipping failed and cancelled entries. Callers
// must hold c.mu.
func (c *Coordinator) writePlaylist(state *batchState) (string, error) {
	var entries []string
	for _, trackID := range state.job.TrackIDs {
		if path, ok := state.paths[trackID]; ok && path != "" {
			entries = append(entries, path)
		}
	}
	if len(entries) == 0 {
		return "", nil
	}

	name := tag.Sanitize(state.job.Title)
	if name == "Unknown" {
		name = state.job.ID
	}
	path := filepath.Join(c.playlistDir, name+".m3u")

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	for _, entry := range entries {
		b.WriteString(entry)
		b.WriteByte('\n')
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write playlist file: %w", err)
	}
	return path, nil
}

func (c *Coordinator) emitBatch(ev domain.BatchEvent) {
	c.obsMu.RLock()
	observers := c.observers
	c.obsMu.RUnlock()
	for _, o := range observers {
		o.OnBatchEvent(ev)
	}
}

func (c *Coordinator) persist(job *domain.BatchJob) {
	if c.store == nil {
		return
	}
	if err := c.store.PutBatch(job); err != nil {
		c.logger.Error("failed to persist batch", "batch_id", job.ID, "error", err)
	}
}

// Restore re-adopts persisted batches after a restart so status queries and
// terminal accounting keep working for recovered tasks.
func (c *Coordinator) Restore() {
	if c.store == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, job := range c.store.Batches() {
		state := &batchState{
			job:      job,
			terminal: make(map[string]bool, len(job.TrackIDs)),
			paths:    make(map[string]string, len(job.TrackIDs)),
		}
		for _, trackID := range job.TrackIDs {
			task, err := c.sched.Task(trackID)
			if err != nil {
				continue
			}
			if task.Status.Terminal() {
				state.terminal[trackID] = true
				if task.Status == domain.StatusCompleted {
					state.paths[trackID] = task.FilePath
				}
			}
		}
		c.batches[job.ID] = state
	}
	c.logger.Info("batches recovered", "count", len(c.batches))
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
