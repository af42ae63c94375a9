package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"github.com/tracktide/tracktide/internal/catalog"
	"github.com/tracktide/tracktide/internal/domain"
	errpkg "github.com/tracktide/tracktide/internal/errors"
	"github.com/tracktide/tracktide/internal/metrics"
	"github.com/tracktide/tracktide/internal/retry"
	"github.com/tracktide/tracktide/internal/storage"
	"github.com/tracktide/tracktide/internal/stream"
)

// progressEventRate caps progress/speed event emission per task. Status
// transitions are never throttled.
const progressEventRate = 10

// Fetcher executes one download attempt for one track.
type Fetcher interface {
	Fetch(
		ctx context.Context,
		trackID, quality string,
		attempt int,
		onResolved func(*catalog.TrackInfo),
		onProgress stream.ProgressFunc,
	) (string, error)
}

// entry is the scheduler's per-task bookkeeping. The task inside is only
// ever mutated under the scheduler lock; everyone else gets copies.
type entry struct {
	task            *domain.DownloadTask
	cancel          context.CancelFunc
	cancelRequested bool
	retryTimer      *time.Timer
	limiter         *rate.Limiter
	startedAt       time.Time
	lastBytes       int64
	lastTime        time.Time
	speed           float64
}

// Scheduler holds the pending queue, enforces the concurrency bound and
// drives every task through its download attempts, retries and terminal
// transition. It is the sole writer of task status and progress.
type Scheduler struct {
	mu      sync.Mutex
	entries map[string]*entry
	pending []string
	active  int
	limit   int
	closed  bool

	retrySettings retry.Settings
	fetcher       Fetcher
	store         *storage.QueueStore

	obsMu     sync.RWMutex
	observers []domain.Observer

	ctx       context.Context
	cancelAll context.CancelFunc
	wake      chan struct{}
	wg        sync.WaitGroup
	logger    *slog.Logger
}

// New creates a Scheduler. The store may be nil to disable persistence.
func New(fetcher Fetcher, limit int, rs retry.Settings, store *storage.QueueStore, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		entries:       make(map[string]*entry),
		limit:         limit,
		retrySettings: rs,
		fetcher:       fetcher,
		store:         store,
		wake:          make(chan struct{}, 1),
		logger:        logger,
	}
}

// Subscribe attaches an observer for task events.
func (s *Scheduler) Subscribe(o domain.Observer) {
	s.obsMu.Lock()
	s.observers = append(s.observers, o)
	s.obsMu.Unlock()
}

// Start recovers persisted state and begins dispatching. Tasks interrupted
// mid-download by a previous session are re-queued from scratch.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancelAll = context.WithCancel(ctx)

	if s.store != nil {
		s.store.ResetInterrupted()
		for _, task := range s.store.Tasks() {
			s.mu.Lock()
			s.entries[task.TrackID] = &entry{task: task, limiter: newProgressLimiter()}
			if task.Status == domain.StatusQueued {
				s.pending = append(s.pending, task.TrackID)
			}
			s.mu.Unlock()
		}
		s.logger.Info("scheduler state recovered", "tasks", len(s.entries))
	}

	s.wg.Add(1)
	go s.loop()
	s.wakeup()
}

// Enqueue adds a task to the back of the pending queue. A track already
// tracked in a non-terminal state is rejected; a terminal one is replaced
// (re-download).
func (s *Scheduler) Enqueue(task *domain.DownloadTask) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errpkg.ErrSchedulerDown
	}
	if existing, ok := s.entries[task.TrackID]; ok && !existing.task.Status.Terminal() {
		s.mu.Unlock()
		return fmt.Errorf("%w: track %s", errpkg.ErrTaskExists, task.TrackID)
	}

	e := &entry{task: task, limiter: newProgressLimiter()}
	s.entries[task.TrackID] = e
	s.pending = append(s.pending, task.TrackID)
	ev := s.taskEvent(e, domain.EventStatus)
	s.mu.Unlock()

	metrics.TasksEnqueued.Inc()
	s.persist(task)
	s.emit(ev)
	s.wakeup()
	return nil
}

// Cancel aborts a pending or active task. Pending tasks (including those
// waiting out a retry delay) transition to Cancelled directly; active tasks
// have their in-flight attempt aborted and transition once the worker
// returns. Cancel on a terminal task is an error.
func (s *Scheduler) Cancel(trackID string) error {
	s.mu.Lock()
	e, ok := s.entries[trackID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", errpkg.ErrTaskNotFound, trackID)
	}

	switch e.task.Status {
	case domain.StatusDownloading:
		e.cancelRequested = true
		if e.cancel != nil {
			e.cancel()
		}
		s.mu.Unlock()
		return nil

	case domain.StatusQueued:
		e.cancelRequested = true
		if e.retryTimer != nil {
			e.retryTimer.Stop()
			e.retryTimer = nil
		}
		s.removePending(trackID)
		if err := e.task.MarkCancelled(); err != nil {
			s.mu.Unlock()
			return err
		}
		ev := s.taskEvent(e, domain.EventStatus)
		task := e.task
		s.mu.Unlock()

		metrics.TasksCancelled.Inc()
		s.persist(task)
		s.emit(ev)
		return nil

	default:
		s.mu.Unlock()
		return fmt.Errorf("cannot cancel track %s: task already %s", trackID, e.task.Status)
	}
}

// Clear removes a terminal task from tracking.
func (s *Scheduler) Clear(trackID string) error {
	s.mu.Lock()
	e, ok := s.entries[trackID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", errpkg.ErrTaskNotFound, trackID)
	}
	if !e.task.Status.Terminal() {
		s.mu.Unlock()
		return fmt.Errorf("%w: track %s is %s", errpkg.ErrNotTerminal, trackID, e.task.Status)
	}
	delete(s.entries, trackID)
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.DeleteTask(trackID); err != nil {
			s.logger.Error("failed to delete task from store", "track_id", trackID, "error", err)
		}
	}
	return nil
}

// SetConcurrencyLimit changes the bound on concurrently active downloads.
// Takes effect for future dispatch decisions only; active attempts are never
// pre-empted.
func (s *Scheduler) SetConcurrencyLimit(n int) error {
	if n < 1 || n > 10 {
		return fmt.Errorf("concurrency limit out of range [1, 10]: %d", n)
	}
	s.mu.Lock()
	s.limit = n
	s.mu.Unlock()

	s.logger.Info("concurrency limit changed", "limit", n)
	s.wakeup()
	return nil
}

// Task returns a snapshot of one tracked task.
func (s *Scheduler) Task(trackID string) (domain.DownloadTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[trackID]
	if !ok {
		return domain.DownloadTask{}, fmt.Errorf("%w: %s", errpkg.ErrTaskNotFound, trackID)
	}
	return *e.task, nil
}

// Tasks returns snapshots of every tracked task.
func (s *Scheduler) Tasks() []domain.DownloadTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.DownloadTask, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e.task)
	}
	return out
}

// Stop halts dispatching, aborts active attempts and waits for workers to
// drain. Interrupted tasks are persisted as Queued for the next session.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	if s.cancelAll != nil {
		s.cancelAll()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler shutdown timed out")
		return ctx.Err()
	}
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		}
		s.dispatch()
	}
}

// dispatch starts attempts in FIFO order while slots remain.
func (s *Scheduler) dispatch() {
	var events []domain.TaskEvent
	var started []*domain.DownloadTask

	s.mu.Lock()
	for s.active < s.limit && len(s.pending) > 0 {
		trackID := s.pending[0]
		s.pending = s.pending[1:]

		e, ok := s.entries[trackID]
		if !ok || e.task.Status != domain.StatusQueued {
			continue
		}
		if err := e.task.MarkDownloading(); err != nil {
			s.logger.Error("dispatch failed", "track_id", trackID, "error", err)
			continue
		}

		attemptCtx, cancel := context.WithCancel(s.ctx)
		e.cancel = cancel
		e.startedAt = time.Now()
		e.lastBytes = 0
		e.lastTime = time.Time{}
		e.speed = 0
		s.active++

		s.wg.Add(1)
		go s.run(attemptCtx, e, e.task.TrackID, e.task.Quality, e.task.AttemptCount)

		events = append(events, s.taskEvent(e, domain.EventStatus))
		started = append(started, e.task)
	}
	s.mu.Unlock()

	for _, task := range started {
		s.persist(task)
	}
	for _, ev := range events {
		s.emit(ev)
	}
}

// run executes one attempt and routes its outcome through the retry policy.
func (s *Scheduler) run(ctx context.Context, e *entry, trackID, quality string, attempt int) {
	defer s.wg.Done()

	path, err := s.fetcher.Fetch(ctx, trackID, quality, attempt,
		func(info *catalog.TrackInfo) { s.onResolved(e, info) },
		func(written, total int64) { s.onProgress(e, written, total) },
	)
	s.finish(e, path, err)
}

func (s *Scheduler) onResolved(e *entry, info *catalog.TrackInfo) {
	s.mu.Lock()
	e.task.Title = info.Title
	e.task.Artist = info.Artist
	e.task.Album = info.Album
	e.task.TrackNumber = info.TrackNumber
	if info.TotalBytes > 0 {
		e.task.TotalBytes = info.TotalBytes
	}
	s.mu.Unlock()
}

func (s *Scheduler) onProgress(e *entry, written, total int64) {
	s.mu.Lock()
	e.task.SetProgress(written, total)

	now := time.Now()
	if e.lastTime.IsZero() {
		e.lastTime = now
		e.lastBytes = written
	} else if dt := now.Sub(e.lastTime).Seconds(); dt > 0 {
		instant := float64(written-e.lastBytes) / dt
		if e.speed == 0 {
			e.speed = instant
		} else {
			e.speed = 0.8*e.speed + 0.2*instant
		}
		e.lastTime = now
		e.lastBytes = written
	}

	if !e.limiter.Allow() {
		s.mu.Unlock()
		return
	}
	ev := s.taskEvent(e, domain.EventProgress)
	s.mu.Unlock()
	s.emit(ev)
}

// finish applies the outcome of one attempt: completion, cancellation,
// scheduled retry or permanent failure.
func (s *Scheduler) finish(e *entry, path string, err error) {
	s.mu.Lock()
	s.active--
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}

	var retryDelay time.Duration
	switch {
	case e.cancelRequested:
		// Cancellation wins even when it races the final chunk.
		if path != "" {
			os.Remove(path)
		}
		if !e.task.Status.Terminal() {
			if markErr := e.task.MarkCancelled(); markErr != nil {
				s.logger.Error("cancel transition failed", "track_id", e.task.TrackID, "error", markErr)
			}
		}
		metrics.TasksCancelled.Inc()

	case err == nil:
		bytes := e.task.BytesDownloaded
		if markErr := e.task.MarkCompleted(path); markErr != nil {
			s.logger.Error("complete transition failed", "track_id", e.task.TrackID, "error", markErr)
		}
		metrics.TasksCompleted.Inc()
		metrics.DownloadBytes.Add(float64(bytes))
		metrics.DownloadDuration.Observe(time.Since(e.startedAt).Seconds())
		s.logger.Info("download completed",
			"track_id", e.task.TrackID,
			"path", path,
			"size", humanize.Bytes(uint64(bytes)),
			"speed", humanize.Bytes(uint64(e.speed))+"/s",
		)

	case errors.Is(err, context.Canceled) && s.ctx.Err() != nil:
		// Shutdown interrupted the attempt; leave the task queued so the
		// next session picks it up.
		if requeueErr := e.task.Requeue(); requeueErr != nil {
			s.logger.Error("shutdown requeue failed", "track_id", e.task.TrackID, "error", requeueErr)
		}

	case retry.ShouldRetry(err, e.task.AttemptCount, s.retrySettings):
		retryDelay = retry.Delay(e.task.AttemptCount, s.retrySettings)
		if requeueErr := e.task.Requeue(); requeueErr != nil {
			s.logger.Error("retry requeue failed", "track_id", e.task.TrackID, "error", requeueErr)
		}
		trackID := e.task.TrackID
		e.retryTimer = time.AfterFunc(retryDelay, func() { s.requeue(trackID) })
		metrics.RetriesTotal.Inc()
		s.logger.Warn("attempt failed, retry scheduled",
			"track_id", trackID,
			"attempt", e.task.AttemptCount,
			"delay", retryDelay,
			"error", err,
		)

	default:
		if markErr := e.task.MarkFailed(err.Error()); markErr != nil {
			s.logger.Error("fail transition failed", "track_id", e.task.TrackID, "error", markErr)
		}
		metrics.TasksFailed.Inc()
		s.logger.Error("download failed permanently",
			"track_id", e.task.TrackID,
			"attempts", e.task.AttemptCount,
			"error", err,
		)
	}

	ev := s.taskEvent(e, domain.EventStatus)
	task := e.task
	s.mu.Unlock()

	s.persist(task)
	s.emit(ev)
	s.wakeup()
}

// requeue fires when a retry delay elapses.
func (s *Scheduler) requeue(trackID string) {
	s.mu.Lock()
	e, ok := s.entries[trackID]
	if ok {
		e.retryTimer = nil
	}
	if !ok || e.cancelRequested || e.task.Status != domain.StatusQueued {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, trackID)
	s.mu.Unlock()
	s.wakeup()
}

// taskEvent builds an event snapshot. Callers must hold s.mu.
func (s *Scheduler) taskEvent(e *entry, typ domain.TaskEventType) domain.TaskEvent {
	t := e.task
	ev := domain.TaskEvent{
		Type:            typ,
		TrackID:         t.TrackID,
		BatchID:         t.BatchID,
		Status:          t.Status,
		Progress:        t.Progress,
		BytesDownloaded: t.BytesDownloaded,
		TotalBytes:      t.TotalBytes,
		Speed:           e.speed,
		Error:           t.Error,
		FilePath:        t.FilePath,
	}
	if t.TotalBytes > 0 && e.speed > 0 && t.BytesDownloaded < t.TotalBytes {
		ev.ETA = time.Duration(float64(t.TotalBytes-t.BytesDownloaded) / e.speed * float64(time.Second))
	}
	return ev
}

func (s *Scheduler) emit(ev domain.TaskEvent) {
	s.obsMu.RLock()
	observers := s.observers
	s.obsMu.RUnlock()
	for _, o := range observers {
		o.OnTaskEvent(ev)
	}
}

func (s *Scheduler) persist(task *domain.DownloadTask) {
	if s.store == nil {
		return
	}
	s.mu.Lock()
	snapshot := *task
	s.mu.Unlock()
	if err := s.store.PutTask(&snapshot); err != nil {
		s.logger.Error("failed to persist task", "track_id", snapshot.TrackID, "error", err)
	}
}

func (s *Scheduler) wakeup() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) removePending(trackID string) {
	for i, id := range s.pending {
		if id == trackID {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

func newProgressLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(progressEventRate), 1)
}
