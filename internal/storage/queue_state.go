package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/tracktide/tracktide/internal/domain"
)

// QueueStore persists download tasks and batches to a JSON state file so an
// interrupted session can be recovered on restart.
type QueueStore struct {
	mu      sync.RWMutex
	tasks   map[string]*domain.DownloadTask
	batches map[string]*domain.BatchJob
	file    string
}

type queueState struct {
	Tasks   []*domain.DownloadTask `json:"tasks"`
	Batches []*domain.BatchJob     `json:"batches"`
}

// NewQueueStore creates a QueueStore and loads state from the file if it
// exists.
func NewQueueStore(filePath string) (*QueueStore, error) {
	store := &QueueStore{
		tasks:   make(map[string]*domain.DownloadTask),
		batches: make(map[string]*domain.BatchJob),
		file:    filepath.Clean(filePath),
	}

	if err := store.restore(); err != nil {
		return nil, fmt.Errorf("failed to load state from file: %w", err)
	}

	slog.Info("queue store initialized", "file_path", store.file, "tasks_count", len(store.tasks))
	return store, nil
}

func (s *QueueStore) restore() error {
	data, err := os.ReadFile(s.file)
	if os.IsNotExist(err) {
		slog.Info("state file does not exist, starting with empty state", "file_path", s.file)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read state file: %w", err)
	}
	if len(data) == 0 {
		slog.Warn("state file is empty")
		return nil
	}

	var state queueState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to unmarshal state file: %w", err)
	}

	for _, task := range state.Tasks {
		s.tasks[task.TrackID] = task
	}
	for _, batch := range state.Batches {
		s.batches[batch.ID] = batch
	}

	slog.Info("state loaded from file", "tasks_count", len(state.Tasks), "batches_count", len(state.Batches))
	return nil
}

// ResetInterrupted returns tasks left in Downloading by a previous session to
// Queued. Their partial temp files cannot be trusted, so the whole attempt
// re-runs.
func (s *QueueStore) ResetInterrupted() []*domain.DownloadTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reset []*domain.DownloadTask
	for _, task := range s.tasks {
		if task.Status == domain.StatusDownloading {
			if err := task.Requeue(); err != nil {
				slog.Warn("failed to reset interrupted task", "track_id", task.TrackID, "error", err)
				continue
			}
			reset = append(reset, task)
			slog.Info("reset interrupted download", "track_id", task.TrackID)
		}
	}
	return reset
}

// Tasks returns a copy of every stored task.
func (s *QueueStore) Tasks() []*domain.DownloadTask {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.DownloadTask, 0, len(s.tasks))
	for _, task := range s.tasks {
		copied := *task
		out = append(out, &copied)
	}
	return out
}

// PutTask stores a snapshot of the task and persists the state file.
func (s *QueueStore) PutTask(task *domain.DownloadTask) error {
	s.mu.Lock()
	copied := *task
	s.tasks[task.TrackID] = &copied
	s.mu.Unlock()
	return s.persist()
}

// DeleteTask removes a task and persists the state file.
func (s *QueueStore) DeleteTask(trackID string) error {
	s.mu.Lock()
	delete(s.tasks, trackID)
	s.mu.Unlock()
	return s.persist()
}

// PutBatch stores a snapshot of the batch and persists the state file.
func (s *QueueStore) PutBatch(batch *domain.BatchJob) error {
	s.mu.Lock()
	copied := *batch
	s.batches[batch.ID] = &copied
	s.mu.Unlock()
	return s.persist()
}

// Batches returns a copy of every stored batch.
func (s *QueueStore) Batches() []*domain.BatchJob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.BatchJob, 0, len(s.batches))
	for _, batch := range s.batches {
		copied := *batch
		out = append(out, &copied)
	}
	return out
}

func (s *QueueStore) persist() error {
	s.mu.RLock()
	state := queueState{
		Tasks:   make([]*domain.DownloadTask, 0, len(s.tasks)),
		Batches: make([]*domain.BatchJob, 0, len(s.batches)),
	}
	for _, task := range s.tasks {
		state.Tasks = append(state.Tasks, task)
	}
	for _, batch := range s.batches {
		state.Batches = append(state.Batches, batch)
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp := s.file + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, s.file); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
