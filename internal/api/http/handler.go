package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tracktide/tracktide/internal/domain"
	errpkg "github.com/tracktide/tracktide/internal/errors"
)

// EngineI defines the interface for the download engine the handlers drive.
type EngineI interface {
	EnqueueTrack(ctx context.Context, req *domain.EnqueueTrackRequest) (domain.DownloadTask, error)
	EnqueueBatch(ctx context.Context, req *domain.EnqueueBatchRequest) (domain.BatchJob, error)
	Task(trackID string) (domain.DownloadTask, error)
	Tasks() []domain.DownloadTask
	Batch(batchID string) (domain.BatchJob, error)
	RemoveTask(trackID string) error
	CancelBatch(batchID string) error
	SetConcurrency(limit int) error
}

// DownloadHandler handles HTTP requests for downloads.
type DownloadHandler struct {
	engine    EngineI
	validator *validator.Validate
	logger    *slog.Logger
}

// NewDownloadHandler creates a new DownloadHandler with the provided engine and logger.
func NewDownloadHandler(engine EngineI, logger *slog.Logger) *DownloadHandler {
	return &DownloadHandler{
		engine:    engine,
		validator: validator.New(),
		logger:    logger,
	}
}

// EnqueueTrack handles POST /tracks.
func (h *DownloadHandler) EnqueueTrack(w http.ResponseWriter, r *http.Request) {
	var req domain.EnqueueTrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("validation failed", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.engine.EnqueueTrack(r.Context(), &req)
	if err != nil {
		if errors.Is(err, errpkg.ErrTaskExists) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("failed to enqueue track", "track_id", req.TrackID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, task)
}

// EnqueueBatch handles POST /batches.
func (h *DownloadHandler) EnqueueBatch(w http.ResponseWriter, r *http.Request) {
	var req domain.EnqueueBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("validation failed", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.engine.EnqueueBatch(r.Context(), &req)
	if err != nil {
		if errors.Is(err, errpkg.ErrTaskExists) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("failed to enqueue batch", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, job)
}

// GetTask handles GET /tasks/{trackID}.
func (h *DownloadHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	trackID := chi.URLParam(r, "trackID")

	task, err := h.engine.Task(trackID)
	if err != nil {
		if errors.Is(err, errpkg.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		h.logger.Error("failed to get task", "track_id", trackID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, task)
}

// ListTasks handles GET /tasks.
func (h *DownloadHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": h.engine.Tasks(),
	})
}

// GetBatch handles GET /batches/{batchID}.
func (h *DownloadHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")

	job, err := h.engine.Batch(batchID)
	if err != nil {
		if errors.Is(err, errpkg.ErrBatchNotFound) {
			writeError(w, http.StatusNotFound, "batch not found")
			return
		}
		h.logger.Error("failed to get batch", "batch_id", batchID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// RemoveTask handles DELETE /tasks/{trackID}: cancel when the task is still
// running or queued, clear when it is terminal.
func (h *DownloadHandler) RemoveTask(w http.ResponseWriter, r *http.Request) {
	trackID := chi.URLParam(r, "trackID")

	if err := h.engine.RemoveTask(trackID); err != nil {
		if errors.Is(err, errpkg.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		h.logger.Error("failed to remove task", "track_id", trackID, "error", err)
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CancelBatch handles DELETE /batches/{batchID}.
func (h *DownloadHandler) CancelBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")

	if err := h.engine.CancelBatch(batchID); err != nil {
		if errors.Is(err, errpkg.ErrBatchNotFound) {
			writeError(w, http.StatusNotFound, "batch not found")
			return
		}
		h.logger.Error("failed to cancel batch", "batch_id", batchID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetConcurrency handles PUT /settings/concurrency.
func (h *DownloadHandler) SetConcurrency(w http.ResponseWriter, r *http.Request) {
	var req domain.ConcurrencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.SetConcurrency(req.Limit); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"limit": req.Limit})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
