package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracktide/tracktide/internal/domain"
	errpkg "github.com/tracktide/tracktide/internal/errors"
)

// mockEngine is a scriptable EngineI for handler tests.
type mockEngine struct {
	enqueueTrack func(req *domain.EnqueueTrackRequest) (domain.DownloadTask, error)
	enqueueBatch func(req *domain.EnqueueBatchRequest) (domain.BatchJob, error)
	task         func(trackID string) (domain.DownloadTask, error)
	tasks        func() []domain.DownloadTask
	batch        func(batchID string) (domain.BatchJob, error)
	removeTask   func(trackID string) error
	cancelBatch  func(batchID string) error
	setLimit     func(limit int) error
}

func (m *mockEngine) EnqueueTrack(_ context.Context, req *domain.EnqueueTrackRequest) (domain.DownloadTask, error) {
	return m.enqueueTrack(req)
}

func (m *mockEngine) EnqueueBatch(_ context.Context, req *domain.EnqueueBatchRequest) (domain.BatchJob, error) {
	return m.enqueueBatch(req)
}

func (m *mockEngine) Task(trackID string) (domain.DownloadTask, error) { return m.task(trackID) }

func (m *mockEngine) Tasks() []domain.DownloadTask {
	if m.tasks == nil {
		return nil
	}
	return m.tasks()
}

func (m *mockEngine) Batch(batchID string) (domain.BatchJob, error) { return m.batch(batchID) }
func (m *mockEngine) RemoveTask(trackID string) error               { return m.removeTask(trackID) }
func (m *mockEngine) CancelBatch(batchID string) error              { return m.cancelBatch(batchID) }
func (m *mockEngine) SetConcurrency(limit int) error                { return m.setLimit(limit) }

func newTestServer(t *testing.T, engine *mockEngine) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(NewRouter(engine, logger))
	t.Cleanup(srv.Close)
	return srv
}

func doRequest(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestEnqueueTrack(t *testing.T) {
	engine := &mockEngine{
		enqueueTrack: func(req *domain.EnqueueTrackRequest) (domain.DownloadTask, error) {
			assert.Equal(t, "3135556", req.TrackID)
			assert.Equal(t, "lossless", req.Quality)
			return *domain.NewDownloadTask(req.TrackID, req.Quality, ""), nil
		},
	}
	srv := newTestServer(t, engine)

	resp := doRequest(t, http.MethodPost, srv.URL+"/tracks", `{"track_id":"3135556","quality":"lossless"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var task domain.DownloadTask
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&task))
	assert.Equal(t, "3135556", task.TrackID)
	assert.Equal(t, domain.StatusQueued, task.Status)
}

func TestEnqueueTrack_Validation(t *testing.T) {
	engine := &mockEngine{
		enqueueTrack: func(req *domain.EnqueueTrackRequest) (domain.DownloadTask, error) {
			t.Fatal("engine must not be called for invalid requests")
			return domain.DownloadTask{}, nil
		},
	}
	srv := newTestServer(t, engine)

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `{{{`},
		{name: "missing track id", body: `{"quality":"standard"}`},
		{name: "bad quality", body: `{"track_id":"1","quality":"ultra"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, http.MethodPost, srv.URL+"/tracks", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestEnqueueTrack_Conflict(t *testing.T) {
	engine := &mockEngine{
		enqueueTrack: func(req *domain.EnqueueTrackRequest) (domain.DownloadTask, error) {
			return domain.DownloadTask{}, errpkg.ErrTaskExists
		},
	}
	srv := newTestServer(t, engine)

	resp := doRequest(t, http.MethodPost, srv.URL+"/tracks", `{"track_id":"1"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestEnqueueBatch(t *testing.T) {
	engine := &mockEngine{
		enqueueBatch: func(req *domain.EnqueueBatchRequest) (domain.BatchJob, error) {
			assert.Equal(t, domain.BatchPlaylist, req.Type)
			assert.Len(t, req.TrackIDs, 3)
			return domain.BatchJob{ID: "b1", Type: req.Type, Total: len(req.TrackIDs)}, nil
		},
	}
	srv := newTestServer(t, engine)

	resp := doRequest(t, http.MethodPost, srv.URL+"/batches",
		`{"type":"playlist","title":"Mix","track_ids":["1","2","3"]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var job domain.BatchJob
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&job))
	assert.Equal(t, "b1", job.ID)
	assert.Equal(t, 3, job.Total)
}

func TestEnqueueBatch_Validation(t *testing.T) {
	engine := &mockEngine{
		enqueueBatch: func(req *domain.EnqueueBatchRequest) (domain.BatchJob, error) {
			t.Fatal("engine must not be called for invalid requests")
			return domain.BatchJob{}, nil
		},
	}
	srv := newTestServer(t, engine)

	tests := []struct {
		name string
		body string
	}{
		{name: "missing type", body: `{"track_ids":["1"]}`},
		{name: "bad type", body: `{"type":"mixtape","track_ids":["1"]}`},
		{name: "empty track list", body: `{"type":"album","track_ids":[]}`},
		{name: "empty track id", body: `{"type":"album","track_ids":["1",""]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, http.MethodPost, srv.URL+"/batches", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestGetTask(t *testing.T) {
	engine := &mockEngine{
		task: func(trackID string) (domain.DownloadTask, error) {
			if trackID != "42" {
				return domain.DownloadTask{}, errpkg.ErrTaskNotFound
			}
			task := domain.NewDownloadTask("42", "standard", "")
			return *task, nil
		},
	}
	srv := newTestServer(t, engine)

	resp := doRequest(t, http.MethodGet, srv.URL+"/tasks/42", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var task domain.DownloadTask
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&task))
	assert.Equal(t, "42", task.TrackID)

	resp = doRequest(t, http.MethodGet, srv.URL+"/tasks/777", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListTasks(t *testing.T) {
	engine := &mockEngine{
		tasks: func() []domain.DownloadTask {
			return []domain.DownloadTask{
				*domain.NewDownloadTask("1", "standard", ""),
				*domain.NewDownloadTask("2", "lossless", ""),
			}
		},
	}
	srv := newTestServer(t, engine)

	resp := doRequest(t, http.MethodGet, srv.URL+"/tasks", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Tasks []domain.DownloadTask `json:"tasks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Tasks, 2)
}

func TestGetBatch(t *testing.T) {
	engine := &mockEngine{
		batch: func(batchID string) (domain.BatchJob, error) {
			if batchID != "b1" {
				return domain.BatchJob{}, errpkg.ErrBatchNotFound
			}
			return domain.BatchJob{ID: "b1", Total: 4, CompletedCount: 2}, nil
		},
	}
	srv := newTestServer(t, engine)

	resp := doRequest(t, http.MethodGet, srv.URL+"/batches/b1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var job domain.BatchJob
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&job))
	assert.Equal(t, 2, job.CompletedCount)

	resp = doRequest(t, http.MethodGet, srv.URL+"/batches/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRemoveTask(t *testing.T) {
	var removed string
	engine := &mockEngine{
		removeTask: func(trackID string) error {
			removed = trackID
			return nil
		},
	}
	srv := newTestServer(t, engine)

	resp := doRequest(t, http.MethodDelete, srv.URL+"/tasks/42", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "42", removed)
}

func TestRemoveTask_NotFound(t *testing.T) {
	engine := &mockEngine{
		removeTask: func(trackID string) error { return errpkg.ErrTaskNotFound },
	}
	srv := newTestServer(t, engine)

	resp := doRequest(t, http.MethodDelete, srv.URL+"/tasks/42", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelBatch(t *testing.T) {
	var cancelled string
	engine := &mockEngine{
		cancelBatch: func(batchID string) error {
			cancelled = batchID
			return nil
		},
	}
	srv := newTestServer(t, engine)

	resp := doRequest(t, http.MethodDelete, srv.URL+"/batches/b1", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "b1", cancelled)

	engine.cancelBatch = func(batchID string) error { return errpkg.ErrBatchNotFound }
	resp = doRequest(t, http.MethodDelete, srv.URL+"/batches/b2", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSetConcurrency(t *testing.T) {
	var limit int
	engine := &mockEngine{
		setLimit: func(n int) error {
			limit = n
			return nil
		},
	}
	srv := newTestServer(t, engine)

	resp := doRequest(t, http.MethodPut, srv.URL+"/settings/concurrency", `{"limit":5}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, limit)

	// Out of range is rejected by validation before reaching the engine.
	engine.setLimit = func(n int) error {
		t.Fatal("engine must not be called for invalid limits")
		return nil
	}
	resp = doRequest(t, http.MethodPut, srv.URL+"/settings/concurrency", `{"limit":0}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = doRequest(t, http.MethodPut, srv.URL+"/settings/concurrency", `{"limit":11}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &mockEngine{})

	resp := doRequest(t, http.MethodGet, srv.URL+"/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}
