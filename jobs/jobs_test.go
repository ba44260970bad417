package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/dealerhub/dealerhub/internal/jobs"
)

type stubSyncer struct {
	synced int
	err    error
	calls  int
}

func (s *stubSyncer) SyncCatalog(context.Context) (int, error) {
	s.calls++
	return s.synced, s.err
}

type stubBumper struct{ n int }

func (b *stubBumper) Bump(context.Context) error { b.n++; return nil }

type stubCleaner struct {
	grace   time.Duration
	removed int64
}

func (c *stubCleaner) CleanupSessions(_ context.Context, grace time.Duration) (int64, error) {
	c.grace = grace
	return c.removed, nil
}

func TestCatalogSyncTaskPayload(t *testing.T) {
	task, err := NewCatalogSyncTask("cron")
	require.NoError(t, err)
	assert.Equal(t, TaskAuthzCatalogSync, task.Type())
	var payload CatalogSyncPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "cron", payload.Reason)
}

func TestCatalogSyncJobBumpsAfterSync(t *testing.T) {
	syncer := &stubSyncer{synced: 21}
	bumper := &stubBumper{}
	job := NewCatalogSyncJob(syncer, bumper, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewCatalogSyncTask("startup")
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 1, syncer.calls)
	assert.Equal(t, 1, bumper.n)
}

func TestCatalogSyncJobFailureSkipsBump(t *testing.T) {
	boom := errors.New("db down")
	syncer := &stubSyncer{err: boom}
	bumper := &stubBumper{}
	job := NewCatalogSyncJob(syncer, bumper, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	err := job.Handle(context.Background(), asynq.NewTask(TaskAuthzCatalogSync, nil))
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, bumper.n)
}

func TestCatalogSyncJobRejectsBadPayload(t *testing.T) {
	job := NewCatalogSyncJob(&stubSyncer{}, nil, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskAuthzCatalogSync, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestSessionCleanupJobPassesGrace(t *testing.T) {
	cleaner := &stubCleaner{removed: 4}
	job := NewSessionCleanupJob(cleaner, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewSessionCleanupTask(10 * time.Minute)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 10*time.Minute, cleaner.grace)
}

func TestServeMuxRoutesTasks(t *testing.T) {
	syncer := &stubSyncer{synced: 1}
	cleaner := &stubCleaner{}
	mux := newServeMux([]TaskHandler{
		{Type: TaskAuthzCatalogSync, Handler: NewCatalogSyncJob(syncer, nil, nil, nil).Handle},
		{Type: TaskAuthSessionCleanup, Handler: NewSessionCleanupJob(cleaner, nil, nil).Handle},
		{Type: "", Handler: nil},
	})
	require.NoError(t, mux.ProcessTask(context.Background(), asynq.NewTask(TaskAuthzCatalogSync, nil)))
	assert.Equal(t, 1, syncer.calls)
	assert.Error(t, mux.ProcessTask(context.Background(), asynq.NewTask("unknown:task", nil)))
}

func TestJobsHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(nil, nil).MountRoutes)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0}`, rec.Body.String())
}
