package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/dealerhub/dealerhub/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// CatalogSyncer persists the in-code permission catalog.
type CatalogSyncer interface {
	SyncCatalog(ctx context.Context) (int, error)
}

// Invalidator announces stored authorization changes.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// CatalogSyncJob keeps the permissions table in line with the catalog.
type CatalogSyncJob struct {
	Syncer      CatalogSyncer
	Invalidator Invalidator
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
}

// NewCatalogSyncJob wires dependencies for the catalog sync handler.
func NewCatalogSyncJob(syncer CatalogSyncer, invalidator Invalidator, logger *slog.Logger, metrics *jobmetrics.Metrics) *CatalogSyncJob {
	return &CatalogSyncJob{Syncer: syncer, Invalidator: invalidator, Logger: logger, Metrics: metrics}
}

// Handle processes catalog sync tasks.
func (j *CatalogSyncJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Syncer == nil {
		return errors.New("catalog sync: handler not configured")
	}
	var payload CatalogSyncPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.metrics().Track(TaskAuthzCatalogSync)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger().With(slog.String("reason", payload.Reason))
	synced, err := j.Syncer.SyncCatalog(ctx)
	if err != nil {
		logger.Error("catalog sync", slog.Any("error", err))
		return err
	}
	tracker.Items(int64(synced))
	if j.Invalidator != nil {
		if err := j.Invalidator.Bump(ctx); err != nil {
			logger.Warn("authz cache bump", slog.Any("error", err))
		}
	}
	logger.Info("catalog synced", slog.Int("permissions", synced))
	return nil
}

func (j *CatalogSyncJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *CatalogSyncJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
