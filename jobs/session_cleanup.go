package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/dealerhub/dealerhub/internal/jobs"
)

// SessionCleaner removes expired session rows.
type SessionCleaner interface {
	CleanupSessions(ctx context.Context, grace time.Duration) (int64, error)
}

// SessionCleanupJob prunes user_sessions.
type SessionCleanupJob struct {
	Cleaner SessionCleaner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewSessionCleanupJob wires dependencies for the cleanup handler.
func NewSessionCleanupJob(cleaner SessionCleaner, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionCleanupJob {
	return &SessionCleanupJob{Cleaner: cleaner, Logger: logger, Metrics: metrics}
}

// Handle processes session cleanup tasks.
func (j *SessionCleanupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Cleaner == nil {
		return errors.New("session cleanup: handler not configured")
	}
	var payload SessionCleanupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskAuthSessionCleanup)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	removed, err := j.Cleaner.CleanupSessions(ctx, payload.Grace)
	if err != nil {
		logger.Error("session cleanup", slog.Any("error", err))
		return err
	}
	tracker.Items(removed)
	logger.Info("expired sessions removed", slog.Int64("sessions", removed))
	return nil
}
