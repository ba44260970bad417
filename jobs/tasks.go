package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuthzCatalogSync upserts the permission catalog into the permissions table.
	TaskAuthzCatalogSync = "authz:catalog_sync"
	// TaskAuthSessionCleanup deletes expired user_sessions rows.
	TaskAuthSessionCleanup = "auth:session_cleanup"
)

// CatalogSyncPayload configures a catalog sync run.
type CatalogSyncPayload struct {
	// Reason is logged with the run ("cron", "startup", "admin").
	Reason string `json:"reason"`
}

// SessionCleanupPayload configures a session cleanup run.
type SessionCleanupPayload struct {
	// Grace keeps sessions expired for less than this long.
	Grace time.Duration `json:"grace"`
}

// NewCatalogSyncTask builds a catalog sync task.
func NewCatalogSyncTask(reason string) (*asynq.Task, error) {
	body, err := json.Marshal(CatalogSyncPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuthzCatalogSync, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// NewSessionCleanupTask builds a session cleanup task.
func NewSessionCleanupTask(grace time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(SessionCleanupPayload{Grace: grace})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuthSessionCleanup, body, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}
