package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/openbank-platform/openbank/internal/jobs"
)

// RetentionStore deletes audit events older than a cutoff.
type RetentionStore interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditRetentionTask deletes audit events older than the configured
// retention horizon.
type AuditRetentionTask struct {
	sink      RetentionStore
	retention time.Duration
	logger    *slog.Logger
	metrics   *jobmetrics.Metrics
}

// NewAuditRetentionHandler builds the purge handler.
func NewAuditRetentionHandler(sink RetentionStore, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditRetentionTask {
	return &AuditRetentionTask{sink: sink, retention: retention, logger: logger, metrics: metrics}
}

// Handle processes TaskAuditRetention tasks.
func (t *AuditRetentionTask) Handle(ctx context.Context, task *asynq.Task) error {
	tracker := t.metrics.Track("audit_retention")
	var payload AuditRetentionPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	retention := payload.Retention
	if retention <= 0 {
		retention = t.retention
	}
	cutoff := time.Now().UTC().Add(-retention)
	deleted, err := t.sink.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return tracker.End(err)
	}
	t.metrics.AddPurged(deleted)
	t.logger.Info("audit retention purge",
		slog.Time("cutoff", cutoff),
		slog.Int64("deleted", deleted),
	)
	return tracker.End(nil)
}
