package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/openbank-platform/openbank/internal/jobs"
)

// SecurityScoreDecayTask ages suspicious-activity scores down by one
// point per run so accounts that stop misbehaving drift back to a clean
// baseline instead of staying flagged forever.
type SecurityScoreDecayTask struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewSecurityScoreDecayHandler builds the decay handler.
func NewSecurityScoreDecayHandler(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *SecurityScoreDecayTask {
	return &SecurityScoreDecayTask{pool: pool, logger: logger, metrics: metrics}
}

// Handle processes TaskSecurityScoreDecay tasks.
func (t *SecurityScoreDecayTask) Handle(ctx context.Context, task *asynq.Task) error {
	tracker := t.metrics.Track("security_score_decay")
	var payload SecurityScoreDecayPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tag, err := t.pool.Exec(ctx, `
		UPDATE account_security
		SET suspicious_activity_score = GREATEST(suspicious_activity_score - 1, 0),
		    updated_at = NOW()
		WHERE suspicious_activity_score > 0
	`)
	if err != nil {
		return tracker.End(err)
	}
	t.logger.Info("suspicious score decay",
		slog.Int64("accounts", tag.RowsAffected()),
	)
	return tracker.End(nil)
}
