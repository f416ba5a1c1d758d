package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditRetention purges audit events past the retention horizon.
	TaskAuditRetention = "audit:retention"
	// TaskSecurityScoreDecay ages suspicious-activity scores down over time.
	TaskSecurityScoreDecay = "security:score_decay"
)

// AuditRetentionPayload sets the retention horizon for a purge run.
type AuditRetentionPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewAuditRetentionTask constructs an audit purge task.
func NewAuditRetentionTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(AuditRetentionPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRetention, body, asynq.Queue(QueueDefault)), nil
}

// SecurityScoreDecayPayload carries scheduling metadata.
type SecurityScoreDecayPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewSecurityScoreDecayTask constructs a score-decay task.
func NewSecurityScoreDecayTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(SecurityScoreDecayPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSecurityScoreDecay, body, asynq.Queue(QueueDefault)), nil
}
