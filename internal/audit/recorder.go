package audit

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
)

// Recorder builds pre-tagged events for the common authentication and
// authorization outcomes and fans them out to the configured sinks. Sink
// failures are logged and swallowed: auditing must never fail the guarded
// operation.
type Recorder struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRecorder constructs a Recorder over the given sinks.
func NewRecorder(logger *slog.Logger, sinks ...Sink) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{sinks: sinks, logger: logger}
}

// Record sends the event to every sink.
func (r *Recorder) Record(ctx context.Context, event Event) {
	for _, sink := range r.sinks {
		if err := sink.Write(ctx, event); err != nil {
			r.logger.Error("audit sink write failed",
				slog.String("event_id", event.ID.String()),
				slog.String("event_type", string(event.Type)),
				slog.Any("error", err))
		}
	}
}

// LoginAttempt records an authentication attempt. Failures carry a warning
// severity and a risk score of 30.
func (r *Recorder) LoginAttempt(ctx context.Context, principalID *uuid.UUID, ip string, success bool) {
	opts := []EventOption{
		WithIP(ip),
		WithTags(TagSOC2, TagPCIDSS),
	}
	if principalID != nil {
		opts = append(opts, WithPrincipal(*principalID))
	}
	if success {
		opts = append(opts, WithRiskScore(0))
	} else {
		opts = append(opts, WithSeverity(SeverityWarning), WithRiskScore(30), WithSuccess(false))
	}
	r.Record(ctx, NewEvent(EventLoginAttempt, opts...))
}

// TokenGenerated records issuance of an API token for a principal.
func (r *Recorder) TokenGenerated(ctx context.Context, principalID uuid.UUID, scopes []string, ip string) {
	event := NewEvent(EventTokenGenerated,
		WithPrincipal(principalID),
		WithIP(ip),
		WithTags(TagOAuth2),
		WithRiskScore(10),
	)
	for i, scope := range scopes {
		event.Metadata = appendMetadata(event.Metadata, "scope_"+strconv.Itoa(i), scope)
	}
	r.Record(ctx, event)
}

// AccessDenied records an authorization rejection for a resource.
func (r *Recorder) AccessDenied(ctx context.Context, principalID *uuid.UUID, resource, reason, ip string) {
	opts := []EventOption{
		WithSeverity(SeverityWarning),
		WithIP(ip),
		WithSuccess(false),
		WithTags(TagRBAC),
		WithRiskScore(25),
	}
	if principalID != nil {
		opts = append(opts, WithPrincipal(*principalID))
	}
	event := NewEvent(EventAccessDenied, opts...)
	event.ErrorMessage = reason
	event.Resource = resource
	r.Record(ctx, event)
}

// RateLimitExceeded records a throttled client.
func (r *Recorder) RateLimitExceeded(ctx context.Context, ip string, requestCount int) {
	r.Record(ctx, NewEvent(EventRateLimitExceeded,
		WithSeverity(SeverityWarning),
		WithIP(ip),
		WithMetadata("request_count", strconv.Itoa(requestCount)),
		WithTags(TagSecurity),
		WithRiskScore(40),
	))
}

// SuspiciousActivity records a fraud-detection signal.
func (r *Recorder) SuspiciousActivity(ctx context.Context, principalID *uuid.UUID, ip, activity string, details map[string]string) {
	opts := []EventOption{
		WithSeverity(SeverityCritical),
		WithIP(ip),
		WithTags(TagFraudDetection),
		WithRiskScore(80),
	}
	if principalID != nil {
		opts = append(opts, WithPrincipal(*principalID))
	}
	for key, value := range details {
		opts = append(opts, WithMetadata(key, value))
	}
	event := NewEvent(EventSuspiciousActivity, opts...)
	event.Action = activity
	r.Record(ctx, event)
}

// AccountLocked records a lockout with its duration and reason.
func (r *Recorder) AccountLocked(ctx context.Context, principalID uuid.UUID, ip, reason string) {
	r.Record(ctx, NewEvent(EventAccountLocked,
		WithSeverity(SeverityWarning),
		WithPrincipal(principalID),
		WithIP(ip),
		WithMetadata("reason", reason),
		WithTags(TagSOC2, TagSecurity),
		WithRiskScore(50),
	))
}

// PasswordChanged records a credential rotation.
func (r *Recorder) PasswordChanged(ctx context.Context, principalID uuid.UUID, ip string) {
	r.Record(ctx, NewEvent(EventPasswordChanged,
		WithPrincipal(principalID),
		WithIP(ip),
		WithTags(TagSOC2, TagPCIDSS),
		WithRiskScore(5),
	))
}

// DataAccess records access to regulated personal data.
func (r *Recorder) DataAccess(ctx context.Context, principalID uuid.UUID, dataType, purpose string) {
	event := NewEvent(EventDataAccess,
		WithPrincipal(principalID),
		WithMetadata("purpose", purpose),
		WithMetadata("data_type", dataType),
		WithTags(TagGDPR),
		WithRiskScore(5),
	)
	event.Resource = dataType
	event.Action = "data_access"
	r.Record(ctx, event)
}

func appendMetadata(metadata map[string]string, key, value string) map[string]string {
	if metadata == nil {
		metadata = make(map[string]string)
	}
	metadata[key] = value
	return metadata
}
