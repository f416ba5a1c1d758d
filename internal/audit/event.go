// Package audit defines the structured events the access-control core
// emits for compliance reporting, and the sinks that receive them.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies an audit event.
type EventType string

// Authentication, authorization and security event types.
const (
	EventLoginAttempt       EventType = "login_attempt"
	EventLoginSuccess       EventType = "login_success"
	EventLoginFailure       EventType = "login_failure"
	EventTokenGenerated     EventType = "token_generated"
	EventAccessGranted      EventType = "access_granted"
	EventAccessDenied       EventType = "access_denied"
	EventRateLimitExceeded  EventType = "rate_limit_exceeded"
	EventSuspiciousActivity EventType = "suspicious_activity"
	EventAccountLocked      EventType = "account_locked"
	EventAccountUnlocked    EventType = "account_unlocked"
	EventPasswordChanged    EventType = "password_changed"
	EventDataAccess         EventType = "data_access"
)

// Severity grades an audit event.
type Severity string

// Severity levels.
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Compliance tags attached to events for regulatory reporting.
const (
	TagSOC2           = "SOC2"
	TagPCIDSS         = "PCI_DSS"
	TagOAuth2         = "OAuth2"
	TagRBAC           = "RBAC"
	TagSecurity       = "SECURITY"
	TagFraudDetection = "FRAUD_DETECTION"
	TagGDPR           = "GDPR"
)

// Event is a single audit record. Events are immutable once constructed.
type Event struct {
	ID             uuid.UUID         `json:"id"`
	Type           EventType         `json:"event_type"`
	Severity       Severity          `json:"severity"`
	Timestamp      time.Time         `json:"timestamp"`
	PrincipalID    *uuid.UUID        `json:"principal_id,omitempty"`
	IPAddress      string            `json:"ip_address"`
	Success        bool              `json:"success"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	Resource       string            `json:"resource,omitempty"`
	Action         string            `json:"action,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	ComplianceTags []string          `json:"compliance_tags,omitempty"`
	RiskScore      int               `json:"risk_score"`
}

// EventOption customises an Event at construction time.
type EventOption func(*Event)

// WithSeverity sets the severity grade.
func WithSeverity(severity Severity) EventOption {
	return func(e *Event) { e.Severity = severity }
}

// WithPrincipal records the acting principal.
func WithPrincipal(id uuid.UUID) EventOption {
	return func(e *Event) { e.PrincipalID = &id }
}

// WithIP records the client address.
func WithIP(ip string) EventOption {
	return func(e *Event) { e.IPAddress = ip }
}

// WithSuccess marks the event outcome.
func WithSuccess(success bool) EventOption {
	return func(e *Event) { e.Success = success }
}

// WithFailure marks the event failed with a reason and raises severity to
// at least error.
func WithFailure(reason string) EventOption {
	return func(e *Event) {
		e.Success = false
		e.ErrorMessage = reason
		if e.Severity == SeverityInfo || e.Severity == SeverityWarning {
			e.Severity = SeverityError
		}
	}
}

// WithResource records the resource and action under access.
func WithResource(resource, action string) EventOption {
	return func(e *Event) {
		e.Resource = resource
		e.Action = action
	}
}

// WithMetadata attaches a metadata entry.
func WithMetadata(key, value string) EventOption {
	return func(e *Event) {
		if e.Metadata == nil {
			e.Metadata = make(map[string]string)
		}
		e.Metadata[key] = value
	}
}

// WithTags appends compliance tags.
func WithTags(tags ...string) EventOption {
	return func(e *Event) { e.ComplianceTags = append(e.ComplianceTags, tags...) }
}

// WithRiskScore sets the risk score, clamped to 0..100.
func WithRiskScore(score int) EventOption {
	return func(e *Event) {
		if score < 0 {
			score = 0
		}
		if score > 100 {
			score = 100
		}
		e.RiskScore = score
	}
}

// NewEvent constructs an Event of the given type. Defaults: now, info
// severity, success.
func NewEvent(eventType EventType, opts ...EventOption) Event {
	e := Event{
		ID:        uuid.New(),
		Type:      eventType,
		Severity:  SeverityInfo,
		Timestamp: time.Now().UTC(),
		Success:   true,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}
