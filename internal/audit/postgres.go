package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink persists events into the audit_events table and serves the
// compliance report queries over it.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink constructs a PostgresSink.
func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

// Write implements Sink.
func (s *PostgresSink) Write(ctx context.Context, event Event) error {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("audit: encode metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_events
			(id, event_type, severity, occurred_at, principal_id, ip_address,
			 success, error_message, resource, action, metadata, compliance_tags, risk_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		event.ID, string(event.Type), string(event.Severity), event.Timestamp,
		event.PrincipalID, event.IPAddress, event.Success, event.ErrorMessage,
		event.Resource, event.Action, metadata, event.ComplianceTags, event.RiskScore,
	)
	if err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}

// ReportFilters narrows a compliance report.
type ReportFilters struct {
	From          time.Time
	To            time.Time
	ComplianceTag string
	PrincipalID   *uuid.UUID
	Page          int
	PageSize      int
}

// PagingInfo describes the report window returned.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// Report wraps a page of audit events.
type Report struct {
	Events []Event
	Paging PagingInfo
}

// ComplianceReport returns events in [From, To] matching the optional tag
// and principal filters, newest first, with paging.
func (s *PostgresSink) ComplianceReport(ctx context.Context, filters ReportFilters) (Report, error) {
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := s.pool.Query(ctx, `
		SELECT id, event_type, severity, occurred_at, principal_id, ip_address,
		       success, error_message, resource, action, metadata, compliance_tags, risk_score
		FROM audit_events
		WHERE occurred_at >= $1
		  AND occurred_at <= $2
		  AND ($3 = '' OR $3 = ANY(compliance_tags))
		  AND ($4::uuid IS NULL OR principal_id = $4)
		ORDER BY occurred_at DESC
		OFFSET $5 LIMIT $6`,
		filters.From, filters.To, filters.ComplianceTag, filters.PrincipalID,
		offset, pageSize+1,
	)
	if err != nil {
		return Report{}, fmt.Errorf("audit: compliance report: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			event     Event
			eventType string
			severity  string
			metadata  []byte
		)
		if err := rows.Scan(&event.ID, &eventType, &severity, &event.Timestamp,
			&event.PrincipalID, &event.IPAddress, &event.Success, &event.ErrorMessage,
			&event.Resource, &event.Action, &metadata, &event.ComplianceTags,
			&event.RiskScore); err != nil {
			return Report{}, fmt.Errorf("audit: scan event: %w", err)
		}
		event.Type = EventType(eventType)
		event.Severity = Severity(severity)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
				return Report{}, fmt.Errorf("audit: decode metadata: %w", err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return Report{}, fmt.Errorf("audit: compliance report rows: %w", err)
	}

	hasNext := len(events) > pageSize
	if hasNext {
		events = events[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Report{Events: events, Paging: paging}, nil
}

// DeleteOlderThan removes events past the retention horizon and reports
// how many rows were dropped.
func (s *PostgresSink) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM audit_events WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit: retention delete: %w", err)
	}
	return tag.RowsAffected(), nil
}
