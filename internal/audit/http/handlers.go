// Package audithttp exposes the compliance report over HTTP.
package audithttp

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openbank-platform/openbank/internal/audit"
	"github.com/openbank-platform/openbank/internal/platform/httpx"
)

const (
	defaultDateRange = 7 * 24 * time.Hour
	maxDateRange     = 90 * 24 * time.Hour
)

// Reporter serves compliance report queries.
type Reporter interface {
	ComplianceReport(ctx context.Context, filters audit.ReportFilters) (audit.Report, error)
}

// Handler serves audit report requests.
type Handler struct {
	logger   *slog.Logger
	reporter Reporter
	now      func() time.Time
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, reporter Reporter) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, reporter: reporter, now: time.Now}
}

type reportResponse struct {
	Events []audit.Event `json:"events"`
	Page   int           `json:"page"`
	Next   int           `json:"next_page,omitempty"`
	Prev   int           `json:"prev_page,omitempty"`
}

// handleComplianceReport serves GET /audit/report with from/to/tag/
// principal_id/page/page_size query parameters.
func (h *Handler) handleComplianceReport(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r, h.now())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	report, err := h.reporter.ComplianceReport(r.Context(), filters)
	if err != nil {
		h.logger.Error("compliance report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, reportResponse{
		Events: report.Events,
		Page:   report.Paging.Page,
		Next:   report.Paging.NextPage,
		Prev:   report.Paging.PrevPage,
	})
}

func parseFilters(r *http.Request, now time.Time) (audit.ReportFilters, error) {
	q := r.URL.Query()
	filters := audit.ReportFilters{
		From:          now.Add(-defaultDateRange),
		To:            now,
		ComplianceTag: strings.TrimSpace(q.Get("tag")),
	}
	if raw := q.Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.ReportFilters{}, err
		}
		filters.From = from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.ReportFilters{}, err
		}
		filters.To = to
	}
	if filters.To.Sub(filters.From) > maxDateRange {
		filters.From = filters.To.Add(-maxDateRange)
	}
	if raw := q.Get("principal_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return audit.ReportFilters{}, err
		}
		filters.PrincipalID = &id
	}
	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			return audit.ReportFilters{}, err
		}
		filters.Page = page
	}
	if raw := q.Get("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			return audit.ReportFilters{}, err
		}
		filters.PageSize = size
	}
	return filters, nil
}
