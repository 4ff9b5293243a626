// Package handler exposes the audit trail query API over HTTP.
package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"audittrail/internal/audit"
	"audittrail/internal/audit/consumer"
	"audittrail/internal/audit/service"
	"audittrail/internal/audit/store"
	"audittrail/pkg/platform/httputil"
	"audittrail/pkg/platform/sentinel"
)

// Service defines the audit operations the HTTP layer needs.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*audit.Entry, error)
	Search(ctx context.Context, f store.Filter, page, limit int) (*service.SearchResult, error)
	ResourceTrail(ctx context.Context, resourceType, resourceID string, desc bool) ([]*audit.Entry, error)
	CorrelationTrail(ctx context.Context, correlationID string) ([]*audit.Entry, error)
	Export(ctx context.Context, f store.Filter, format string, w io.Writer) (int, error)
	Stats(ctx context.Context) (*store.Stats, error)
}

// StateFunc reports the consumption pipeline state for the health endpoint.
type StateFunc func() consumer.State

// Handler wires audit endpoints to the audit service.
type Handler struct {
	service Service
	state   StateFunc
	logger  *slog.Logger
}

// New constructs an audit handler with its dependencies.
func New(svc Service, state StateFunc, logger *slog.Logger) *Handler {
	return &Handler{
		service: svc,
		state:   state,
		logger:  logger,
	}
}

// Register mounts audit endpoints on the router. Static segments are
// registered alongside the {id} parameter; chi matches them first.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/audit", h.HandleSearch)
	r.Get("/api/audit/export", h.HandleExport)
	r.Get("/api/audit/stats", h.HandleStats)
	r.Get("/api/audit/resource/{type}/{id}", h.HandleResourceTrail)
	r.Get("/api/audit/correlation/{id}", h.HandleCorrelationTrail)
	r.Get("/api/audit/{id}", h.HandleGet)
	r.Get("/healthz", h.HandleHealth)
}

// HandleGet handles GET /api/audit/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, fmt.Errorf("%w: malformed entry id", sentinel.ErrInvalidInput))
		return
	}

	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entry)
}

// HandleSearch handles GET /api/audit.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q, err := parseSearchQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.Search(r.Context(), q.filter, q.page, q.limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "audit search failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleResourceTrail handles GET /api/audit/resource/{type}/{id}.
func (h *Handler) HandleResourceTrail(w http.ResponseWriter, r *http.Request) {
	desc := r.URL.Query().Get("order") == "desc"

	trail, err := h.service.ResourceTrail(r.Context(),
		chi.URLParam(r, "type"), chi.URLParam(r, "id"), desc)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, trailResponse(trail))
}

// HandleCorrelationTrail handles GET /api/audit/correlation/{id}.
func (h *Handler) HandleCorrelationTrail(w http.ResponseWriter, r *http.Request) {
	trail, err := h.service.CorrelationTrail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, trailResponse(trail))
}

// HandleExport handles GET /api/audit/export. The export is materialized
// before any byte is written so a storage failure yields a clean error
// response instead of a truncated file.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	q, err := parseSearchQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = service.FormatCSV
	}

	var buf bytes.Buffer
	count, err := h.service.Export(r.Context(), q.filter, format, &buf)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "audit export failed", "error", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(r.Context(), "audit export served",
		"format", format,
		"entries", count,
	)

	filename := fmt.Sprintf("audit-export-%s.%s", time.Now().UTC().Format("2006-01-02"), format)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if format == service.FormatCSV {
		w.Header().Set("Content-Type", "text/csv")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, &buf)
}

// HandleStats handles GET /api/audit/stats.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "audit stats failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

// HandleHealth handles GET /healthz. Healthy means the broker connection is
// live; the counters ride along for operators.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	state := h.state()
	status := http.StatusOK
	if !state.Connected {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, healthResponse{
		Status: map[bool]string{true: "ok", false: "degraded"}[state.Connected],
		State:  state,
	})
}

type healthResponse struct {
	Status string         `json:"status"`
	State  consumer.State `json:"consumer"`
}

// trailResponse wraps a trail so clients get a count and never a JSON null.
func trailResponse(entries []*audit.Entry) map[string]any {
	if entries == nil {
		entries = []*audit.Entry{}
	}
	return map[string]any{
		"entries": entries,
		"count":   len(entries),
	}
}
