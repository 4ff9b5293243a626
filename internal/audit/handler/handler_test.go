package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"audittrail/internal/audit"
	"audittrail/internal/audit/consumer"
	"audittrail/internal/audit/dedup"
	"audittrail/internal/audit/service"
	"audittrail/internal/audit/store/memory"
)

type AuditHandlerSuite struct {
	suite.Suite
	ctx     context.Context
	store   *memory.Store
	svc     *service.Service
	router  chi.Router
	state   consumer.State
	entries []*audit.Entry
}

func TestAuditHandlerSuite(t *testing.T) {
	suite.Run(t, new(AuditHandlerSuite))
}

func (s *AuditHandlerSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.svc = service.New(s.store, dedup.Noop{}, logger, 365*24*time.Hour,
		service.Limits{DefaultLimit: 100, MaxLimit: 1000, ExportMax: 10000})
	s.state = consumer.State{Connected: true, Processed: 3}

	h := New(s.svc, func() consumer.State { return s.state }, logger)
	s.router = chi.NewRouter()
	h.Register(s.router)

	s.entries = nil
	s.seed("evt-1", "order.placed", "order-service", "corr-a", audit.SeverityMedium, true,
		time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	s.seed("evt-2", "payment.failed", "payment-service", "corr-a", audit.SeverityCritical, false,
		time.Date(2026, 5, 1, 10, 5, 0, 0, time.UTC))
	s.seed("evt-3", "order.cancelled", "order-service", "corr-b", audit.SeverityHigh, true,
		time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC))
}

func (s *AuditHandlerSuite) seed(eventID, action, svcName, corr string, sev audit.Severity, success bool, at time.Time) {
	entry := &audit.Entry{
		EventID:       eventID,
		CorrelationID: corr,
		ActionType:    action,
		ServiceName:   svcName,
		UserID:        "usr-1",
		ResourceType:  "order",
		ResourceID:    "ord-1",
		Severity:      sev,
		Success:       success,
		OccurredAt:    at,
	}
	s.Require().NoError(s.svc.Record(s.ctx, entry))
	s.entries = append(s.entries, entry)
}

func (s *AuditHandlerSuite) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *AuditHandlerSuite) TestGetByID() {
	w := s.get("/api/audit/" + s.entries[0].ID.String())
	s.Equal(http.StatusOK, w.Code)

	var entry audit.Entry
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &entry))
	s.Equal("evt-1", entry.EventID)
	s.Equal("order.placed", entry.ActionType)
}

func (s *AuditHandlerSuite) TestGetUnknownIDReturns404() {
	w := s.get("/api/audit/" + uuid.NewString())
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *AuditHandlerSuite) TestGetMalformedIDReturns400() {
	w := s.get("/api/audit/not-a-uuid")
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *AuditHandlerSuite) TestSearchWithFilters() {
	w := s.get("/api/audit?service=order-service&page=1&limit=10")
	s.Equal(http.StatusOK, w.Code)

	var result struct {
		Entries    []audit.Entry `json:"entries"`
		Pagination struct {
			Total      int  `json:"total"`
			TotalPages int  `json:"totalPages"`
			HasMore    bool `json:"hasMore"`
		} `json:"pagination"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &result))
	s.Len(result.Entries, 2)
	s.Equal(2, result.Pagination.Total)
	s.Equal(1, result.Pagination.TotalPages)
	s.False(result.Pagination.HasMore)
}

func (s *AuditHandlerSuite) TestSearchNoMatchesReturnsEmptyList() {
	w := s.get("/api/audit?service=nobody")
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"entries":[]`, "an empty page is a list, not null")
}

func (s *AuditHandlerSuite) TestSearchRejectsBadParameters() {
	for _, path := range []string{
		"/api/audit?severity=urgent",
		"/api/audit?success=maybe",
		"/api/audit?from=yesterday",
		"/api/audit?sortBy=userId",
		"/api/audit?page=-1",
		"/api/audit?from=2026-05-02T00:00:00Z&to=2026-05-01T00:00:00Z",
	} {
		w := s.get(path)
		s.Equal(http.StatusBadRequest, w.Code, path)
	}
}

func (s *AuditHandlerSuite) TestSearchBySuccessFlag() {
	w := s.get("/api/audit?success=false")
	s.Equal(http.StatusOK, w.Code)

	var result struct {
		Entries []audit.Entry `json:"entries"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &result))
	s.Require().Len(result.Entries, 1)
	s.Equal("payment.failed", result.Entries[0].ActionType)
}

func (s *AuditHandlerSuite) TestResourceTrail() {
	w := s.get("/api/audit/resource/order/ord-1")
	s.Equal(http.StatusOK, w.Code)

	var resp struct {
		Entries []audit.Entry `json:"entries"`
		Count   int           `json:"count"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal(3, resp.Count)
	// Ascending by default.
	s.Equal("evt-1", resp.Entries[0].EventID)
	s.Equal("evt-3", resp.Entries[2].EventID)

	w = s.get("/api/audit/resource/order/ord-1?order=desc")
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal("evt-3", resp.Entries[0].EventID)
}

func (s *AuditHandlerSuite) TestCorrelationTrail() {
	w := s.get("/api/audit/correlation/corr-a")
	s.Equal(http.StatusOK, w.Code)

	var resp struct {
		Entries []audit.Entry `json:"entries"`
		Count   int           `json:"count"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal(2, resp.Count)
	s.Equal("evt-1", resp.Entries[0].EventID, "causal chain starts at the oldest entry")
}

func (s *AuditHandlerSuite) TestCorrelationTrailUnknownIDIsEmpty() {
	w := s.get("/api/audit/correlation/corr-zzz")
	s.Equal(http.StatusOK, w.Code)

	var resp struct {
		Count int `json:"count"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Zero(resp.Count)
}

func (s *AuditHandlerSuite) TestExportCSV() {
	w := s.get("/api/audit/export?service=order-service")
	s.Equal(http.StatusOK, w.Code)
	s.Equal("text/csv", w.Header().Get("Content-Type"))
	s.Contains(w.Header().Get("Content-Disposition"), "attachment")

	lines := 0
	for _, b := range w.Body.Bytes() {
		if b == '\n' {
			lines++
		}
	}
	s.Equal(3, lines, "header plus two rows")
}

func (s *AuditHandlerSuite) TestExportJSON() {
	w := s.get("/api/audit/export?format=json")
	s.Equal(http.StatusOK, w.Code)
	s.Equal("application/json", w.Header().Get("Content-Type"))

	var envelope struct {
		Count   int           `json:"count"`
		Entries []audit.Entry `json:"entries"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &envelope))
	s.Equal(3, envelope.Count)
}

func (s *AuditHandlerSuite) TestExportUnknownFormatReturns400() {
	w := s.get("/api/audit/export?format=xml")
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *AuditHandlerSuite) TestStats() {
	// Stats only counts the trailing window; reseed inside it.
	s.store = memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.svc = service.New(s.store, dedup.Noop{}, logger, 365*24*time.Hour,
		service.Limits{DefaultLimit: 100, MaxLimit: 1000, ExportMax: 10000})
	h := New(s.svc, func() consumer.State { return s.state }, logger)
	s.router = chi.NewRouter()
	h.Register(s.router)

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		entry := &audit.Entry{
			EventID:      fmt.Sprintf("evt-%d", i),
			ActionType:   "order.placed",
			ServiceName:  "order-service",
			ResourceType: "order",
			Severity:     audit.SeverityMedium,
			Success:      i != 0,
			OccurredAt:   now.Add(-time.Duration(i) * time.Hour),
		}
		s.Require().NoError(s.svc.Record(s.ctx, entry))
	}

	w := s.get("/api/audit/stats")
	s.Equal(http.StatusOK, w.Code)

	var stats struct {
		Total     int `json:"total"`
		Failures  int `json:"failures"`
		ByService []struct {
			Key   string `json:"key"`
			Count int    `json:"count"`
		} `json:"byService"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &stats))
	s.Equal(3, stats.Total)
	s.Equal(1, stats.Failures)
	s.Require().Len(stats.ByService, 1)
	s.Equal("order-service", stats.ByService[0].Key)
}

func (s *AuditHandlerSuite) TestHealthFollowsBrokerState() {
	w := s.get("/healthz")
	s.Equal(http.StatusOK, w.Code)

	var health struct {
		Status   string `json:"status"`
		Consumer struct {
			Processed uint64 `json:"processed"`
		} `json:"consumer"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &health))
	s.Equal("ok", health.Status)
	s.Equal(uint64(3), health.Consumer.Processed)

	s.state.Connected = false
	w = s.get("/healthz")
	s.Equal(http.StatusServiceUnavailable, w.Code)
}
