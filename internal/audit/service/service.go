// Package service implements the audit trail use cases on top of the store:
// recording normalized entries, search, trails, statistics, and export.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"audittrail/internal/audit"
	"audittrail/internal/audit/dedup"
	"audittrail/internal/audit/store"
	"audittrail/pkg/platform/pagination"
	"audittrail/pkg/platform/sentinel"
)

// statsWindow is the trailing aggregation window for Stats.
const statsWindow = 30 * 24 * time.Hour

// Limits bound query page sizes and export volume.
type Limits struct {
	DefaultLimit int
	MaxLimit     int
	ExportMax    int
}

// Service wires the store, the dedup cache, and the retention policy into
// the operations the consumer and the HTTP API call.
type Service struct {
	store     store.Store
	dedup     dedup.Cache
	logger    *slog.Logger
	retention time.Duration
	limits    Limits
	now       func() time.Time
}

// New creates the audit service. retention controls how far in the future
// RetentionUntil is stamped on each recorded entry.
func New(st store.Store, cache dedup.Cache, logger *slog.Logger, retention time.Duration, limits Limits) *Service {
	return &Service{
		store:     st,
		dedup:     cache,
		logger:    logger,
		retention: retention,
		limits:    limits,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Record validates and persists one normalized entry. Duplicate event IDs
// are dropped: first by the dedup cache, then by the storage unique
// constraint for anything the cache missed. A cache failure is logged and
// ignored so Redis outages never stall consumption.
func (s *Service) Record(ctx context.Context, entry *audit.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	now := s.now()
	entry.ID = uuid.New()
	entry.CreatedAt = now
	entry.RetentionUntil = now.Add(s.retention)
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = now
	}

	first, err := s.dedup.FirstSeen(ctx, entry.EventID)
	if err != nil {
		s.logger.Warn("dedup cache unavailable, relying on storage constraint",
			"event_id", entry.EventID,
			"error", err,
		)
	} else if !first {
		s.logger.Debug("duplicate event dropped by cache",
			"event_id", entry.EventID,
		)
		return nil
	}

	if err := s.store.Insert(ctx, entry); err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

// Get returns one entry by its entry ID (not event ID).
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*audit.Entry, error) {
	return s.store.GetByID(ctx, id)
}

// SearchResult is one page of entries plus its pagination envelope.
type SearchResult struct {
	Entries []*audit.Entry  `json:"entries"`
	Page    pagination.Page `json:"pagination"`
}

// Search runs a filtered, paginated query. page is 1-based; limit is
// clamped between 1 and the configured maximum, defaulting when zero.
func (s *Service) Search(ctx context.Context, f store.Filter, page, limit int) (*SearchResult, error) {
	if page < 1 {
		page = 1
	}
	limit = pagination.Clamp(limit, s.limits.DefaultLimit, s.limits.MaxLimit)

	f.Limit = limit
	f.Offset = pagination.Offset(page, limit)

	entries, total, err := s.store.Search(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("search audit entries: %w", err)
	}
	if entries == nil {
		// An empty page serializes as [], never null.
		entries = []*audit.Entry{}
	}
	return &SearchResult{
		Entries: entries,
		Page:    pagination.New(page, limit, total),
	}, nil
}

// ResourceTrail returns the full chronological history of one resource.
func (s *Service) ResourceTrail(ctx context.Context, resourceType, resourceID string, desc bool) ([]*audit.Entry, error) {
	if resourceType == "" || resourceID == "" {
		return nil, fmt.Errorf("%w: resource type and id are required", sentinel.ErrInvalidInput)
	}
	return s.store.ResourceTrail(ctx, resourceType, resourceID, desc)
}

// CorrelationTrail reconstructs the causal chain for one correlation ID,
// oldest entry first.
func (s *Service) CorrelationTrail(ctx context.Context, correlationID string) ([]*audit.Entry, error) {
	if correlationID == "" {
		return nil, fmt.Errorf("%w: correlation id is required", sentinel.ErrInvalidInput)
	}
	return s.store.CorrelationTrail(ctx, correlationID)
}

// Stats aggregates activity over the trailing 30 days.
func (s *Service) Stats(ctx context.Context) (*store.Stats, error) {
	return s.store.Stats(ctx, s.now().Add(-statsWindow))
}
