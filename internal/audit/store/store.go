// Package store defines the persistence contract for audit log entries.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"audittrail/internal/audit"
)

// Sort columns accepted by Search. Anything else is rejected as invalid
// input before a query is built.
const (
	SortByOccurredAt  = "occurredAt"
	SortBySeverity    = "severity"
	SortByServiceName = "serviceName"
)

const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// Filter is the search contract shared by the search and export paths:
// equality filters, a date range, pagination, and ordering. Zero values mean
// "no constraint".
type Filter struct {
	ServiceName   string
	ActionType    string
	UserID        string
	UserType      string
	ResourceType  string
	ResourceID    string
	CorrelationID string
	Success       *bool
	Severity      audit.Severity
	From          *time.Time
	To            *time.Time

	Limit  int
	Offset int

	SortBy    string // occurredAt | severity | serviceName; default occurredAt
	SortOrder string // asc | desc; default desc
}

// Stats aggregates activity over a trailing window.
type Stats struct {
	Since      time.Time     `json:"since"`
	Total      int           `json:"total"`
	Failures   int           `json:"failures"`
	ByService  []BucketCount `json:"byService"`
	ByAction   []BucketCount `json:"byAction"`
	BySeverity []BucketCount `json:"bySeverity"`
}

// BucketCount is one grouped count in a statistics response.
type BucketCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Store persists and queries audit log entries. The write path and the query
// path share one implementation and rely on the storage engine's own
// transaction isolation; no locks are held above it.
type Store interface {
	// Insert writes one entry. Redelivery of an already-recorded event ID
	// is a silent no-op, keeping the trail exactly-once per event.
	Insert(ctx context.Context, entry *audit.Entry) error

	// GetByID returns one entry or sentinel.ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*audit.Entry, error)

	// Search returns a page of entries plus the total match count,
	// independent of pagination. Ordering is stable: the requested sort
	// column plus an id tiebreak, so pages never skip or duplicate rows
	// under concurrent inserts.
	Search(ctx context.Context, f Filter) ([]*audit.Entry, int, error)

	// ResourceTrail returns every entry for one resource in chronological
	// order, ascending unless desc is set.
	ResourceTrail(ctx context.Context, resourceType, resourceID string, desc bool) ([]*audit.Entry, error)

	// CorrelationTrail returns every entry sharing one correlation ID in
	// ascending chronological order, reconstructing the causal chain.
	CorrelationTrail(ctx context.Context, correlationID string) ([]*audit.Entry, error)

	// Stats aggregates counts since the given instant.
	Stats(ctx context.Context, since time.Time) (*Stats, error)
}
