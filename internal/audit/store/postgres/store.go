package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"audittrail/internal/audit"
	"audittrail/internal/audit/store"
	"audittrail/pkg/platform/sentinel"
)

// Store implements store.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

var _ store.Store = (*Store)(nil)

const entryColumns = `
	id, event_id, correlation_id, action_type, service_name,
	user_id, user_type, resource_type, resource_id, event_data,
	ip_address, user_agent, severity, compliance_tags,
	success, error_message, occurred_at, retention_until, created_at`

// severityRank orders the four levels inside ORDER BY without a lookup table.
const severityRank = `CASE severity
	WHEN 'critical' THEN 4 WHEN 'high' THEN 3 WHEN 'medium' THEN 2 ELSE 1 END`

// Insert writes one entry. A redelivered event_id hits the unique index and
// is dropped by ON CONFLICT DO NOTHING, so the trail stays exactly-once.
func (s *Store) Insert(ctx context.Context, entry *audit.Entry) error {
	eventData, err := json.Marshal(entry.EventData)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	query := `
		INSERT INTO audit_log_entries (` + entryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		        $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (event_id) DO NOTHING
	`
	_, err = s.db.ExecContext(ctx, query,
		entry.ID,
		entry.EventID,
		entry.CorrelationID,
		entry.ActionType,
		entry.ServiceName,
		entry.UserID,
		entry.UserType,
		entry.ResourceType,
		entry.ResourceID,
		eventData,
		entry.IPAddress,
		entry.UserAgent,
		string(entry.Severity),
		pq.Array(entry.ComplianceTags),
		entry.Success,
		entry.ErrorMessage,
		entry.OccurredAt,
		entry.RetentionUntil,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// GetByID returns one entry or sentinel.ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*audit.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM audit_log_entries WHERE id = $1`

	entry, err := scanEntry(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("audit entry %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get audit entry: %w", err)
	}
	return entry, nil
}

// Search runs the filter with pagination and returns the page plus the total
// match count.
func (s *Store) Search(ctx context.Context, f store.Filter) ([]*audit.Entry, int, error) {
	where, args := buildWhere(f)

	var total int
	countQuery := `SELECT COUNT(*) FROM audit_log_entries` + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	query := `SELECT ` + entryColumns + ` FROM audit_log_entries` + where +
		orderBy(f.SortBy, f.SortOrder) +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search audit entries: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// ResourceTrail returns every entry for one resource, chronological.
func (s *Store) ResourceTrail(ctx context.Context, resourceType, resourceID string, desc bool) ([]*audit.Entry, error) {
	direction := "ASC"
	if desc {
		direction = "DESC"
	}
	query := `SELECT ` + entryColumns + `
		FROM audit_log_entries
		WHERE resource_type = $1 AND resource_id = $2
		ORDER BY occurred_at ` + direction + `, id ` + direction

	rows, err := s.db.QueryContext(ctx, query, resourceType, resourceID)
	if err != nil {
		return nil, fmt.Errorf("query resource trail: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// CorrelationTrail returns the causal chain for one correlation ID,
// ascending by occurrence time regardless of delivery order.
func (s *Store) CorrelationTrail(ctx context.Context, correlationID string) ([]*audit.Entry, error) {
	query := `SELECT ` + entryColumns + `
		FROM audit_log_entries
		WHERE correlation_id = $1
		ORDER BY occurred_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, correlationID)
	if err != nil {
		return nil, fmt.Errorf("query correlation trail: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Stats aggregates totals and the top services, actions, and severities
// since the given instant.
func (s *Store) Stats(ctx context.Context, since time.Time) (*store.Stats, error) {
	stats := &store.Stats{Since: since}

	totals := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE NOT success)
		FROM audit_log_entries WHERE occurred_at >= $1`
	if err := s.db.QueryRowContext(ctx, totals, since).Scan(&stats.Total, &stats.Failures); err != nil {
		return nil, fmt.Errorf("count stats totals: %w", err)
	}

	var err error
	if stats.ByService, err = s.grouped(ctx, "service_name", since); err != nil {
		return nil, err
	}
	if stats.ByAction, err = s.grouped(ctx, "action_type", since); err != nil {
		return nil, err
	}
	if stats.BySeverity, err = s.grouped(ctx, "severity", since); err != nil {
		return nil, err
	}
	return stats, nil
}

// grouped counts entries per value of one column. column is always a
// compile-time constant, never caller input.
func (s *Store) grouped(ctx context.Context, column string, since time.Time) ([]store.BucketCount, error) {
	query := fmt.Sprintf(`
		SELECT %s, COUNT(*) AS n
		FROM audit_log_entries
		WHERE occurred_at >= $1
		GROUP BY %s
		ORDER BY n DESC, %s ASC
		LIMIT 10`, column, column, column)

	rows, err := s.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("group by %s: %w", column, err)
	}
	defer rows.Close()

	var buckets []store.BucketCount
	for rows.Next() {
		var b store.BucketCount
		if err := rows.Scan(&b.Key, &b.Count); err != nil {
			return nil, fmt.Errorf("scan %s bucket: %w", column, err)
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// DeleteExpired removes entries whose retention window has elapsed. The
// retention sweep is the only delete path; entries are otherwise immutable.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM audit_log_entries WHERE retention_until < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired entries: %w", err)
	}
	return res.RowsAffected()
}

func buildWhere(f store.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.ServiceName != "" {
		add("service_name = $%d", f.ServiceName)
	}
	if f.ActionType != "" {
		add("action_type = $%d", f.ActionType)
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.UserType != "" {
		add("user_type = $%d", f.UserType)
	}
	if f.ResourceType != "" {
		add("resource_type = $%d", f.ResourceType)
	}
	if f.ResourceID != "" {
		add("resource_id = $%d", f.ResourceID)
	}
	if f.CorrelationID != "" {
		add("correlation_id = $%d", f.CorrelationID)
	}
	if f.Severity != "" {
		add("severity = $%d", string(f.Severity))
	}
	if f.Success != nil {
		add("success = $%d", *f.Success)
	}
	if f.From != nil {
		add("occurred_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("occurred_at <= $%d", *f.To)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// orderBy maps the filter's sort request onto a whitelisted ORDER BY with an
// id tiebreak so pagination stays stable under concurrent inserts.
func orderBy(sortBy, sortOrder string) string {
	direction := "DESC"
	if sortOrder == store.SortAsc {
		direction = "ASC"
	}

	column := "occurred_at"
	switch sortBy {
	case store.SortBySeverity:
		column = severityRank
	case store.SortByServiceName:
		column = "service_name"
	}
	return fmt.Sprintf(" ORDER BY %s %s, id %s", column, direction, direction)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*audit.Entry, error) {
	var (
		entry     audit.Entry
		severity  string
		eventData []byte
		tags      pq.StringArray
	)
	err := row.Scan(
		&entry.ID,
		&entry.EventID,
		&entry.CorrelationID,
		&entry.ActionType,
		&entry.ServiceName,
		&entry.UserID,
		&entry.UserType,
		&entry.ResourceType,
		&entry.ResourceID,
		&eventData,
		&entry.IPAddress,
		&entry.UserAgent,
		&severity,
		&tags,
		&entry.Success,
		&entry.ErrorMessage,
		&entry.OccurredAt,
		&entry.RetentionUntil,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.Severity = audit.Severity(severity)
	entry.ComplianceTags = tags
	if len(eventData) > 0 {
		if err := json.Unmarshal(eventData, &entry.EventData); err != nil {
			return nil, fmt.Errorf("unmarshal event data: %w", err)
		}
	}
	return &entry, nil
}

func scanEntries(rows *sql.Rows) ([]*audit.Entry, error) {
	var entries []*audit.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
