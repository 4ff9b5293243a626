// Package memory is an in-memory Store used by tests and local development.
// It mirrors the postgres store's contract, including the stable sort
// tiebreak and the event-ID idempotency rule.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"audittrail/internal/audit"
	"audittrail/internal/audit/store"
	"audittrail/pkg/platform/sentinel"
)

type Store struct {
	mu      sync.RWMutex
	entries []*audit.Entry
	byEvent map[string]struct{}
}

func New() *Store {
	return &Store{byEvent: make(map[string]struct{})}
}

var _ store.Store = (*Store)(nil)

func (s *Store) Insert(_ context.Context, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.EventID != "" {
		if _, dup := s.byEvent[entry.EventID]; dup {
			return nil
		}
		s.byEvent[entry.EventID] = struct{}{}
	}

	clone := *entry
	s.entries = append(s.entries, &clone)
	return nil
}

func (s *Store) GetByID(_ context.Context, id uuid.UUID) (*audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.ID == id {
			clone := *e
			return &clone, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *Store) Search(_ context.Context, f store.Filter) ([]*audit.Entry, int, error) {
	s.mu.RLock()
	matched := make([]*audit.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if matches(e, f) {
			matched = append(matched, e)
		}
	}
	s.mu.RUnlock()

	sortEntries(matched, f.SortBy, f.SortOrder)

	total := len(matched)
	if f.Offset >= total {
		return nil, total, nil
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < end {
		end = f.Offset + f.Limit
	}

	page := make([]*audit.Entry, 0, end-f.Offset)
	for _, e := range matched[f.Offset:end] {
		clone := *e
		page = append(page, &clone)
	}
	return page, total, nil
}

func (s *Store) ResourceTrail(_ context.Context, resourceType, resourceID string, desc bool) ([]*audit.Entry, error) {
	s.mu.RLock()
	trail := make([]*audit.Entry, 0)
	for _, e := range s.entries {
		if e.ResourceType == resourceType && e.ResourceID == resourceID {
			clone := *e
			trail = append(trail, &clone)
		}
	}
	s.mu.RUnlock()

	order := store.SortAsc
	if desc {
		order = store.SortDesc
	}
	sortEntries(trail, store.SortByOccurredAt, order)
	return trail, nil
}

func (s *Store) CorrelationTrail(_ context.Context, correlationID string) ([]*audit.Entry, error) {
	s.mu.RLock()
	trail := make([]*audit.Entry, 0)
	for _, e := range s.entries {
		if e.CorrelationID == correlationID {
			clone := *e
			trail = append(trail, &clone)
		}
	}
	s.mu.RUnlock()

	sortEntries(trail, store.SortByOccurredAt, store.SortAsc)
	return trail, nil
}

func (s *Store) Stats(_ context.Context, since time.Time) (*store.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &store.Stats{Since: since}
	services := map[string]int{}
	actions := map[string]int{}
	severities := map[string]int{}

	for _, e := range s.entries {
		if e.OccurredAt.Before(since) {
			continue
		}
		stats.Total++
		if !e.Success {
			stats.Failures++
		}
		services[e.ServiceName]++
		actions[e.ActionType]++
		severities[string(e.Severity)]++
	}

	stats.ByService = topBuckets(services, 10)
	stats.ByAction = topBuckets(actions, 10)
	stats.BySeverity = topBuckets(severities, 10)
	return stats, nil
}

// Len reports the number of stored entries. Test helper.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func matches(e *audit.Entry, f store.Filter) bool {
	switch {
	case f.ServiceName != "" && e.ServiceName != f.ServiceName,
		f.ActionType != "" && e.ActionType != f.ActionType,
		f.UserID != "" && e.UserID != f.UserID,
		f.UserType != "" && e.UserType != f.UserType,
		f.ResourceType != "" && e.ResourceType != f.ResourceType,
		f.ResourceID != "" && e.ResourceID != f.ResourceID,
		f.CorrelationID != "" && e.CorrelationID != f.CorrelationID,
		f.Severity != "" && e.Severity != f.Severity,
		f.Success != nil && e.Success != *f.Success,
		f.From != nil && e.OccurredAt.Before(*f.From),
		f.To != nil && e.OccurredAt.After(*f.To):
		return false
	}
	return true
}

// sortEntries orders entries by the requested column with an id tiebreak,
// matching the postgres ORDER BY exactly.
func sortEntries(entries []*audit.Entry, sortBy, order string) {
	desc := order != store.SortAsc
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		var less, equal bool
		switch sortBy {
		case store.SortBySeverity:
			less = a.Severity.Rank() < b.Severity.Rank()
			equal = a.Severity.Rank() == b.Severity.Rank()
		case store.SortByServiceName:
			cmp := strings.Compare(a.ServiceName, b.ServiceName)
			less = cmp < 0
			equal = cmp == 0
		default:
			less = a.OccurredAt.Before(b.OccurredAt)
			equal = a.OccurredAt.Equal(b.OccurredAt)
		}
		if equal {
			cmp := strings.Compare(a.ID.String(), b.ID.String())
			if desc {
				return cmp > 0
			}
			return cmp < 0
		}
		if desc {
			return !less
		}
		return less
	})
}

func topBuckets(counts map[string]int, limit int) []store.BucketCount {
	buckets := make([]store.BucketCount, 0, len(counts))
	for k, v := range counts {
		buckets = append(buckets, store.BucketCount{Key: k, Count: v})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Count == buckets[j].Count {
			return buckets[i].Key < buckets[j].Key
		}
		return buckets[i].Count > buckets[j].Count
	})
	if len(buckets) > limit {
		buckets = buckets[:limit]
	}
	return buckets
}
