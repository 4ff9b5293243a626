package handler

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"audittrail/internal/audit"
	"audittrail/internal/audit/store"
	"audittrail/pkg/platform/sentinel"
)

// searchQuery is the parsed form of the search and export query string.
type searchQuery struct {
	filter store.Filter
	page   int
	limit  int
}

// parseSearchQuery validates every recognized parameter. Unknown values are
// rejected rather than ignored so a typo in a compliance query can never
// silently widen the result set.
func parseSearchQuery(r *http.Request) (*searchQuery, error) {
	values := r.URL.Query()

	q := &searchQuery{
		filter: store.Filter{
			ServiceName:   values.Get("service"),
			ActionType:    values.Get("action"),
			UserID:        values.Get("userId"),
			UserType:      values.Get("userType"),
			ResourceType:  values.Get("resourceType"),
			ResourceID:    values.Get("resourceId"),
			CorrelationID: values.Get("correlationId"),
			SortBy:        values.Get("sortBy"),
			SortOrder:     values.Get("sortOrder"),
		},
	}

	if v := values.Get("severity"); v != "" {
		sev := audit.Severity(v)
		if !sev.Valid() {
			return nil, fmt.Errorf("%w: unknown severity %q", sentinel.ErrInvalidInput, v)
		}
		q.filter.Severity = sev
	}

	if v := values.Get("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%w: success must be true or false", sentinel.ErrInvalidInput)
		}
		q.filter.Success = &b
	}

	var err error
	if q.filter.From, err = parseTime(values, "from"); err != nil {
		return nil, err
	}
	if q.filter.To, err = parseTime(values, "to"); err != nil {
		return nil, err
	}
	if q.filter.From != nil && q.filter.To != nil && q.filter.To.Before(*q.filter.From) {
		return nil, fmt.Errorf("%w: to precedes from", sentinel.ErrInvalidInput)
	}

	switch q.filter.SortBy {
	case "", store.SortByOccurredAt, store.SortBySeverity, store.SortByServiceName:
	default:
		return nil, fmt.Errorf("%w: unknown sort column %q", sentinel.ErrInvalidInput, q.filter.SortBy)
	}
	switch q.filter.SortOrder {
	case "", store.SortAsc, store.SortDesc:
	default:
		return nil, fmt.Errorf("%w: sort order must be asc or desc", sentinel.ErrInvalidInput)
	}

	if q.page, err = parseInt(values, "page"); err != nil {
		return nil, err
	}
	if q.limit, err = parseInt(values, "limit"); err != nil {
		return nil, err
	}
	return q, nil
}

func parseTime(values url.Values, key string) (*time.Time, error) {
	v := values.Get(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC 3339", sentinel.ErrInvalidInput, key)
	}
	return &t, nil
}

func parseInt(values url.Values, key string) (int, error) {
	v := values.Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", sentinel.ErrInvalidInput, key)
	}
	return n, nil
}
