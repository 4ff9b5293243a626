package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"audittrail/internal/audit"
	"audittrail/internal/audit/store"
	"audittrail/pkg/platform/sentinel"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// csvHeader is the fixed column order of a CSV export. Consumers parse by
// position, so the order is part of the contract.
var csvHeader = []string{
	"id", "timestamp", "action", "resourceType", "resourceId",
	"userId", "service", "success", "severity",
}

// Export streams every entry matching the filter to w, CSV or JSON. The
// result set is materialized before the first byte is written: an export is
// whole or nothing, never truncated mid-stream. Result sets above the
// configured export cap are rejected; narrow the filter instead.
func (s *Service) Export(ctx context.Context, f store.Filter, format string, w io.Writer) (int, error) {
	switch format {
	case FormatCSV, FormatJSON:
	default:
		return 0, fmt.Errorf("%w: unknown export format %q", sentinel.ErrInvalidInput, format)
	}

	entries, err := s.collectAll(ctx, f)
	if err != nil {
		return 0, err
	}

	if format == FormatCSV {
		return len(entries), writeCSV(w, entries)
	}
	return len(entries), writeJSON(w, entries, s.now())
}

// collectAll pages through the store until the filter is exhausted or the
// export cap is exceeded.
func (s *Service) collectAll(ctx context.Context, f store.Filter) ([]*audit.Entry, error) {
	f.Limit = s.limits.MaxLimit
	f.Offset = 0

	var entries []*audit.Entry
	for {
		page, total, err := s.store.Search(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("collect export rows: %w", err)
		}
		if total > s.limits.ExportMax {
			return nil, fmt.Errorf("%w: %d entries match, export cap is %d",
				sentinel.ErrInvalidInput, total, s.limits.ExportMax)
		}
		entries = append(entries, page...)
		if len(entries) >= total || len(page) == 0 {
			return entries, nil
		}
		f.Offset += len(page)
	}
}

func writeCSV(w io.Writer, entries []*audit.Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, e := range entries {
		row := []string{
			e.ID.String(),
			e.OccurredAt.UTC().Format(time.RFC3339),
			e.ActionType,
			e.ResourceType,
			e.ResourceID,
			e.UserID,
			e.ServiceName,
			strconv.FormatBool(e.Success),
			string(e.Severity),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeJSON(w io.Writer, entries []*audit.Entry, exportedAt time.Time) error {
	envelope := struct {
		ExportedAt time.Time      `json:"exportedAt"`
		Count      int            `json:"count"`
		Entries    []*audit.Entry `json:"entries"`
	}{
		ExportedAt: exportedAt,
		Count:      len(entries),
		Entries:    entries,
	}
	if envelope.Entries == nil {
		envelope.Entries = []*audit.Entry{}
	}
	enc := json.NewEncoder(w)
	return enc.Encode(envelope)
}
