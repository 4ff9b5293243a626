// Package normalizer converts heterogeneous producer events into canonical
// audit log entries.
//
// Each domain contributes a table of event specs: the resource the event is
// about, the priority order for resolving its resource ID, a deterministic
// severity per outcome, and the compliance tags used for filtering and
// retention policy selection. Normalization is pure per event; persistence
// errors propagate to the consumption loop untouched.
package normalizer

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/mssola/useragent"

	"audittrail/internal/audit"
	"audittrail/internal/audit/dispatcher"
	"audittrail/internal/platform/logger"
	stringsutil "audittrail/pkg/platform/strings"
)

// Recorder persists normalized entries. Implemented by the audit service.
type Recorder interface {
	Record(ctx context.Context, entry *audit.Entry) error
}

// Normalizer owns the per-domain event tables and the shared extraction
// logic.
type Normalizer struct {
	recorder Recorder
	logger   *slog.Logger
}

// New creates a normalizer that records through the given recorder.
func New(recorder Recorder, log *slog.Logger) *Normalizer {
	return &Normalizer{recorder: recorder, logger: log}
}

// eventSpec describes how one event type maps onto an audit entry.
type eventSpec struct {
	// resourceType keys downstream trail queries; it must never be empty.
	resourceType string
	// idKeys is the priority order for resolving the resource ID from the
	// payload. The order is part of the contract: queries key on the
	// resolved ID.
	idKeys []string
	// severity applies when the audited action succeeded.
	severity audit.Severity
	// failureSeverity applies when it failed. Zero means escalate to high.
	failureSeverity audit.Severity
	// tags label the entry for filtering and retention policy selection.
	tags []string
	// security forces the log emission to the security level even for
	// successful events.
	security bool
}

// domainTables collects every registered event type. Order matters only for
// registration logging.
func domainTables() []map[string]eventSpec {
	return []map[string]eventSpec{
		authEvents,
		userEvents,
		orderEvents,
		paymentEvents,
		productEvents,
		cartEvents,
		inventoryEvents,
		reviewEvents,
		notificationEvents,
		adminEvents,
	}
}

// RegisterAll binds every known event type to the registry.
func (n *Normalizer) RegisterAll(reg *dispatcher.Registry) {
	for _, table := range domainTables() {
		for eventType, spec := range table {
			reg.Register(eventType, n.handlerFor(spec))
		}
	}
}

// Default returns the handler for event types with no registration. It
// records a minimal entry so unmapped events are never dropped.
func (n *Normalizer) Default() dispatcher.HandlerFunc {
	generic := eventSpec{
		resourceType: "event",
		idKeys:       []string{"resourceId", "id"},
		severity:     audit.SeverityLow,
		tags:         []string{"uncategorized"},
	}
	return n.handlerFor(generic)
}

func (n *Normalizer) handlerFor(spec eventSpec) dispatcher.HandlerFunc {
	return func(ctx context.Context, ev *audit.EventMessage) error {
		entry := n.normalize(ev, spec)
		n.emit(ctx, ev, entry, spec)
		return n.recorder.Record(ctx, entry)
	}
}

// normalize builds the canonical entry for one event. Pure: same event in,
// same entry out (timestamps excepted for events without one).
func (n *Normalizer) normalize(ev *audit.EventMessage, spec eventSpec) *audit.Entry {
	success, errMsg := outcome(ev)

	entry := &audit.Entry{
		EventID:        ev.EventID,
		CorrelationID:  ev.CorrelationID(),
		ActionType:     ev.EventType,
		ServiceName:    ev.ServiceName(),
		UserID:         stringField(ev.Data, "userId", "customerId", "adminId"),
		UserType:       stringField(ev.Data, "userType"),
		ResourceType:   spec.resourceType,
		ResourceID:     stringField(ev.Data, spec.idKeys...),
		EventData:      forensicPayload(ev),
		IPAddress:      stringField(ev.Data, "ipAddress", "ip"),
		UserAgent:      stringField(ev.Data, "userAgent"),
		Severity:       severityFor(spec, success),
		ComplianceTags: mergeTags(spec.tags, ev.Data),
		Success:        success,
		ErrorMessage:   errMsg,
		OccurredAt:     ev.OccurredAt(),
	}
	if entry.ResourceID == "" {
		entry.ResourceID = stringField(ev.Data, "resourceId")
	}
	if entry.ResourceID == "" {
		entry.ResourceID = ev.EventID
	}
	return entry
}

// severityFor resolves the final severity for one (spec, success) pair. It
// is deterministic: repeated calls always agree.
func severityFor(spec eventSpec, success bool) audit.Severity {
	if success {
		return spec.severity
	}
	if spec.failureSeverity != "" {
		return spec.failureSeverity
	}
	// Failures escalate: never below high.
	if spec.severity.Rank() < audit.SeverityHigh.Rank() {
		return audit.SeverityHigh
	}
	return spec.severity
}

// emit writes the immediate structured log for the event: business level for
// routine activity, security level for sensitive or failed actions. This is
// informational; the persisted entry is the record.
func (n *Normalizer) emit(ctx context.Context, ev *audit.EventMessage, entry *audit.Entry, spec eventSpec) {
	args := []any{
		"event_id", ev.EventID,
		"event_type", ev.EventType,
		"correlation_id", entry.CorrelationID,
		"service", entry.ServiceName,
		"resource_type", entry.ResourceType,
		"resource_id", entry.ResourceID,
		"severity", string(entry.Severity),
		"success", entry.Success,
	}
	if entry.UserID != "" {
		args = append(args, "user_id", entry.UserID)
	}

	if spec.security || !entry.Success || entry.Severity.Rank() >= audit.SeverityHigh.Rank() {
		if entry.ErrorMessage != "" {
			args = append(args, "error", entry.ErrorMessage)
		}
		logger.Security(ctx, n.logger, ev.EventType, args...)
		return
	}
	logger.Business(ctx, n.logger, ev.EventType, args...)
}

// outcome derives the success flag and error message. An explicit success
// field wins; otherwise the event type's own failure suffix decides.
func outcome(ev *audit.EventMessage) (bool, string) {
	success := !failureType(ev.EventType)
	if v, ok := ev.Data["success"].(bool); ok {
		success = v
	}
	if success {
		return true, ""
	}
	return false, stringField(ev.Data, "errorMessage", "error", "reason")
}

func failureType(eventType string) bool {
	const suffix = ".failed"
	const suffixAlt = "_failed"
	return len(eventType) > len(suffix) &&
		(eventType[len(eventType)-len(suffix):] == suffix ||
			eventType[len(eventType)-len(suffixAlt):] == suffixAlt)
}

// forensicPayload copies the full original payload plus the raw event
// identity so an entry can be replayed without the source message. The
// user agent, when present, is classified for later filtering.
func forensicPayload(ev *audit.EventMessage) map[string]any {
	payload := make(map[string]any, len(ev.Data)+3)
	for k, v := range ev.Data {
		payload[k] = v
	}
	payload["eventId"] = ev.EventID
	payload["eventTimestamp"] = ev.OccurredAt().Format(time.RFC3339Nano)
	if ev.Metadata.Version != "" {
		payload["schemaVersion"] = ev.Metadata.Version
	}
	if ua := stringField(ev.Data, "userAgent"); ua != "" {
		payload["client"] = classifyUserAgent(ua)
	}
	return payload
}

// classifyUserAgent parses the raw user-agent string into the fields the
// query side filters on.
func classifyUserAgent(raw string) map[string]any {
	ua := useragent.New(raw)
	browser, version := ua.Browser()
	return map[string]any{
		"browser": browser,
		"version": version,
		"os":      ua.OS(),
		"mobile":  ua.Mobile(),
		"bot":     ua.Bot(),
	}
}

// mergeTags combines the table tags with any producer-supplied
// complianceTags, canonicalized and deduplicated.
func mergeTags(base []string, data map[string]any) []string {
	extra, ok := data["complianceTags"].([]any)
	if !ok {
		return stringsutil.DedupeAndTrimLower(base)
	}
	merged := make([]string, 0, len(base)+len(extra))
	merged = append(merged, base...)
	for _, v := range extra {
		if s, ok := v.(string); ok {
			merged = append(merged, s)
		}
	}
	return stringsutil.DedupeAndTrimLower(merged)
}

// stringField returns the first non-empty value among keys, rendering JSON
// numbers as their canonical string form so numeric IDs survive decoding.
func stringField(data map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := data[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int:
			return strconv.Itoa(v)
		}
	}
	return ""
}
