// Package audit defines the event and entry types shared by the consumption
// and query paths.
package audit

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"audittrail/pkg/platform/sentinel"
)

// UnknownCorrelation is recorded when a producer omitted the correlation ID.
const UnknownCorrelation = "unknown"

// UnknownService is recorded when a producer omitted its service name.
const UnknownService = "unknown-service"

// EventMetadata carries cross-cutting fields propagated by producers.
type EventMetadata struct {
	CorrelationID string `json:"correlationId"`
	Version       string `json:"version"`
}

// EventMessage is the inbound wire contract. The broker owns the message
// until it is acknowledged; this struct exists only for one delivery attempt.
type EventMessage struct {
	EventID   string         `json:"eventId"`
	EventType string         `json:"eventType"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
	Data      map[string]any `json:"data"`
	Metadata  EventMetadata  `json:"metadata"`
}

// Domain returns the part of the event type before the first dot, e.g.
// "order" for "order.placed".
func (m *EventMessage) Domain() string {
	if i := strings.IndexByte(m.EventType, '.'); i > 0 {
		return m.EventType[:i]
	}
	return m.EventType
}

// CorrelationID returns the propagated correlation identifier, or
// UnknownCorrelation when the producer did not set one.
func (m *EventMessage) CorrelationID() string {
	if m.Metadata.CorrelationID == "" {
		return UnknownCorrelation
	}
	return m.Metadata.CorrelationID
}

// ServiceName returns the producing service, defaulting when absent.
func (m *EventMessage) ServiceName() string {
	if m.Source == "" {
		return UnknownService
	}
	return m.Source
}

// OccurredAt returns the event occurrence time, falling back to now for
// producers that omitted the timestamp.
func (m *EventMessage) OccurredAt() time.Time {
	if m.Timestamp.IsZero() {
		return time.Now().UTC()
	}
	return m.Timestamp
}

// Severity classifies how security-relevant an audited action is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is one of the four fixed levels. Unknown values
// are rejected at validation time, never silently defaulted.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Rank orders severities for sorting. Unknown values sort lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// Entry is one persisted audit record. Entries are append-only: once written
// they are never mutated, only deleted by the retention sweep.
type Entry struct {
	ID             uuid.UUID      `json:"id"`
	EventID        string         `json:"eventId"`
	CorrelationID  string         `json:"correlationId"`
	ActionType     string         `json:"actionType"`
	ServiceName    string         `json:"serviceName"`
	UserID         string         `json:"userId,omitempty"`
	UserType       string         `json:"userType,omitempty"`
	ResourceType   string         `json:"resourceType"`
	ResourceID     string         `json:"resourceId,omitempty"`
	EventData      map[string]any `json:"eventData,omitempty"`
	IPAddress      string         `json:"ipAddress,omitempty"`
	UserAgent      string         `json:"userAgent,omitempty"`
	Severity       Severity       `json:"severity"`
	ComplianceTags []string       `json:"complianceTags,omitempty"`
	Success        bool           `json:"success"`
	ErrorMessage   string         `json:"errorMessage,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
	RetentionUntil time.Time      `json:"retentionUntil"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// Validate enforces the persistence invariants. Entries failing validation
// are rejected at normalization time and never reach the store.
func (e *Entry) Validate() error {
	if e.ServiceName == "" {
		return fmt.Errorf("%w: entry requires a service name", sentinel.ErrInvalidInput)
	}
	if e.ActionType == "" {
		return fmt.Errorf("%w: entry requires an action type", sentinel.ErrInvalidInput)
	}
	if e.ResourceType == "" {
		return fmt.Errorf("%w: entry requires a resource type", sentinel.ErrInvalidInput)
	}
	if !e.Severity.Valid() {
		return fmt.Errorf("%w: unknown severity %q", sentinel.ErrInvalidInput, e.Severity)
	}
	return nil
}
