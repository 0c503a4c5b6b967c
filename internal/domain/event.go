package domain

import (
	"time"
)

// EventSeverity represents the severity level of an event.
type EventSeverity string

const (
	EventSeverityInfo    EventSeverity = "info"
	EventSeverityWarning EventSeverity = "warning"
	EventSeverityError   EventSeverity = "error"
	EventSeveritySuccess EventSeverity = "success"
)

// EventCategory groups events for filtering.
type EventCategory string

const (
	EventCategoryBatch  EventCategory = "batch"
	EventCategoryCache  EventCategory = "cache"
	EventCategorySystem EventCategory = "system"
)

// Event is one entry of the in-memory activity log.
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Severity  EventSeverity  `json:"severity"`
	Category  EventCategory  `json:"category"`
	Message   string         `json:"message"`
	Source    string         `json:"source,omitempty"`
	BatchID   BatchID        `json:"batch_id,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// EventFilter specifies criteria for querying events. Zero values match everything.
type EventFilter struct {
	Severity   EventSeverity `json:"severity,omitempty"`
	Category   EventCategory `json:"category,omitempty"`
	Source     string        `json:"source,omitempty"`
	BatchID    BatchID       `json:"batch_id,omitempty"`
	SearchText string        `json:"search_text,omitempty"`
}

// EventEmitter is implemented by anything that records events.
type EventEmitter interface {
	Emit(event Event)
}

// EventQuery represents a query for events with pagination.
type EventQuery struct {
	Filter EventFilter `json:"filter"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// EventQueryResult contains the result of an event query.
type EventQueryResult struct {
	Events  []Event `json:"events"`
	Total   int     `json:"total"`
	HasMore bool    `json:"has_more"`
}
