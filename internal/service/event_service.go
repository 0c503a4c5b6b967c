package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iconidentify/quickstage/internal/domain"
)

const (
	defaultEventQueryLimit = 50
	maxEventQueryLimit     = 200
)

// EventService keeps the most recent events in a fixed-size ring and mirrors
// each one to the logger.
type EventService struct {
	logger *slog.Logger

	mu    sync.RWMutex
	ring  []domain.Event
	next  int
	count int

	seq atomic.Uint64
}

// NewEventService creates an event log holding up to size events.
func NewEventService(size int, logger *slog.Logger) *EventService {
	if size <= 0 {
		size = 500
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventService{
		logger: logger,
		ring:   make([]domain.Event, size),
	}
}

// Emit records an event, assigning an ID and timestamp when missing.
func (s *EventService) Emit(event domain.Event) {
	if event.ID == "" {
		event.ID = fmt.Sprintf("evt_%d_%d", time.Now().UnixNano(), s.seq.Add(1))
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	s.mu.Lock()
	s.ring[s.next] = event
	s.next = (s.next + 1) % len(s.ring)
	if s.count < len(s.ring) {
		s.count++
	}
	s.mu.Unlock()

	level := slog.LevelInfo
	switch event.Severity {
	case domain.EventSeverityWarning:
		level = slog.LevelWarn
	case domain.EventSeverityError:
		level = slog.LevelError
	}
	attrs := []any{
		"event_id", event.ID,
		"category", event.Category,
		"severity", event.Severity,
		"source", event.Source,
	}
	if event.BatchID != "" {
		attrs = append(attrs, "batch_id", event.BatchID)
	}
	s.logger.Log(context.Background(), level, event.Message, attrs...)
}

// EmitInfo records an info event.
func (s *EventService) EmitInfo(category domain.EventCategory, source, message string, fields map[string]any) {
	s.emit(domain.EventSeverityInfo, category, source, message, fields)
}

// EmitWarning records a warning event.
func (s *EventService) EmitWarning(category domain.EventCategory, source, message string, fields map[string]any) {
	s.emit(domain.EventSeverityWarning, category, source, message, fields)
}

// EmitError records an error event.
func (s *EventService) EmitError(category domain.EventCategory, source, message string, fields map[string]any) {
	s.emit(domain.EventSeverityError, category, source, message, fields)
}

// EmitSuccess records a success event.
func (s *EventService) EmitSuccess(category domain.EventCategory, source, message string, fields map[string]any) {
	s.emit(domain.EventSeveritySuccess, category, source, message, fields)
}

func (s *EventService) emit(sev domain.EventSeverity, category domain.EventCategory, source, message string, fields map[string]any) {
	s.Emit(domain.Event{
		Severity: sev,
		Category: category,
		Source:   source,
		Message:  message,
		Fields:   fields,
	})
}

// Query returns matching events newest first, paginated.
func (s *EventService) Query(ctx context.Context, query domain.EventQuery) (*domain.EventQueryResult, error) {
	if query.Limit <= 0 {
		query.Limit = defaultEventQueryLimit
	}
	if query.Limit > maxEventQueryLimit {
		query.Limit = maxEventQueryLimit
	}
	if query.Offset < 0 {
		query.Offset = 0
	}

	var matched []domain.Event
	for _, event := range s.Recent(0) {
		if matchesFilter(event, query.Filter) {
			matched = append(matched, event)
		}
	}

	total := len(matched)
	if query.Offset >= total {
		return &domain.EventQueryResult{Events: []domain.Event{}, Total: total}, nil
	}
	end := query.Offset + query.Limit
	if end > total {
		end = total
	}
	return &domain.EventQueryResult{
		Events:  matched[query.Offset:end],
		Total:   total,
		HasMore: end < total,
	}, nil
}

// Recent returns up to n events, newest first. n <= 0 returns everything held.
func (s *EventService) Recent(n int) []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || n > s.count {
		n = s.count
	}
	out := make([]domain.Event, 0, n)
	for i := 0; i < n; i++ {
		idx := (s.next - 1 - i + len(s.ring)) % len(s.ring)
		out = append(out, s.ring[idx])
	}
	return out
}

// EventStats describes ring buffer usage.
type EventStats struct {
	BufferSize int `json:"buffer_size"`
	BufferUsed int `json:"buffer_used"`
}

// Stats returns ring buffer usage.
func (s *EventService) Stats() EventStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return EventStats{BufferSize: len(s.ring), BufferUsed: s.count}
}

func matchesFilter(event domain.Event, f domain.EventFilter) bool {
	if f.Severity != "" && event.Severity != f.Severity {
		return false
	}
	if f.Category != "" && event.Category != f.Category {
		return false
	}
	if f.Source != "" && event.Source != f.Source {
		return false
	}
	if f.BatchID != "" && event.BatchID != f.BatchID {
		return false
	}
	if f.SearchText != "" && !strings.Contains(strings.ToLower(event.Message), strings.ToLower(f.SearchText)) {
		return false
	}
	return true
}
