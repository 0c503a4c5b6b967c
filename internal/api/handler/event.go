package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/iconidentify/quickstage/internal/domain"
	"github.com/iconidentify/quickstage/internal/service"
)

// EventHandler handles event-related HTTP requests.
type EventHandler struct {
	eventSvc *service.EventService
	logger   *slog.Logger
}

// NewEventHandler creates a new event handler.
func NewEventHandler(eventSvc *service.EventService, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		eventSvc: eventSvc,
		logger:   logger,
	}
}

// EventListResponse contains paginated event list.
type EventListResponse struct {
	Events     []domain.Event `json:"events"`
	Total      int            `json:"total"`
	Limit      int            `json:"limit"`
	Offset     int            `json:"offset"`
	HasMore    bool           `json:"has_more"`
	BufferSize int            `json:"buffer_size"`
}

// List handles GET /api/v1/events
// Query parameters:
//   - severity: info, warning, error, success
//   - category: batch, cache, system
//   - source: emitting component
//   - batch_id: events of one batch
//   - search: case-insensitive match on the message
//   - limit: max events to return (default 50, max 200)
//   - offset: pagination offset
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := domain.EventQuery{
		Limit: 50,
		Filter: domain.EventFilter{
			Severity:   domain.EventSeverity(q.Get("severity")),
			Category:   domain.EventCategory(q.Get("category")),
			Source:     q.Get("source"),
			BatchID:    domain.BatchID(q.Get("batch_id")),
			SearchText: q.Get("search"),
		},
	}

	if l := q.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			query.Limit = min(parsed, 200)
		}
	}
	if o := q.Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			query.Offset = parsed
		}
	}

	result, err := h.eventSvc.Query(r.Context(), query)
	if err != nil {
		h.logger.Error("failed to query events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to query events")
		return
	}

	events := result.Events
	if events == nil {
		events = []domain.Event{}
	}

	writeJSON(w, http.StatusOK, EventListResponse{
		Events:     events,
		Total:      result.Total,
		Limit:      query.Limit,
		Offset:     query.Offset,
		HasMore:    result.HasMore,
		BufferSize: h.eventSvc.Stats().BufferSize,
	})
}
