package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/iconidentify/quickstage/internal/domain"
	"github.com/iconidentify/quickstage/internal/service"
)

func TestEventHandler_List(t *testing.T) {
	svc := service.NewEventService(100, testLogger())
	svc.EmitInfo(domain.EventCategoryBatch, "batch_service", "batch queued", nil)
	svc.EmitError(domain.EventCategoryBatch, "materializer", "download failed", nil)
	svc.EmitWarning(domain.EventCategoryCache, "server", "low disk space", nil)
	svc.Emit(domain.Event{Severity: domain.EventSeverityInfo, Category: domain.EventCategoryBatch, Message: "refreshed", BatchID: "bat_1"})

	handler := NewEventHandler(svc, testLogger())

	tests := []struct {
		name      string
		query     string
		wantLen   int
		wantTotal int
		wantLimit int
	}{
		{"all", "", 4, 4, 50},
		{"severity", "?severity=error", 1, 1, 50},
		{"category", "?category=cache", 1, 1, 50},
		{"source", "?source=materializer", 1, 1, 50},
		{"batch", "?batch_id=bat_1", 1, 1, 50},
		{"search", "?search=DISK", 1, 1, 50},
		{"paged", "?limit=2&offset=1", 2, 4, 2},
		{"clamped limit", "?limit=999", 4, 4, 200},
		{"no match", "?severity=success", 0, 0, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.List(w, httptest.NewRequest(http.MethodGet, "/api/v1/events"+tt.query, nil))

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			resp := decode[EventListResponse](t, w)
			if len(resp.Events) != tt.wantLen || resp.Total != tt.wantTotal || resp.Limit != tt.wantLimit {
				t.Errorf("got %d events, total %d, limit %d", len(resp.Events), resp.Total, resp.Limit)
			}
			if resp.Events == nil {
				t.Error("events should encode as an empty array, not null")
			}
			if resp.BufferSize != 100 {
				t.Errorf("BufferSize = %d, want 100", resp.BufferSize)
			}
		})
	}
}
