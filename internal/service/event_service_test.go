package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/iconidentify/quickstage/internal/domain"
)

func TestEventService_Emit(t *testing.T) {
	svc := NewEventService(10, testLogger())

	svc.EmitInfo(domain.EventCategoryBatch, "test", "batch submitted", map[string]any{"items": 3})

	events := svc.Recent(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.Message != "batch submitted" {
		t.Errorf("Message = %q", e.Message)
	}
	if e.Severity != domain.EventSeverityInfo || e.Category != domain.EventCategoryBatch {
		t.Errorf("event = %+v", e)
	}
	if e.ID == "" || e.Timestamp.IsZero() {
		t.Error("Emit should assign an ID and timestamp")
	}
	if e.Fields["items"] != 3 {
		t.Errorf("Fields = %v", e.Fields)
	}
}

func TestEventService_RingBuffer(t *testing.T) {
	svc := NewEventService(5, testLogger())

	for i := 0; i < 10; i++ {
		svc.EmitInfo(domain.EventCategorySystem, "test", fmt.Sprintf("message %d", i), nil)
	}

	events := svc.Recent(0)
	if len(events) != 5 {
		t.Fatalf("expected 5 events (ring size), got %d", len(events))
	}
	if events[0].Message != "message 9" {
		t.Errorf("newest = %q, want message 9", events[0].Message)
	}
	if events[4].Message != "message 5" {
		t.Errorf("oldest = %q, want message 5", events[4].Message)
	}
	if stats := svc.Stats(); stats.BufferSize != 5 || stats.BufferUsed != 5 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestEventService_Query_Filter(t *testing.T) {
	svc := NewEventService(100, testLogger())

	svc.EmitInfo(domain.EventCategoryBatch, "batch_svc", "batch submitted", nil)
	svc.EmitError(domain.EventCategoryBatch, "materializer", "download failed for 2 item(s)", nil)
	svc.EmitWarning(domain.EventCategoryCache, "server", "low disk space", nil)
	svc.EmitSuccess(domain.EventCategoryBatch, "materializer", "materialized 4 item(s)", nil)
	svc.Emit(domain.Event{Severity: domain.EventSeverityInfo, Category: domain.EventCategoryBatch, Message: "refreshed", BatchID: "bat_1"})

	tests := []struct {
		name   string
		filter domain.EventFilter
		want   int
	}{
		{"no filter", domain.EventFilter{}, 5},
		{"severity", domain.EventFilter{Severity: domain.EventSeverityError}, 1},
		{"category", domain.EventFilter{Category: domain.EventCategoryCache}, 1},
		{"source", domain.EventFilter{Source: "materializer"}, 2},
		{"batch", domain.EventFilter{BatchID: "bat_1"}, 1},
		{"search case insensitive", domain.EventFilter{SearchText: "DISK"}, 1},
		{"combined", domain.EventFilter{Source: "materializer", Severity: domain.EventSeveritySuccess}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := svc.Query(context.Background(), domain.EventQuery{Filter: tt.filter, Limit: 10})
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if len(result.Events) != tt.want || result.Total != tt.want {
				t.Errorf("got %d events (total %d), want %d", len(result.Events), result.Total, tt.want)
			}
		})
	}
}

func TestEventService_Query_Pagination(t *testing.T) {
	svc := NewEventService(100, testLogger())
	for i := 0; i < 25; i++ {
		svc.EmitInfo(domain.EventCategorySystem, "test", fmt.Sprintf("m%d", i), nil)
	}

	page, _ := svc.Query(context.Background(), domain.EventQuery{Limit: 10, Offset: 20})
	if len(page.Events) != 5 || page.HasMore {
		t.Errorf("last page = %d events, HasMore %v", len(page.Events), page.HasMore)
	}

	page, _ = svc.Query(context.Background(), domain.EventQuery{Limit: 10})
	if len(page.Events) != 10 || !page.HasMore || page.Events[0].Message != "m24" {
		t.Errorf("first page = %d events, HasMore %v", len(page.Events), page.HasMore)
	}

	page, _ = svc.Query(context.Background(), domain.EventQuery{Offset: 100})
	if len(page.Events) != 0 || page.Total != 25 {
		t.Errorf("past end = %d events, total %d", len(page.Events), page.Total)
	}

	page, _ = svc.Query(context.Background(), domain.EventQuery{Limit: 1000})
	if len(page.Events) != 25 {
		t.Errorf("clamped limit returned %d events", len(page.Events))
	}
}

func TestEventService_ConcurrentEmit(t *testing.T) {
	svc := NewEventService(1000, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				svc.EmitInfo(domain.EventCategorySystem, "test", "concurrent", nil)
			}
		}()
	}
	wg.Wait()

	events := svc.Recent(0)
	if len(events) != 500 {
		t.Fatalf("expected 500 events, got %d", len(events))
	}
	seen := make(map[string]bool)
	for _, e := range events {
		if seen[e.ID] {
			t.Fatalf("duplicate event ID %q", e.ID)
		}
		seen[e.ID] = true
	}
}
