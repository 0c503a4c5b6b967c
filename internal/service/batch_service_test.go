package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/iconidentify/quickstage/internal/domain"
	"github.com/iconidentify/quickstage/internal/materializer"
	"github.com/iconidentify/quickstage/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockMaterializer returns a canned outcome and records what it was asked to do.
type mockMaterializer struct {
	mu     sync.Mutex
	calls  [][]domain.Item
	result *materializer.Result
	err    error
	// hook runs before returning, e.g. to refresh the batch mid-run.
	hook func()
}

func (m *mockMaterializer) Materialize(ctx context.Context, items []domain.Item) (*materializer.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, items)
	m.mu.Unlock()
	if m.hook != nil {
		m.hook()
	}
	return m.result, m.err
}

func newTestService(mat Materializer) (*BatchService, *repository.InMemoryBatchRepository, *EventService) {
	repo := repository.NewInMemoryBatchRepository()
	events := NewEventService(100, testLogger())
	return NewBatchService(repo, mat, events, testLogger()), repo, events
}

func TestBatchService_Submit(t *testing.T) {
	svc, _, events := newTestService(&mockMaterializer{})
	ctx := context.Background()

	batch, err := svc.Submit(ctx, []domain.Item{{Source: "https://x/a.png"}})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !strings.HasPrefix(string(batch.ID), "bat_") {
		t.Errorf("ID = %q, want bat_ prefix", batch.ID)
	}
	if batch.Status != domain.BatchStatusQueued || batch.Generation != 1 {
		t.Errorf("batch = %+v", batch)
	}

	stored, err := svc.Get(ctx, batch.ID)
	if err != nil || stored.ID != batch.ID {
		t.Errorf("Get() = %v, %v", stored, err)
	}

	result, _ := events.Query(ctx, domain.EventQuery{Filter: domain.EventFilter{BatchID: batch.ID}})
	if result.Total != 1 {
		t.Errorf("events for batch = %d, want 1", result.Total)
	}
}

func TestBatchService_Submit_Validation(t *testing.T) {
	svc, _, _ := newTestService(&mockMaterializer{})

	tests := []struct {
		name    string
		items   []domain.Item
		wantErr error
	}{
		{"no items", nil, domain.ErrNoItems},
		{"empty source", []domain.Item{{Source: "https://x/a"}, {Source: "  "}}, domain.ErrEmptySource},
		{"absolute path", []domain.Item{{Source: "/etc/passwd"}}, domain.ErrLocalSource},
		{"relative path", []domain.Item{{Source: "https://x/a"}, {Source: "notes.txt"}}, domain.ErrLocalSource},
		{"file url", []domain.Item{{Source: "file:///etc/hosts"}}, domain.ErrLocalSource},
		{"windows drive", []domain.Item{{Source: `C:\secret.txt`}}, domain.ErrLocalSource},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Submit(context.Background(), tt.items); !errors.Is(err, tt.wantErr) {
				t.Errorf("Submit() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBatchService_Process(t *testing.T) {
	okItems := []domain.MaterializedItem{{OriginalSource: "https://x/a.png", LocalPath: "/c/a.png", DisplayTitle: "a"}}
	derr := domain.NewDownloadError(map[string]error{
		"https://x/b.png": domain.NewFetchError("https://x/b.png", io.EOF),
	})

	tests := []struct {
		name         string
		result       *materializer.Result
		err          error
		wantStatus   domain.BatchStatus
		wantItems    int
		wantFailures int
		wantErr      error
	}{
		{
			name:       "completed",
			result:     &materializer.Result{Items: okItems},
			wantStatus: domain.BatchStatusCompleted,
			wantItems:  1,
		},
		{
			name:         "partial",
			result:       &materializer.Result{Items: okItems, Failures: derr},
			wantStatus:   domain.BatchStatusPartial,
			wantItems:    1,
			wantFailures: 1,
		},
		{
			name:         "total failure",
			err:          derr,
			wantStatus:   domain.BatchStatusFailed,
			wantFailures: 1,
			wantErr:      domain.ErrNothingToPresent,
		},
		{
			name:       "nothing to present",
			result:     &materializer.Result{Items: []domain.MaterializedItem{}},
			wantStatus: domain.BatchStatusFailed,
			wantErr:    domain.ErrNothingToPresent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mat := &mockMaterializer{result: tt.result, err: tt.err}
			svc, _, _ := newTestService(mat)
			ctx := context.Background()

			submitted, _ := svc.Submit(ctx, []domain.Item{{Source: "https://x/a.png"}, {Source: "https://x/b.png"}})
			batch, err := svc.Dequeue(ctx)
			if err != nil || batch.ID != submitted.ID {
				t.Fatalf("Dequeue() = %v, %v", batch, err)
			}

			err = svc.Process(ctx, batch)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Process() error = %v, want %v", err, tt.wantErr)
			}

			got, _ := svc.Get(ctx, batch.ID)
			if got.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", got.Status, tt.wantStatus)
			}
			if len(got.Materialized) != tt.wantItems {
				t.Errorf("Materialized = %d, want %d", len(got.Materialized), tt.wantItems)
			}
			if len(got.Failures) != tt.wantFailures {
				t.Errorf("Failures = %d, want %d", len(got.Failures), tt.wantFailures)
			}
			if got.CompletedAt == nil {
				t.Error("CompletedAt should be set")
			}
			if tt.wantErr != nil && got.Error == "" {
				t.Error("Error message should be recorded")
			}
			if len(mat.calls) != 1 || len(mat.calls[0]) != 2 {
				t.Errorf("materializer calls = %v", mat.calls)
			}
		})
	}
}

func TestBatchService_Refresh(t *testing.T) {
	mat := &mockMaterializer{result: &materializer.Result{Items: []domain.MaterializedItem{{OriginalSource: "a"}}}}
	svc, _, _ := newTestService(mat)
	ctx := context.Background()

	batch, _ := svc.Submit(ctx, []domain.Item{{Source: "https://x/a.png"}})
	running, _ := svc.Dequeue(ctx)
	svc.Process(ctx, running)

	refreshed, err := svc.Refresh(ctx, batch.ID, []domain.Item{{Source: "https://x/b.png"}, {Source: "https://x/c.png"}})
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if refreshed.Generation != 2 || refreshed.Status != domain.BatchStatusQueued {
		t.Errorf("refreshed = %+v", refreshed)
	}
	if refreshed.Materialized != nil || refreshed.CompletedAt != nil {
		t.Error("Refresh should clear the previous outcome")
	}

	next, err := svc.Dequeue(ctx)
	if err != nil || next.ID != batch.ID || len(next.Items) != 2 {
		t.Errorf("Dequeue after refresh = %+v, %v", next, err)
	}
}

func TestBatchService_Refresh_Errors(t *testing.T) {
	svc, _, _ := newTestService(&mockMaterializer{})
	ctx := context.Background()

	if _, err := svc.Refresh(ctx, "bat_missing", []domain.Item{{Source: "https://x/x.png"}}); !errors.Is(err, domain.ErrBatchNotFound) {
		t.Errorf("Refresh(missing) error = %v, want ErrBatchNotFound", err)
	}

	batch, _ := svc.Submit(ctx, []domain.Item{{Source: "https://x/x.png"}})
	if _, err := svc.Refresh(ctx, batch.ID, nil); !errors.Is(err, domain.ErrNoItems) {
		t.Errorf("Refresh(no items) error = %v, want ErrNoItems", err)
	}
	if _, err := svc.Refresh(ctx, batch.ID, []domain.Item{{Source: "/etc/passwd"}}); !errors.Is(err, domain.ErrLocalSource) {
		t.Errorf("Refresh(local) error = %v, want ErrLocalSource", err)
	}
	got, _ := svc.Get(ctx, batch.ID)
	if got.Generation != 1 {
		t.Error("a rejected refresh should not bump the generation")
	}
}

func TestBatchService_Process_DiscardsStaleRun(t *testing.T) {
	mat := &mockMaterializer{result: &materializer.Result{Items: []domain.MaterializedItem{{OriginalSource: "old"}}}}
	svc, _, _ := newTestService(mat)
	ctx := context.Background()

	batch, _ := svc.Submit(ctx, []domain.Item{{Source: "https://x/old.png"}})
	running, _ := svc.Dequeue(ctx)

	mat.hook = func() {
		if _, err := svc.Refresh(ctx, batch.ID, []domain.Item{{Source: "https://x/new.png"}}); err != nil {
			t.Errorf("Refresh during run failed: %v", err)
		}
	}

	if err := svc.Process(ctx, running); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	got, _ := svc.Get(ctx, batch.ID)
	if got.Status != domain.BatchStatusQueued || got.Generation != 2 {
		t.Errorf("batch = status %q gen %d, want queued gen 2", got.Status, got.Generation)
	}
	if got.Materialized != nil {
		t.Error("stale outcome should not be recorded")
	}
}

func TestBatchService_Item(t *testing.T) {
	mat := &mockMaterializer{result: &materializer.Result{Items: []domain.MaterializedItem{
		{OriginalSource: "a", LocalPath: "/c/a"},
		{OriginalSource: "b", LocalPath: "/c/b"},
	}}}
	svc, _, _ := newTestService(mat)
	ctx := context.Background()

	batch, _ := svc.Submit(ctx, []domain.Item{{Source: "https://x/a"}, {Source: "https://x/b"}})
	running, _ := svc.Dequeue(ctx)
	svc.Process(ctx, running)

	item, err := svc.Item(ctx, batch.ID, 1)
	if err != nil || item.LocalPath != "/c/b" {
		t.Errorf("Item(1) = %+v, %v", item, err)
	}
	for _, idx := range []int{-1, 2} {
		if _, err := svc.Item(ctx, batch.ID, idx); !errors.Is(err, domain.ErrItemNotFound) {
			t.Errorf("Item(%d) error = %v, want ErrItemNotFound", idx, err)
		}
	}
}

func TestBatchService_EndToEnd(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer ts.Close()

	cacheDir := filepath.Join(t.TempDir(), "cache")
	mat := materializer.New(materializer.Options{CacheDir: cacheDir, Logger: testLogger()})
	svc, _, events := newTestService(mat)
	ctx := context.Background()

	batch, _ := svc.Submit(ctx, []domain.Item{{Source: ts.URL + "/slide.txt", Title: "Slide"}})
	running, _ := svc.Dequeue(ctx)
	if err := svc.Process(ctx, running); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	got, _ := svc.Get(ctx, batch.ID)
	if got.Status != domain.BatchStatusCompleted || got.Materialized[0].DisplayTitle != "Slide" {
		t.Fatalf("batch = %+v", got)
	}
	if data, err := os.ReadFile(got.Materialized[0].LocalPath); err != nil || string(data) != "hello" {
		t.Errorf("cached file = %q, %v", data, err)
	}
	if events.Stats().BufferUsed == 0 {
		t.Error("expected events to be recorded")
	}
}

func TestDiskSpace(t *testing.T) {
	dir := t.TempDir()

	usage, err := DiskSpace(dir)
	if err != nil {
		t.Fatalf("DiskSpace() error = %v", err)
	}
	if usage.Total <= 0 || usage.Free < 0 || usage.Free > usage.Total {
		t.Errorf("usage = %+v", usage)
	}
	if FreeDiskSpace(dir+"/missing") != 0 {
		t.Error("FreeDiskSpace of a missing dir should be 0")
	}
	if err := CheckWritable(dir); err != nil {
		t.Errorf("CheckWritable() error = %v", err)
	}
	if err := CheckWritable(dir + "/missing"); err == nil {
		t.Error("CheckWritable should fail for a missing dir")
	}
}
