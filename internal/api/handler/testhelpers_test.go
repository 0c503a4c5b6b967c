package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/quickstage/internal/domain"
	"github.com/iconidentify/quickstage/internal/materializer"
	"github.com/iconidentify/quickstage/internal/repository"
	"github.com/iconidentify/quickstage/internal/service"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockQueue is a test implementation of QueueStatser.
type mockQueue struct {
	stats    *repository.QueueStats
	statsErr error
}

func (m *mockQueue) Stats(ctx context.Context) (*repository.QueueStats, error) {
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	return m.stats, nil
}

// stubMaterializer returns a canned result for every batch.
type stubMaterializer struct {
	result *materializer.Result
	err    error
}

func (s *stubMaterializer) Materialize(ctx context.Context, items []domain.Item) (*materializer.Result, error) {
	return s.result, s.err
}

func newTestBatchHandler(mat service.Materializer) (*BatchHandler, *service.BatchService) {
	repo := repository.NewInMemoryBatchRepository()
	svc := service.NewBatchService(repo, mat, nil, testLogger())
	return NewBatchHandler(svc, testLogger()), svc
}

// serve routes req through a chi router so URL params resolve.
func serve(t *testing.T, method, pattern string, h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Method(method, pattern, h)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return bytes.NewReader(b)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}
