package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/quickstage/internal/domain"
	"github.com/iconidentify/quickstage/internal/filename"
	"github.com/iconidentify/quickstage/internal/service"
)

// BatchHandler handles batch HTTP requests.
type BatchHandler struct {
	svc    *service.BatchService
	logger *slog.Logger
}

// NewBatchHandler creates a new batch handler.
func NewBatchHandler(svc *service.BatchService, logger *slog.Logger) *BatchHandler {
	return &BatchHandler{
		svc:    svc,
		logger: logger,
	}
}

// ItemsRequest is the JSON body for submitting or refreshing a batch.
type ItemsRequest struct {
	Items []domain.Item `json:"items"`
}

// BatchResponse represents a batch in API responses.
type BatchResponse struct {
	ID           string                    `json:"id"`
	Status       string                    `json:"status"`
	Generation   int                       `json:"generation"`
	Done         bool                      `json:"done"`
	ItemCount    int                       `json:"item_count"`
	Items        []domain.Item             `json:"items"`
	Materialized []domain.MaterializedItem `json:"materialized,omitempty"`
	Failures     map[string]string         `json:"failures,omitempty"`
	Error        string                    `json:"error,omitempty"`
	CreatedAt    time.Time                 `json:"created_at"`
	UpdatedAt    time.Time                 `json:"updated_at"`
	CompletedAt  *time.Time                `json:"completed_at,omitempty"`
}

// BatchListResponse contains a page of batches.
type BatchListResponse struct {
	Batches []BatchResponse `json:"batches"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

func toBatchResponse(b *domain.Batch) BatchResponse {
	return BatchResponse{
		ID:           string(b.ID),
		Status:       string(b.Status),
		Generation:   b.Generation,
		Done:         b.IsTerminal(),
		ItemCount:    len(b.Items),
		Items:        b.Items,
		Materialized: b.Materialized,
		Failures:     b.Failures,
		Error:        b.Error,
		CreatedAt:    b.CreatedAt,
		UpdatedAt:    b.UpdatedAt,
		CompletedAt:  b.CompletedAt,
	}
}

// Submit handles POST /api/v1/batches.
func (h *BatchHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req ItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	batch, err := h.svc.Submit(r.Context(), req.Items)
	if err != nil {
		h.writeServiceError(w, err, "submit batch")
		return
	}

	writeJSON(w, http.StatusAccepted, toBatchResponse(batch))
}

// List handles GET /api/v1/batches.
func (h *BatchHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	offset := 0

	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	batches, total, err := h.svc.List(r.Context(), limit, offset)
	if err != nil {
		h.writeServiceError(w, err, "list batches")
		return
	}

	resp := BatchListResponse{
		Batches: make([]BatchResponse, 0, len(batches)),
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	}
	for _, b := range batches {
		resp.Batches = append(resp.Batches, toBatchResponse(b))
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/batches/{batchID}.
func (h *BatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := domain.BatchID(chi.URLParam(r, "batchID"))

	batch, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "get batch")
		return
	}

	writeJSON(w, http.StatusOK, toBatchResponse(batch))
}

// Refresh handles PUT /api/v1/batches/{batchID}. The batch takes the new
// items and is queued again under the next generation.
func (h *BatchHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	id := domain.BatchID(chi.URLParam(r, "batchID"))

	var req ItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	batch, err := h.svc.Refresh(r.Context(), id, req.Items)
	if err != nil {
		h.writeServiceError(w, err, "refresh batch")
		return
	}

	writeJSON(w, http.StatusAccepted, toBatchResponse(batch))
}

// ServeItem handles GET /api/v1/batches/{batchID}/items/{index} and streams
// the materialized file.
func (h *BatchHandler) ServeItem(w http.ResponseWriter, r *http.Request) {
	id := domain.BatchID(chi.URLParam(r, "batchID"))

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item index")
		return
	}

	item, err := h.svc.Item(r.Context(), id, index)
	if err != nil {
		h.writeServiceError(w, err, "get item")
		return
	}

	f, err := os.Open(item.LocalPath)
	if err != nil {
		h.logger.Warn("materialized file unavailable", "batch_id", id, "index", index, "path", item.LocalPath, "error", err)
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	name := filepath.Base(item.LocalPath)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename*=UTF-8''%s", filename.Encode(name)))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (h *BatchHandler) writeServiceError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, domain.ErrNoItems), errors.Is(err, domain.ErrEmptySource),
		errors.Is(err, domain.ErrLocalSource):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrBatchNotFound):
		writeError(w, http.StatusNotFound, "batch not found")
	case errors.Is(err, domain.ErrItemNotFound):
		writeError(w, http.StatusNotFound, "item not found")
	default:
		h.logger.Error("batch request failed", "op", op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
