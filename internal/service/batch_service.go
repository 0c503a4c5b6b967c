package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/iconidentify/quickstage/internal/cache"
	"github.com/iconidentify/quickstage/internal/domain"
	"github.com/iconidentify/quickstage/internal/materializer"
	"github.com/iconidentify/quickstage/internal/repository"
)

// Materializer is the part of materializer.Materializer the service needs.
type Materializer interface {
	Materialize(ctx context.Context, items []domain.Item) (*materializer.Result, error)
}

// BatchService queues batches, runs them through the materializer and
// records their outcome.
type BatchService struct {
	repo   repository.BatchRepository
	mat    Materializer
	events domain.EventEmitter
	logger *slog.Logger
}

// NewBatchService creates a new batch service. events may be nil.
func NewBatchService(repo repository.BatchRepository, mat Materializer, events domain.EventEmitter, logger *slog.Logger) *BatchService {
	return &BatchService{
		repo:   repo,
		mat:    mat,
		events: events,
		logger: logger,
	}
}

// Submit validates items and queues them as a new batch. Only remote sources
// are accepted; local paths and file: URLs are rejected with ErrLocalSource.
func (s *BatchService) Submit(ctx context.Context, items []domain.Item) (*domain.Batch, error) {
	if err := validateItems(items); err != nil {
		return nil, err
	}

	batch := domain.NewBatch(newBatchID(), items)
	if err := s.repo.Create(ctx, batch); err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}

	s.logger.Info("batch queued", "batch_id", batch.ID, "items", len(items))
	s.emit(domain.EventSeverityInfo, batch.ID, fmt.Sprintf("batch queued with %d item(s)", len(items)))
	return batch, nil
}

// Refresh replaces the items of an existing batch, bumps its generation and
// queues it again. A run still in flight for the old generation is discarded
// when it finishes.
func (s *BatchService) Refresh(ctx context.Context, id domain.BatchID, items []domain.Item) (*domain.Batch, error) {
	if err := validateItems(items); err != nil {
		return nil, err
	}

	batch, err := s.repo.Update(ctx, id, func(b *domain.Batch) error {
		b.Requeue(items)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("batch refreshed", "batch_id", id, "generation", batch.Generation, "items", len(items))
	s.emit(domain.EventSeverityInfo, id, fmt.Sprintf("batch refreshed to generation %d", batch.Generation))
	return batch, nil
}

// Get returns a batch by ID.
func (s *BatchService) Get(ctx context.Context, id domain.BatchID) (*domain.Batch, error) {
	return s.repo.Get(ctx, id)
}

// List returns batches newest first with the total count.
func (s *BatchService) List(ctx context.Context, limit, offset int) ([]*domain.Batch, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// Item returns the materialized item at index of a finished batch.
func (s *BatchService) Item(ctx context.Context, id domain.BatchID, index int) (domain.MaterializedItem, error) {
	batch, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.MaterializedItem{}, err
	}
	if index < 0 || index >= len(batch.Materialized) {
		return domain.MaterializedItem{}, domain.ErrItemNotFound
	}
	return batch.Materialized[index], nil
}

// Stats returns queue statistics.
func (s *BatchService) Stats(ctx context.Context) (*repository.QueueStats, error) {
	return s.repo.Stats(ctx)
}

// Dequeue hands the next queued batch to a worker.
func (s *BatchService) Dequeue(ctx context.Context) (*domain.Batch, error) {
	return s.repo.Dequeue(ctx)
}

// Process materializes a dequeued batch and stores the outcome. The outcome
// is dropped if the batch was refreshed while it ran. The returned error is
// the batch's failure, if any.
func (s *BatchService) Process(ctx context.Context, batch *domain.Batch) error {
	logger := s.logger.With("batch_id", batch.ID, "generation", batch.Generation)

	res, runErr := s.mat.Materialize(materializer.WithBatchID(ctx, batch.ID), batch.Items)
	status, items, failures, outcomeErr := classify(res, runErr)

	_, err := s.repo.Update(ctx, batch.ID, func(b *domain.Batch) error {
		if b.Generation != batch.Generation {
			return domain.ErrStaleGeneration
		}
		msg := ""
		if outcomeErr != nil {
			msg = outcomeErr.Error()
		}
		b.Complete(status, items, failures, msg)
		return nil
	})
	if errors.Is(err, domain.ErrStaleGeneration) {
		logger.Info("discarding outcome of refreshed batch")
		return nil
	}
	if err != nil {
		return fmt.Errorf("store outcome: %w", err)
	}

	logger.Info("batch processed", "status", status, "materialized", len(items), "failed", len(failures))
	return outcomeErr
}

// classify maps a materializer outcome onto batch state.
func classify(res *materializer.Result, err error) (domain.BatchStatus, []domain.MaterializedItem, map[string]string, error) {
	if err != nil {
		var derr *domain.DownloadError
		if errors.As(err, &derr) {
			return domain.BatchStatusFailed, nil, derr.Messages(), &domain.PresentationError{Err: derr}
		}
		return domain.BatchStatusFailed, nil, nil, err
	}
	if len(res.Items) == 0 {
		return domain.BatchStatusFailed, nil, res.Failures.Messages(), &domain.PresentationError{}
	}
	if res.Failures != nil {
		return domain.BatchStatusPartial, res.Items, res.Failures.Messages(), nil
	}
	return domain.BatchStatusCompleted, res.Items, nil, nil
}

func (s *BatchService) emit(sev domain.EventSeverity, id domain.BatchID, message string) {
	if s.events == nil {
		return
	}
	s.events.Emit(domain.Event{
		Severity: sev,
		Category: domain.EventCategoryBatch,
		Source:   "batch_service",
		Message:  message,
		BatchID:  id,
	})
}

func validateItems(items []domain.Item) error {
	if len(items) == 0 {
		return domain.ErrNoItems
	}
	for i, item := range items {
		if strings.TrimSpace(item.Source) == "" {
			return fmt.Errorf("item %d: %w", i, domain.ErrEmptySource)
		}
		if cache.IsLocal(item.Source) {
			return fmt.Errorf("item %d: %w", i, domain.ErrLocalSource)
		}
	}
	return nil
}

func newBatchID() domain.BatchID {
	return domain.BatchID("bat_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}
