package repository

import (
	"context"

	"github.com/iconidentify/quickstage/internal/domain"
)

// BatchRepository stores batches and the queue of batches awaiting processing.
type BatchRepository interface {
	// Create stores a new batch and queues it.
	Create(ctx context.Context, batch *domain.Batch) error

	// Dequeue marks the oldest queued batch as processing and returns a copy.
	Dequeue(ctx context.Context) (*domain.Batch, error)

	// Get returns a copy of the batch.
	Get(ctx context.Context, id domain.BatchID) (*domain.Batch, error)

	// List returns copies of batches, newest first.
	List(ctx context.Context, limit, offset int) ([]*domain.Batch, int, error)

	// Update applies fn to the stored batch under the repository lock. A batch
	// left in the queued state is queued again.
	Update(ctx context.Context, id domain.BatchID, fn func(*domain.Batch) error) (*domain.Batch, error)

	// Stats returns queue statistics.
	Stats(ctx context.Context) (*QueueStats, error)
}

// QueueStats contains batch queue statistics.
type QueueStats struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Partial    int `json:"partial"`
	Failed     int `json:"failed"`
}

// Total returns the number of batches counted.
func (s *QueueStats) Total() int {
	return s.Queued + s.Processing + s.Completed + s.Partial + s.Failed
}
