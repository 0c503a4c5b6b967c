package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/iconidentify/quickstage/internal/domain"
)

// InMemoryBatchRepository implements BatchRepository using in-memory storage.
// Batches are copied on the way in and out so callers never share state with
// the store.
type InMemoryBatchRepository struct {
	mu      sync.RWMutex
	batches map[domain.BatchID]*domain.Batch
	order   []domain.BatchID // creation order
	queue   []domain.BatchID // FIFO queue of queued batch IDs
	queued  map[domain.BatchID]bool
}

// NewInMemoryBatchRepository creates a new in-memory batch repository.
func NewInMemoryBatchRepository() *InMemoryBatchRepository {
	return &InMemoryBatchRepository{
		batches: make(map[domain.BatchID]*domain.Batch),
		queue:   make([]domain.BatchID, 0),
		queued:  make(map[domain.BatchID]bool),
	}
}

// Create stores a new batch and queues it.
func (r *InMemoryBatchRepository) Create(ctx context.Context, batch *domain.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.batches[batch.ID]; exists {
		return fmt.Errorf("batch %s already exists", batch.ID)
	}

	r.batches[batch.ID] = batch.Clone()
	r.order = append(r.order, batch.ID)
	r.enqueueLocked(batch.ID)
	return nil
}

// Dequeue retrieves the next queued batch (FIFO) and marks it processing.
func (r *InMemoryBatchRepository) Dequeue(ctx context.Context) (*domain.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for len(r.queue) > 0 {
		id := r.queue[0]
		r.queue = r.queue[1:]
		delete(r.queued, id)

		batch, ok := r.batches[id]
		if !ok || batch.Status != domain.BatchStatusQueued {
			continue
		}
		batch.MarkProcessing()
		return batch.Clone(), nil
	}

	return nil, domain.ErrNoBatches
}

// Get retrieves a batch by ID.
func (r *InMemoryBatchRepository) Get(ctx context.Context, id domain.BatchID) (*domain.Batch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	batch, ok := r.batches[id]
	if !ok {
		return nil, domain.ErrBatchNotFound
	}
	return batch.Clone(), nil
}

// List returns batches newest first along with the total count.
func (r *InMemoryBatchRepository) List(ctx context.Context, limit, offset int) ([]*domain.Batch, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := len(r.order)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []*domain.Batch{}, total, nil
	}

	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}

	result := make([]*domain.Batch, 0, end-offset)
	for i := offset; i < end; i++ {
		id := r.order[total-1-i]
		result = append(result, r.batches[id].Clone())
	}
	return result, total, nil
}

// Update applies fn to the stored batch. If fn returns an error the batch is
// left unchanged.
func (r *InMemoryBatchRepository) Update(ctx context.Context, id domain.BatchID, fn func(*domain.Batch) error) (*domain.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.batches[id]
	if !ok {
		return nil, domain.ErrBatchNotFound
	}

	working := stored.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}

	r.batches[id] = working
	if working.Status == domain.BatchStatusQueued {
		r.enqueueLocked(id)
	}
	return working.Clone(), nil
}

// Stats returns queue statistics.
func (r *InMemoryBatchRepository) Stats(ctx context.Context) (*QueueStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &QueueStats{}
	for _, batch := range r.batches {
		switch batch.Status {
		case domain.BatchStatusQueued:
			stats.Queued++
		case domain.BatchStatusProcessing:
			stats.Processing++
		case domain.BatchStatusCompleted:
			stats.Completed++
		case domain.BatchStatusPartial:
			stats.Partial++
		case domain.BatchStatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

func (r *InMemoryBatchRepository) enqueueLocked(id domain.BatchID) {
	if r.queued[id] {
		return
	}
	r.queued[id] = true
	r.queue = append(r.queue, id)
}
