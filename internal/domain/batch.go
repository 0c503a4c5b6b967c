package domain

import (
	"time"
)

// BatchID is a unique identifier for a batch.
type BatchID string

// String returns the string representation of the BatchID.
func (id BatchID) String() string {
	return string(id)
}

// BatchStatus represents the current state of a batch.
type BatchStatus string

const (
	BatchStatusQueued     BatchStatus = "queued"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusPartial    BatchStatus = "partial"
	BatchStatusFailed     BatchStatus = "failed"
)

// Batch is a list of items submitted for materialization together with the
// outcome of its most recent run.
type Batch struct {
	ID     BatchID     `json:"id"`
	Items  []Item      `json:"items"`
	Status BatchStatus `json:"status"`
	// Generation increments on every refresh. A run only records its outcome
	// while the batch is still at the generation it started with.
	Generation   int                `json:"generation"`
	Materialized []MaterializedItem `json:"materialized,omitempty"`
	Failures     map[string]string  `json:"failures,omitempty"`
	Error        string             `json:"error,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	CompletedAt  *time.Time         `json:"completed_at,omitempty"`
}

// NewBatch creates a queued batch for the given items.
func NewBatch(id BatchID, items []Item) *Batch {
	now := time.Now()
	return &Batch{
		ID:         id,
		Items:      append([]Item(nil), items...),
		Status:     BatchStatusQueued,
		Generation: 1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// IsTerminal reports whether the batch has finished its current run.
func (b *Batch) IsTerminal() bool {
	switch b.Status {
	case BatchStatusCompleted, BatchStatusPartial, BatchStatusFailed:
		return true
	}
	return false
}

// MarkProcessing updates the batch status to processing.
func (b *Batch) MarkProcessing() {
	b.Status = BatchStatusProcessing
	b.UpdatedAt = time.Now()
}

// Requeue replaces the items, bumps the generation and clears the previous outcome.
func (b *Batch) Requeue(items []Item) {
	b.Items = append([]Item(nil), items...)
	b.Generation++
	b.Status = BatchStatusQueued
	b.Materialized = nil
	b.Failures = nil
	b.Error = ""
	b.CompletedAt = nil
	b.UpdatedAt = time.Now()
}

// Complete records the outcome of a run. status must be terminal.
func (b *Batch) Complete(status BatchStatus, items []MaterializedItem, failures map[string]string, errMsg string) {
	now := time.Now()
	b.Status = status
	b.Materialized = items
	b.Failures = failures
	b.Error = errMsg
	b.UpdatedAt = now
	b.CompletedAt = &now
}

// Clone returns a deep copy so callers never share slices or maps with a repository.
func (b *Batch) Clone() *Batch {
	c := *b
	c.Items = append([]Item(nil), b.Items...)
	if b.Materialized != nil {
		c.Materialized = append([]MaterializedItem(nil), b.Materialized...)
	}
	if b.Failures != nil {
		c.Failures = make(map[string]string, len(b.Failures))
		for k, v := range b.Failures {
			c.Failures[k] = v
		}
	}
	if b.CompletedAt != nil {
		t := *b.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
