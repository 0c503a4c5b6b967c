package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/iconidentify/quickstage/internal/domain"
)

// ErrShutdownTimeout is returned when workers don't stop within timeout.
var ErrShutdownTimeout = errors.New("worker pool shutdown timed out")

// BatchProcessor hands out queued batches and runs them.
// service.BatchService implements it.
type BatchProcessor interface {
	Dequeue(ctx context.Context) (*domain.Batch, error)
	Process(ctx context.Context, batch *domain.Batch) error
}

// Pool manages a pool of workers that drain the batch queue.
type Pool struct {
	workers      int
	pollInterval time.Duration
	processor    BatchProcessor
	logger       *slog.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// Config holds worker pool configuration.
type Config struct {
	Workers      int
	PollInterval time.Duration
}

// NewPool creates a new worker pool.
func NewPool(cfg Config, processor BatchProcessor, logger *slog.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		workers:      cfg.Workers,
		pollInterval: cfg.PollInterval,
		processor:    processor,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start launches all workers.
func (p *Pool) Start() {
	p.logger.Info("starting worker pool", "workers", p.workers)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop cancels in-flight batches and waits for workers to exit.
func (p *Pool) Stop(timeout time.Duration) error {
	p.logger.Info("stopping worker pool")
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	logger := p.logger.With("worker_id", id)
	logger.Debug("worker started")

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			logger.Debug("worker stopping")
			return
		case <-ticker.C:
			// Drain everything queued before waiting for the next tick.
			for p.ctx.Err() == nil && p.processNext(logger) {
			}
		}
	}
}

// processNext runs one batch and reports whether there was one to run.
func (p *Pool) processNext(logger *slog.Logger) bool {
	batch, err := p.processor.Dequeue(p.ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNoBatches) {
			logger.Error("failed to dequeue batch", "error", err)
		}
		return false
	}

	logger = logger.With("batch_id", batch.ID, "generation", batch.Generation)
	logger.Info("processing batch", "items", len(batch.Items))

	start := time.Now()
	if err := p.processor.Process(p.ctx, batch); err != nil {
		logger.Warn("batch failed", "error", err, "duration", time.Since(start))
		return true
	}

	logger.Info("batch done", "duration", time.Since(start))
	return true
}
