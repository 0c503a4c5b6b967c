// Package materializer turns a list of item locators into local files,
// fetching remote items concurrently and caching them on disk.
package materializer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iconidentify/quickstage/internal/cache"
	"github.com/iconidentify/quickstage/internal/domain"
	"github.com/iconidentify/quickstage/internal/downloader"
	"github.com/iconidentify/quickstage/internal/filename"
)

// Options configures a Materializer.
type Options struct {
	// Fetcher retrieves remote items. Nil means downloader.Standard().
	Fetcher downloader.Fetcher
	// CacheDir receives remote items. Empty means cache.DefaultDir().
	CacheDir string
	// Concurrency bounds simultaneous fetches. Zero means unbounded.
	Concurrency int
	Logger      *slog.Logger
	Metrics     *Metrics
	Events      domain.EventEmitter
}

// Materializer resolves batches of items to local files.
type Materializer struct {
	fetcher     downloader.Fetcher
	resolver    *cache.Resolver
	concurrency int
	logger      *slog.Logger
	metrics     *Metrics
	events      domain.EventEmitter
}

// Result is the outcome of a batch that produced at least one item, or of an
// empty batch. Failures is nil when every item materialized.
type Result struct {
	Items    []domain.MaterializedItem
	Failures *domain.DownloadError
}

// Outcome is delivered once on the channel returned by Start.
type Outcome struct {
	Result *Result
	Err    error
}

// New creates a Materializer.
func New(opts Options) *Materializer {
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = downloader.Standard()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Materializer{
		fetcher:     fetcher,
		resolver:    cache.NewResolver(opts.CacheDir),
		concurrency: opts.Concurrency,
		logger:      logger,
		metrics:     opts.Metrics,
		events:      opts.Events,
	}
}

// CacheDir returns the directory remote items are stored in.
func (m *Materializer) CacheDir() string {
	return m.resolver.Dir
}

// Start materializes items in the background. The returned channel receives
// exactly one Outcome and is then closed.
func (m *Materializer) Start(ctx context.Context, items []domain.Item) <-chan Outcome {
	owned := make([]domain.Item, len(items))
	copy(owned, items)

	ch := make(chan Outcome, 1)
	go func() {
		defer close(ch)
		res, err := m.Materialize(ctx, owned)
		ch <- Outcome{Result: res, Err: err}
	}()
	return ch
}

// Materialize resolves every item to a local file and returns them in input
// order. Local items are used in place, remote items already in the cache are
// reused, and the rest are fetched concurrently. It returns a
// *domain.DownloadError only when no item succeeded; partial failures are
// reported in Result.Failures.
func (m *Materializer) Materialize(ctx context.Context, items []domain.Item) (*Result, error) {
	start := time.Now()
	logger := m.logger.With("items", len(items))
	if id := batchIDFrom(ctx); id != "" {
		logger = logger.With("batch_id", id)
	}

	b := newBatch(len(items), m.metrics)
	go b.collect()

	var pending []pendingItem
	for i, item := range items {
		o, p := m.plan(item)
		if p != nil {
			p.index = i
			pending = append(pending, *p)
			continue
		}
		o.index = i
		if o.err != nil {
			logger.Warn("local item unavailable", "source", item.Source, "error", o.err)
		}
		b.outcomes <- o
	}

	if len(pending) > 0 {
		logger.Debug("fetching remote items", "pending", len(pending), "cache_dir", m.resolver.Dir)

		g := new(errgroup.Group)
		if m.concurrency > 0 {
			g.SetLimit(m.concurrency)
		}
		for _, p := range pending {
			g.Go(func() error {
				o := m.fetchOne(ctx, logger, p)
				o.index = p.index
				b.outcomes <- o
				return nil
			})
		}
		_ = g.Wait()
	}

	close(b.outcomes)
	<-b.done

	res, err := report(items, b.successes, b.failures)
	m.finish(ctx, logger, res, err, time.Since(start))
	return res, err
}

// plan resolves local items and cache hits immediately. Anything else is
// returned as pending work.
func (m *Materializer) plan(item domain.Item) (itemOutcome, *pendingItem) {
	if cache.IsLocal(item.Source) {
		path, err := cache.StatLocal(item.Source)
		if err != nil {
			return itemOutcome{source: item.Source, err: domain.NewFetchError(item.Source, err)}, nil
		}
		stem, _ := filename.Derive(item.Source)
		return itemOutcome{
			source: item.Source,
			via:    viaLocal,
			item: domain.MaterializedItem{
				OriginalSource: item.Source,
				LocalPath:      path,
				DisplayTitle:   filename.Title(item, stem),
			},
		}, nil
	}

	name := filename.Resolve(item)
	dst := m.resolver.PathFor(name)
	if !m.resolver.Lookup(dst) {
		return itemOutcome{}, &pendingItem{item: item, name: name, dst: dst}
	}
	return itemOutcome{
		source: item.Source,
		via:    viaCache,
		item: domain.MaterializedItem{
			OriginalSource: item.Source,
			LocalPath:      dst,
			DisplayTitle:   name.Title,
		},
	}, nil
}

func (m *Materializer) fetchOne(ctx context.Context, logger *slog.Logger, p pendingItem) itemOutcome {
	source := p.item.Source
	fail := func(err *domain.ItemError) itemOutcome {
		logger.Warn("item failed", "source", source, "kind", err.Kind, "error", err.Err)
		return itemOutcome{source: source, err: err}
	}

	if err := ctx.Err(); err != nil {
		return fail(domain.NewFetchError(source, err))
	}

	done := m.metrics.fetchStarted()
	tmp, err := m.fetcher.Fetch(ctx, source)
	done()
	if err != nil {
		return fail(domain.NewFetchError(source, err))
	}
	if tmp == "" {
		return fail(domain.NewFetchError(source, downloader.ErrNoLocation))
	}

	if err := cache.Move(ctx, tmp, p.dst); err != nil {
		os.Remove(tmp)
		return fail(domain.NewStorageError(source, err))
	}

	logger.Debug("item cached", "source", source, "path", p.dst)
	return itemOutcome{
		source: source,
		via:    viaFetch,
		item: domain.MaterializedItem{
			OriginalSource: source,
			LocalPath:      p.dst,
			DisplayTitle:   p.name.Title,
		},
	}
}

func (m *Materializer) finish(ctx context.Context, logger *slog.Logger, res *Result, err error, elapsed time.Duration) {
	var (
		outcome  string
		severity domain.EventSeverity
		message  string
		fields   = map[string]any{"duration_ms": elapsed.Milliseconds()}
	)

	switch {
	case err != nil:
		outcome, severity = "failed", domain.EventSeverityError
		message = err.Error()
		var derr *domain.DownloadError
		if errors.As(err, &derr) {
			fields["failed"] = derr.Len()
		}
		logger.Error("batch failed", "error", err, "duration", elapsed)
	case res.Failures != nil:
		outcome, severity = "partial", domain.EventSeverityWarning
		message = fmt.Sprintf("materialized %d item(s), %d failed", len(res.Items), res.Failures.Len())
		fields["failed"] = res.Failures.Len()
		logger.Warn("batch partially materialized",
			"materialized", len(res.Items),
			"failed", res.Failures.Len(),
			"duration", elapsed,
		)
	case len(res.Items) == 0:
		outcome, severity = "empty", domain.EventSeverityInfo
		message = "empty batch"
		logger.Debug("empty batch")
	default:
		outcome, severity = "complete", domain.EventSeveritySuccess
		message = fmt.Sprintf("materialized %d item(s)", len(res.Items))
		logger.Info("batch materialized", "materialized", len(res.Items), "duration", elapsed)
	}
	if res != nil {
		fields["materialized"] = len(res.Items)
	}

	m.metrics.batchDone(outcome, elapsed)

	if m.events != nil {
		m.events.Emit(domain.Event{
			Timestamp: time.Now(),
			Severity:  severity,
			Category:  domain.EventCategoryBatch,
			Message:   message,
			Source:    "materializer",
			BatchID:   batchIDFrom(ctx),
			Fields:    fields,
		})
	}
}

// report builds the single outcome of a batch.
func report(items []domain.Item, successes []Placed, failures map[string]error) (*Result, error) {
	derr := domain.NewDownloadError(failures)
	if len(successes) == 0 && derr != nil {
		return nil, derr
	}
	return &Result{Items: Reassemble(items, successes), Failures: derr}, nil
}

type pendingItem struct {
	index int
	item  domain.Item
	name  filename.Name
	dst   string
}

type itemOutcome struct {
	index  int
	source string
	via    string
	item   domain.MaterializedItem
	err    error
}

// batch is the per-call state. Only collect writes successes and failures;
// readers wait on done.
type batch struct {
	outcomes  chan itemOutcome
	done      chan struct{}
	successes []Placed
	failures  map[string]error
	metrics   *Metrics
}

func newBatch(n int, metrics *Metrics) *batch {
	return &batch{
		outcomes:  make(chan itemOutcome, n),
		done:      make(chan struct{}),
		successes: make([]Placed, 0, n),
		metrics:   metrics,
	}
}

func (b *batch) collect() {
	defer close(b.done)
	for o := range b.outcomes {
		if o.err != nil {
			if b.failures == nil {
				b.failures = make(map[string]error)
			}
			b.failures[o.source] = o.err
			var itemErr *domain.ItemError
			if errors.As(o.err, &itemErr) {
				b.metrics.itemFailed(itemErr.Kind)
			}
			continue
		}
		b.successes = append(b.successes, Placed{Index: o.index, Item: o.item})
		b.metrics.itemResolved(o.via)
	}
}

type batchIDKey struct{}

// WithBatchID tags ctx so logs and events from Materialize carry id.
func WithBatchID(ctx context.Context, id domain.BatchID) context.Context {
	return context.WithValue(ctx, batchIDKey{}, id)
}

func batchIDFrom(ctx context.Context) domain.BatchID {
	id, _ := ctx.Value(batchIDKey{}).(domain.BatchID)
	return id
}
