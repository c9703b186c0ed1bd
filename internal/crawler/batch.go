package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"catalogsync/internal/model"
	"catalogsync/internal/observability"
)

type FetcherOptions struct {
	ProductsURL string // template with {category_id} and {product_ids}
	ItemsPath   string
	BatchSize   int
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
	Delay       time.Duration
	Concurrency int
}

// Fetcher retrieves product documents in fixed-size batches.
type Fetcher struct {
	session *Session
	opts    FetcherOptions
	items   *Query
	id      *Query
	log     *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewFetcher(session *Session, opts FetcherOptions, fields FieldMap, log *zap.Logger) (*Fetcher, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.ItemsPath == "" {
		opts.ItemsPath = "products"
	}
	items, err := CompileQuery(opts.ItemsPath)
	if err != nil {
		return nil, err
	}
	return &Fetcher{
		session: session,
		opts:    opts,
		items:   items,
		id:      fields[FieldProductID],
		log:     log,
		sleep:   sleepCtx,
	}, nil
}

// Partition splits ids into consecutive chunks of at most size.
func Partition(ids []string, size int) [][]string {
	var out [][]string
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[i:end])
	}
	return out
}

// FetchCategory fetches every identifier of a category. A failed batch never
// stops the remaining ones. Results are returned in batch order.
func (f *Fetcher) FetchCategory(ctx context.Context, cat model.Category, ids []string) []BatchResult {
	batches := Partition(ids, f.opts.BatchSize)
	results := make([]BatchResult, len(batches))
	log := f.log.With(zap.String("category", cat.ID))

	if f.opts.Concurrency == 1 {
		for i, b := range batches {
			if i > 0 && f.opts.Delay > 0 {
				if err := f.sleep(ctx, f.opts.Delay); err != nil {
					results[i] = failed(i, b, 0, err)
					continue
				}
			}
			results[i] = f.fetchBatch(ctx, cat, i, b, log)
		}
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.opts.Concurrency)
	for i, b := range batches {
		if i > 0 && f.opts.Delay > 0 {
			if err := f.sleep(ctx, f.opts.Delay); err != nil {
				results[i] = failed(i, b, 0, err)
				continue
			}
		}
		g.Go(func() error {
			results[i] = f.fetchBatch(gctx, cat, i, b, log)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (f *Fetcher) fetchBatch(ctx context.Context, cat model.Category, idx int, ids []string, log *zap.Logger) BatchResult {
	start := time.Now()
	defer func() { observability.BatchDuration.Observe(time.Since(start).Seconds()) }()

	u := f.batchURL(cat, ids)
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= f.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := f.sleep(ctx, f.backoff(attempt-1)); err != nil {
				lastErr = err
				break
			}
		}

		attempts = attempt
		res, err := f.try(ctx, u, idx, ids)
		if err == nil {
			res.Attempts = attempt
			observability.BatchesTotal.WithLabelValues(res.Status.String()).Inc()
			if res.Status == BatchPartialFailure {
				log.Info("batch partially resolved",
					zap.Int("batch", idx),
					zap.Int("records", len(res.Records)),
					zap.Int("missing", len(res.FailedIDs)))
			}
			return res
		}
		lastErr = err
		log.Warn("batch attempt failed",
			zap.Int("batch", idx),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", f.opts.MaxAttempts),
			zap.Error(err))
		if !isRetryable(err) || ctx.Err() != nil {
			break
		}
	}

	res := failed(idx, ids, attempts, lastErr)
	observability.BatchesTotal.WithLabelValues(res.Status.String()).Inc()
	log.Error("batch failed", zap.Int("batch", idx), zap.Int("ids", len(ids)), zap.Error(res.Err))
	return res
}

func failed(idx int, ids []string, attempts int, err error) BatchResult {
	return BatchResult{
		Index:     idx,
		IDs:       ids,
		Status:    BatchFailure,
		FailedIDs: ids,
		Attempts:  attempts,
		Err:       fmt.Errorf("%w: %w", ErrBatchFailed, err),
	}
}

func (f *Fetcher) try(ctx context.Context, u string, idx int, ids []string) (BatchResult, error) {
	doc, err := f.session.GetJSON(ctx, "products", u)
	if err != nil {
		return BatchResult{}, err
	}
	items, ok := searchRaw(f.items, doc)
	if !ok {
		return BatchResult{}, fmt.Errorf("%w: no item list at %s", ErrMalformedBody, f.items)
	}

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	got := make(map[string]bool, len(items))
	var records []RawRecord
	for _, item := range items {
		id := f.id.Text(item)
		if !want[id] || got[id] {
			continue
		}
		got[id] = true
		records = append(records, RawRecord{ID: id, Doc: item})
	}

	res := BatchResult{Index: idx, IDs: ids, Records: records, Status: BatchSuccess}
	for _, id := range ids {
		if !got[id] {
			res.FailedIDs = append(res.FailedIDs, id)
		}
	}
	if len(res.FailedIDs) > 0 {
		res.Status = BatchPartialFailure
	}
	return res, nil
}

// searchRaw returns the first list q yields, empty lists included: an empty
// list means nothing was found while a missing one means an unexpected body.
func searchRaw(q *Query, doc any) ([]any, bool) {
	for _, c := range q.comp {
		v, err := c.Search(doc)
		if err != nil {
			continue
		}
		if list, ok := v.([]any); ok {
			return list, true
		}
	}
	return nil, false
}

func (f *Fetcher) batchURL(cat model.Category, ids []string) string {
	escaped := make([]string, len(ids))
	for i, id := range ids {
		escaped[i] = url.QueryEscape(id)
	}
	return strings.NewReplacer(
		"{category_id}", url.QueryEscape(cat.ID),
		"{product_ids}", strings.Join(escaped, "%2C"),
	).Replace(f.opts.ProductsURL)
}

func (f *Fetcher) backoff(retry int) time.Duration {
	d := f.opts.Backoff
	for i := 1; i < retry; i++ {
		d *= 2
		if d >= f.opts.MaxBackoff {
			return f.opts.MaxBackoff
		}
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
