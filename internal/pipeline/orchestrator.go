package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"catalogsync/internal/crawler"
	"catalogsync/internal/embeddings"
	"catalogsync/internal/model"
	"catalogsync/internal/observability"
)

type IDResolver interface {
	Resolve(ctx context.Context, cat model.Category) (crawler.IDResult, error)
}

type BatchFetcher interface {
	FetchCategory(ctx context.Context, cat model.Category, ids []string) []crawler.BatchResult
}

type RecordTransformer interface {
	Transform(cat model.Category, rec crawler.RawRecord) (model.Product, error)
}

type ImageEmbedder interface {
	EmbedAll(ctx context.Context, products []model.Product) []embeddings.Result
}

type TextEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Store interface {
	Ping(ctx context.Context) error
	UpsertAll(ctx context.Context, products []model.Product) []error
}

type Options struct {
	// Limit caps the identifiers handed to the fetcher across all
	// categories, in declaration order. Zero means no cap.
	Limit  int
	DryRun bool
}

// Orchestrator runs categories one after another through discovery, fetch,
// transform, embedding and storage.
type Orchestrator struct {
	IDs       IDResolver
	Fetcher   BatchFetcher
	Transform RecordTransformer
	Images    ImageEmbedder // nil when the encoder is down; image products then count as embed failures
	Text      TextEmbedder  // optional
	Store     Store
	Log       *zap.Logger
}

// Run only fails when the store is unreachable. Every other error is
// recorded in the category summary and the run moves on. Cancelling ctx stops
// the run before the next category; the current category finishes storing
// what it already fetched.
func (o *Orchestrator) Run(ctx context.Context, cats []model.Category, opts Options) (*Summary, error) {
	sum := &Summary{
		RunID:     uuid.NewString(),
		DryRun:    opts.DryRun,
		StartedAt: time.Now(),
		Limit:     opts.Limit,
	}
	log := o.Log.With(zap.String("run_id", sum.RunID))

	if !opts.DryRun {
		if err := o.Store.Ping(ctx); err != nil {
			sum.finish(false)
			return sum, err
		}
	}

	seen := make(map[string]struct{})
	admitted := 0
	cancelled := false

	for _, cat := range cats {
		if ctx.Err() != nil {
			log.Warn("run cancelled", zap.String("next_category", cat.ID))
			cancelled = true
			break
		}
		if opts.Limit > 0 && admitted >= opts.Limit {
			log.Info("global limit reached", zap.Int("limit", opts.Limit))
			break
		}

		remaining := -1
		if opts.Limit > 0 {
			remaining = opts.Limit - admitted
		}
		cs, n := o.runCategory(ctx, cat, seen, remaining, opts.DryRun)
		admitted += n
		sum.addCategory(cs)
	}

	sum.finish(cancelled)
	sum.Log(log)
	return sum, nil
}

// runCategory returns the category summary and the number of identifiers
// handed to the fetcher.
func (o *Orchestrator) runCategory(ctx context.Context, cat model.Category, seen map[string]struct{}, remaining int, dryRun bool) (cs *CategorySummary, admitted int) {
	start := time.Now()
	cs = &CategorySummary{ID: cat.ID, Name: cat.Name}
	log := o.Log.With(zap.String("category", cat.ID), zap.String("name", cat.Name))
	defer func() {
		cs.Duration = time.Since(start).Seconds()
		if r := recover(); r != nil {
			cs.Error = fmt.Sprintf("panic: %v", r)
			log.Error("category aborted", zap.Any("panic", r))
		}
	}()

	res, err := o.IDs.Resolve(ctx, cat)
	if err != nil {
		cs.Error = err.Error()
		log.Warn("no identifiers, skipping category", zap.Error(err))
		return cs, 0
	}
	cs.Origin = res.Origin
	cs.Counts.Discovered = len(res.IDs)
	observability.IncRecords("discover", res.Origin, len(res.IDs))

	ids := make([]string, 0, len(res.IDs))
	for _, id := range res.IDs {
		if _, dup := seen[id]; dup {
			cs.Counts.Duplicate++
			continue
		}
		ids = append(ids, id)
	}
	if remaining >= 0 && len(ids) > remaining {
		ids = ids[:remaining]
	}
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	observability.IncRecords("discover", "duplicate", cs.Counts.Duplicate)
	log.Info("identifiers resolved",
		zap.String("origin", res.Origin),
		zap.Int("discovered", len(res.IDs)),
		zap.Int("admitted", len(ids)))
	admitted = len(ids)
	if admitted == 0 {
		return cs, 0
	}

	var raw []crawler.RawRecord
	var errs []error
	for _, b := range o.Fetcher.FetchCategory(ctx, cat, ids) {
		switch b.Status {
		case crawler.BatchFailure:
			cs.Counts.BatchesFailed++
			cs.Counts.FetchFailed += len(b.IDs)
			errs = append(errs, b.Err)
		case crawler.BatchPartialFailure:
			cs.Counts.NotFound += len(b.FailedIDs)
		}
		cs.Counts.Fetched += len(b.Records)
		raw = append(raw, b.Records...)
	}
	observability.IncRecords("fetch", "ok", cs.Counts.Fetched)
	observability.IncRecords("fetch", "failed", cs.Counts.FetchFailed)
	observability.IncRecords("fetch", "not_found", cs.Counts.NotFound)
	if len(errs) > 0 {
		cs.Error = fmt.Sprintf("%d batches failed: %v", cs.Counts.BatchesFailed, errors.Join(errs...))
	}

	// The remaining stages finish even if the run is being cancelled so that
	// fetched records are not lost.
	work := context.WithoutCancel(ctx)

	products := make([]model.Product, 0, len(raw))
	for _, rec := range raw {
		p, err := o.Transform.Transform(cat, rec)
		if err != nil {
			cs.Counts.Skipped++
			log.Debug("record dropped", zap.String("product_id", rec.ID), zap.Error(err))
			continue
		}
		if p.MediaSkipped {
			cs.Counts.MediaSkipped++
		}
		p.Metadata = withOrigin(p.Metadata, res.Origin)
		products = append(products, p)
	}
	cs.Counts.Transformed = len(products)
	observability.IncRecords("transform", "ok", cs.Counts.Transformed)
	observability.IncRecords("transform", "malformed", cs.Counts.Skipped)
	observability.IncRecords("transform", "media_skipped", cs.Counts.MediaSkipped)

	if o.Images != nil {
		embedded, _, failed := embeddings.Counts(o.Images.EmbedAll(work, products))
		cs.Counts.Embedded, cs.Counts.EmbedFailed = embedded, failed
		observability.IncRecords("embed", "ok", embedded)
		observability.IncRecords("embed", "failed", failed)
	} else {
		// no encoder for this run: every product that had an image to embed is a failure
		for i := range products {
			if products[i].HasImage() {
				cs.Counts.EmbedFailed++
			}
		}
		observability.IncRecords("embed", "failed", cs.Counts.EmbedFailed)
	}

	if o.Text != nil {
		for i := range products {
			vec, err := o.Text.Embed(work, crawler.ProductToText(&products[i]))
			if err != nil {
				cs.Counts.TextEmbedFailed++
				log.Debug("text embedding failed", zap.String("product_id", products[i].ProductID), zap.Error(err))
				continue
			}
			products[i].TextEmbedding = vec
			cs.Counts.TextEmbedded++
		}
		observability.IncRecords("text_embed", "ok", cs.Counts.TextEmbedded)
		observability.IncRecords("text_embed", "failed", cs.Counts.TextEmbedFailed)
	}

	if dryRun {
		log.Info("dry run, nothing stored", zap.Int("products", len(products)))
		return cs, admitted
	}

	for i, err := range o.Store.UpsertAll(work, products) {
		if err != nil {
			cs.Counts.StoreFailed++
			log.Warn("store failed", zap.String("product_url", products[i].ProductURL), zap.Error(err))
			continue
		}
		cs.Counts.Stored++
	}
	observability.IncRecords("store", "ok", cs.Counts.Stored)
	observability.IncRecords("store", "failed", cs.Counts.StoreFailed)

	log.Info("category done", zap.Object("counts", cs.Counts))
	return cs, admitted
}

func withOrigin(meta json.RawMessage, origin string) json.RawMessage {
	m := map[string]any{}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &m); err != nil {
			return meta
		}
	}
	m["ids_origin"] = origin
	b, err := json.Marshal(m)
	if err != nil {
		return meta
	}
	return b
}
