package embeddings

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"catalogsync/internal/model"
)

var (
	ErrFetchImage  = errors.New("fetch image")
	ErrDecodeImage = errors.New("decode image")
	ErrEncode      = errors.New("encode image")
)

type Outcome int

const (
	OutcomeEmbedded Outcome = iota
	OutcomeSkipped
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEmbedded:
		return "embedded"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

type Result struct {
	Outcome Outcome
	Err     error
}

// ImageFetcher downloads image bytes. *crawler.Session satisfies it.
type ImageFetcher interface {
	Get(ctx context.Context, target, url string, extra http.Header) ([]byte, error)
}

type EmbedderOptions struct {
	Referer string
	Workers int
	Size    int
}

// Embedder attaches image vectors to products. Image download and decoding
// run on a small worker pool; the encoder sees one request at a time.
type Embedder struct {
	fetcher ImageFetcher
	enc     Encoder
	opts    EmbedderOptions
	log     *zap.Logger

	encMu sync.Mutex
}

func NewEmbedder(fetcher ImageFetcher, enc Encoder, opts EmbedderOptions, log *zap.Logger) *Embedder {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Size <= 0 {
		opts.Size = ImageSize
	}
	return &Embedder{fetcher: fetcher, enc: enc, opts: opts, log: log}
}

// Embed sets p.Embedding on success. Products without a usable image are
// skipped; any failure leaves the embedding nil so the record is still stored.
func (e *Embedder) Embed(ctx context.Context, p *model.Product) Result {
	if !p.HasImage() {
		return Result{Outcome: OutcomeSkipped}
	}
	vec, err := e.Vector(ctx, *p.ImageURL)
	if err != nil {
		p.Embedding = nil
		e.log.Warn("embedding failed",
			zap.String("product_id", p.ProductID),
			zap.String("image_url", *p.ImageURL),
			zap.Error(err))
		return Result{Outcome: OutcomeFailed, Err: err}
	}
	p.Embedding = vec
	return Result{Outcome: OutcomeEmbedded}
}

// Vector downloads, preprocesses and encodes one image.
func (e *Embedder) Vector(ctx context.Context, imageURL string) ([]float32, error) {
	var extra http.Header
	if e.opts.Referer != "" {
		extra = http.Header{"Referer": []string{e.opts.Referer}}
	}
	b, err := e.fetcher.Get(ctx, "image", imageURL, extra)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchImage, err)
	}
	t, err := PreprocessBytes(b, e.opts.Size)
	if err != nil {
		return nil, err
	}

	e.encMu.Lock()
	defer e.encMu.Unlock()
	return e.enc.Encode(ctx, t)
}
