package embeddings

import (
	"context"
	"sync"

	"catalogsync/internal/model"
)

// EmbedAll embeds products in place. results[i] belongs to products[i].
func (e *Embedder) EmbedAll(ctx context.Context, products []model.Product) []Result {
	results := make([]Result, len(products))
	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < e.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = e.Embed(ctx, &products[i])
			}
		}()
	}

	for i := range products {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

// Counts tallies outcomes.
func Counts(results []Result) (embedded, skipped, failed int) {
	for _, r := range results {
		switch r.Outcome {
		case OutcomeEmbedded:
			embedded++
		case OutcomeSkipped:
			skipped++
		default:
			failed++
		}
	}
	return
}
