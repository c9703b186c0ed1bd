package pipeline

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Counts are the per-stage tallies of one category or of the whole run.
type Counts struct {
	Discovered      int `json:"discovered"`
	Duplicate       int `json:"duplicate"`
	Fetched         int `json:"fetched"`
	FetchFailed     int `json:"fetch_failed"`
	BatchesFailed   int `json:"batches_failed"`
	NotFound        int `json:"not_found"`
	Transformed     int `json:"transformed"`
	Skipped         int `json:"skipped"`
	MediaSkipped    int `json:"media_skipped"`
	Embedded        int `json:"embedded"`
	EmbedFailed     int `json:"embed_failed"`
	TextEmbedded    int `json:"text_embedded"`
	TextEmbedFailed int `json:"text_embed_failed"`
	Stored          int `json:"stored"`
	StoreFailed     int `json:"store_failed"`
}

func (c *Counts) Add(o Counts) {
	c.Discovered += o.Discovered
	c.Duplicate += o.Duplicate
	c.Fetched += o.Fetched
	c.FetchFailed += o.FetchFailed
	c.BatchesFailed += o.BatchesFailed
	c.NotFound += o.NotFound
	c.Transformed += o.Transformed
	c.Skipped += o.Skipped
	c.MediaSkipped += o.MediaSkipped
	c.Embedded += o.Embedded
	c.EmbedFailed += o.EmbedFailed
	c.TextEmbedded += o.TextEmbedded
	c.TextEmbedFailed += o.TextEmbedFailed
	c.Stored += o.Stored
	c.StoreFailed += o.StoreFailed
}

func (c Counts) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt("discovered", c.Discovered)
	enc.AddInt("duplicate", c.Duplicate)
	enc.AddInt("fetched", c.Fetched)
	enc.AddInt("fetch_failed", c.FetchFailed)
	enc.AddInt("batches_failed", c.BatchesFailed)
	enc.AddInt("not_found", c.NotFound)
	enc.AddInt("transformed", c.Transformed)
	enc.AddInt("skipped", c.Skipped)
	enc.AddInt("media_skipped", c.MediaSkipped)
	enc.AddInt("embedded", c.Embedded)
	enc.AddInt("embed_failed", c.EmbedFailed)
	enc.AddInt("text_embedded", c.TextEmbedded)
	enc.AddInt("text_embed_failed", c.TextEmbedFailed)
	enc.AddInt("stored", c.Stored)
	enc.AddInt("store_failed", c.StoreFailed)
	return nil
}

type CategorySummary struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Origin   string  `json:"origin,omitempty"`
	Counts   Counts  `json:"counts"`
	Duration float64 `json:"duration_seconds"`
	Error    string  `json:"error,omitempty"`
}

// Summary is the run report. It is safe for concurrent use.
type Summary struct {
	mu sync.Mutex

	RunID      string             `json:"run_id"`
	DryRun     bool               `json:"dry_run"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Cancelled  bool               `json:"cancelled"`
	Limit      int                `json:"limit,omitempty"`
	Categories []*CategorySummary `json:"categories"`
	Totals     Counts             `json:"totals"`
}

func (s *Summary) addCategory(c *CategorySummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Categories = append(s.Categories, c)
	s.Totals.Add(c.Counts)
}

func (s *Summary) finish(cancelled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FinishedAt = time.Now()
	s.Cancelled = cancelled
}

func (s *Summary) TotalsSnapshot() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Totals
}

func (s *Summary) JSON() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.MarshalIndent(s, "", "  ")
}

// Log writes one line per category and one for the totals.
func (s *Summary) Log(log *zap.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.Categories {
		log.Info("category summary",
			zap.String("category", c.ID),
			zap.String("name", c.Name),
			zap.String("origin", c.Origin),
			zap.Object("counts", c.Counts),
			zap.Float64("duration_seconds", c.Duration),
			zap.String("error", c.Error))
	}
	log.Info("run summary",
		zap.String("run_id", s.RunID),
		zap.Int("categories", len(s.Categories)),
		zap.Object("totals", s.Totals),
		zap.Bool("cancelled", s.Cancelled),
		zap.Duration("duration", s.FinishedAt.Sub(s.StartedAt)))
}
