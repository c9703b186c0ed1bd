package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	SourceScraper = "scraper"

	GenderMan   = "MAN"
	GenderWoman = "WOMAN"

	CategoryFootwear  = "footwear"
	CategoryAccessory = "accessory"

	AvailabilityInStock    = "in_stock"
	AvailabilityOutOfStock = "out_of_stock"
	AvailabilityUnknown    = "unknown"
)

// Category describes one retailer category to ingest. Loaded once per run.
type Category struct {
	ID           string
	Name         string
	Gender       string
	Kind         string // explicit tag; empty defers to the tag table
	SnapshotPath string
	RemoteURL    string
	HTMLURL      string
}

// Product is the canonical record persisted to the products table.
// Nil pointers and a nil Embedding are stored as NULL.
type Product struct {
	ID            string
	ProductID     string
	Source        string
	ProductURL    string
	ImageURL      *string
	MediaSkipped  bool
	Brand         string
	Title         string
	Description   *string
	Category      *string
	Gender        string
	Price         decimal.NullDecimal
	Currency      string
	SecondHand    bool
	Sizes         *string
	Availability  string
	Metadata      json.RawMessage
	Embedding     []float32
	TextEmbedding []float32
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasImage reports whether the record has an image worth embedding.
func (p *Product) HasImage() bool {
	return p.ImageURL != nil && *p.ImageURL != "" && !p.MediaSkipped
}

// StringPtr returns nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
