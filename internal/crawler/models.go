package crawler

import (
	"errors"
	"fmt"
)

var (
	ErrNoIdentifiers   = errors.New("no product identifiers for category")
	ErrForbidden       = errors.New("forbidden by provider")
	ErrMalformedBody   = errors.New("malformed response body")
	ErrBatchFailed     = errors.New("batch failed after retries")
	ErrMalformedRecord = errors.New("malformed product record")
)

// RawRecord is one provider document together with the identifier it was
// matched to in the batch request.
type RawRecord struct {
	ID  string
	Doc any
}

// Field names accepted in the catalog's site.fields overrides.
const (
	FieldProductID         = "product_id"
	FieldTitle             = "title"
	FieldDescription       = "description"
	FieldPrice             = "price"
	FieldSizes             = "sizes"
	FieldAllSizes          = "all_sizes"
	FieldMedia             = "media"
	FieldImage             = "image"
	FieldRelatedCategories = "related_categories"
	FieldReference         = "reference"
	FieldColorName         = "color_name"
	FieldColorID           = "color_id"
	FieldComposition       = "composition"
	FieldAvailabilityDate  = "availability_date"
)

// DefaultFieldPaths matches the itxrest productsArray documents. Bundle
// products nest their detail under bundleProductSummaries, single products
// carry it at the top level.
var DefaultFieldPaths = map[string][]string{
	FieldProductID: {"id"},
	FieldTitle:     {"nameEn", "name"},
	FieldDescription: {
		"bundleProductSummaries[0].detail.longDescription",
		"bundleProductSummaries[0].detail.description",
		"detail.longDescription",
		"detail.description",
	},
	FieldPrice: {
		"bundleProductSummaries[0].detail.colors[0].sizes[0].price",
		"detail.colors[0].sizes[0].price",
	},
	FieldSizes: {
		"bundleProductSummaries[0].detail.colors[0].sizes[?isBuyable].name",
		"detail.colors[0].sizes[?isBuyable].name",
	},
	FieldAllSizes: {
		"bundleProductSummaries[0].detail.colors[0].sizes[].name",
		"detail.colors[0].sizes[].name",
	},
	FieldMedia: {
		"bundleProductSummaries[0].detail.xmedia[].xmediaItems[].medias[]",
		"detail.xmedia[].xmediaItems[].medias[]",
	},
	FieldImage: {
		"bundleProductSummaries[0].detail.colors[0].image.url",
		"detail.colors[0].image.url",
	},
	FieldRelatedCategories: {"relatedCategories[].id"},
	FieldReference: {
		"bundleProductSummaries[0].detail.colors[0].reference",
		"detail.colors[0].reference",
	},
	FieldColorName: {
		"bundleProductSummaries[0].detail.colors[0].name",
		"detail.colors[0].name",
	},
	FieldColorID: {
		"bundleProductSummaries[0].detail.colors[0].id",
		"detail.colors[0].id",
	},
	FieldComposition: {
		"bundleProductSummaries[0].detail.colors[0].composition",
		"detail.colors[0].composition",
	},
	FieldAvailabilityDate: {"bundleProductSummaries[0].availabilityDate", "availabilityDate"},
}

// FieldMap holds the compiled path for every canonical field.
type FieldMap map[string]*Query

// NewFieldMap compiles DefaultFieldPaths with overrides replacing whole
// entries.
func NewFieldMap(overrides map[string][]string) (FieldMap, error) {
	fm := make(FieldMap, len(DefaultFieldPaths))
	for name, exprs := range DefaultFieldPaths {
		if o, ok := overrides[name]; ok && len(o) > 0 {
			exprs = o
		}
		q, err := CompileQuery(exprs...)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		fm[name] = q
	}
	for name := range overrides {
		if _, ok := DefaultFieldPaths[name]; !ok {
			return nil, fmt.Errorf("unknown field %q", name)
		}
	}
	return fm, nil
}
