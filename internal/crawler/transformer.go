package crawler

import (
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"catalogsync/internal/model"
)

var (
	tagRe     = regexp.MustCompile(`<[^>]*>`)
	slugRe    = regexp.MustCompile(`[^a-z0-9]+`)
	spacesRe  = regexp.MustCompile(`[ \t]+`)
	priceRe   = regexp.MustCompile(`[^0-9.,]`)
	hundred   = decimal.NewFromInt(100)
	minorUnit = decimal.NewFromInt(1000)
)

func stripHTML(s string) string {
	s = strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n").Replace(s)
	s = html.UnescapeString(tagRe.ReplaceAllString(s, ""))
	return strings.TrimSpace(spacesRe.ReplaceAllString(s, " "))
}

// Slugify lowercases s and joins alphanumeric runs with dashes.
func Slugify(s string) string {
	return strings.Trim(slugRe.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// NormalizeGender maps free-form gender labels to MAN or WOMAN.
func NormalizeGender(s string) string {
	g := strings.ToUpper(strings.TrimSpace(s))
	switch {
	case g == "":
		return ""
	case g == model.GenderMan || g == model.GenderWoman:
		return g
	}
	for _, w := range []string{"WOMEN", "WOMAN", "FEMALE", "LADY", "GIRL"} {
		if strings.Contains(g, w) {
			return model.GenderWoman
		}
	}
	for _, w := range []string{"MEN", "MAN", "MALE", "GUY", "BOY"} {
		if strings.Contains(g, w) {
			return model.GenderMan
		}
	}
	return g
}

type TransformerOptions struct {
	Brand              string
	Source             string
	Currency           string
	StaticHost         string
	ProductURLTemplate string // must contain {product_id}; nothing title-derived
	PriceMinorUnits    bool
	CategoryTags       map[string]string // category id -> footwear/accessory
}

// Transformer maps provider documents to canonical products.
type Transformer struct {
	opts   TransformerOptions
	fields FieldMap
}

func NewTransformer(opts TransformerOptions, fields FieldMap) *Transformer {
	if opts.Source == "" {
		opts.Source = model.SourceScraper
	}
	if opts.Currency == "" {
		opts.Currency = "EUR"
	}
	return &Transformer{opts: opts, fields: fields}
}

// Transform returns ErrMalformedRecord when the document has no identifier or
// no title. Embedding is left unset.
func (t *Transformer) Transform(cat model.Category, rec RawRecord) (model.Product, error) {
	doc := rec.Doc
	id := rec.ID
	if id == "" {
		id = t.fields[FieldProductID].Text(doc)
	}
	if id == "" {
		return model.Product{}, fmt.Errorf("%w: missing product id", ErrMalformedRecord)
	}
	title := strings.TrimSpace(t.fields[FieldTitle].Text(doc))
	if title == "" {
		return model.Product{}, fmt.Errorf("%w: product %s has no title", ErrMalformedRecord, id)
	}

	p := model.Product{
		ProductID:    id,
		Source:       t.opts.Source,
		Brand:        t.opts.Brand,
		Title:        title,
		Description:  model.StringPtr(stripHTML(t.fields[FieldDescription].Text(doc))),
		Category:     t.categoryTag(cat, doc),
		Gender:       NormalizeGender(cat.Gender),
		Price:        t.price(t.fields[FieldPrice].Search(doc)),
		Currency:     t.opts.Currency,
		SecondHand:   false,
		Availability: model.AvailabilityUnknown,
	}
	p.ProductURL = t.productURL(id)

	medias, _ := t.fields[FieldMedia].Search(doc).([]any)
	choice := SelectMedia(medias, t.fields[FieldImage].Text(doc), t.opts.StaticHost)
	if !choice.Skipped {
		p.ImageURL = model.StringPtr(choice.URL)
	}
	p.MediaSkipped = choice.Skipped

	sizes := t.fields[FieldSizes].Strings(doc)
	if len(sizes) > 0 {
		joined := strings.Join(sizes, ", ")
		p.Sizes = &joined
		p.Availability = model.AvailabilityInStock
	} else if len(t.fields[FieldAllSizes].Strings(doc)) > 0 {
		p.Availability = model.AvailabilityOutOfStock
	}

	p.Metadata = t.metadata(cat, doc, title, sizes, choice)
	return p, nil
}

// productURL builds the business key from the provider id alone, so a renamed
// product or a nameEn/name fallback still lands on the same row.
func (t *Transformer) productURL(id string) string {
	return strings.ReplaceAll(t.opts.ProductURLTemplate, "{product_id}", id)
}

// categoryTag consults the static table: explicit descriptor kind first, then
// the descriptor id, then the record's related categories. Plain apparel has
// no tag.
func (t *Transformer) categoryTag(cat model.Category, doc any) *string {
	if cat.Kind != "" {
		return model.StringPtr(cat.Kind)
	}
	if tag, ok := t.opts.CategoryTags[cat.ID]; ok {
		return model.StringPtr(tag)
	}
	for _, rel := range t.fields[FieldRelatedCategories].Strings(doc) {
		if tag, ok := t.opts.CategoryTags[rel]; ok {
			return model.StringPtr(tag)
		}
	}
	return nil
}

// price parses provider prices. itxrest sends minor units ("2599" = 25.99);
// other sources are scaled only when an integer looks like minor units.
func (t *Transformer) price(v any) decimal.NullDecimal {
	s, ok := AsString(v)
	if !ok || s == "" {
		return decimal.NullDecimal{}
	}
	s = normalizeNumber(priceRe.ReplaceAllString(s, ""))
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	integral := !strings.Contains(s, ".")
	if integral && (t.opts.PriceMinorUnits || d.GreaterThanOrEqual(minorUnit)) {
		d = d.Div(hundred)
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// normalizeNumber turns "1.299,00", "1,299.00" and "25,99" into plain
// decimal notation. The separator that appears last is the decimal one.
func normalizeNumber(s string) string {
	dot, comma := strings.LastIndex(s, "."), strings.LastIndex(s, ",")
	if comma > dot {
		s = strings.ReplaceAll(s, ".", "")
		i := strings.LastIndex(s, ",")
		return strings.ReplaceAll(s[:i], ",", "") + "." + s[i+1:]
	}
	s = strings.ReplaceAll(s, ",", "")
	if strings.Count(s, ".") > 1 {
		i := strings.LastIndex(s, ".")
		s = strings.ReplaceAll(s[:i], ".", "") + s[i:]
	}
	return s
}

func (t *Transformer) metadata(cat model.Category, doc any, title string, sizes []string, media MediaChoice) json.RawMessage {
	meta := map[string]any{
		"category_id":   cat.ID,
		"category_name": cat.Name,
		"slug":          Slugify(title),
	}
	set := func(key string, v any) {
		if !isEmpty(v) {
			meta[key] = v
		}
	}
	set("reference", t.fields[FieldReference].Text(doc))
	set("color_name", t.fields[FieldColorName].Text(doc))
	set("color_id", t.fields[FieldColorID].Text(doc))
	set("composition", t.fields[FieldComposition].Search(doc))
	set("availability_date", t.fields[FieldAvailabilityDate].Text(doc))
	set("related_categories", t.fields[FieldRelatedCategories].Strings(doc))
	if len(sizes) > 0 {
		meta["sizes"] = sizes
	}
	if media.Skipped {
		meta["skipped_media_url"] = media.URL
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

// ProductToText renders the product card used for the text embedding.
func ProductToText(p *model.Product) string {
	var sb strings.Builder

	sb.WriteString(p.Title + "\n\n")
	if p.Description != nil {
		sb.WriteString(*p.Description + "\n\n")
	}

	if p.Brand != "" {
		sb.WriteString("Brand: " + p.Brand + "\n")
	}
	if p.Category != nil {
		sb.WriteString("Category: " + *p.Category + "\n")
	}
	if p.Gender != "" {
		sb.WriteString("Gender: " + p.Gender + "\n")
	}
	if p.Price.Valid {
		sb.WriteString("Price: " + p.Price.Decimal.StringFixed(2) + " " + p.Currency + "\n")
	}
	if p.Sizes != nil {
		sb.WriteString("Sizes: " + *p.Sizes + "\n")
	}
	return sb.String()
}
