package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"catalogsync/internal/model"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.0 Safari/537.36"

// Site holds the per-retailer settings of the catalog file.
type Site struct {
	Brand              string              `mapstructure:"brand"`
	Source             string              `mapstructure:"source"`
	Currency           string              `mapstructure:"currency"`
	HomeURL            string              `mapstructure:"home_url"`
	StaticHost         string              `mapstructure:"static_host"`
	CategoryIDsURL     string              `mapstructure:"category_ids_url"`
	ProductsURL        string              `mapstructure:"products_url"`
	ProductURLTemplate string              `mapstructure:"product_url_template"`
	IDsPath            string              `mapstructure:"ids_path"`
	ItemsPath          string              `mapstructure:"items_path"`
	PriceMinorUnits    bool                `mapstructure:"price_minor_units"`
	Headers            map[string]string   `mapstructure:"headers"`
	Prewarm            []string            `mapstructure:"prewarm"`
	Fields             map[string][]string `mapstructure:"fields"`
}

type CategoryEntry struct {
	ID        string `mapstructure:"id"`
	Name      string `mapstructure:"name"`
	Gender    string `mapstructure:"gender"`
	Kind      string `mapstructure:"kind"`
	Snapshot  string `mapstructure:"snapshot"`
	RemoteURL string `mapstructure:"remote_url"`
	HTMLURL   string `mapstructure:"html_url"`
}

// Catalog is the declarative description of what to ingest.
type Catalog struct {
	Site         Site              `mapstructure:"site"`
	Categories   []CategoryEntry   `mapstructure:"categories"`
	CategoryTags map[string]string `mapstructure:"category_tags"`
}

// LoadCatalog reads the YAML catalog file at path.
func LoadCatalog(path string) (*Catalog, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("site.source", model.SourceScraper)
	v.SetDefault("site.currency", "EUR")
	v.SetDefault("site.ids_path", "productIds")
	v.SetDefault("site.items_path", "products")
	v.SetDefault("site.price_minor_units", true)
	v.SetDefault("site.headers", map[string]string{
		"User-Agent":      defaultUserAgent,
		"Accept":          "application/json, text/plain, */*",
		"Accept-Language": "en-GB,en;q=0.9",
	})

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var c Catalog
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) Validate() error {
	var errs []error
	if c.Site.ProductsURL == "" {
		errs = append(errs, errors.New("site.products_url is required"))
	}
	switch {
	case c.Site.ProductURLTemplate == "":
		errs = append(errs, errors.New("site.product_url_template is required"))
	case !strings.Contains(c.Site.ProductURLTemplate, "{product_id}"):
		errs = append(errs, errors.New("site.product_url_template must contain {product_id}"))
	case strings.Contains(c.Site.ProductURLTemplate, "{slug}"):
		errs = append(errs, errors.New("site.product_url_template must not contain {slug}"))
	}
	seen := make(map[string]bool, len(c.Categories))
	for i, cat := range c.Categories {
		if cat.ID == "" {
			errs = append(errs, fmt.Errorf("categories[%d]: id is required", i))
			continue
		}
		if seen[cat.ID] {
			errs = append(errs, fmt.Errorf("categories[%d]: duplicate id %s", i, cat.ID))
		}
		seen[cat.ID] = true
	}
	return errors.Join(errs...)
}

// CategoryList converts the catalog entries to descriptors, keeping file order.
func (c *Catalog) CategoryList() []model.Category {
	out := make([]model.Category, 0, len(c.Categories))
	for _, e := range c.Categories {
		name := e.Name
		if name == "" {
			name = e.ID
		}
		out = append(out, model.Category{
			ID:           e.ID,
			Name:         name,
			Gender:       strings.ToUpper(strings.TrimSpace(e.Gender)),
			Kind:         e.Kind,
			SnapshotPath: e.Snapshot,
			RemoteURL:    e.RemoteURL,
			HTMLURL:      e.HTMLURL,
		})
	}
	return out
}

// Select narrows categories to the comma-separated ids or names in scope.
// An empty scope or "all" keeps everything.
func Select(cats []model.Category, scope string) []model.Category {
	scope = strings.TrimSpace(scope)
	if scope == "" || strings.EqualFold(scope, "all") {
		return cats
	}
	want := make(map[string]bool)
	for _, s := range strings.Split(scope, ",") {
		if s = strings.TrimSpace(s); s != "" {
			want[strings.ToLower(s)] = true
		}
	}
	var out []model.Category
	for _, c := range cats {
		if want[strings.ToLower(c.ID)] || want[strings.ToLower(c.Name)] {
			out = append(out, c)
		}
	}
	return out
}
