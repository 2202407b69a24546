package showfor

import (
	"encoding/json"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

type Product struct {
	Slug string `json:"slug" yaml:"slug"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

type Platform struct {
	Slug string `json:"slug" yaml:"slug"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// VersionInfo is a selectable product version covering the half-open
// range [MinVersion, MaxVersion).
type VersionInfo struct {
	Slug       string  `json:"slug" yaml:"slug"`
	Name       string  `json:"name,omitempty" yaml:"name,omitempty"`
	MinVersion float64 `json:"min_version" yaml:"min_version"`
	MaxVersion float64 `json:"max_version" yaml:"max_version"`
}

// Catalog is the showfor-data document: products, and per product the
// platforms and versions a reader may select. Versions are listed newest
// first. A Catalog must not be modified after first use.
type Catalog struct {
	Products  []Product                `json:"products" yaml:"products"`
	Platforms map[string][]Platform    `json:"platforms" yaml:"platforms"`
	Versions  map[string][]VersionInfo `json:"versions" yaml:"versions"`

	once sync.Once
	idx  catalogIndex
}

type catalogIndex struct {
	products  map[string]bool
	platforms map[string]bool
	// version slug -> owning product slug
	versionProduct map[string]string
	versions       map[string]VersionInfo
}

// ParseCatalogJSON decodes a showfor-data JSON document.
func ParseCatalogJSON(data []byte) (*Catalog, error) {
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}
	return &c, c.validate()
}

// ParseCatalogYAML decodes a catalog file.
func ParseCatalogYAML(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}
	return &c, c.validate()
}

func (c *Catalog) validate() error {
	if len(c.Products) == 0 {
		return fmt.Errorf("%w: no products", ErrInvalidCatalog)
	}
	seen := make(map[string]bool, len(c.Products))
	for _, p := range c.Products {
		if p.Slug == "" {
			return fmt.Errorf("%w: product without slug", ErrInvalidCatalog)
		}
		if seen[p.Slug] {
			return fmt.Errorf("%w: duplicate product %q", ErrInvalidCatalog, p.Slug)
		}
		seen[p.Slug] = true
	}
	for product, versions := range c.Versions {
		for _, v := range versions {
			if v.MaxVersion <= v.MinVersion {
				return fmt.Errorf("%w: version %s/%s has empty range", ErrInvalidCatalog, product, v.Slug)
			}
		}
	}
	return nil
}

func (c *Catalog) index() *catalogIndex {
	c.once.Do(func() {
		c.idx = catalogIndex{
			products:       make(map[string]bool),
			platforms:      make(map[string]bool),
			versionProduct: make(map[string]string),
			versions:       make(map[string]VersionInfo),
		}
		for _, p := range c.Products {
			c.idx.products[p.Slug] = true
		}
		for _, platforms := range c.Platforms {
			for _, p := range platforms {
				c.idx.platforms[p.Slug] = true
			}
		}
		for product, versions := range c.Versions {
			for _, v := range versions {
				c.idx.versionProduct[v.Slug] = product
				c.idx.versions[v.Slug] = v
			}
		}
	})
	return &c.idx
}

// HasProduct reports whether slug names a catalog product.
func (c *Catalog) HasProduct(slug string) bool { return c.index().products[slug] }

// HasPlatform reports whether slug names a platform of any product.
func (c *Catalog) HasPlatform(slug string) bool { return c.index().platforms[slug] }

// Version looks up a version slug and its owning product.
func (c *Catalog) Version(slug string) (v VersionInfo, product string, ok bool) {
	idx := c.index()
	product, ok = idx.versionProduct[slug]
	if !ok {
		return VersionInfo{}, "", false
	}
	return idx.versions[slug], product, true
}
