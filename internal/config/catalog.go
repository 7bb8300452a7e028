package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Family groups categories by their completion path.
type Family string

const (
	FamilyRMP Family = "RMP"
	FamilyDMP Family = "DMP"
)

// Category is one selectable photo type.
type Category struct {
	Name       string `yaml:"name"`
	Family     Family `yaml:"family"`
	Competitor bool   `yaml:"competitor"`
}

// IsDMP reports whether a brand must be chosen for this category.
func (c Category) IsDMP() bool {
	return c.Family == FamilyDMP
}

// IsCompetitor reports whether the category ends with a count instead of a photo.
func (c Category) IsCompetitor() bool {
	return c.IsDMP() && c.Competitor
}

// RequiresPhoto reports whether the flow for this category ends with a photo.
func (c Category) RequiresPhoto() bool {
	return !c.IsCompetitor()
}

type catalogFile struct {
	Categories []Category `yaml:"categories"`
	Brands     struct {
		Orimi      []string `yaml:"orimi"`
		Competitor []string `yaml:"competitor"`
	} `yaml:"brands"`
}

// Catalog is the immutable set of categories and brands. Accessors return copies.
type Catalog struct {
	categories       []Category
	orimiBrands      []string
	competitorBrands []string
}

// LoadCatalog reads a catalog file, or the embedded default when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
}

// ParseCatalog decodes and validates catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	c := &Catalog{
		categories:       slices.Clone(file.Categories),
		orimiBrands:      slices.Clone(file.Brands.Orimi),
		competitorBrands: slices.Clone(file.Brands.Competitor),
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	return c, nil
}

func (c *Catalog) validate() error {
	if len(c.categories) == 0 {
		return errors.New("no categories")
	}
	seen := make(map[string]bool, len(c.categories))
	var needOrimi, needCompetitor bool
	for _, cat := range c.categories {
		if cat.Name == "" {
			return errors.New("category without a name")
		}
		if seen[cat.Name] {
			return fmt.Errorf("duplicate category %q", cat.Name)
		}
		seen[cat.Name] = true
		switch cat.Family {
		case FamilyRMP:
			if cat.Competitor {
				return fmt.Errorf("category %q: only DMP categories can be competitor", cat.Name)
			}
		case FamilyDMP:
			if cat.Competitor {
				needCompetitor = true
			} else {
				needOrimi = true
			}
		default:
			return fmt.Errorf("category %q: unknown family %q", cat.Name, cat.Family)
		}
	}
	if needOrimi && len(c.orimiBrands) == 0 {
		return errors.New("DMP categories need orimi brands")
	}
	if needCompetitor && len(c.competitorBrands) == 0 {
		return errors.New("competitor categories need competitor brands")
	}
	return nil
}

// Categories returns all categories in display order.
func (c *Catalog) Categories() []Category {
	return slices.Clone(c.categories)
}

// CategoryNames returns category names in display order.
func (c *Catalog) CategoryNames() []string {
	names := make([]string, 0, len(c.categories))
	for _, cat := range c.categories {
		names = append(names, cat.Name)
	}
	return names
}

// Category looks up a category by exact name.
func (c *Catalog) Category(name string) (Category, bool) {
	for _, cat := range c.categories {
		if cat.Name == name {
			return cat, true
		}
	}
	return Category{}, false
}

// OrimiBrands returns brand set A.
func (c *Catalog) OrimiBrands() []string {
	return slices.Clone(c.orimiBrands)
}

// CompetitorBrands returns brand set B.
func (c *Catalog) CompetitorBrands() []string {
	return slices.Clone(c.competitorBrands)
}

// IsCompetitorBrand reports membership in brand set B.
func (c *Catalog) IsCompetitorBrand(brand string) bool {
	return slices.Contains(c.competitorBrands, brand)
}
