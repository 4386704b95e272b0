package configs

import (
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Product is a one-time purchasable item.
type Product struct {
	Amount  int64  `yaml:"amount"`
	PriceID string `yaml:"priceId"`
}

// Plan is a recurring subscription offer.
type Plan struct {
	Name    string `yaml:"name"`
	Amount  int64  `yaml:"amount"`
	PriceID string `yaml:"priceId"`
}

// Catalog lists everything the checkout endpoints are allowed to sell.
type Catalog struct {
	Currency string             `yaml:"currency"`
	Products map[string]Product `yaml:"products"`
	Plans    map[string]Plan    `yaml:"plans"`
}

// DefaultCatalog mirrors configs/catalog.yaml and is used when no catalog path is configured.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Currency: "usd",
		Products: map[string]Product{
			"pear":   {Amount: 5000, PriceID: "price_1PXpmPE0O9nAbsVmuOPuEFK2"},
			"banana": {Amount: 4000, PriceID: "price_1PY8YxE0O9nAbsVmgG0sQbdn"},
			"apple":  {Amount: 2000, PriceID: "price_1PY8svE0O9nAbsVmkcwjUv1q"},
		},
		Plans: map[string]Plan{
			"basic":    {Name: "Basic Fruit Delivery", Amount: 2000, PriceID: "price_1Pdw1nE0O9nAbsVm1W89XkGv"},
			"advanced": {Name: "Advanced Fruit Delivery", Amount: 3500, PriceID: "price_1Pdw3PE0O9nAbsVm5KY83RTR"},
			"deluxe":   {Name: "Deluxe Fruit Delivery", Amount: 10000, PriceID: "price_1Pdw4vE0O9nAbsVmbo2jDQDD"},
		},
	}
}

// LoadCatalog reads a YAML catalog from path. An empty path yields DefaultCatalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}

	log.Printf("Loading catalog from: %s", path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %q: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if cat.Currency == "" {
		cat.Currency = "usd"
	}
	if err := cat.validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

func (c *Catalog) validate() error {
	if len(c.Products) == 0 && len(c.Plans) == 0 {
		return fmt.Errorf("catalog has no products or plans")
	}
	for id, p := range c.Products {
		if p.Amount <= 0 {
			return fmt.Errorf("product %q: amount must be positive", id)
		}
	}
	for id, p := range c.Plans {
		if p.PriceID == "" {
			return fmt.Errorf("plan %q: priceId is required", id)
		}
	}
	return nil
}

// Product looks up a product by id.
func (c *Catalog) Product(id string) (Product, bool) {
	p, ok := c.Products[id]
	return p, ok
}

// Plan looks up a plan by id.
func (c *Catalog) Plan(id string) (Plan, bool) {
	p, ok := c.Plans[id]
	return p, ok
}

// PlanNameForPrice returns the display name of the plan sold at priceID.
// Unknown prices yield an empty string.
func (c *Catalog) PlanNameForPrice(priceID string) string {
	for _, p := range c.Plans {
		if p.PriceID != priceID {
			continue
		}
		if words := strings.Fields(p.Name); len(words) > 0 {
			return words[0]
		}
		return ""
	}
	return ""
}
