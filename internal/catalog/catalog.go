// Package catalog loads the product seed file. The catalog itself is owned
// by an external service; the seed only mirrors it into local storage.
package catalog

import (
	"fmt"
	"io"
	"os"
	"strings"

	"pos-service/internal/models"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type file struct {
	Products []entry `yaml:"products"`
}

type entry struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	Category      string `yaml:"category"`
	Price         string `yaml:"price"`
	SendToKitchen bool   `yaml:"send_to_kitchen"`
	Active        *bool  `yaml:"active"`
}

// LoadFile reads products from a YAML seed file
func LoadFile(path string) ([]models.Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// Load parses products from YAML. Products are active unless stated
// otherwise.
func Load(r io.Reader) ([]models.Product, error) {
	var doc file
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: failed to parse catalog: %w", models.ErrValidation, err)
	}

	products := make([]models.Product, 0, len(doc.Products))
	seen := make(map[string]bool, len(doc.Products))
	for i, e := range doc.Products {
		id := strings.TrimSpace(e.ID)
		if id == "" || strings.TrimSpace(e.Name) == "" {
			return nil, fmt.Errorf("%w: catalog entry %d needs id and name", models.ErrValidation, i)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate product id %q", models.ErrValidation, id)
		}
		seen[id] = true

		price, err := decimal.NewFromString(e.Price)
		if err != nil || price.IsNegative() {
			return nil, fmt.Errorf("%w: invalid price %q for product %q", models.ErrValidation, e.Price, id)
		}

		active := true
		if e.Active != nil {
			active = *e.Active
		}

		products = append(products, models.Product{
			ID:            id,
			Name:          e.Name,
			Category:      e.Category,
			Price:         price,
			SendToKitchen: e.SendToKitchen,
			Active:        active,
		})
	}
	return products, nil
}
