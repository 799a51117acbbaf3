package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pos-service/internal/models"
)

// GetProduct retrieves a catalog product by ID
func (r *txRepo) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := r.tx.GetContext(ctx, &product,
		"SELECT id, name, category, price, send_to_kitchen, active FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: product %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, classify(err)
	}
	return &product, nil
}
