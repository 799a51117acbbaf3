package service

import (
	"fmt"

	"pos-service/internal/models"

	"github.com/google/uuid"
)

// PriceLine builds a new order line from the product's current catalog
// entry. The price, name and kitchen flag are copied into the line and never
// looked up again.
func PriceLine(product *models.Product, quantity int) (models.OrderItem, error) {
	if quantity < 1 {
		return models.OrderItem{}, fmt.Errorf("%w: quantity must be at least 1, got %d", models.ErrValidation, quantity)
	}
	if product == nil {
		return models.OrderItem{}, fmt.Errorf("%w: product", models.ErrNotFound)
	}
	if !product.Active {
		return models.OrderItem{}, fmt.Errorf("%w: product %s is not active", models.ErrNotFound, product.ID)
	}

	return models.OrderItem{
		ID:            uuid.New().String(),
		ProductID:     product.ID,
		ProductName:   product.Name,
		PriceAtOrder:  product.Price,
		Quantity:      quantity,
		SendToKitchen: product.SendToKitchen,
	}, nil
}
