package service

import (
	"errors"
	"testing"

	"pos-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceLine(t *testing.T) {
	product := &models.Product{
		ID:            "p-burger",
		Name:          "Burger",
		Price:         decimal.RequireFromString("10.00"),
		SendToKitchen: true,
		Active:        true,
	}

	line, err := PriceLine(product, 2)
	require.NoError(t, err)

	assert.NotEmpty(t, line.ID)
	assert.Equal(t, "p-burger", line.ProductID)
	assert.Equal(t, "Burger", line.ProductName)
	assert.True(t, line.PriceAtOrder.Equal(decimal.RequireFromString("10.00")))
	assert.Equal(t, 2, line.Quantity)
	assert.True(t, line.SendToKitchen)
	assert.True(t, line.Subtotal().Equal(decimal.RequireFromString("20.00")))

	product.Price = decimal.RequireFromString("12.00")
	assert.True(t, line.PriceAtOrder.Equal(decimal.RequireFromString("10.00")))
}

func TestPriceLineRejects(t *testing.T) {
	active := &models.Product{ID: "p", Name: "P", Price: decimal.NewFromInt(1), Active: true}
	inactive := &models.Product{ID: "p", Name: "P", Price: decimal.NewFromInt(1)}

	tests := []struct {
		name     string
		product  *models.Product
		quantity int
		want     error
	}{
		{"zero quantity", active, 0, models.ErrValidation},
		{"negative quantity", active, -3, models.ErrValidation},
		{"missing product", nil, 1, models.ErrNotFound},
		{"inactive product", inactive, 1, models.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PriceLine(tt.product, tt.quantity)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}
