package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"pos-service/internal/lock"
	"pos-service/internal/models"
	"pos-service/internal/service"
	"pos-service/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func setupRouter(t *testing.T, readiness ...Pinger) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mem := store.NewMemory()
	require.NoError(t, mem.UpsertProducts(context.Background(), []models.Product{
		{ID: "beer", Name: "Beer", Price: decimal.RequireFromString("10.00"), Active: true},
		{ID: "burger", Name: "Burger", Price: decimal.RequireFromString("25.50"), SendToKitchen: true, Active: true},
	}))

	coordinator := service.NewCoordinator(mem, lock.NewKeyedMutex(), lock.NewDedup(), nil, service.Options{})
	_, err := coordinator.InitializeTables(context.Background(), 20)
	require.NoError(t, err)

	router := gin.New()
	NewHandler(coordinator, readiness...).SetupRoutes(router)
	return router
}

func do(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestHealthAndReadiness(t *testing.T) {
	router := setupRouter(t, fakePinger{})
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/ready", nil).Code)

	down := setupRouter(t, fakePinger{err: errors.New("connection refused")})
	assert.Equal(t, http.StatusServiceUnavailable, do(t, down, http.MethodGet, "/ready", nil).Code)
}

func TestTableLifecycleOverHTTP(t *testing.T) {
	router := setupRouter(t)

	w := do(t, router, http.MethodGet, "/api/v1/tables", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var tables []models.Table
	decode(t, w, &tables)
	assert.Len(t, tables, 20)

	w = do(t, router, http.MethodPost, "/api/v1/tables/5/order", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var order models.Order
	decode(t, w, &order)
	assert.Equal(t, models.OrderStatusOpen, order.Status)

	w = do(t, router, http.MethodPost, "/api/v1/tables/5/order", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, router, http.MethodPost, "/api/v1/tables/5/order/items", gin.H{"productId": "beer"})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &order)
	require.Len(t, order.Items, 1)
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("10")))

	w = do(t, router, http.MethodPut, fmt.Sprintf("/api/v1/tables/5/order/items/%s", order.Items[0].ID), gin.H{"quantity": 3})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &order)
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("30")))

	w = do(t, router, http.MethodGet, "/api/v1/tables/5/order", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var active struct {
		Order *models.Order `json:"order"`
	}
	decode(t, w, &active)
	require.NotNil(t, active.Order)
	assert.Equal(t, order.ID, active.Order.ID)

	w = do(t, router, http.MethodPost, "/api/v1/tables/5/order/close", gin.H{"paymentMethod": "cash"})
	require.Equal(t, http.StatusOK, w.Code)
	var sale models.Sale
	decode(t, w, &sale)
	assert.Equal(t, models.PaymentCash, sale.PaymentMethod)
	assert.True(t, sale.TotalAmount.Equal(decimal.RequireFromString("30")))

	w = do(t, router, http.MethodGet, "/api/v1/tables/5/order", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"order": null}`, w.Body.String())

	w = do(t, router, http.MethodGet, "/api/v1/orders/"+order.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &order)
	assert.Equal(t, models.OrderStatusPaid, order.Status)

	w = do(t, router, http.MethodGet, "/api/v1/sales?paymentMethod=CASH", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sales []models.Sale
	decode(t, w, &sales)
	require.Len(t, sales, 1)

	w = do(t, router, http.MethodGet, "/api/v1/sales/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var summary service.SalesSummary
	decode(t, w, &summary)
	assert.Equal(t, 1, summary.Count)

	w = do(t, router, http.MethodDelete, "/api/v1/sales/"+sale.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, router, http.MethodDelete, "/api/v1/sales/"+sale.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAddItemIdempotencyKeyOverHTTP(t *testing.T) {
	router := setupRouter(t)
	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/api/v1/tables/2/order", nil).Code)

	body := gin.H{"productId": "burger", "quantity": 2}
	for i := 0; i < 3; i++ {
		w := do(t, router, http.MethodPost, "/api/v1/tables/2/order/items", body, IdempotencyKeyHeader, "abc")
		require.Equal(t, http.StatusOK, w.Code)
	}

	var active struct {
		Order *models.Order `json:"order"`
	}
	decode(t, do(t, router, http.MethodGet, "/api/v1/tables/2/order", nil), &active)
	require.NotNil(t, active.Order)
	require.Len(t, active.Order.Items, 1)
	assert.Equal(t, 2, active.Order.Items[0].Quantity)
	assert.True(t, active.Order.TotalAmount.Equal(decimal.RequireFromString("51")))
}

func TestErrorStatuses(t *testing.T) {
	router := setupRouter(t)
	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/api/v1/tables/1/order", nil).Code)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"bad table id", http.MethodGet, "/api/v1/tables/abc", nil, http.StatusBadRequest},
		{"unknown table", http.MethodGet, "/api/v1/tables/99", nil, http.StatusNotFound},
		{"unknown order", http.MethodGet, "/api/v1/orders/nope", nil, http.StatusNotFound},
		{"no active order", http.MethodPost, "/api/v1/tables/3/order/cancel", nil, http.StatusNotFound},
		{"unknown product", http.MethodPost, "/api/v1/tables/1/order/items", gin.H{"productId": "nope"}, http.StatusNotFound},
		{"zero quantity", http.MethodPost, "/api/v1/tables/1/order/items", gin.H{"productId": "beer", "quantity": 0}, http.StatusBadRequest},
		{"missing product id", http.MethodPost, "/api/v1/tables/1/order/items", gin.H{}, http.StatusBadRequest},
		{"unknown item", http.MethodDelete, "/api/v1/tables/1/order/items/nope", nil, http.StatusNotFound},
		{"empty order close", http.MethodPost, "/api/v1/tables/1/order/close", gin.H{"paymentMethod": "PIX"}, http.StatusBadRequest},
		{"bad payment method", http.MethodPost, "/api/v1/tables/1/order/close", gin.H{"paymentMethod": "GOLD"}, http.StatusBadRequest},
		{"alert on free table", http.MethodPut, "/api/v1/tables/4/alert", nil, http.StatusConflict},
		{"bad sales filter", http.MethodGet, "/api/v1/sales?date=yesterday", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(fmt.Errorf("x: %w", models.ErrNotFound)))
	assert.Equal(t, http.StatusConflict, statusFor(models.ErrConflict))
	assert.Equal(t, http.StatusConflict, statusFor(models.ErrInvalidState))
	assert.Equal(t, http.StatusBadRequest, statusFor(models.ErrValidation))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(models.ErrConnectivity))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}

func TestBadRequestsReportValidationKind(t *testing.T) {
	router := setupRouter(t)
	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/api/v1/tables/1/order", nil).Code)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
	}{
		{"bad table id", http.MethodPost, "/api/v1/tables/0/order", nil},
		{"missing product id", http.MethodPost, "/api/v1/tables/1/order/items", gin.H{}},
		{"missing quantity", http.MethodPut, "/api/v1/tables/1/order/items/x", gin.H{}},
		{"zero quantity", http.MethodPost, "/api/v1/tables/1/order/items", gin.H{"productId": "beer", "quantity": 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, tt.method, tt.path, tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

			var body map[string]interface{}
			decode(t, w, &body)
			assert.Equal(t, "validation", body["error"])
			assert.NotEmpty(t, body["details"])
		})
	}
}
