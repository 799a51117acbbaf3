package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/service"
	"pos-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// IdempotencyKeyHeader carries the caller's request id for add item calls
const IdempotencyKeyHeader = "Idempotency-Key"

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	coordinator *service.Coordinator
	readiness   []Pinger
	logger      *zap.Logger
}

// NewHandler creates a new HTTP handler. The readiness probe pings every
// given dependency.
func NewHandler(coordinator *service.Coordinator, readiness ...Pinger) *Handler {
	return &Handler{
		coordinator: coordinator,
		readiness:   readiness,
		logger:      util.Named("http"),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(loggingMiddleware(h.logger))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/tables", h.listTables)
		v1.GET("/tables/:id", h.getTable)
		v1.GET("/tables/:id/order", h.getActiveOrder)
		v1.POST("/tables/:id/order", h.startOrder)
		v1.POST("/tables/:id/order/items", h.addItem)
		v1.PUT("/tables/:id/order/items/:itemId", h.updateQuantity)
		v1.DELETE("/tables/:id/order/items/:itemId", h.removeItem)
		v1.POST("/tables/:id/order/close", h.closeOrder)
		v1.POST("/tables/:id/order/cancel", h.cancelOrder)
		v1.PUT("/tables/:id/alert", h.setAlert)
		v1.DELETE("/tables/:id/alert", h.clearAlert)

		v1.GET("/orders/:id", h.getOrder)

		v1.GET("/sales", h.listSales)
		v1.GET("/sales/summary", h.salesSummary)
		v1.DELETE("/sales/:id", h.cancelSale)
	}
}

// AddItemRequest is the body of an add item call. Quantity defaults to 1.
type AddItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  *int   `json:"quantity"`
}

// UpdateQuantityRequest is the body of an update quantity call
type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

// CloseOrderRequest is the body of a close order call
type CloseOrderRequest struct {
	PaymentMethod string `json:"paymentMethod" binding:"required"`
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck fails while any dependency is unreachable
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	for _, p := range h.readiness {
		if err := p.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unavailable",
				"details": err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) listTables(c *gin.Context) {
	tables, err := h.coordinator.ListTables(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tables)
}

func (h *Handler) getTable(c *gin.Context) {
	tableID, ok := tableIDParam(c)
	if !ok {
		return
	}
	table, err := h.coordinator.GetTable(c.Request.Context(), tableID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, table)
}

func (h *Handler) getActiveOrder(c *gin.Context) {
	tableID, ok := tableIDParam(c)
	if !ok {
		return
	}
	order, err := h.coordinator.GetActiveOrder(c.Request.Context(), tableID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (h *Handler) startOrder(c *gin.Context) {
	tableID, ok := tableIDParam(c)
	if !ok {
		return
	}
	order, err := h.coordinator.StartOrder(c.Request.Context(), tableID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) addItem(c *gin.Context) {
	tableID, ok := tableIDParam(c)
	if !ok {
		return
	}

	var req AddItemRequest
	if !bindJSON(c, &req) {
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	order, err := h.coordinator.AddItem(c.Request.Context(), tableID, req.ProductID, quantity, c.GetHeader(IdempotencyKeyHeader))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) updateQuantity(c *gin.Context) {
	tableID, ok := tableIDParam(c)
	if !ok {
		return
	}

	var req UpdateQuantityRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.coordinator.UpdateQuantity(c.Request.Context(), tableID, c.Param("itemId"), *req.Quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) removeItem(c *gin.Context) {
	tableID, ok := tableIDParam(c)
	if !ok {
		return
	}
	order, err := h.coordinator.RemoveItem(c.Request.Context(), tableID, c.Param("itemId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) closeOrder(c *gin.Context) {
	tableID, ok := tableIDParam(c)
	if !ok {
		return
	}

	var req CloseOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	sale, err := h.coordinator.CloseOrder(c.Request.Context(), tableID, models.PaymentMethod(req.PaymentMethod))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

func (h *Handler) cancelOrder(c *gin.Context) {
	tableID, ok := tableIDParam(c)
	if !ok {
		return
	}
	order, err := h.coordinator.CancelOrder(c.Request.Context(), tableID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) setAlert(c *gin.Context) {
	tableID, ok := tableIDParam(c)
	if !ok {
		return
	}
	table, err := h.coordinator.SetAlert(c.Request.Context(), tableID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, table)
}

func (h *Handler) clearAlert(c *gin.Context) {
	tableID, ok := tableIDParam(c)
	if !ok {
		return
	}
	table, err := h.coordinator.ClearAlert(c.Request.Context(), tableID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, table)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.coordinator.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) listSales(c *gin.Context) {
	filter, err := h.salesFilter(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	sales, err := h.coordinator.ListSales(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sales)
}

func (h *Handler) salesSummary(c *gin.Context) {
	filter, err := h.salesFilter(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	summary, err := h.coordinator.SalesSummary(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) cancelSale(c *gin.Context) {
	if err := h.coordinator.CancelSale(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) salesFilter(c *gin.Context) (service.SalesFilter, error) {
	return service.ParseSalesFilter(
		c.Query("date"),
		c.Query("paymentMethod"),
		c.Query("product"),
		c.Query("sort"),
		c.Query("direction"),
		h.coordinator.Location(),
	)
}

// writeError maps an error kind to its HTTP status
func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, gin.H{
		"error":   service.ErrorKind(err),
		"details": err.Error(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict), errors.Is(err, models.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrConnectivity):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func tableIDParam(c *gin.Context) (int64, bool) {
	tableID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || tableID < 1 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation",
			"details": fmt.Sprintf("invalid table id %q", c.Param("id")),
		})
		return 0, false
	}
	return tableID, true
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation",
			"details": err.Error(),
		})
		return false
	}
	return true
}

// loggingMiddleware writes one structured line per request
func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
