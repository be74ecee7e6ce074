package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/nathanyu/matching-engine/internal/domain"
	"github.com/nathanyu/matching-engine/internal/middleware"
	"github.com/nathanyu/matching-engine/internal/sequencer"
	"github.com/nathanyu/matching-engine/internal/telemetry"
)

// OrderService is the engine surface the HTTP API needs. *sequencer.Sequencer
// implements it.
type OrderService interface {
	Asset() string
	Submit(ctx context.Context, req domain.OrderRequest) ([]domain.OrderResult, error)
	RestingOrders(ctx context.Context, side domain.Side) ([]domain.Order, error)
	Levels(ctx context.Context, side domain.Side, depth int) ([]domain.PriceLevel, error)
}

// Handler holds the HTTP handler dependencies.
type Handler struct {
	service OrderService
	timeout time.Duration
	logger  *slog.Logger
}

// NewHandler creates a new Handler. timeout bounds how long a request waits
// for the sequencer.
func NewHandler(service OrderService, timeout time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "http")),
	}
}

// RegisterRoutes sets up the Gin routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	v1 := r.Group("/v1")
	{
		v1.POST("/order", h.PlaceOrder)
		v1.GET("/orderbook/:side", h.GetOrderBook)
	}
}

// Health returns a health check response.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "matching-engine",
		"asset":   h.service.Asset(),
	})
}

// PlaceOrderRequest is the request body for placing an order. Price may be
// sent as a JSON string or number.
type PlaceOrderRequest struct {
	Side     string          `json:"side" binding:"required"`
	Quantity uint64          `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// PlaceOrderResponse lists every event the order produced.
type PlaceOrderResponse struct {
	Asset   string               `json:"asset"`
	Results []domain.OrderResult `json:"results"`
}

// PlaceOrder handles POST /v1/order.
func (h *Handler) PlaceOrder(c *gin.Context) {
	var body PlaceOrderRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.reject(c, err)
		return
	}

	side, err := domain.ParseSide(body.Side)
	if err != nil {
		h.reject(c, err)
		return
	}

	req := domain.OrderRequest{Side: side, Quantity: body.Quantity, Price: body.Price}
	if err := req.Validate(); err != nil {
		h.reject(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	results, err := h.service.Submit(ctx, req)
	if err != nil {
		h.fail(c, err)
		return
	}

	for _, r := range results {
		h.logger.InfoContext(ctx, r.String(), slog.String("request_id", c.GetString(middleware.RequestIDKey)))
	}

	c.JSON(http.StatusCreated, PlaceOrderResponse{
		Asset:   h.service.Asset(),
		Results: results,
	})
}

// OrderBookResponse is one side of the book.
type OrderBookResponse struct {
	Asset  string              `json:"asset"`
	Side   domain.Side         `json:"side"`
	Orders []domain.Order      `json:"orders"`
	Levels []domain.PriceLevel `json:"levels"`
}

// GetOrderBook handles GET /v1/orderbook/:side. depth limits the number of
// aggregated levels; 0 or absent returns all of them.
func (h *Handler) GetOrderBook(c *gin.Context) {
	side, err := domain.ParseSide(c.Param("side"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	depth := 0
	if depthStr := c.Query("depth"); depthStr != "" {
		depth, err = strconv.Atoi(depthStr)
		if err != nil || depth < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "depth must be a non-negative integer"})
			return
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	orders, err := h.service.RestingOrders(ctx, side)
	if err != nil {
		h.fail(c, err)
		return
	}
	levels, err := h.service.Levels(ctx, side, depth)
	if err != nil {
		h.fail(c, err)
		return
	}

	if orders == nil {
		orders = []domain.Order{}
	}
	if levels == nil {
		levels = []domain.PriceLevel{}
	}

	c.JSON(http.StatusOK, OrderBookResponse{
		Asset:  h.service.Asset(),
		Side:   side,
		Orders: orders,
		Levels: levels,
	})
}

func (h *Handler) reject(c *gin.Context, err error) {
	telemetry.OrdersRejectedTotal.WithLabelValues("http").Inc()
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidSide),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidPrice):
		h.reject(c, err)
		return
	case errors.Is(err, sequencer.ErrStopped):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	h.logger.ErrorContext(c.Request.Context(), "request failed", slog.String("error", err.Error()))
	c.JSON(status, gin.H{"error": err.Error()})
}
