package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"order-placement-service/internal/domain"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type OrderService interface {
	PlaceOrder(ctx context.Context, userID uint64, items []domain.LineItem) (*domain.Placement, error)
	GetOrderByID(ctx context.Context, id uint64) (*domain.Order, error)
	GetOrdersByUser(ctx context.Context, userID uint64) ([]domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id uint64, status domain.OrderStatus) (*domain.Order, error)
	DeleteOrder(ctx context.Context, id uint64) error
}

type Handler struct {
	service OrderService
	log     *zap.Logger
}

func NewHandler(s OrderService, log *zap.Logger) *Handler {
	return &Handler{service: s, log: log}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.Health)
	r.POST("/orders", h.PlaceOrder)
	r.GET("/orders/:id", h.GetOrder)
	r.PUT("/orders/:id", h.UpdateOrderStatus)
	r.DELETE("/orders/:id", h.DeleteOrder)
	r.GET("/users/:userId/orders", h.GetUserOrders)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (h *Handler) PlaceOrder(c *gin.Context) {
	var req PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	placement, err := h.service.PlaceOrder(c.Request.Context(), req.UserID, req.LineItems())
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, PlaceOrderResponse{
		OrderID: placement.OrderID,
		Total:   placement.Total.StringFixed(2),
	})
}

func (h *Handler) GetOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	order, err := h.service.GetOrderByID(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) GetUserOrders(c *gin.Context) {
	userID, ok := parseID(c, "userId")
	if !ok {
		return
	}

	orders, err := h.service.GetOrdersByUser(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	order, err := h.service.UpdateOrderStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) DeleteOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteOrder(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func parseID(c *gin.Context, param string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: param + " must be a positive integer"})
		return 0, false
	}
	return id, true
}

// writeError maps the domain taxonomy onto status codes. Business-rule
// failures carry the offending product; infrastructure faults stay opaque.
func (h *Handler) writeError(c *gin.Context, err error) {
	var notFound *domain.ProductNotFoundError
	var insufficient *domain.InsufficientStockError

	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.As(err, &notFound):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:     err.Error(),
			ProductID: &notFound.ProductID,
		})
	case errors.As(err, &insufficient):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:     err.Error(),
			ProductID: &insufficient.ProductID,
			Requested: &insufficient.Requested,
			Available: &insufficient.Available,
		})
	case errors.Is(err, domain.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrTransactionConflict):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "order could not be placed due to concurrent updates, retry"})
	case errors.Is(err, context.Canceled):
		// client went away; nothing useful to send
		c.Status(499)
	default:
		h.log.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
