package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/storefront/payments-service/internal/interfaces"
	"github.com/storefront/payments-service/internal/models"
	"github.com/storefront/payments-service/internal/telemetry"
)

type OrderHandler struct {
	repo interfaces.OrderRepository
}

func NewOrderHandler(repo interfaces.OrderRepository) *OrderHandler {
	return &OrderHandler{repo: repo}
}

type createOrderBody struct {
	ID             string            `json:"id"`
	ExpectedAmount int64             `json:"expected_amount" binding:"required,gt=0"`
	CustomerEmail  string            `json:"customer_email"`
	CustomerName   string            `json:"customer_name"`
	Items          []models.LineItem `json:"items"`
}

// CreateOrder persists an order draft ahead of payment initiation. Checkout
// may supply its own id; otherwise one is assigned.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var body createOrderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order := &models.Order{
		ID:             body.ID,
		Status:         models.StatusCreated,
		ExpectedAmount: body.ExpectedAmount,
		CustomerEmail:  body.CustomerEmail,
		CustomerName:   body.CustomerName,
		Items:          body.Items,
	}

	if err := h.repo.Create(c.Request.Context(), order); err != nil {
		telemetry.Logger.Error("Failed to create order", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create order"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": order.ID, "status": order.Status})
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	orderID := c.Param("id")

	order, err := h.repo.GetByID(c.Request.Context(), orderID)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}
	if err != nil {
		telemetry.Logger.Error("Failed to fetch order",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch order"})
		return
	}

	c.JSON(http.StatusOK, order)
}
