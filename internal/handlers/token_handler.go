package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/storefront/payments-service/internal/gateway"
	"github.com/storefront/payments-service/internal/metrics"
	"github.com/storefront/payments-service/internal/models"
	"github.com/storefront/payments-service/internal/telemetry"
)

type TokenHandler struct {
	client *gateway.Client
}

func NewTokenHandler(client *gateway.Client) *TokenHandler {
	return &TokenHandler{client: client}
}

// flexAmount accepts the amount as a JSON string ("520.00") or number (52000).
type flexAmount string

func (a *flexAmount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = flexAmount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("amount must be a string or number")
	}
	*a = flexAmount(n.String())
	return nil
}

// basketItem accepts either a {name, unit_price, quantity} object or the
// gateway-shaped [name, price, qty] triple.
type basketItem models.LineItem

func (b *basketItem) UnmarshalJSON(data []byte) error {
	var item models.LineItem
	if err := json.Unmarshal(data, &item); err == nil && item.Name != "" {
		*b = basketItem(item)
		return nil
	}
	var triple []json.RawMessage
	if err := json.Unmarshal(data, &triple); err != nil || len(triple) != 3 {
		return fmt.Errorf("basket item must be an object or a [name, price, qty] triple")
	}
	if err := json.Unmarshal(triple[0], &b.Name); err != nil {
		return err
	}
	if err := json.Unmarshal(triple[1], &b.UnitPrice); err != nil {
		var price float64
		if err := json.Unmarshal(triple[1], &price); err != nil {
			return err
		}
		b.UnitPrice = fmt.Sprintf("%.2f", price)
	}
	return json.Unmarshal(triple[2], &b.Quantity)
}

type tokenRequestBody struct {
	OrderID   string       `json:"order_id" binding:"required"`
	Amount    flexAmount   `json:"amount" binding:"required"`
	Email     string       `json:"email"`
	Name      string       `json:"name"`
	Address   string       `json:"address"`
	Phone     string       `json:"phone"`
	Basket    []basketItem `json:"basket"`
	BasketB64 string       `json:"basket_b64"`
}

// IssueToken requests a one-time payment session token from the gateway on
// behalf of the checkout UI. It never writes order state; failures surface
// synchronously so the UI can prompt a retry.
func (h *TokenHandler) IssueToken(c *gin.Context) {
	var body tokenRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		metrics.TokenRequestsTotal.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}

	items := make([]models.LineItem, len(body.Basket))
	for i, it := range body.Basket {
		items[i] = models.LineItem(it)
	}

	token, err := h.client.IssueToken(c.Request.Context(), gateway.Draft{
		OrderID:   body.OrderID,
		Amount:    string(body.Amount),
		Email:     body.Email,
		Name:      body.Name,
		Address:   body.Address,
		Phone:     body.Phone,
		ClientIP:  c.ClientIP(),
		Items:     items,
		BasketB64: body.BasketB64,
	})
	if err != nil {
		var rejection *gateway.RejectionError
		switch {
		case errors.Is(err, gateway.ErrUnreachable):
			telemetry.Logger.Error("Payment gateway unreachable",
				zap.String("order_id", body.OrderID),
				zap.Error(err),
			)
			metrics.TokenRequestsTotal.WithLabelValues("unreachable").Inc()
			c.JSON(http.StatusGatewayTimeout, gin.H{"status": "error", "message": "payment gateway unreachable"})
		case errors.As(err, &rejection):
			telemetry.Logger.Warn("Payment gateway rejected token request",
				zap.String("order_id", body.OrderID),
				zap.String("reason", rejection.Reason),
			)
			metrics.TokenRequestsTotal.WithLabelValues("rejected").Inc()
			c.JSON(http.StatusBadGateway, gin.H{"status": "error", "message": rejection.Reason})
		default:
			metrics.TokenRequestsTotal.WithLabelValues("invalid").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		}
		return
	}

	metrics.TokenRequestsTotal.WithLabelValues("success").Inc()
	c.JSON(http.StatusOK, gin.H{"status": "success", "token": token})
}
