package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/storefront/payments-service/internal/config"
	"github.com/storefront/payments-service/internal/metrics"
	"github.com/storefront/payments-service/internal/models"
	"github.com/storefront/payments-service/internal/service"
	"github.com/storefront/payments-service/internal/signature"
	"github.com/storefront/payments-service/internal/telemetry"
)

// CallbackHandler receives the gateway's asynchronous payment notifications.
// The response contract is strict: once a request is structurally valid the
// gateway gets HTTP 200 with a plain "OK" body no matter what the business
// outcome was, because any non-2xx puts the notification back into the
// gateway's retry loop. Only configuration and store failures return 5xx,
// where a retry can actually help.
type CallbackHandler struct {
	cfg        *config.Config
	codec      *signature.Codec
	reconciler *service.Reconciler
}

func NewCallbackHandler(cfg *config.Config, codec *signature.Codec, reconciler *service.Reconciler) *CallbackHandler {
	return &CallbackHandler{cfg: cfg, codec: codec, reconciler: reconciler}
}

func (h *CallbackHandler) HandleCallback(c *gin.Context) {
	if !h.cfg.SigningReady() {
		telemetry.Logger.Error("Callback received with merchant key/salt unconfigured")
		metrics.CallbacksTotal.WithLabelValues("config_error").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "payment gateway credentials not configured"})
		return
	}

	merchantOID := c.PostForm("merchant_oid")
	status := c.PostForm("status")
	totalAmount := c.PostForm("total_amount")
	hash := c.PostForm("hash")

	if merchantOID == "" || status == "" || totalAmount == "" || hash == "" {
		metrics.CallbacksTotal.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing callback fields"})
		return
	}

	// The signature covers the raw form values, so verify before any parsing.
	if !h.codec.Verify(h.codec.CallbackCanonical(merchantOID, status, totalAmount), hash) {
		telemetry.Logger.Warn("Callback signature mismatch",
			zap.String("order_id", merchantOID),
			zap.String("status", status),
			zap.String("client_ip", c.ClientIP()),
		)
		metrics.CallbacksTotal.WithLabelValues("rejected_signature").Inc()
		c.String(http.StatusOK, "OK")
		return
	}

	amount, err := strconv.ParseInt(totalAmount, 10, 64)
	if err != nil {
		telemetry.Logger.Warn("Callback with unparsable amount",
			zap.String("order_id", merchantOID),
			zap.String("total_amount", totalAmount),
		)
		metrics.CallbacksTotal.WithLabelValues("invalid").Inc()
		c.String(http.StatusOK, "OK")
		return
	}

	event := &models.CallbackEvent{
		MerchantOrderID: merchantOID,
		ReportedStatus:  models.CallbackFailure,
		ReportedAmount:  amount,
		PaymentID:       c.PostForm("payment_id"),
		FailureReason:   c.PostForm("failed_reason_msg"),
		Raw: map[string]string{
			"merchant_oid": merchantOID,
			"status":       status,
			"total_amount": totalAmount,
			"email":        c.PostForm("email"),
		},
	}
	if status == "success" {
		event.ReportedStatus = models.CallbackSuccess
		if event.PaymentID == "" {
			event.PaymentID = merchantOID
		}
	}

	if err := h.reconciler.Apply(c.Request.Context(), event); err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			// Integrity anomaly: the gateway references an order checkout
			// never created. Retrying cannot make it appear, so acknowledge.
			telemetry.Logger.Error("Callback for unknown order",
				zap.String("order_id", merchantOID),
				zap.Error(err),
			)
			metrics.CallbacksTotal.WithLabelValues("order_not_found").Inc()
			c.String(http.StatusOK, "OK")
			return
		}

		telemetry.Logger.Error("Failed to apply callback",
			zap.String("order_id", merchantOID),
			zap.Error(err),
		)
		metrics.CallbacksTotal.WithLabelValues("store_error").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process callback"})
		return
	}

	metrics.CallbacksTotal.WithLabelValues("applied").Inc()
	c.String(http.StatusOK, "OK")
}
