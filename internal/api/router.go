package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/storefront/payments-service/internal/config"
	"github.com/storefront/payments-service/internal/gateway"
	"github.com/storefront/payments-service/internal/handlers"
	"github.com/storefront/payments-service/internal/interfaces"
	"github.com/storefront/payments-service/internal/service"
	"github.com/storefront/payments-service/internal/signature"
	"github.com/storefront/payments-service/internal/telemetry"
)

func NewRouter(
	cfg *config.Config,
	codec *signature.Codec,
	repo interfaces.OrderRepository,
	gatewayClient *gateway.Client,
	reconciler *service.Reconciler,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "payments-service"})
	})

	// Checkout-facing token issuance
	tokenHandler := handlers.NewTokenHandler(gatewayClient)
	r.POST("/checkout/token", tokenHandler.IssueToken)

	// Gateway-facing payment notification
	callbackHandler := handlers.NewCallbackHandler(cfg, codec, reconciler)
	r.POST("/payments/callback", callbackHandler.HandleCallback)

	// Order records
	orderHandler := handlers.NewOrderHandler(repo)
	r.POST("/orders", orderHandler.CreateOrder)
	r.GET("/orders/:id", orderHandler.GetOrder)

	return r
}
