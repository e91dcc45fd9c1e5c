package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akylbek/payment-system/payment-lifecycle/internal/handlers"
	"github.com/akylbek/payment-system/payment-lifecycle/internal/service"
	"github.com/akylbek/payment-system/payment-lifecycle/internal/telemetry"
)

func NewRouter(orchestrator *service.Orchestrator) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "payment-lifecycle"})
	})

	// Payment routes
	paymentHandler := handlers.NewPaymentHandler(orchestrator)
	r.POST("/create-payment", paymentHandler.CreatePayment)
	r.GET("/check-payment/:id", paymentHandler.CheckPayment)
	r.POST("/refund-payment", paymentHandler.RefundPayment)
	r.GET("/payments/:id", paymentHandler.GetPayment)

	return r
}
