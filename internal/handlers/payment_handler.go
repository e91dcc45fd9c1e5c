package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/payment-lifecycle/internal/models"
	"github.com/akylbek/payment-system/payment-lifecycle/internal/service"
	"github.com/akylbek/payment-system/payment-lifecycle/internal/telemetry"
)

type PaymentHandler struct {
	orchestrator *service.Orchestrator
}

func NewPaymentHandler(orchestrator *service.Orchestrator) *PaymentHandler {
	return &PaymentHandler{orchestrator: orchestrator}
}

type createPaymentRequest struct {
	Amount      models.Money `json:"amount" binding:"required"`
	OrderID     int64        `json:"order_id" binding:"required"`
	UserID      string       `json:"user_id" binding:"required"`
	IsRecurring bool         `json:"is_recurring"`
}

type refundPaymentRequest struct {
	PaymentID string `json:"payment_id" binding:"required"`
	Reason    string `json:"reason"`
}

func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.orchestrator.Create(c.Request.Context(), service.CreateRequest{
		Amount:      req.Amount,
		OrderID:     req.OrderID,
		UserID:      req.UserID,
		IsRecurring: req.IsRecurring,
	})
	if err != nil {
		telemetry.Logger.Error("Payment creation failed",
			zap.Int64("order_id", req.OrderID),
			zap.Error(err),
		)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payment_id":  result.PaymentID,
		"payment_url": result.ConfirmationURL,
	})
}

func (h *PaymentHandler) CheckPayment(c *gin.Context) {
	paymentID := c.Param("id")

	status, err := h.orchestrator.CheckStatus(c.Request.Context(), paymentID)
	if err != nil {
		telemetry.Logger.Error("Payment check failed",
			zap.String("payment_id", paymentID),
			zap.Error(err),
		)
		respondError(c, err)
		return
	}

	payment, err := h.orchestrator.GetPayment(c.Request.Context(), paymentID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       status,
		"is_recurring": payment.IsRecurring,
	})
}

func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	var req refundPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.orchestrator.Refund(c.Request.Context(), req.PaymentID, req.Reason)
	if err != nil {
		telemetry.Logger.Error("Refund failed",
			zap.String("payment_id", req.PaymentID),
			zap.Error(err),
		)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"refund_id": result.RefundID,
		"status":    result.Status,
		"amount":    result.Amount,
		"reason":    result.Reason,
	})
}

func (h *PaymentHandler) GetPayment(c *gin.Context) {
	paymentID := c.Param("id")

	payment, err := h.orchestrator.GetPayment(c.Request.Context(), paymentID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, payment)
}

func respondError(c *gin.Context, err error) {
	c.JSON(httpStatus(err), gin.H{"error": err.Error()})
}

// httpStatus maps the typed error taxonomy onto response codes: bad input,
// gateway rejection and illegal transitions are the client's problem;
// unknown ids are 404; everything else is internal.
func httpStatus(err error) int {
	var (
		validationErr   *models.ValidationError
		notFoundErr     *models.NotFoundError
		invalidStateErr *models.InvalidStateError
		gatewayErr      *models.GatewayError
	)

	switch {
	case errors.As(err, &validationErr), errors.As(err, &invalidStateErr):
		return http.StatusBadRequest
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound
	case errors.As(err, &gatewayErr):
		if gatewayErr.Transient {
			return http.StatusInternalServerError
		}
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
