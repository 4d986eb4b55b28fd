package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/SalahElkadim/alc/internal/model"
	apperrors "github.com/SalahElkadim/alc/pkg/errors"
)

const webhookSignatureHeader = "X-Moyasar-Signature"

func (h *Handler) CreatePayment(c *gin.Context) {
	var req model.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	claims := mustClaims(c)
	resp, err := h.payments.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// PaymentCallback is the browser redirect target after checkout.
func (h *Handler) PaymentCallback(c *gin.Context) {
	gatewayID := c.Query("id")
	payment, err := h.payments.Callback(c.Request.Context(), gatewayID, c.Query("status"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"gateway_id": payment.GatewayID,
		"status":     payment.Status,
		"unlocked":   payment.GrantedAt != nil,
	})
}

// PaymentWebhook always acknowledges so the gateway does not redeliver
// events that can never succeed. Failures are logged.
func (h *Handler) PaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read webhook body")
		c.JSON(http.StatusOK, gin.H{"received": false})
		return
	}

	err = h.payments.HandleWebhook(c.Request.Context(), body, c.GetHeader(webhookSignatureHeader))
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrDuplicateEvent):
	case errors.Is(err, apperrors.ErrInvalidSignature):
		h.log.Warn().Str("ip", c.ClientIP()).Msg("Rejected webhook with invalid signature")
	default:
		h.log.Error().Err(err).Msg("Failed to process webhook")
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *Handler) MyBooks(c *gin.Context) {
	claims := mustClaims(c)
	books, err := h.payments.MyBooks(c.Request.Context(), claims.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if books == nil {
		books = []model.UserBook{}
	}

	c.JSON(http.StatusOK, gin.H{"books": books, "count": len(books)})
}

func (h *Handler) PaymentInvoice(c *gin.Context) {
	claims := mustClaims(c)
	invoice, err := h.payments.Invoice(c.Request.Context(), c.Param("gateway_id"), claims.UserID,
		claims.UserType != model.UserTypeAdmin)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, invoice)
}

func (h *Handler) RefundPayment(c *gin.Context) {
	var amount int64
	if raw := c.Query("amount"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid refund amount"})
			return
		}
		amount = n
	}

	payment, err := h.payments.Refund(c.Request.Context(), c.Param("gateway_id"), amount)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.log.Info().Str("gateway_id", payment.GatewayID).Int64("amount", amount).
		Int64("admin_id", mustClaims(c).UserID).Msg("Payment refunded")

	c.JSON(http.StatusOK, payment)
}
