package handlers

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"storebill/internal/common"
	"storebill/internal/services"
)

// WebhookHandlers handles inbound payment gateway webhooks
type WebhookHandlers struct {
	reconciliationService services.ReconciliationService
	gatewayService        services.GatewayService
}

// NewWebhookHandlers creates a new webhook handlers instance
func NewWebhookHandlers(
	reconciliationService services.ReconciliationService,
	gatewayService services.GatewayService,
) *WebhookHandlers {
	return &WebhookHandlers{
		reconciliationService: reconciliationService,
		gatewayService:        gatewayService,
	}
}

// PaymentWebhook handles POST /webhooks/payments. The gateway delivers
// at-least-once; duplicates ack 200 through the dedupe ledger so redelivery
// stops. Mismatches and unknown refs return their error codes for the
// gateway's dead-letter handling and are flagged for manual review.
func (h *WebhookHandlers) PaymentWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Failed to read request body")
	}

	signature := c.Request().Header.Get("X-Gateway-Signature")
	if signature == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing gateway signature")
	}

	event, err := h.gatewayService.VerifyWebhook(body, signature)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid webhook payload")
	}

	if err := h.reconciliationService.HandlePaymentEvent(c.Request().Context(), event); err != nil {
		return common.SendError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status":   "ok",
		"event_id": event.EventID,
	})
}
