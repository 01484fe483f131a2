package handlers

import (
	"errors"
	"io"
	"net/http"

	apierrors "github.com/gatherhq/community-api/internal/errors"
	"github.com/gatherhq/community-api/internal/payment"
	"github.com/gatherhq/community-api/internal/services"
	"github.com/gin-gonic/gin"
)

// WebhookHandler receives asynchronous payment notices from the gateway.
type WebhookHandler struct {
	registrationService *services.RegistrationService
	webhookSecret       string
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(registrationService *services.RegistrationService, webhookSecret string) *WebhookHandler {
	return &WebhookHandler{
		registrationService: registrationService,
		webhookSecret:       webhookSecret,
	}
}

// HandlePaymentWebhook verifies and reconciles a gateway notice. Gateways
// redeliver until they see a 2xx, so every accepted notice must be
// processed idempotently; notice types the ledger does not consume are
// acknowledged without action.
func (h *WebhookHandler) HandlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<16))
	if err != nil {
		apierrors.BadRequest(c, "Failed to read request body")
		return
	}

	notice, err := payment.ParseWebhook(payload, c.GetHeader("Stripe-Signature"), h.webhookSecret)
	if err != nil {
		if errors.Is(err, payment.ErrIgnoredEvent) {
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		apierrors.BadRequest(c, "Invalid webhook payload")
		return
	}

	if err := h.registrationService.HandlePaymentNotice(notice); err != nil {
		// A 500 makes the gateway redeliver; the handler is idempotent
		// so the retry is safe.
		apierrors.InternalError(c, "Failed to process payment notice")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "processed"})
}
