// Payment webhook handler.
//
// The gateway delivers notifications at least once, unordered, carrying only
// an opaque payment id. The handler extracts the id (checkout-style gateways
// send it in several shapes), hands it to the reconciliation engine, and
// acknowledges with 200 regardless of the business outcome: a redelivery of
// an unprocessable notification would only replay the same dead end, and the
// guards make replays of processable ones no-ops.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-hiring-backend/internal/http/middleware"
)

// PaymentWebhookRequest mirrors the gateway's notification body. Only the
// payment id is consumed; everything else is advisory.
type PaymentWebhookRequest struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID string `json:"id"`
	} `json:"data"`
	ID string `json:"id"`
}

// PaymentWebhook godoc
// @ID          paymentWebhook
// @Summary     Receive a payment notification
// @Description Consumes an asynchronous gateway notification and reconciles the referenced payment. Always returns 200 so the gateway stops redelivering.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.PaymentWebhookRequest  false  "Gateway notification"
//
// @Success     200  {object} map[string]string
// @Router      /webhooks/payments [post]
func (h *Handlers) PaymentWebhook(c *gin.Context) {
	externalID := extractPaymentID(c)
	if externalID == "" {
		ok(c, http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	if err := h.reconcile.ProcessNotification(c.Request.Context(), externalID); err != nil {
		// Infrastructure failure: acknowledged anyway, the gateway will
		// redeliver and the engine's guards absorb the replay.
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Err(err).
			Str("external_payment_id", externalID).
			Msg("payment notification processing failed")
	}
	ok(c, http.StatusOK, gin.H{"status": "ok"})
}

// extractPaymentID digs the external payment id out of the notification:
// query parameters first ("data.id", then "id" when topic=payment), then the
// JSON body.
func extractPaymentID(c *gin.Context) string {
	if v := strings.TrimSpace(c.Query("data.id")); v != "" {
		return v
	}
	topic := c.Query("topic")
	if t := c.Query("type"); topic == "" {
		topic = t
	}
	if topic == "payment" {
		if v := strings.TrimSpace(c.Query("id")); v != "" {
			return v
		}
	}
	var req PaymentWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return ""
	}
	if req.Type != "" && req.Type != "payment" {
		return ""
	}
	if v := strings.TrimSpace(req.Data.ID); v != "" {
		return v
	}
	return strings.TrimSpace(req.ID)
}
