package httptransport

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/Aafimalek/prompt-to-animate/internal/entity"
)

const (
	eventPaymentSucceeded      = "payment_succeeded"
	eventSubscriptionActive    = "subscription_active"
	eventSubscriptionCancelled = "subscription_cancelled"

	maxWebhookBody = 1 << 20
)

type paymentEvent struct {
	EventType string `json:"event_type"`
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id,omitempty"`
}

type webhookResp struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// signPayload is hex(HMAC-SHA256(secret, body)).
func signPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func validSignature(body []byte, secret, header string) bool {
	got := strings.TrimPrefix(strings.TrimSpace(header), "sha256=")
	want := signPayload(body, secret)
	return hmac.Equal([]byte(got), []byte(want))
}

// PaymentWebhook godoc
// @Summary Apply a payment provider event to the quota ledger
// @Description payment_succeeded with a basic product grants a credit pack; subscription_active and subscription_cancelled toggle Pro.
// @Tags quota
// @Accept json
// @Produce json
// @Param X-Signature header string false "hex HMAC-SHA256 of the body"
// @Param request body paymentEvent true "event"
// @Success 200 {object} webhookResp
// @Failure 400 {object} apiError
// @Failure 401 {object} apiError
// @Failure 500 {object} apiError
// @Router /webhook/payment [post]
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondMessage(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if h.d.WebhookSecret != "" && !validSignature(body, h.d.WebhookSecret, r.Header.Get("X-Signature")) {
		respondMessage(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var ev paymentEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(ev.UserID) == "" {
		respondMessage(w, http.StatusBadRequest, "user_id is required")
		return
	}

	log := h.log.With().Str("event", ev.EventType).Str("user_id", ev.UserID).Logger()
	log.Info().Msg("payment webhook")

	ctx := r.Context()
	var msg string
	switch ev.EventType {
	case eventPaymentSucceeded:
		if !strings.Contains(strings.ToLower(ev.ProductID), string(entity.TierBasic)) {
			msg = "Webhook processed"
			break
		}
		err = h.d.Quota.SetTier(ctx, ev.UserID, entity.TierBasic, true)
		msg = "Added Basic credits"
	case eventSubscriptionActive:
		err = h.d.Quota.SetTier(ctx, ev.UserID, entity.TierPro, true)
		msg = "Pro subscription activated"
	case eventSubscriptionCancelled:
		err = h.d.Quota.SetTier(ctx, ev.UserID, entity.TierPro, false)
		msg = "Pro subscription cancelled"
	default:
		msg = "Webhook processed"
	}
	if err != nil {
		log.Error().Err(err).Msg("apply payment event")
		respondMessage(w, http.StatusInternalServerError, "failed to apply payment event")
		return
	}
	respond(w, http.StatusOK, webhookResp{Success: true, Message: msg})
}
