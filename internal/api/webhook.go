/**
 * @description
 * HTTP handler for billing provider webhooks: the out-of-band channel that
 * carries the authoritative subscription confirmation. Incoming payloads are
 * authenticated with an HMAC signature, de-duplicated by event id, and
 * republished as internal events for the consumer to apply to the profile
 * store.
 */
package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/medlink/checkout-service/internal/domain"
	"github.com/medlink/checkout-service/pkg/rabbitmq"
)

// WebhookHandler processes incoming webhooks from the billing provider.
type WebhookHandler struct {
	producer rabbitmq.Publisher
	secret   string
	logger   *slog.Logger

	mu        sync.Mutex
	processed map[string]time.Time
}

// NewWebhookHandler creates a handler for the webhook endpoint.
func NewWebhookHandler(producer rabbitmq.Publisher, secret string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		producer:  producer,
		secret:    secret,
		logger:    logger,
		processed: make(map[string]time.Time),
	}
}

type webhookPayload struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Data    struct {
		AccountRef      string `json:"account_ref"`
		SubscriptionRef string `json:"subscription_ref"`
		PlanID          string `json:"plan_id"`
		Reason          string `json:"reason"`
	} `json:"data"`
}

// ServeHTTP verifies, de-duplicates and republishes one webhook delivery.
// The provider retries on non-2xx, so transient publish failures return 500.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if !h.validSignature(r.Header.Get("X-Webhook-Signature"), body) {
		h.logger.Warn("webhook signature validation failed")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	if payload.EventID != "" && h.alreadyProcessed(payload.EventID) {
		// Provider redelivery of an event we already forwarded.
		w.WriteHeader(http.StatusOK)
		return
	}

	var routingKey string
	var event interface{}
	now := time.Now().UTC()

	switch payload.Type {
	case "subscription.activated":
		routingKey = domain.SubscriptionActivatedKey
		event = domain.SubscriptionActivatedEvent{
			AccountRef:      payload.Data.AccountRef,
			SubscriptionRef: payload.Data.SubscriptionRef,
			PlanID:          payload.Data.PlanID,
			OccurredAt:      now,
		}
	case "subscription.payment_failed", "subscription.canceled":
		routingKey = domain.SubscriptionFailedKey
		event = domain.SubscriptionFailedEvent{
			AccountRef:      payload.Data.AccountRef,
			SubscriptionRef: payload.Data.SubscriptionRef,
			Reason:          payload.Data.Reason,
			OccurredAt:      now,
		}
	default:
		h.logger.Info("ignoring unhandled webhook type", "type", payload.Type)
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.producer.Publish(r.Context(), domain.BillingEventsExchange, routingKey, event); err != nil {
		h.logger.Error("failed to publish billing event",
			"routing_key", routingKey, "error", err)
		http.Error(w, "failed to process event", http.StatusInternalServerError)
		return
	}

	h.markProcessed(payload.EventID)
	h.logger.Info("billing webhook forwarded",
		"type", payload.Type, "account_ref", payload.Data.AccountRef)
	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) validSignature(signature string, body []byte) bool {
	if h.secret == "" {
		// No secret configured (local development): accept.
		return true
	}
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (h *WebhookHandler) alreadyProcessed(eventID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, seen := h.processed[eventID]
	return seen
}

func (h *WebhookHandler) markProcessed(eventID string) {
	if eventID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.processed[eventID] = time.Now()

	// Keep the de-duplication window bounded.
	if len(h.processed) > 10000 {
		cutoff := time.Now().Add(-24 * time.Hour)
		for id, seen := range h.processed {
			if seen.Before(cutoff) {
				delete(h.processed, id)
			}
		}
	}
}
