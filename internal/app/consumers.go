/**
 * @description
 * RabbitMQ event handlers. The billing provider's webhooks are verified by
 * the API layer and republished as internal events; the handlers here apply
 * them to the profile store. Writing the activation flag is what the
 * activation poller ultimately observes, which closes the loop between the
 * out-of-band confirmation channel and the synchronous checkout flow.
 *
 * @notes
 * - Handlers return true to acknowledge. Malformed payloads are acknowledged
 *   since a redelivery cannot fix them; store failures are not, so the
 *   message is redelivered.
 */
package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/medlink/checkout-service/internal/domain"
)

// ActivationWriter is the store surface the consumers need.
type ActivationWriter interface {
	MarkSubscriptionActive(ctx context.Context, accountRef, subscriptionRef string) error
	MarkSubscriptionFailed(ctx context.Context, accountRef, subscriptionRef, reason string) error
}

// BillingEventHandler processes billing events from the message broker.
type BillingEventHandler struct {
	store  ActivationWriter
	logger *slog.Logger
}

// NewBillingEventHandler creates a handler bound to the profile store.
func NewBillingEventHandler(store ActivationWriter, logger *slog.Logger) *BillingEventHandler {
	return &BillingEventHandler{store: store, logger: logger}
}

// HandleSubscriptionActivated applies a billing.subscription.activated event.
func (h *BillingEventHandler) HandleSubscriptionActivated(body []byte) bool {
	var event domain.SubscriptionActivatedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Error("malformed subscription.activated event", "error", err)
		return true
	}
	if strings.TrimSpace(event.AccountRef) == "" {
		h.logger.Error("subscription.activated event missing account_ref")
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := h.store.MarkSubscriptionActive(ctx, event.AccountRef, event.SubscriptionRef); err != nil {
		h.logger.Error("failed to mark subscription active",
			"account_ref", event.AccountRef,
			"subscription_ref", event.SubscriptionRef,
			"error", err)
		return false
	}

	h.logger.Info("subscription activated",
		"account_ref", event.AccountRef,
		"subscription_ref", event.SubscriptionRef,
		"plan_id", event.PlanID)
	return true
}

// HandleSubscriptionFailed applies a billing.subscription.failed event.
func (h *BillingEventHandler) HandleSubscriptionFailed(body []byte) bool {
	var event domain.SubscriptionFailedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Error("malformed subscription.failed event", "error", err)
		return true
	}
	if strings.TrimSpace(event.AccountRef) == "" {
		h.logger.Error("subscription.failed event missing account_ref")
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := h.store.MarkSubscriptionFailed(ctx, event.AccountRef, event.SubscriptionRef, event.Reason); err != nil {
		h.logger.Error("failed to mark subscription failed",
			"account_ref", event.AccountRef, "error", err)
		return false
	}

	h.logger.Info("subscription marked failed",
		"account_ref", event.AccountRef,
		"subscription_ref", event.SubscriptionRef,
		"reason", event.Reason)
	return true
}
