/**
 * @description
 * Internal event payloads exchanged over RabbitMQ. The billing provider's
 * webhook is translated into these events by the API layer; the consumer in
 * internal/app reacts to them by updating the profile store.
 */
package domain

import "time"

// Routing keys on the billing_events exchange.
const (
	BillingEventsExchange = "billing_events"

	SubscriptionActivatedKey = "billing.subscription.activated"
	SubscriptionFailedKey    = "billing.subscription.failed"
)

// SubscriptionActivatedEvent is published when the billing provider confirms
// a subscription is live. Writing this fact to the profile store is what the
// activation poller observes.
type SubscriptionActivatedEvent struct {
	AccountRef      string    `json:"account_ref"`
	SubscriptionRef string    `json:"subscription_ref"`
	PlanID          string    `json:"plan_id"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// SubscriptionFailedEvent is published when the provider reports a
// subscription could not be finalized out-of-band.
type SubscriptionFailedEvent struct {
	AccountRef      string    `json:"account_ref"`
	SubscriptionRef string    `json:"subscription_ref"`
	Reason          string    `json:"reason,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}
