package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/medlink/checkout-service/internal/domain"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type publisherStub struct {
	mu      sync.Mutex
	calls   []publishedEvent
	failErr error
}

type publishedEvent struct {
	exchange   string
	routingKey string
	body       interface{}
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failErr != nil {
		return p.failErr
	}
	p.calls = append(p.calls, publishedEvent{exchange, routingKey, body})
	return nil
}

func (p *publisherStub) Close() {}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(h *WebhookHandler, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/billing", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Webhook-Signature", signature)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	pub := &publisherStub{}
	h := NewWebhookHandler(pub, "whsec_test", testLogger)

	body := []byte(`{"event_id":"evt_1","type":"subscription.activated","data":{"account_ref":"acc_1"}}`)

	if rec := postWebhook(h, body, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing signature: expected 401, got %d", rec.Code)
	}
	if rec := postWebhook(h, body, "deadbeef"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong signature: expected 401, got %d", rec.Code)
	}
	if len(pub.calls) != 0 {
		t.Fatalf("unauthenticated webhooks must not be forwarded, got %v", pub.calls)
	}
}

func TestWebhookForwardsActivation(t *testing.T) {
	pub := &publisherStub{}
	h := NewWebhookHandler(pub, "whsec_test", testLogger)

	body := []byte(`{"event_id":"evt_1","type":"subscription.activated","data":{"account_ref":"acc_1","subscription_ref":"sub_1","plan_id":"monthly"}}`)
	rec := postWebhook(h, body, sign("whsec_test", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	if len(pub.calls) != 1 {
		t.Fatalf("expected one published event, got %d", len(pub.calls))
	}
	call := pub.calls[0]
	if call.exchange != domain.BillingEventsExchange || call.routingKey != domain.SubscriptionActivatedKey {
		t.Fatalf("unexpected publish target: %s / %s", call.exchange, call.routingKey)
	}
	event, ok := call.body.(domain.SubscriptionActivatedEvent)
	if !ok {
		t.Fatalf("unexpected event type %T", call.body)
	}
	if event.AccountRef != "acc_1" || event.SubscriptionRef != "sub_1" {
		t.Fatalf("unexpected event payload: %+v", event)
	}
}

func TestWebhookMapsFailureTypes(t *testing.T) {
	for _, eventType := range []string{"subscription.payment_failed", "subscription.canceled"} {
		t.Run(eventType, func(t *testing.T) {
			pub := &publisherStub{}
			h := NewWebhookHandler(pub, "", testLogger)

			body := []byte(`{"event_id":"evt_2","type":"` + eventType + `","data":{"account_ref":"acc_1","reason":"card_declined"}}`)
			if rec := postWebhook(h, body, ""); rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			if len(pub.calls) != 1 || pub.calls[0].routingKey != domain.SubscriptionFailedKey {
				t.Fatalf("expected one failed-key publish, got %v", pub.calls)
			}
		})
	}
}

func TestWebhookDeduplicatesByEventID(t *testing.T) {
	pub := &publisherStub{}
	h := NewWebhookHandler(pub, "", testLogger)

	body := []byte(`{"event_id":"evt_dup","type":"subscription.activated","data":{"account_ref":"acc_1"}}`)
	for i := 0; i < 3; i++ {
		if rec := postWebhook(h, body, ""); rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d", i, rec.Code)
		}
	}
	if len(pub.calls) != 1 {
		t.Fatalf("redeliveries must be dropped, got %d publishes", len(pub.calls))
	}
}

func TestWebhookIgnoresUnknownTypes(t *testing.T) {
	pub := &publisherStub{}
	h := NewWebhookHandler(pub, "", testLogger)

	body := []byte(`{"event_id":"evt_3","type":"invoice.created","data":{}}`)
	if rec := postWebhook(h, body, ""); rec.Code != http.StatusOK {
		t.Fatalf("unknown types are acknowledged, got %d", rec.Code)
	}
	if len(pub.calls) != 0 {
		t.Fatalf("unknown types must not be forwarded, got %v", pub.calls)
	}
}

func TestWebhookPublishFailureReturns500(t *testing.T) {
	pub := &publisherStub{failErr: errors.New("broker gone")}
	h := NewWebhookHandler(pub, "", testLogger)

	body := []byte(`{"event_id":"evt_4","type":"subscription.activated","data":{"account_ref":"acc_1"}}`)
	if rec := postWebhook(h, body, ""); rec.Code != http.StatusInternalServerError {
		t.Fatalf("publish failure must return 500 for provider retry, got %d", rec.Code)
	}

	// The event id must not be marked processed, so the retry goes through.
	pub.failErr = nil
	if rec := postWebhook(h, body, ""); rec.Code != http.StatusOK {
		t.Fatalf("retry after failure: expected 200, got %d", rec.Code)
	}
	if len(pub.calls) != 1 {
		t.Fatalf("expected the retried event to be published, got %d", len(pub.calls))
	}
}
