package app

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type activationWriterStub struct {
	mu sync.Mutex

	activated [][2]string
	failed    [][3]string

	activeErr error
	failErr   error
}

func (s *activationWriterStub) MarkSubscriptionActive(ctx context.Context, accountRef, subscriptionRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeErr != nil {
		return s.activeErr
	}
	s.activated = append(s.activated, [2]string{accountRef, subscriptionRef})
	return nil
}

func (s *activationWriterStub) MarkSubscriptionFailed(ctx context.Context, accountRef, subscriptionRef, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	s.failed = append(s.failed, [3]string{accountRef, subscriptionRef, reason})
	return nil
}

func TestHandleSubscriptionActivated(t *testing.T) {
	store := &activationWriterStub{}
	h := NewBillingEventHandler(store, testLogger)

	body := []byte(`{"account_ref":"acc_1","subscription_ref":"sub_1","plan_id":"monthly"}`)
	if !h.HandleSubscriptionActivated(body) {
		t.Fatal("valid event must be acknowledged")
	}
	if len(store.activated) != 1 || store.activated[0] != [2]string{"acc_1", "sub_1"} {
		t.Fatalf("unexpected store writes: %v", store.activated)
	}
}

func TestHandleSubscriptionActivatedMalformed(t *testing.T) {
	store := &activationWriterStub{}
	h := NewBillingEventHandler(store, testLogger)

	// Redelivery cannot fix a broken payload, so it is acked and dropped.
	if !h.HandleSubscriptionActivated([]byte(`{not json`)) {
		t.Fatal("malformed payload must be acknowledged")
	}
	if !h.HandleSubscriptionActivated([]byte(`{"subscription_ref":"sub_1"}`)) {
		t.Fatal("event without account_ref must be acknowledged")
	}
	if len(store.activated) != 0 {
		t.Fatalf("malformed events must not reach the store, got %v", store.activated)
	}
}

func TestHandleSubscriptionActivatedStoreFailure(t *testing.T) {
	store := &activationWriterStub{activeErr: errors.New("connection lost")}
	h := NewBillingEventHandler(store, testLogger)

	body := []byte(`{"account_ref":"acc_1","subscription_ref":"sub_1"}`)
	if h.HandleSubscriptionActivated(body) {
		t.Fatal("store failure must nack so the event is redelivered")
	}
}

func TestHandleSubscriptionFailed(t *testing.T) {
	store := &activationWriterStub{}
	h := NewBillingEventHandler(store, testLogger)

	body := []byte(`{"account_ref":"acc_1","subscription_ref":"sub_1","reason":"card_declined"}`)
	if !h.HandleSubscriptionFailed(body) {
		t.Fatal("valid event must be acknowledged")
	}
	if len(store.failed) != 1 || store.failed[0] != [3]string{"acc_1", "sub_1", "card_declined"} {
		t.Fatalf("unexpected store writes: %v", store.failed)
	}

	if !h.HandleSubscriptionFailed([]byte(`broken`)) {
		t.Fatal("malformed payload must be acknowledged")
	}

	store.failErr = errors.New("timeout")
	if h.HandleSubscriptionFailed(body) {
		t.Fatal("store failure must nack so the event is redelivered")
	}
}
