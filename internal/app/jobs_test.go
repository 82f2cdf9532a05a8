package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type reconciliationStoreStub struct {
	mu sync.Mutex

	stale    []string
	staleErr error

	flags map[string]bool

	failed [][3]string
}

func (s *reconciliationStoreStub) ListStaleOptimisticActivations(ctx context.Context, olderThan time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale, s.staleErr
}

func (s *reconciliationStoreStub) MarkSubscriptionFailed(ctx context.Context, accountRef, subscriptionRef, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, [3]string{accountRef, subscriptionRef, reason})
	return nil
}

func (s *reconciliationStoreStub) ReadActivationFlag(ctx context.Context, accountRef string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags[accountRef], nil
}

func TestReconcileSkipsLateConfirmations(t *testing.T) {
	store := &reconciliationStoreStub{
		stale: []string{"acc_confirmed", "acc_stale"},
		flags: map[string]bool{"acc_confirmed": true},
	}
	jobs := NewJobs(newTestManager(&profileStoreStub{}, &gatewayStub{}, &billingStub{}, 0), store, time.Hour, testLogger)

	jobs.ReconcileOptimisticActivations()

	if len(store.failed) != 1 {
		t.Fatalf("expected exactly one account marked failed, got %v", store.failed)
	}
	if store.failed[0][0] != "acc_stale" {
		t.Fatalf("expected acc_stale marked failed, got %q", store.failed[0][0])
	}
	if store.failed[0][2] == "" {
		t.Fatal("a failure reason must be recorded")
	}
}

func TestReconcileToleratesListFailure(t *testing.T) {
	store := &reconciliationStoreStub{staleErr: errors.New("db down")}
	jobs := NewJobs(newTestManager(&profileStoreStub{}, &gatewayStub{}, &billingStub{}, 0), store, time.Hour, testLogger)

	jobs.ReconcileOptimisticActivations()

	if len(store.failed) != 0 {
		t.Fatalf("list failure must not mark anything failed, got %v", store.failed)
	}
}

func TestCleanupSessionsJob(t *testing.T) {
	m := newTestManager(&profileStoreStub{}, &gatewayStub{}, &billingStub{}, time.Nanosecond)
	jobs := NewJobs(m, &reconciliationStoreStub{}, 0, testLogger)

	m.Create()
	time.Sleep(5 * time.Millisecond)

	jobs.CleanupSessions()
	if m.Active() != 0 {
		t.Fatalf("expected all idle sessions discarded, got %d", m.Active())
	}
}
