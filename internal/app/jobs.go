/**
 * @description
 * Scheduled maintenance jobs for the checkout flow: discarding abandoned
 * in-memory sessions and following up on optimistic activations: accounts
 * the user chose to treat as active after a polling timeout, whose billing
 * confirmation still has not arrived.
 */
package app

import (
	"context"
	"log/slog"
	"time"
)

// ReconciliationStore is the store surface the jobs need.
type ReconciliationStore interface {
	// ListStaleOptimisticActivations returns account refs flagged as
	// optimistically activated before olderThan whose subscription is
	// still not confirmed.
	ListStaleOptimisticActivations(ctx context.Context, olderThan time.Time) ([]string, error)
	MarkSubscriptionFailed(ctx context.Context, accountRef, subscriptionRef, reason string) error
	ActivationReader
}

// Jobs bundles the scheduled maintenance tasks.
type Jobs struct {
	sessions *SessionManager
	store    ReconciliationStore
	logger   *slog.Logger

	// Optimistic activations unconfirmed past this age are marked failed
	// so support tooling can follow up.
	staleAfter time.Duration
}

// NewJobs creates the job set.
func NewJobs(sessions *SessionManager, store ReconciliationStore, staleAfter time.Duration, logger *slog.Logger) *Jobs {
	if staleAfter <= 0 {
		staleAfter = 24 * time.Hour
	}
	return &Jobs{sessions: sessions, store: store, staleAfter: staleAfter, logger: logger}
}

// CleanupSessions discards checkout sessions idle past their TTL.
func (j *Jobs) CleanupSessions() {
	removed := j.sessions.CleanupExpired()
	if removed > 0 {
		j.logger.Info("expired checkout sessions discarded",
			"removed", removed, "active", j.sessions.Active())
	}
}

// ReconcileOptimisticActivations re-checks accounts activated via the
// continue-anyway escape hatch. Confirmations that arrived late need no
// action; activations still unconfirmed past the stale window are marked
// failed.
func (j *Jobs) ReconcileOptimisticActivations() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-j.staleAfter)
	refs, err := j.store.ListStaleOptimisticActivations(ctx, cutoff)
	if err != nil {
		j.logger.Error("failed to list stale optimistic activations", "error", err)
		return
	}
	if len(refs) == 0 {
		return
	}

	for _, ref := range refs {
		active, err := j.store.ReadActivationFlag(ctx, ref)
		if err != nil {
			j.logger.Warn("reconciliation flag read failed",
				"account_ref", ref, "error", err)
			continue
		}
		if active {
			// Confirmation arrived after the cutoff query snapshot.
			continue
		}
		if err := j.store.MarkSubscriptionFailed(ctx, ref, "", "activation never confirmed by billing provider"); err != nil {
			j.logger.Error("failed to mark stale activation failed",
				"account_ref", ref, "error", err)
			continue
		}
		j.logger.Warn("optimistic activation never confirmed; marked failed",
			"account_ref", ref)
	}
}
