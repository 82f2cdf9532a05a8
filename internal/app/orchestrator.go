/**
 * @description
 * The checkout orchestrator owns one CheckoutSession and sequences account
 * provisioning, subscription creation, card confirmation and activation
 * polling across the three collaborators. It is the only component that
 * mutates the session; the API layer reads snapshots and dispatches intents.
 *
 * @notes
 * - Transitions are strictly sequential: at most one collaborator call per
 *   session is ever in flight, which is what prevents duplicate account or
 *   subscription creation. A dispatch arriving while a call is pending is a
 *   no-op and returns ErrBusy.
 * - Account and subscription references are each assigned at most once per
 *   session, regardless of how many times a step is retried.
 * - A session never reports Activated unless the poller observed the
 *   confirmed flag in the profile store, or the user explicitly chose the
 *   continue-anyway escape hatch after a timeout.
 */
package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/medlink/checkout-service/internal/domain"
	"github.com/medlink/checkout-service/internal/validate"
)

// ProfileStore is the identity/profile collaborator surface.
type ProfileStore interface {
	// CreateOrUpdateProfile provisions an account for the given personal
	// info, or updates the existing profile when accountRef is non-empty.
	// It returns the (possibly pre-existing) account reference.
	CreateOrUpdateProfile(ctx context.Context, accountRef string, info domain.PersonalInfo, plan domain.PlanID) (string, error)

	// ActivateFreePlan finalizes a free-plan account synchronously; free
	// plans have no out-of-band billing confirmation to wait for.
	ActivateFreePlan(ctx context.Context, accountRef string) error

	// RecordOptimisticActivation marks an account the user chose to treat
	// as active before the billing confirmation arrived, so the
	// reconciliation job can follow up.
	RecordOptimisticActivation(ctx context.Context, accountRef string) error

	ActivationReader
}

// PaymentGateway confirms card payments that the billing backend flagged as
// requiring a challenge.
type PaymentGateway interface {
	ConfirmCardPayment(ctx context.Context, clientSecret string, info domain.PaymentInfo) error
}

// CreateSubscriptionResult is the billing backend's synchronous answer.
type CreateSubscriptionResult struct {
	SubscriptionRef      string
	RequiresConfirmation bool
	ClientSecret         string
}

// BillingService creates subscription records on the billing backend.
type BillingService interface {
	CreateSubscription(ctx context.Context, plan domain.PlanID, accountRef string, billing domain.PaymentInfo) (CreateSubscriptionResult, error)
}

var (
	// ErrBusy is returned when a dispatch arrives while an outbound call
	// for the same session is still pending. The duplicate is dropped.
	ErrBusy = errors.New("a transition for this session is already in flight")

	// ErrInvalidState is returned when an intent does not apply to the
	// session's current state.
	ErrInvalidState = errors.New("intent not valid in current session state")

	// ErrUnknownPlan is returned for plan identifiers outside the catalog.
	ErrUnknownPlan = errors.New("unknown plan identifier")
)

// Orchestrator drives a single checkout session.
type Orchestrator struct {
	mu        sync.Mutex
	session   *domain.CheckoutSession
	inFlight  bool
	listeners []func(domain.CheckoutSession)

	clientSecret string
	pollCancel   context.CancelFunc
	pollDone     chan struct{}

	store   ProfileStore
	gateway PaymentGateway
	billing BillingService
	poller  *ActivationPoller
	logger  *slog.Logger
}

// NewOrchestrator creates an orchestrator around a fresh session.
func NewOrchestrator(store ProfileStore, gateway PaymentGateway, billing BillingService, poller *ActivationPoller, logger *slog.Logger) *Orchestrator {
	return newOrchestratorWith(domain.NewCheckoutSession(), store, gateway, billing, poller, logger)
}

func newOrchestratorWith(session *domain.CheckoutSession, store ProfileStore, gateway PaymentGateway, billing BillingService, poller *ActivationPoller, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		session: session,
		store:   store,
		gateway: gateway,
		billing: billing,
		poller:  poller,
		logger:  logger,
	}
}

// Retry builds a new orchestrator whose session reuses this one's account
// reference and plan but starts with a fresh subscription slot and cleared
// polling state. The old session must be terminal.
func (o *Orchestrator) Retry() (*Orchestrator, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.session.State.IsTerminal() {
		return nil, ErrInvalidState
	}
	o.stopPollingLocked()
	next := domain.RetrySession(o.session)
	return newOrchestratorWith(next, o.store, o.gateway, o.billing, o.poller, o.logger), nil
}

// Snapshot returns a read-only copy of the session.
func (o *Orchestrator) Snapshot() domain.CheckoutSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session.Snapshot()
}

// Subscribe registers a listener invoked with a snapshot after every state
// change.
func (o *Orchestrator) Subscribe(fn func(domain.CheckoutSession)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, fn)
}

func (o *Orchestrator) notifyLocked() {
	snap := o.session.Snapshot()
	listeners := make([]func(domain.CheckoutSession), len(o.listeners))
	copy(listeners, o.listeners)
	go func() {
		for _, fn := range listeners {
			fn(snap)
		}
	}()
}

// SelectPlan records the chosen plan and advances to personal-info
// collection. It has no side effects beyond local state.
func (o *Orchestrator) SelectPlan(plan domain.PlanID) (domain.CheckoutSession, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !domain.KnownPlan(plan) {
		return o.session.Snapshot(), ErrUnknownPlan
	}
	if o.inFlight {
		return o.session.Snapshot(), ErrBusy
	}
	if o.session.State != domain.StateSelectingPlan {
		return o.session.Snapshot(), ErrInvalidState
	}

	o.session.PlanID = plan
	o.transitionLocked(domain.StateCollectingPersonalInfo)
	return o.session.Snapshot(), nil
}

// SubmitPersonalInfo validates the identity field group and provisions (or
// idempotently updates) the account in the profile store. On collaborator
// failure the session rolls back to CollectingPersonalInfo with the
// classified error attached; the user's draft is untouched.
func (o *Orchestrator) SubmitPersonalInfo(ctx context.Context, info domain.PersonalInfo) (domain.CheckoutSession, error) {
	o.mu.Lock()
	if o.inFlight {
		defer o.mu.Unlock()
		return o.session.Snapshot(), ErrBusy
	}
	if o.session.State != domain.StateCollectingPersonalInfo {
		defer o.mu.Unlock()
		return o.session.Snapshot(), ErrInvalidState
	}

	if errs := validate.Struct(info); len(errs) > 0 {
		o.session.FieldErrors = errs
		o.session.UpdatedAt = time.Now().UTC()
		snap := o.session.Snapshot()
		o.mu.Unlock()
		return snap, nil
	}

	accountRef := o.session.AccountRef
	plan := o.session.PlanID
	o.inFlight = true
	o.transitionLocked(domain.StateProvisioningAccount)
	o.mu.Unlock()

	ref, err := o.store.CreateOrUpdateProfile(ctx, accountRef, info, plan)

	o.mu.Lock()
	o.inFlight = false
	if err != nil {
		classified := Classify(domain.CollaboratorIdentity, err)
		o.logger.Warn("account provisioning failed",
			"session_id", o.session.ID,
			"category", classified.Category,
			"provider_code", classified.ProviderCode)
		o.session.LastError = classified
		o.session.FieldErrors = fieldErrorsFor(classified)
		o.transitionLocked(domain.StateCollectingPersonalInfo)
		snap := o.session.Snapshot()
		o.mu.Unlock()
		return snap, nil
	}

	if o.session.AccountRef == "" {
		o.session.AccountRef = ref
	}

	if plan.Paid() {
		o.transitionLocked(domain.StateCollectingPayment)
		snap := o.session.Snapshot()
		o.mu.Unlock()
		return snap, nil
	}

	// Free plan: finalize synchronously, no billing collaborator involved.
	o.inFlight = true
	ref = o.session.AccountRef
	o.mu.Unlock()

	finErr := o.store.ActivateFreePlan(ctx, ref)

	o.mu.Lock()
	o.inFlight = false
	if finErr != nil {
		classified := Classify(domain.CollaboratorIdentity, finErr)
		o.session.LastError = classified
		o.session.FieldErrors = fieldErrorsFor(classified)
		o.transitionLocked(domain.StateCollectingPersonalInfo)
	} else {
		o.transitionLocked(domain.StateActivated)
	}
	snap := o.session.Snapshot()
	o.mu.Unlock()
	return snap, nil
}

// SubmitPayment validates the billing field group, creates the subscription
// on the billing backend, and, when the backend flags a confirmation
// challenge, delegates to the payment gateway. A billing failure rolls back
// to CollectingPayment; a gateway confirmation failure is terminal because
// the subscription record already exists server-side.
func (o *Orchestrator) SubmitPayment(ctx context.Context, info domain.PaymentInfo) (domain.CheckoutSession, error) {
	o.mu.Lock()
	if o.inFlight {
		defer o.mu.Unlock()
		return o.session.Snapshot(), ErrBusy
	}
	if o.session.State != domain.StateCollectingPayment || o.session.AccountRef == "" {
		defer o.mu.Unlock()
		return o.session.Snapshot(), ErrInvalidState
	}

	if errs := validate.Struct(info); len(errs) > 0 {
		o.session.FieldErrors = errs
		o.session.UpdatedAt = time.Now().UTC()
		snap := o.session.Snapshot()
		o.mu.Unlock()
		return snap, nil
	}

	plan := o.session.PlanID
	accountRef := o.session.AccountRef
	o.inFlight = true
	o.transitionLocked(domain.StateSubmittingSubscription)
	o.mu.Unlock()

	result, err := o.billing.CreateSubscription(ctx, plan, accountRef, info)

	o.mu.Lock()
	o.inFlight = false
	if err != nil {
		classified := Classify(domain.CollaboratorBilling, err)
		o.logger.Warn("subscription creation failed",
			"session_id", o.session.ID,
			"category", classified.Category,
			"provider_code", classified.ProviderCode)
		// No automatic retry: the failure may be invalid payment
		// details that a blind resubmission cannot fix.
		o.session.LastError = classified
		o.transitionLocked(domain.StateCollectingPayment)
		snap := o.session.Snapshot()
		o.mu.Unlock()
		return snap, nil
	}

	if o.session.SubscriptionRef == "" {
		o.session.SubscriptionRef = result.SubscriptionRef
	}
	o.session.PaymentRequiresConfirmation = result.RequiresConfirmation
	o.clientSecret = result.ClientSecret

	if !result.RequiresConfirmation {
		o.startPollingLocked()
		snap := o.session.Snapshot()
		o.mu.Unlock()
		return snap, nil
	}

	o.inFlight = true
	o.transitionLocked(domain.StateConfirmingPayment)
	secret := o.clientSecret
	o.mu.Unlock()

	confirmErr := o.gateway.ConfirmCardPayment(ctx, secret, info)

	o.mu.Lock()
	o.inFlight = false
	if confirmErr != nil {
		classified := Classify(domain.CollaboratorGateway, confirmErr)
		o.logger.Warn("card confirmation failed",
			"session_id", o.session.ID,
			"subscription_ref", o.session.SubscriptionRef,
			"category", classified.Category)
		// The subscription record already exists in a requires-action
		// state server-side; retrying here would create a duplicate.
		// The user must start a fresh session.
		o.session.LastError = classified
		o.transitionLocked(domain.StateErrored)
		snap := o.session.Snapshot()
		o.mu.Unlock()
		return snap, nil
	}

	o.startPollingLocked()
	snap := o.session.Snapshot()
	o.mu.Unlock()
	return snap, nil
}

// ContinueAnyway is the user-triggered escape hatch from TimedOut: the
// session is treated as activated while the billing confirmation completes
// out-of-band, and the account is flagged for the reconciliation job.
func (o *Orchestrator) ContinueAnyway(ctx context.Context) (domain.CheckoutSession, error) {
	o.mu.Lock()
	if o.session.State != domain.StateTimedOut {
		defer o.mu.Unlock()
		return o.session.Snapshot(), ErrInvalidState
	}
	accountRef := o.session.AccountRef
	o.session.OptimisticOK = true
	o.transitionLocked(domain.StateActivated)
	snap := o.session.Snapshot()
	o.mu.Unlock()

	if err := o.store.RecordOptimisticActivation(ctx, accountRef); err != nil {
		// Best effort: the client-side outcome stands either way, the
		// backend reconciles independently.
		o.logger.Warn("failed to record optimistic activation",
			"account_ref", accountRef, "error", err)
	}
	return snap, nil
}

// Cancel stops any active polling. The caller discards the session.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopPollingLocked()
}

// startPollingLocked enters PollingActivation and launches the poller task.
// Only one poller instance is ever active per session: any prior instance is
// cancelled first.
func (o *Orchestrator) startPollingLocked() {
	o.stopPollingLocked()

	o.session.AttemptCount = 0
	o.session.ElapsedPoll = 0
	o.transitionLocked(domain.StatePollingActivation)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	o.pollCancel = cancel
	o.pollDone = done
	accountRef := o.session.AccountRef

	go func() {
		defer close(done)
		result, err := o.poller.Poll(ctx, accountRef, o.recordProgress)

		o.mu.Lock()
		defer o.mu.Unlock()
		if err != nil {
			// Cancelled: resolve neither outcome.
			return
		}
		if o.session.State != domain.StatePollingActivation {
			return
		}
		if result == PollConfirmed {
			o.session.LastError = nil
		}
		o.transitionLocked(resultState(result))
	}()
}

func (o *Orchestrator) stopPollingLocked() {
	if o.pollCancel != nil {
		o.pollCancel()
		o.pollCancel = nil
	}
}

func (o *Orchestrator) recordProgress(attempt int, elapsed time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.session.AttemptCount = attempt
	o.session.ElapsedPoll = elapsed
}

// transitionLocked advances the session state, clearing step errors on every
// successful transition.
func (o *Orchestrator) transitionLocked(next domain.SessionState) {
	prev := o.session.State
	if next != prev {
		switch next {
		case domain.StateCollectingPersonalInfo, domain.StateCollectingPayment, domain.StateErrored:
			// Rollback and failure edges keep LastError for display.
		default:
			o.session.LastError = nil
			o.session.FieldErrors = nil
		}
	}
	o.session.State = next
	o.session.UpdatedAt = time.Now().UTC()
	o.logger.Info("session transition",
		"session_id", o.session.ID, "from", prev, "to", next)
	o.notifyLocked()
}

func fieldErrorsFor(classified *domain.ClassifiedError) map[string]string {
	field := FieldForCategory(classified.Category)
	if field == "" {
		return nil
	}
	msg := classified.Message
	if msg == "" {
		msg = string(classified.Category)
	}
	return map[string]string{field: msg}
}
