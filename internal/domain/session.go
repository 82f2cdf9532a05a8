/**
 * @description
 * This file defines the core domain models for the checkout-service.
 * A CheckoutSession is the aggregate root for one subscription attempt: it
 * tracks which plan was selected, how far the activation flow has progressed,
 * and the references handed back by the identity store and the billing
 * backend.
 *
 * @notes
 * - AccountRef and SubscriptionRef are each set exactly once per session.
 *   Retrying after a terminal failure creates a new session that reuses the
 *   AccountRef but gets a fresh SubscriptionRef slot.
 * - The session is mutated exclusively by the orchestrator; everything else
 *   only ever sees read-only snapshots.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionState is the orchestrator state of a checkout session.
type SessionState string

const (
	StateSelectingPlan          SessionState = "selecting_plan"
	StateCollectingPersonalInfo SessionState = "collecting_personal_info"
	StateProvisioningAccount    SessionState = "provisioning_account"
	StateCollectingPayment      SessionState = "collecting_payment"
	StateSubmittingSubscription SessionState = "submitting_subscription"
	StateConfirmingPayment      SessionState = "confirming_payment"
	StatePollingActivation      SessionState = "polling_activation"
	StateActivated              SessionState = "activated"
	StateTimedOut               SessionState = "timed_out"
	StateErrored                SessionState = "errored"
)

// IsTerminal reports whether no further automatic transition can occur.
func (s SessionState) IsTerminal() bool {
	return s == StateActivated || s == StateTimedOut || s == StateErrored
}

func (s SessionState) String() string { return string(s) }

// PlanID identifies one of the purchasable plans.
type PlanID string

const (
	PlanFree    PlanID = "free"
	PlanMonthly PlanID = "monthly"
	PlanAnnual  PlanID = "annual"
)

// KnownPlan reports whether the plan identifier is one the service sells.
func KnownPlan(p PlanID) bool {
	switch p {
	case PlanFree, PlanMonthly, PlanAnnual:
		return true
	}
	return false
}

// Paid reports whether the plan requires the billing flow.
func (p PlanID) Paid() bool { return p == PlanMonthly || p == PlanAnnual }

// CheckoutSession is the aggregate root for one subscription attempt.
type CheckoutSession struct {
	ID     uuid.UUID    `json:"id"`
	PlanID PlanID       `json:"plan_id"`
	State  SessionState `json:"state"`

	// AccountRef is the identity-store reference for the provisioned
	// account. Empty until provisioning succeeds, then immutable.
	AccountRef string `json:"account_ref,omitempty"`

	// SubscriptionRef is the billing backend's subscription identifier.
	// Empty until subscription creation succeeds, then immutable.
	SubscriptionRef string `json:"subscription_ref,omitempty"`

	// PaymentRequiresConfirmation is known only after the billing backend
	// responds to subscription creation.
	PaymentRequiresConfirmation bool `json:"payment_requires_confirmation"`

	// Polling bookkeeping, reset whenever a new polling cycle starts.
	AttemptCount int           `json:"attempt_count"`
	ElapsedPoll  time.Duration `json:"elapsed_poll_ms"`
	OptimisticOK bool          `json:"optimistic_ok"`

	// LastError is the last classified failure, cleared on every
	// successful transition. FieldErrors carries validation failures for
	// the step the user is on.
	LastError   *ClassifiedError  `json:"last_error,omitempty"`
	FieldErrors map[string]string `json:"field_errors,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewCheckoutSession creates a session in its initial state.
func NewCheckoutSession() *CheckoutSession {
	now := time.Now().UTC()
	return &CheckoutSession{
		ID:        uuid.New(),
		State:     StateSelectingPlan,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// RetrySession creates a fresh session that reuses the account reference and
// plan of a failed one. Polling state and the subscription slot start empty so
// the billing backend is asked for a brand-new subscription record.
func RetrySession(prev *CheckoutSession) *CheckoutSession {
	next := NewCheckoutSession()
	next.PlanID = prev.PlanID
	next.AccountRef = prev.AccountRef
	if next.PlanID == "" {
		next.State = StateSelectingPlan
	} else if next.AccountRef == "" {
		next.State = StateCollectingPersonalInfo
	} else if next.PlanID.Paid() {
		next.State = StateCollectingPayment
	} else {
		next.State = StateCollectingPersonalInfo
	}
	return next
}

// Snapshot is a read-only copy of the session handed to the API layer and to
// state-change subscribers.
func (s *CheckoutSession) Snapshot() CheckoutSession {
	cp := *s
	if s.FieldErrors != nil {
		cp.FieldErrors = make(map[string]string, len(s.FieldErrors))
		for k, v := range s.FieldErrors {
			cp.FieldErrors[k] = v
		}
	}
	if s.LastError != nil {
		e := *s.LastError
		cp.LastError = &e
	}
	return cp
}

// PersonalInfo is the identity and contact field group collected before
// account provisioning. It is a plain value record with no behavior.
type PersonalInfo struct {
	FullName string `json:"full_name" validate:"required,min=3"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	CPF      string `json:"cpf" validate:"required,cpf"`
	Phone    string `json:"phone" validate:"required,brphone"`
}

// PaymentInfo is the billing field group collected before subscription
// creation.
type PaymentInfo struct {
	CardholderName string `json:"cardholder_name" validate:"required,min=3"`
	BillingCPF     string `json:"billing_cpf" validate:"required,cpf"`
	AddressLine1   string `json:"address_line1" validate:"required"`
	City           string `json:"city" validate:"required"`
	State          string `json:"state" validate:"required"`
	PostalCode     string `json:"postal_code" validate:"required,cep"`
	AcceptedTerms  bool   `json:"accepted_terms" validate:"eq=true"`
}
