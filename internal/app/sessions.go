/**
 * @description
 * The session manager owns the live checkout orchestrators, keyed by session
 * id. It is the dispatch surface the API layer talks to: every UI intent is
 * routed here, and retry/cancel intents that replace or discard whole
 * sessions are resolved at this level.
 */
package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medlink/checkout-service/internal/domain"
)

// IntentType enumerates the UI intents a session accepts.
type IntentType string

const (
	IntentSelectPlan         IntentType = "select_plan"
	IntentSubmitPersonalInfo IntentType = "submit_personal_info"
	IntentSubmitPayment      IntentType = "submit_payment"
	IntentCancel             IntentType = "cancel"
	IntentRetry              IntentType = "retry"
	IntentContinueAnyway     IntentType = "continue_anyway"
)

// Intent is one dispatched UI action. Only the payload matching the type is
// read.
type Intent struct {
	Type     IntentType           `json:"type"`
	Plan     domain.PlanID        `json:"plan,omitempty"`
	Personal *domain.PersonalInfo `json:"personal,omitempty"`
	Payment  *domain.PaymentInfo  `json:"payment,omitempty"`
}

// ErrSessionNotFound is returned for unknown or already-discarded sessions.
var ErrSessionNotFound = errors.New("checkout session not found")

type managedSession struct {
	orch     *Orchestrator
	lastSeen time.Time
}

// SessionManager tracks active checkout sessions and their TTL.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*managedSession
	ttl      time.Duration

	store   ProfileStore
	gateway PaymentGateway
	billing BillingService
	poller  *ActivationPoller
	logger  *slog.Logger
}

// NewSessionManager creates a manager. Sessions idle longer than ttl are
// discarded by the cleanup job.
func NewSessionManager(store ProfileStore, gateway PaymentGateway, billing BillingService, poller *ActivationPoller, ttl time.Duration, logger *slog.Logger) *SessionManager {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SessionManager{
		sessions: make(map[uuid.UUID]*managedSession),
		ttl:      ttl,
		store:    store,
		gateway:  gateway,
		billing:  billing,
		poller:   poller,
		logger:   logger,
	}
}

// Create starts a new checkout session and returns its snapshot.
func (m *SessionManager) Create() domain.CheckoutSession {
	orch := NewOrchestrator(m.store, m.gateway, m.billing, m.poller, m.logger)
	snap := orch.Snapshot()

	m.mu.Lock()
	m.sessions[snap.ID] = &managedSession{orch: orch, lastSeen: time.Now()}
	m.mu.Unlock()

	m.logger.Info("checkout session created", "session_id", snap.ID)
	return snap
}

// Get returns the snapshot for a session.
func (m *SessionManager) Get(id uuid.UUID) (domain.CheckoutSession, error) {
	ms, err := m.touch(id)
	if err != nil {
		return domain.CheckoutSession{}, err
	}
	return ms.orch.Snapshot(), nil
}

// Subscribe registers a state-change listener on a session.
func (m *SessionManager) Subscribe(id uuid.UUID, fn func(domain.CheckoutSession)) error {
	ms, err := m.touch(id)
	if err != nil {
		return err
	}
	ms.orch.Subscribe(fn)
	return nil
}

// Dispatch routes a UI intent to the session's orchestrator. Retry replaces
// the session under a new id; cancel discards it.
func (m *SessionManager) Dispatch(ctx context.Context, id uuid.UUID, intent Intent) (domain.CheckoutSession, error) {
	ms, err := m.touch(id)
	if err != nil {
		return domain.CheckoutSession{}, err
	}

	switch intent.Type {
	case IntentSelectPlan:
		return ms.orch.SelectPlan(intent.Plan)
	case IntentSubmitPersonalInfo:
		if intent.Personal == nil {
			return ms.orch.Snapshot(), ErrInvalidState
		}
		return ms.orch.SubmitPersonalInfo(ctx, *intent.Personal)
	case IntentSubmitPayment:
		if intent.Payment == nil {
			return ms.orch.Snapshot(), ErrInvalidState
		}
		return ms.orch.SubmitPayment(ctx, *intent.Payment)
	case IntentContinueAnyway:
		return ms.orch.ContinueAnyway(ctx)
	case IntentRetry:
		return m.retry(id, ms)
	case IntentCancel:
		m.Discard(id)
		return ms.orch.Snapshot(), nil
	default:
		return ms.orch.Snapshot(), ErrInvalidState
	}
}

func (m *SessionManager) retry(id uuid.UUID, ms *managedSession) (domain.CheckoutSession, error) {
	next, err := ms.orch.Retry()
	if err != nil {
		return ms.orch.Snapshot(), err
	}
	snap := next.Snapshot()

	m.mu.Lock()
	delete(m.sessions, id)
	m.sessions[snap.ID] = &managedSession{orch: next, lastSeen: time.Now()}
	m.mu.Unlock()

	m.logger.Info("checkout session retried",
		"previous_session_id", id, "session_id", snap.ID)
	return snap, nil
}

// Discard cancels and removes a session.
func (m *SessionManager) Discard(id uuid.UUID) {
	m.mu.Lock()
	ms, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		ms.orch.Cancel()
		m.logger.Info("checkout session discarded", "session_id", id)
	}
}

// CleanupExpired discards sessions idle past the TTL and returns how many
// were removed. Called by the scheduler.
func (m *SessionManager) CleanupExpired() int {
	cutoff := time.Now().Add(-m.ttl)

	m.mu.Lock()
	var expired []uuid.UUID
	for id, ms := range m.sessions {
		if ms.lastSeen.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		m.Discard(id)
	}
	return len(expired)
}

// Active returns the number of live sessions.
func (m *SessionManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *SessionManager) touch(id uuid.UUID) (*managedSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	ms.lastSeen = time.Now()
	return ms, nil
}
