/**
 * @description
 * HTTP handlers for the checkout API. Handlers parse requests, route intents
 * to the session manager, and serialize session snapshots back to the
 * client. All business rules live in internal/app; nothing here mutates a
 * session directly.
 */
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medlink/checkout-service/internal/app"
	"github.com/medlink/checkout-service/internal/domain"
)

// Handler holds the application services the API needs.
type Handler struct {
	sessions     *app.SessionManager
	counter      app.AttemptCounter
	attemptLimit int
	logger       *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(sessions *app.SessionManager, counter app.AttemptCounter, attemptLimit int, logger *slog.Logger) *Handler {
	return &Handler{
		sessions:     sessions,
		counter:      counter,
		attemptLimit: attemptLimit,
		logger:       logger,
	}
}

type createSessionRequest struct {
	Plan domain.PlanID `json:"plan,omitempty"`
}

// handleCreateSession starts a new checkout session, optionally selecting a
// plan in the same call. Creation counts against the caller's daily attempt
// limit.
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	subject, ok := SubjectFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	count, allowed, err := h.counter.Consume(r.Context(), subject, h.attemptLimit)
	if err != nil {
		// Counting is an abuse guard, not a correctness gate; fail open.
		h.logger.Warn("attempt counter unavailable", "error", err)
	} else if !allowed {
		h.logger.Info("daily checkout attempt limit reached",
			"subject", subject, "count", count)
		http.Error(w, "Too many checkout attempts today", http.StatusTooManyRequests)
		return
	}

	var req createSessionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	snap := h.sessions.Create()
	if req.Plan != "" {
		snap, err = h.sessions.Dispatch(r.Context(), snap.ID, app.Intent{
			Type: app.IntentSelectPlan,
			Plan: req.Plan,
		})
		if err != nil {
			h.sessions.Discard(snap.ID)
			h.writeDispatchError(w, snap, err)
			return
		}
	}

	respondWithJSON(w, http.StatusCreated, snap)
}

// handleGetSession returns the session snapshot.
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	snap, err := h.sessions.Get(id)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	respondWithJSON(w, http.StatusOK, snap)
}

// handleDispatch routes one UI intent to the session.
func (h *Handler) handleDispatch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	var intent app.Intent
	if err := json.NewDecoder(r.Body).Decode(&intent); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	snap, err := h.sessions.Dispatch(r.Context(), id, intent)
	if err != nil {
		h.writeDispatchError(w, snap, err)
		return
	}
	respondWithJSON(w, http.StatusOK, snap)
}

// handleDeleteSession discards a session (user navigated away).
func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	h.sessions.Discard(id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		http.Error(w, "Invalid session id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeDispatchError(w http.ResponseWriter, snap domain.CheckoutSession, err error) {
	switch {
	case errors.Is(err, app.ErrSessionNotFound):
		http.Error(w, "Session not found", http.StatusNotFound)
	case errors.Is(err, app.ErrBusy):
		// Duplicate submission while a call is in flight: report the
		// current snapshot, no second outbound call was made.
		respondWithJSON(w, http.StatusAccepted, snap)
	case errors.Is(err, app.ErrUnknownPlan):
		http.Error(w, "Unknown plan", http.StatusBadRequest)
	case errors.Is(err, app.ErrInvalidState):
		respondWithJSON(w, http.StatusConflict, snap)
	default:
		h.logger.Error("dispatch failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// respondWithJSON writes a JSON response.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
