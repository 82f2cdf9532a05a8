/**
 * @description
 * This file implements the data access layer for the checkout-service: the
 * identity/profile store that backs account provisioning and holds the
 * subscription activation flag written by the billing webhook consumer.
 *
 * @notes
 * - Provider failures that the checkout flow needs to present to the user
 *   (duplicate email, invalid document) are returned as domain.ProviderError
 *   values carrying auth/* codes, which the error classifier maps onto the
 *   user-facing categories. Anything else surfaces as a wrapped error and
 *   classifies as Unknown.
 */
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/medlink/checkout-service/internal/domain"
)

// ErrProfileNotFound is returned when no profile exists for an account ref.
var ErrProfileNotFound = errors.New("profile not found")

// ProfileRepository handles database operations for account profiles.
type ProfileRepository struct {
	db *pgxpool.Pool
}

// NewProfileRepository creates a new repository.
func NewProfileRepository(db *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// CreateOrUpdateProfile provisions a new account or, when accountRef is
// non-empty, updates the existing profile in place (idempotent resume after a
// downstream failure). The account reference is returned either way.
func (r *ProfileRepository) CreateOrUpdateProfile(ctx context.Context, accountRef string, info domain.PersonalInfo, plan domain.PlanID) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(info.Password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash credential: %w", err)
	}

	if accountRef != "" {
		query := `
            UPDATE profiles
            SET full_name = $2, email = $3, password_hash = $4, cpf = $5, phone = $6, plan_id = $7, updated_at = NOW()
            WHERE account_ref = $1
        `
		tag, err := r.db.Exec(ctx, query, accountRef, info.FullName, info.Email, string(hash), info.CPF, info.Phone, string(plan))
		if err != nil {
			return "", providerError(err)
		}
		if tag.RowsAffected() == 0 {
			return "", ErrProfileNotFound
		}
		return accountRef, nil
	}

	ref := "acc_" + uuid.NewString()
	query := `
        INSERT INTO profiles (account_ref, full_name, email, password_hash, cpf, phone, plan_id, subscription_active)
        VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)
    `
	if _, err := r.db.Exec(ctx, query, ref, info.FullName, info.Email, string(hash), info.CPF, info.Phone, string(plan)); err != nil {
		return "", providerError(err)
	}
	return ref, nil
}

// ReadActivationFlag reports whether the account's subscription has been
// confirmed by the billing provider.
func (r *ProfileRepository) ReadActivationFlag(ctx context.Context, accountRef string) (bool, error) {
	var active bool
	query := `SELECT subscription_active FROM profiles WHERE account_ref = $1`
	err := r.db.QueryRow(ctx, query, accountRef).Scan(&active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrProfileNotFound
		}
		return false, err
	}
	return active, nil
}

// ActivateFreePlan finalizes a free-plan account. Free plans have no billing
// confirmation to wait for, so the flag is set directly.
func (r *ProfileRepository) ActivateFreePlan(ctx context.Context, accountRef string) error {
	query := `
        UPDATE profiles
        SET subscription_active = TRUE, plan_id = 'free', activated_at = NOW(), updated_at = NOW()
        WHERE account_ref = $1
    `
	tag, err := r.db.Exec(ctx, query, accountRef)
	if err != nil {
		return providerError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// MarkSubscriptionActive records the billing provider's confirmation.
// Called by the webhook event consumer; this is the write the activation
// poller is waiting to observe.
func (r *ProfileRepository) MarkSubscriptionActive(ctx context.Context, accountRef, subscriptionRef string) error {
	query := `
        UPDATE profiles
        SET subscription_active = TRUE,
            subscription_ref = COALESCE(NULLIF($2, ''), subscription_ref),
            optimistic_activated_at = NULL,
            activated_at = NOW(),
            updated_at = NOW()
        WHERE account_ref = $1
    `
	tag, err := r.db.Exec(ctx, query, accountRef, subscriptionRef)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// MarkSubscriptionFailed records an out-of-band failure for an account.
func (r *ProfileRepository) MarkSubscriptionFailed(ctx context.Context, accountRef, subscriptionRef, reason string) error {
	query := `
        UPDATE profiles
        SET subscription_active = FALSE,
            subscription_ref = COALESCE(NULLIF($2, ''), subscription_ref),
            subscription_failure_reason = NULLIF($3, ''),
            optimistic_activated_at = NULL,
            updated_at = NOW()
        WHERE account_ref = $1
    `
	tag, err := r.db.Exec(ctx, query, accountRef, subscriptionRef, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// RecordOptimisticActivation marks an account the user chose to treat as
// active before billing confirmation arrived.
func (r *ProfileRepository) RecordOptimisticActivation(ctx context.Context, accountRef string) error {
	query := `
        UPDATE profiles
        SET optimistic_activated_at = NOW(), updated_at = NOW()
        WHERE account_ref = $1 AND subscription_active = FALSE
    `
	_, err := r.db.Exec(ctx, query, accountRef)
	return err
}

// ListStaleOptimisticActivations returns accounts flagged optimistic before
// olderThan whose subscription was never confirmed.
func (r *ProfileRepository) ListStaleOptimisticActivations(ctx context.Context, olderThan time.Time) ([]string, error) {
	query := `
        SELECT account_ref
        FROM profiles
        WHERE optimistic_activated_at IS NOT NULL
          AND optimistic_activated_at < $1
          AND subscription_active = FALSE
        ORDER BY optimistic_activated_at
        LIMIT 500
    `
	rows, err := r.db.Query(ctx, query, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// providerError translates low-level database failures into the provider
// codes the classifier understands.
func providerError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation: the email column carries the uniqueness key
			return &domain.ProviderError{Code: "auth/email-already-in-use", Message: pgErr.Detail}
		case "23514": // check_violation: document format constraints
			return &domain.ProviderError{Code: "auth/invalid-document", Message: pgErr.Detail}
		}
	}
	return err
}
