/**
 * @description
 * Maps provider-specific failure codes from the identity store and the
 * payment providers into the closed ErrorCategory set. The mapping is pure:
 * an unrecognized code is data, not a defect, and falls back to Unknown with
 * the provider's raw message preserved for display.
 */
package app

import (
	"errors"
	"strings"

	"github.com/medlink/checkout-service/internal/domain"
)

// identityCodes covers the auth/profile provider's failure catalogue.
var identityCodes = map[string]domain.ErrorCategory{
	"auth/email-already-in-use": domain.ErrDuplicateIdentity,
	"auth/email-already-exists": domain.ErrDuplicateIdentity,
	"auth/weak-password":        domain.ErrWeakCredential,
	"auth/invalid-email":        domain.ErrInvalidIdentity,
	"auth/invalid-document":     domain.ErrInvalidIdentity,
	"auth/too-many-requests":    domain.ErrProcessingError,
	"auth/not-authenticated":    domain.ErrNotAuthenticated,
	"auth/session-expired":      domain.ErrNotAuthenticated,
}

// gatewayCodes covers card-network style decline codes from the payment
// gateway and the billing backend.
var gatewayCodes = map[string]domain.ErrorCategory{
	"card_declined":           domain.ErrCardDeclined,
	"generic_decline":         domain.ErrCardDeclined,
	"do_not_honor":            domain.ErrCardDeclined,
	"expired_card":            domain.ErrCardExpired,
	"invalid_expiry_year":     domain.ErrCardExpired,
	"incorrect_cvc":           domain.ErrSecurityCodeInvalid,
	"invalid_cvc":             domain.ErrSecurityCodeInvalid,
	"insufficient_funds":      domain.ErrInsufficientFunds,
	"processing_error":        domain.ErrProcessingError,
	"issuer_not_available":    domain.ErrProcessingError,
	"authentication_required": domain.ErrProcessingError,
}

// Classify turns a collaborator failure into a ClassifiedError. It never
// fails itself: wrapped ProviderErrors are looked up by code, anything else
// becomes Unknown carrying the error text.
func Classify(collab domain.Collaborator, err error) *domain.ClassifiedError {
	if err == nil {
		return nil
	}

	var perr *domain.ProviderError
	if !errors.As(err, &perr) {
		return &domain.ClassifiedError{
			Collaborator: collab,
			Category:     domain.ErrUnknown,
			Message:      err.Error(),
		}
	}

	code := strings.ToLower(strings.TrimSpace(perr.Code))
	var table map[string]domain.ErrorCategory
	switch collab {
	case domain.CollaboratorIdentity:
		table = identityCodes
	default:
		table = gatewayCodes
	}

	if category, ok := table[code]; ok {
		return &domain.ClassifiedError{
			Collaborator: collab,
			Category:     category,
			ProviderCode: perr.Code,
		}
	}

	return &domain.ClassifiedError{
		Collaborator: collab,
		Category:     domain.ErrUnknown,
		ProviderCode: perr.Code,
		Message:      perr.Message,
	}
}

// FieldForCategory points an identity failure at the form field the user
// should fix. Duplicate identities surface on the email field since that is
// the uniqueness key the provider enforces.
func FieldForCategory(category domain.ErrorCategory) string {
	switch category {
	case domain.ErrDuplicateIdentity:
		return "email"
	case domain.ErrWeakCredential:
		return "password"
	case domain.ErrInvalidIdentity:
		return "cpf"
	default:
		return ""
	}
}
