package app

import (
	"errors"
	"fmt"
	"testing"

	"github.com/medlink/checkout-service/internal/domain"
)

func TestClassifyProviderCodes(t *testing.T) {
	cases := []struct {
		name   string
		collab domain.Collaborator
		code   string
		want   domain.ErrorCategory
	}{
		{"duplicate email", domain.CollaboratorIdentity, "auth/email-already-in-use", domain.ErrDuplicateIdentity},
		{"weak password", domain.CollaboratorIdentity, "auth/weak-password", domain.ErrWeakCredential},
		{"invalid document", domain.CollaboratorIdentity, "auth/invalid-document", domain.ErrInvalidIdentity},
		{"session expired", domain.CollaboratorIdentity, "auth/session-expired", domain.ErrNotAuthenticated},
		{"card declined", domain.CollaboratorGateway, "card_declined", domain.ErrCardDeclined},
		{"generic decline", domain.CollaboratorGateway, "generic_decline", domain.ErrCardDeclined},
		{"expired card", domain.CollaboratorBilling, "expired_card", domain.ErrCardExpired},
		{"bad cvc", domain.CollaboratorGateway, "incorrect_cvc", domain.ErrSecurityCodeInvalid},
		{"insufficient funds", domain.CollaboratorBilling, "insufficient_funds", domain.ErrInsufficientFunds},
		{"processing error", domain.CollaboratorBilling, "processing_error", domain.ErrProcessingError},
		{"code casing normalized", domain.CollaboratorGateway, " Card_Declined ", domain.ErrCardDeclined},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.collab, &domain.ProviderError{Code: tc.code})
			if got.Category != tc.want {
				t.Errorf("Classify(%s, %q) = %s, want %s", tc.collab, tc.code, got.Category, tc.want)
			}
			if got.Collaborator != tc.collab {
				t.Errorf("collaborator = %s, want %s", got.Collaborator, tc.collab)
			}
		})
	}
}

func TestClassifyUnknownCodePreservesMessage(t *testing.T) {
	got := Classify(domain.CollaboratorBilling, &domain.ProviderError{
		Code:    "some_new_decline_code",
		Message: "the issuer rejected this transaction",
	})
	if got.Category != domain.ErrUnknown {
		t.Fatalf("expected unknown, got %s", got.Category)
	}
	if got.ProviderCode != "some_new_decline_code" {
		t.Fatalf("provider code must survive classification, got %q", got.ProviderCode)
	}
	if got.Message != "the issuer rejected this transaction" {
		t.Fatalf("raw message must be preserved for unknown codes, got %q", got.Message)
	}
}

func TestClassifyNonProviderError(t *testing.T) {
	got := Classify(domain.CollaboratorIdentity, errors.New("dial tcp: connection refused"))
	if got.Category != domain.ErrUnknown {
		t.Fatalf("expected unknown, got %s", got.Category)
	}
	if got.Message != "dial tcp: connection refused" {
		t.Fatalf("error text must be preserved, got %q", got.Message)
	}
}

func TestClassifyUnwrapsProviderError(t *testing.T) {
	wrapped := fmt.Errorf("creating subscription: %w", &domain.ProviderError{Code: "card_declined"})
	got := Classify(domain.CollaboratorBilling, wrapped)
	if got.Category != domain.ErrCardDeclined {
		t.Fatalf("expected card_declined from wrapped error, got %s", got.Category)
	}
}

func TestClassifyNil(t *testing.T) {
	if got := Classify(domain.CollaboratorGateway, nil); got != nil {
		t.Fatalf("expected nil for nil error, got %+v", got)
	}
}

func TestFieldForCategory(t *testing.T) {
	cases := map[domain.ErrorCategory]string{
		domain.ErrDuplicateIdentity: "email",
		domain.ErrWeakCredential:    "password",
		domain.ErrInvalidIdentity:   "cpf",
		domain.ErrCardDeclined:      "",
		domain.ErrUnknown:           "",
	}
	for category, want := range cases {
		if got := FieldForCategory(category); got != want {
			t.Errorf("FieldForCategory(%s) = %q, want %q", category, got, want)
		}
	}
}
