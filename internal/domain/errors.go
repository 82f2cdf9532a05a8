/**
 * @description
 * Error taxonomy shared across the checkout-service. Provider failures are
 * always classified into a small closed category set before they are stored
 * on a session or shown to a user; raw provider payloads survive only as the
 * fallback message for Unknown.
 */
package domain

// Collaborator names the external system a failure came from.
type Collaborator string

const (
	CollaboratorIdentity Collaborator = "identity"
	CollaboratorGateway  Collaborator = "gateway"
	CollaboratorBilling  Collaborator = "billing"
)

// ErrorCategory is the closed set of user-facing failure categories.
type ErrorCategory string

const (
	ErrDuplicateIdentity   ErrorCategory = "duplicate_identity"
	ErrWeakCredential      ErrorCategory = "weak_credential"
	ErrInvalidIdentity     ErrorCategory = "invalid_identity"
	ErrNotAuthenticated    ErrorCategory = "not_authenticated"
	ErrCardDeclined        ErrorCategory = "card_declined"
	ErrCardExpired         ErrorCategory = "card_expired"
	ErrSecurityCodeInvalid ErrorCategory = "security_code_invalid"
	ErrProcessingError     ErrorCategory = "processing_error"
	ErrInsufficientFunds   ErrorCategory = "insufficient_funds"
	ErrUnknown             ErrorCategory = "unknown"
)

// ClassifiedError is a provider failure after classification. Message is only
// meaningful for ErrUnknown, where the provider's raw text is preserved for
// display as a last resort.
type ClassifiedError struct {
	Collaborator Collaborator  `json:"collaborator"`
	Category     ErrorCategory `json:"category"`
	ProviderCode string        `json:"provider_code,omitempty"`
	Message      string        `json:"message,omitempty"`
}

func (e *ClassifiedError) Error() string {
	if e.Message != "" {
		return string(e.Collaborator) + ": " + string(e.Category) + ": " + e.Message
	}
	return string(e.Collaborator) + ": " + string(e.Category)
}

// ProviderError is the shape collaborator clients return before
// classification: the provider's own failure code plus its raw message.
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return e.Code + ": " + e.Message
	}
	return e.Code
}
