/**
 * @description
 * HTTP client for the backend subscription service. It encapsulates
 * authenticated requests, body handling and error decoding; structured
 * provider failures come back as domain.ProviderError values so the checkout
 * flow can classify them.
 */
package billingclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/medlink/checkout-service/internal/domain"
)

// Client is a client for the billing backend.
type Client struct {
	BaseURL    string
	APIKey     string
	httpClient *http.Client
}

// NewClient creates a new billing API client with a bounded request timeout.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type createSubscriptionRequest struct {
	PlanID         string `json:"plan_id"`
	AccountRef     string `json:"account_ref"`
	CardholderName string `json:"cardholder_name"`
	BillingCPF     string `json:"billing_cpf"`
	AddressLine1   string `json:"address_line1"`
	City           string `json:"city"`
	State          string `json:"state"`
	PostalCode     string `json:"postal_code"`
}

type createSubscriptionResponse struct {
	SubscriptionRef      string `json:"subscription_ref"`
	RequiresConfirmation bool   `json:"requires_confirmation"`
	ClientSecret         string `json:"client_secret,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CreateSubscriptionResult mirrors the backend's synchronous answer. The
// final activation still arrives out-of-band via webhook.
type CreateSubscriptionResult struct {
	SubscriptionRef      string
	RequiresConfirmation bool
	ClientSecret         string
}

// CreateSubscription asks the billing backend for a new subscription record.
func (c *Client) CreateSubscription(ctx context.Context, plan domain.PlanID, accountRef string, billing domain.PaymentInfo) (CreateSubscriptionResult, error) {
	url := fmt.Sprintf("%s/api/v1/subscriptions", c.BaseURL)
	body, err := json.Marshal(createSubscriptionRequest{
		PlanID:         string(plan),
		AccountRef:     accountRef,
		CardholderName: billing.CardholderName,
		BillingCPF:     billing.BillingCPF,
		AddressLine1:   billing.AddressLine1,
		City:           billing.City,
		State:          billing.State,
		PostalCode:     billing.PostalCode,
	})
	if err != nil {
		return CreateSubscriptionResult{}, fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return CreateSubscriptionResult{}, fmt.Errorf("failed to create http request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return CreateSubscriptionResult{}, fmt.Errorf("failed to send request to billing backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return CreateSubscriptionResult{}, decodeError(resp)
	}

	var decoded createSubscriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return CreateSubscriptionResult{}, fmt.Errorf("failed to decode successful response: %w", err)
	}

	return CreateSubscriptionResult{
		SubscriptionRef:      decoded.SubscriptionRef,
		RequiresConfirmation: decoded.RequiresConfirmation,
		ClientSecret:         decoded.ClientSecret,
	}, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
}

// decodeError reads a failed response. Structured errors keep their provider
// code; anything else becomes a plain formatted error.
func decodeError(resp *http.Response) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("billing API error with status %d, but failed to read response body", resp.StatusCode)
	}

	var decoded apiError
	if err := json.Unmarshal(bodyBytes, &decoded); err == nil && decoded.Code != "" {
		return &domain.ProviderError{Code: decoded.Code, Message: decoded.Message}
	}
	return fmt.Errorf("billing API request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
}
