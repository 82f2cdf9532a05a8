/**
 * @description
 * HTTP client for the payment gateway's card-confirmation endpoint. The
 * checkout flow only ever calls this for subscriptions the billing backend
 * flagged as requiring a confirmation challenge; card collection and
 * tokenization stay entirely on the gateway's side.
 */
package paymentclient

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

// Client is a client for the payment gateway.
type Client struct {
	BaseURL    string
	APIKey     string
	httpClient *http.Client
}

// NewClient creates a new gateway client with a bounded request timeout.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type confirmRequest struct {
	ClientSecret   string `json:"client_secret"`
	CardholderName string `json:"cardholder_name"`
	AddressLine1   string `json:"address_line1"`
	City           string `json:"city"`
	State          string `json:"state"`
	PostalCode     string `json:"postal_code"`
}

type gatewayError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ConfirmCardPayment runs the gateway's confirmation call for a payment that
// requires a challenge. Decline codes come back as domain.ProviderError.
func (c *Client) ConfirmCardPayment(ctx context.Context, clientSecret string, billing domain.PaymentInfo) error {
	url := fmt.Sprintf("%s/api/v1/payment_intents/confirm", c.BaseURL)
	body, err := json.Marshal(confirmRequest{
		ClientSecret:   clientSecret,
		CardholderName: billing.CardholderName,
		AddressLine1:   billing.AddressLine1,
		City:           billing.City,
		State:          billing.State,
		PostalCode:     billing.PostalCode,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal confirm request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create confirm http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send confirm request to gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("gateway error with status %d, but failed to read response body", resp.StatusCode)
	}

	var decoded gatewayError
	if err := json.Unmarshal(bodyBytes, &decoded); err == nil && decoded.Error.Code != "" {
		return &domain.ProviderError{Code: decoded.Error.Code, Message: decoded.Error.Message}
	}
	return fmt.Errorf("gateway confirm request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
}
