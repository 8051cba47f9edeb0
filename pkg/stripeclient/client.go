/**
 * @description
 * This package provides a client for the subset of the Stripe API the payment
 * settlement core depends on: connected account creation, onboarding account
 * links, and payment intent creation with an application fee.
 *
 * Key features:
 * - Manages the API base URL and secret key.
 * - Form-encodes request parameters the way the Stripe API expects.
 * - Attaches idempotency keys to mutating calls so a timed-out request can be
 *   retried without creating a duplicate remote resource.
 * - Classifies timeouts and 5xx responses as ErrGatewayUnavailable so callers
 *   can distinguish retryable transport failures from API rejections.
 *
 * @dependencies
 * - context, net/http, net/url, strconv, time: Standard Go libraries.
 * - The module's internal domain package for Stripe response models.
 */
package stripeclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/GustavoFBeltra/GoRedShirt-Platform-sub002/internal/domain"
)

// ErrGatewayUnavailable marks timeouts and 5xx responses from Stripe. The
// remote resource may or may not have been created; callers must re-check
// before retrying without the same idempotency key.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// APIError is a non-transient rejection from the Stripe API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stripe API error: status %d: %s", e.StatusCode, e.Message)
}

// Client is a client for the Stripe API.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// NewClient creates a new Stripe API client with a bounded request timeout.
func NewClient(baseURL, secretKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CreateAccountParams carries the fixed provisioning defaults for a coach's
// connected account.
type CreateAccountParams struct {
	Country     string
	Email       string
	BusinessMCC string
}

// CreateAccount creates an express connected account for a coach.
func (c *Client) CreateAccount(ctx context.Context, params CreateAccountParams, idempotencyKey string) (*domain.StripeAccount, error) {
	form := url.Values{}
	form.Set("type", "express")
	form.Set("country", params.Country)
	if params.Email != "" {
		form.Set("email", params.Email)
	}
	if params.BusinessMCC != "" {
		form.Set("business_profile[mcc]", params.BusinessMCC)
	}
	form.Set("capabilities[card_payments][requested]", "true")
	form.Set("capabilities[transfers][requested]", "true")

	var account domain.StripeAccount
	if err := c.do(ctx, http.MethodPost, "/v1/accounts", form, idempotencyKey, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// CreateAccountLink issues a short-lived onboarding redirect URL for a
// connected account.
func (c *Client) CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (*domain.StripeAccountLink, error) {
	form := url.Values{}
	form.Set("account", accountID)
	form.Set("refresh_url", refreshURL)
	form.Set("return_url", returnURL)
	form.Set("type", "account_onboarding")

	var link domain.StripeAccountLink
	if err := c.do(ctx, http.MethodPost, "/v1/account_links", form, "", &link); err != nil {
		return nil, err
	}
	return &link, nil
}

// CreatePaymentIntentParams carries a split-charge creation request: the
// gross amount goes to the coach's connected account minus the platform fee.
type CreatePaymentIntentParams struct {
	Amount             int64
	Currency           string
	ApplicationFee     int64
	DestinationAccount string
	Description        string
	Metadata           map[string]string
}

// CreatePaymentIntent creates a payment intent with a destination charge and
// an application fee.
func (c *Client) CreatePaymentIntent(ctx context.Context, params CreatePaymentIntentParams, idempotencyKey string) (*domain.StripePaymentIntent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(params.Amount, 10))
	form.Set("currency", params.Currency)
	form.Set("application_fee_amount", strconv.FormatInt(params.ApplicationFee, 10))
	form.Set("transfer_data[destination]", params.DestinationAccount)
	form.Set("automatic_payment_methods[enabled]", "true")
	if params.Description != "" {
		form.Set("description", params.Description)
	}
	for key, value := range params.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", key), value)
	}

	var intent domain.StripePaymentIntent
	if err := c.do(ctx, http.MethodPost, "/v1/payment_intents", form, idempotencyKey, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// do is a helper to make form-encoded HTTP requests to the Stripe API.
func (c *Client) do(ctx context.Context, method, path string, form url.Values, idempotencyKey string, target interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create http request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and dial failures: the gateway may or may not have applied
		// the operation. Surface a retryable classification, never success.
		return fmt.Errorf("%w: %s %s: %v", ErrGatewayUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		// The connection dropped mid-body; treat it like any other transport
		// failure rather than letting a truncated payload fail decoding.
		return fmt.Errorf("%w: %s %s: read response: %v", ErrGatewayUnavailable, method, path, err)
	}

	if resp.StatusCode >= 500 {
		log.Printf("level=warn component=stripe_client msg=\"gateway 5xx\" method=%s path=%s status=%d", method, path, resp.StatusCode)
		return fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: extractAPIErrorMessage(respBody)}
	}

	if target != nil {
		if err := json.Unmarshal(respBody, target); err != nil {
			return fmt.Errorf("failed to unmarshal response body: %w", err)
		}
	}

	return nil
}

func extractAPIErrorMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	if len(body) > 512 {
		body = body[:512]
	}
	return string(body)
}
