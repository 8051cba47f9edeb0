/**
 * @description
 * This file defines the wire-level models exchanged with the Stripe API:
 * responses from outbound calls made by the gateway client and the envelope
 * of inbound webhook events.
 *
 * @notes
 * - Only the fields the settlement core actually reads are modeled; Stripe
 *   payloads carry far more, and unknown fields are ignored by encoding/json.
 * - Webhook payloads are decoded from the exact bytes that were signature
 *   verified; these structs are never re-serialized for verification.
 */

package domain

import "encoding/json"

// StripeAccount is the subset of a Stripe connected account object the core
// consumes.
type StripeAccount struct {
	ID               string `json:"id"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
	Country          string `json:"country"`
}

// StripeAccountLink is the short-lived onboarding redirect returned by the
// account_links endpoint.
type StripeAccountLink struct {
	URL       string `json:"url"`
	ExpiresAt int64  `json:"expires_at"`
}

// StripePaymentIntent is the subset of a payment intent object the core
// consumes after charge creation.
type StripePaymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
}

// Gateway webhook event types the reconciler dispatches on.
const (
	EventAccountUpdated         = "account.updated"
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
	EventPaymentIntentFailed    = "payment_intent.payment_failed"
	EventAccountAppAuthorized   = "account.application.authorized"
	EventAccountAppDeauthorized = "account.application.deauthorized"
)

// StripeEvent is the envelope of an inbound webhook delivery. `Data.Object`
// is kept raw and decoded per event type by the reconciler.
type StripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// EventAccountObject is the `data.object` payload of an account.updated event.
type EventAccountObject struct {
	ID               string `json:"id"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
}

// EventPaymentIntentObject is the `data.object` payload of a payment_intent.*
// event.
type EventPaymentIntentObject struct {
	ID string `json:"id"`
}
