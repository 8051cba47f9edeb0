/**
 * @description
 * This file defines the core domain models for the payment settlement core.
 * These structs represent the ledger records (ConnectedAccount, Payment) and
 * the data transfer objects used by the business logic, the database layer,
 * and the API layer.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit (cents),
 *   which avoids floating-point inaccuracies with financial data.
 * - Payment status is a closed enum; transitions out of a terminal status
 *   are never performed by any component.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Payment statuses. A payment is created as pending and moved to exactly one
// terminal status by the event reconciler.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
)

// ConnectedAccount links a coach to their Stripe connected account and mirrors
// the gateway-authoritative onboarding flags. One row per coach; the Stripe
// account id is assigned at most once and never overwritten.
type ConnectedAccount struct {
	CoachUserID        uuid.UUID `json:"coach_user_id"`
	StripeAccountID    string    `json:"stripe_account_id"`
	OnboardingComplete bool      `json:"onboarding_complete"`
	ChargesEnabled     bool      `json:"charges_enabled"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Payment is the ledger record for one split charge. It is written in
// `pending` status synchronously with the gateway call and keyed by the
// payment intent id the gateway returns.
type Payment struct {
	ID                    uuid.UUID         `json:"id"`
	StripePaymentIntentID string            `json:"stripe_payment_intent_id"`
	ClientID              uuid.UUID         `json:"client_id"`
	CoachID               uuid.UUID         `json:"coach_id"`
	Amount                int64             `json:"amount"` // in cents
	PlatformFee           int64             `json:"platform_fee"`
	Currency              string            `json:"currency"`
	Status                string            `json:"status"`
	Description           string            `json:"description,omitempty"`
	Metadata              map[string]string `json:"metadata,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

// CreateChargeInput carries a validated charge-creation request into the
// charge intent service.
type CreateChargeInput struct {
	ClientUserID uuid.UUID
	CoachUserID  uuid.UUID
	Amount       int64 // in cents
	Description  string
	Metadata     map[string]string
}

// ChargeIntentResult is returned to the caller after a charge has been
// created on the gateway and reserved in the ledger.
type ChargeIntentResult struct {
	PaymentIntentID string `json:"payment_intent_id"`
	ClientSecret    string `json:"client_secret"`
	Amount          int64  `json:"amount"`
	PlatformFee     int64  `json:"platform_fee"`
}
