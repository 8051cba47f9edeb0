/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract
 * for all ledger-store operations required by the payment settlement core.
 * Defining an interface decouples the business logic from the PostgreSQL
 * implementation and makes the services testable with in-memory stubs.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For internal identifiers.
 * - internal/domain: For the ledger record models.
 */

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/GustavoFBeltra/GoRedShirt-Platform-sub002/internal/domain"
)

var (
	ErrCoachNotFound      = errors.New("coach profile not found")
	ErrAccountNotFound    = errors.New("connected account not found")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrAlreadyProvisioned = errors.New("connected account already provisioned")
	ErrStoreUnavailable   = errors.New("ledger store unavailable")
)

// TerminalTransition is the outcome of a compare-and-set attempt to move a
// payment out of pending.
type TerminalTransition int

const (
	// TransitionApplied means this call moved the payment to the terminal status.
	TransitionApplied TerminalTransition = iota
	// TransitionAlreadyTerminal means the payment had already reached a terminal
	// status; the attempt was a no-op.
	TransitionAlreadyTerminal
)

// Repository defines the set of methods for interacting with the ledger store.
type Repository interface {
	// Coach profile methods. The profile itself is owned by the out-of-scope
	// CRUD layer; the settlement core only checks existence.
	CoachProfileExists(ctx context.Context, coachUserID uuid.UUID) (bool, error)

	// Connected account methods.
	FindConnectedAccountByCoachID(ctx context.Context, coachUserID uuid.UUID) (*domain.ConnectedAccount, error)
	CreateConnectedAccount(ctx context.Context, account *domain.ConnectedAccount) error
	// UpdateConnectedAccountFlags mirrors gateway-authoritative flags onto the
	// row keyed by the Stripe account id. Returns ErrAccountNotFound when no
	// row matches; it never creates one.
	UpdateConnectedAccountFlags(ctx context.Context, stripeAccountID string, onboardingComplete, chargesEnabled bool) error

	// Payment methods.
	CreatePayment(ctx context.Context, payment *domain.Payment) error
	FindPaymentByIntentID(ctx context.Context, stripePaymentIntentID string) (*domain.Payment, error)
	// MarkPaymentTerminal transitions the payment keyed by the intent id from
	// pending to the given terminal status with single-writer-wins-once
	// semantics. Returns ErrPaymentNotFound when no payment holds the id.
	MarkPaymentTerminal(ctx context.Context, stripePaymentIntentID, status string) (TerminalTransition, error)
}
