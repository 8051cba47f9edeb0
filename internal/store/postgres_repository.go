/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains the SQL queries for the `coach_profiles`,
 * `connected_accounts` and `payments` tables.
 *
 * Key behaviors:
 * - The terminal payment transition is a single compare-and-set UPDATE so
 *   concurrent webhook deliveries for the same payment serialize at the row
 *   and a terminal status is never overwritten.
 * - Connectivity-class failures are wrapped in ErrStoreUnavailable so the
 *   webhook path can answer with a retryable status.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the ledger record models.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GustavoFBeltra/GoRedShirt-Platform-sub002/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CoachProfileExists reports whether a coach profile row exists for the user.
func (r *PostgresRepository) CoachProfileExists(ctx context.Context, coachUserID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM coach_profiles WHERE user_id = $1)", coachUserID).Scan(&exists)
	if err != nil {
		return false, wrapInfraErr("check coach profile", err)
	}
	return exists, nil
}

// FindConnectedAccountByCoachID retrieves the connected account for a coach.
func (r *PostgresRepository) FindConnectedAccountByCoachID(ctx context.Context, coachUserID uuid.UUID) (*domain.ConnectedAccount, error) {
	var account domain.ConnectedAccount
	query := `SELECT coach_user_id, stripe_account_id, onboarding_complete, charges_enabled, updated_at
	          FROM connected_accounts WHERE coach_user_id = $1`
	err := r.db.QueryRow(ctx, query, coachUserID).Scan(
		&account.CoachUserID,
		&account.StripeAccountID,
		&account.OnboardingComplete,
		&account.ChargesEnabled,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, wrapInfraErr("find connected account", err)
	}
	return &account, nil
}

// CreateConnectedAccount persists a freshly provisioned connected account.
// The unique constraint on coach_user_id backstops concurrent provisioning:
// a second insert for the same coach surfaces ErrAlreadyProvisioned.
func (r *PostgresRepository) CreateConnectedAccount(ctx context.Context, account *domain.ConnectedAccount) error {
	query := `INSERT INTO connected_accounts (coach_user_id, stripe_account_id, onboarding_complete, charges_enabled, updated_at)
	          VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.Exec(ctx, query,
		account.CoachUserID,
		account.StripeAccountID,
		account.OnboardingComplete,
		account.ChargesEnabled,
		time.Now().UTC(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyProvisioned
		}
		return wrapInfraErr("create connected account", err)
	}
	return nil
}

// UpdateConnectedAccountFlags applies gateway-authoritative onboarding flags.
// Last write wins; the flags are idempotent booleans so no ordering guarantee
// is required.
func (r *PostgresRepository) UpdateConnectedAccountFlags(ctx context.Context, stripeAccountID string, onboardingComplete, chargesEnabled bool) error {
	query := `UPDATE connected_accounts
	          SET onboarding_complete = $2, charges_enabled = $3, updated_at = $4
	          WHERE stripe_account_id = $1`
	tag, err := r.db.Exec(ctx, query, stripeAccountID, onboardingComplete, chargesEnabled, time.Now().UTC())
	if err != nil {
		return wrapInfraErr("update connected account flags", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// CreatePayment writes the pending reservation row for a new charge.
func (r *PostgresRepository) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	metadata, err := json.Marshal(payment.Metadata)
	if err != nil {
		return fmt.Errorf("marshal payment metadata: %w", err)
	}

	query := `INSERT INTO payments
	          (id, stripe_payment_intent_id, client_id, coach_id, amount, platform_fee, currency, status, description, metadata, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`
	_, err = r.db.Exec(ctx, query,
		payment.ID,
		payment.StripePaymentIntentID,
		payment.ClientID,
		payment.CoachID,
		payment.Amount,
		payment.PlatformFee,
		payment.Currency,
		payment.Status,
		payment.Description,
		metadata,
		time.Now().UTC(),
	)
	if err != nil {
		return wrapInfraErr("create payment", err)
	}
	return nil
}

// FindPaymentByIntentID retrieves a payment by its Stripe payment intent id.
func (r *PostgresRepository) FindPaymentByIntentID(ctx context.Context, stripePaymentIntentID string) (*domain.Payment, error) {
	var (
		payment  domain.Payment
		metadata []byte
	)
	query := `SELECT id, stripe_payment_intent_id, client_id, coach_id, amount, platform_fee, currency, status, description, metadata, created_at, updated_at
	          FROM payments WHERE stripe_payment_intent_id = $1`
	err := r.db.QueryRow(ctx, query, stripePaymentIntentID).Scan(
		&payment.ID,
		&payment.StripePaymentIntentID,
		&payment.ClientID,
		&payment.CoachID,
		&payment.Amount,
		&payment.PlatformFee,
		&payment.Currency,
		&payment.Status,
		&payment.Description,
		&metadata,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, wrapInfraErr("find payment", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &payment.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal payment metadata: %w", err)
		}
	}
	return &payment, nil
}

// MarkPaymentTerminal moves a pending payment to a terminal status. The WHERE
// clause only matches pending rows, so the first terminal event to land wins
// and every later attempt is reported as already terminal.
func (r *PostgresRepository) MarkPaymentTerminal(ctx context.Context, stripePaymentIntentID, status string) (TerminalTransition, error) {
	if status != domain.PaymentStatusSucceeded && status != domain.PaymentStatusFailed {
		return 0, fmt.Errorf("invalid terminal status %q", status)
	}

	query := `UPDATE payments SET status = $2, updated_at = $3
	          WHERE stripe_payment_intent_id = $1 AND status = $4`
	tag, err := r.db.Exec(ctx, query, stripePaymentIntentID, status, time.Now().UTC(), domain.PaymentStatusPending)
	if err != nil {
		return 0, wrapInfraErr("mark payment terminal", err)
	}
	if tag.RowsAffected() > 0 {
		return TransitionApplied, nil
	}

	// No pending row matched: either the payment is already terminal or it
	// does not exist at all. Disambiguate with a lookup.
	var existing string
	err = r.db.QueryRow(ctx, "SELECT status FROM payments WHERE stripe_payment_intent_id = $1", stripePaymentIntentID).Scan(&existing)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrPaymentNotFound
		}
		return 0, wrapInfraErr("recheck payment status", err)
	}
	return TransitionAlreadyTerminal, nil
}

// wrapInfraErr tags connectivity-class database failures with
// ErrStoreUnavailable so callers can answer with a retryable status. Logic
// errors (bad SQL, constraint violations) pass through untagged.
func wrapInfraErr(op string, err error) error {
	if isTransient(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exceptions, 53: insufficient resources,
		// 57: operator intervention (shutdown), 40001/40P01: retryable tx aborts.
		if strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "53") || strings.HasPrefix(pgErr.Code, "57") {
			return true
		}
		if pgErr.Code == "40001" || pgErr.Code == "40P01" {
			return true
		}
		return false
	}
	// pgx surfaces dial/IO failures as plain errors; treat anything that is
	// not a recognized server response as a connectivity problem.
	return !errors.Is(err, pgx.ErrNoRows)
}
