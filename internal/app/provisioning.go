/**
 * @description
 * This file contains the core business logic for connected-account
 * provisioning: creating a Stripe connected account for a coach exactly once,
 * and issuing short-lived onboarding links against an existing account.
 *
 * @notes
 * - Authorization is enforced here, not in the database: the caller must be
 *   the coach the operation targets.
 * - A gateway-side success followed by a ledger-write failure leaves an
 *   orphaned external account. That condition is surfaced as a
 *   PartialFailureError and pushed onto the ops alert channel so an operator
 *   can reconcile the linkage.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/GustavoFBeltra/GoRedShirt-Platform-sub002/internal/domain"
	"github.com/GustavoFBeltra/GoRedShirt-Platform-sub002/internal/store"
	"github.com/GustavoFBeltra/GoRedShirt-Platform-sub002/pkg/rabbitmq"
	"github.com/GustavoFBeltra/GoRedShirt-Platform-sub002/pkg/stripeclient"
)

// Gateway is the outbound surface of the external payment processor the
// settlement core depends on.
type Gateway interface {
	CreateAccount(ctx context.Context, params stripeclient.CreateAccountParams, idempotencyKey string) (*domain.StripeAccount, error)
	CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (*domain.StripeAccountLink, error)
	CreatePaymentIntent(ctx context.Context, params stripeclient.CreatePaymentIntentParams, idempotencyKey string) (*domain.StripePaymentIntent, error)
}

// ProvisioningService manages the lifecycle of coach connected accounts.
type ProvisioningService struct {
	repo       store.Repository
	gateway    Gateway
	alerts     rabbitmq.Publisher
	appBaseURL string
	country    string
	mcc        string
}

// NewProvisioningService creates a new instance of ProvisioningService.
func NewProvisioningService(repo store.Repository, gateway Gateway, alerts rabbitmq.Publisher, appBaseURL, country, mcc string) *ProvisioningService {
	return &ProvisioningService{
		repo:       repo,
		gateway:    gateway,
		alerts:     alerts,
		appBaseURL: appBaseURL,
		country:    country,
		mcc:        mcc,
	}
}

// CreateAccount provisions a Stripe connected account for a coach. The caller
// must be the coach; provisioning is exactly-once per coach. Returns the new
// external account id.
func (s *ProvisioningService) CreateAccount(ctx context.Context, callerID, coachUserID uuid.UUID) (string, error) {
	if callerID != coachUserID {
		return "", ErrUnauthorized
	}

	exists, err := s.repo.CoachProfileExists(ctx, coachUserID)
	if err != nil {
		return "", fmt.Errorf("verify coach profile: %w", err)
	}
	if !exists {
		return "", store.ErrCoachNotFound
	}

	account, err := s.repo.FindConnectedAccountByCoachID(ctx, coachUserID)
	if err != nil && !errors.Is(err, store.ErrAccountNotFound) {
		return "", fmt.Errorf("check existing connected account: %w", err)
	}
	if account != nil && account.StripeAccountID != "" {
		return "", store.ErrAlreadyProvisioned
	}

	created, err := s.gateway.CreateAccount(ctx, stripeclient.CreateAccountParams{
		Country:     s.country,
		BusinessMCC: s.mcc,
	}, uuid.NewString())
	if err != nil {
		return "", fmt.Errorf("create gateway account: %w", err)
	}

	record := &domain.ConnectedAccount{
		CoachUserID:        coachUserID,
		StripeAccountID:    created.ID,
		OnboardingComplete: false,
		ChargesEnabled:     false,
	}
	if err := s.repo.CreateConnectedAccount(ctx, record); err != nil {
		// The external account exists either way; make the orphan visible.
		s.publishAlert(ctx, "account.provisioning.partial_failure", "create_connected_account", created.ID, err)
		if errors.Is(err, store.ErrAlreadyProvisioned) {
			// Lost a provisioning race; the stored id from the winner stands.
			return "", store.ErrAlreadyProvisioned
		}
		return "", &PartialFailureError{Operation: "create_connected_account", ExternalID: created.ID, Err: err}
	}

	log.Printf("level=info component=provisioning msg=\"connected account created\" coach_id=%s stripe_account_id=%s", coachUserID, created.ID)
	return created.ID, nil
}

// CreateOnboardingLink returns a short-lived gateway-hosted onboarding URL
// for the coach's connected account. Pure pass-through with authorization; no
// persistence.
func (s *ProvisioningService) CreateOnboardingLink(ctx context.Context, callerID, coachUserID uuid.UUID) (string, error) {
	if callerID != coachUserID {
		return "", ErrUnauthorized
	}

	account, err := s.repo.FindConnectedAccountByCoachID(ctx, coachUserID)
	if err != nil {
		return "", err
	}
	if account.StripeAccountID == "" {
		return "", store.ErrAccountNotFound
	}

	link, err := s.gateway.CreateAccountLink(ctx,
		account.StripeAccountID,
		s.appBaseURL+"/dashboard/coach/payments/refresh",
		s.appBaseURL+"/dashboard/coach/payments/complete",
	)
	if err != nil {
		return "", fmt.Errorf("create onboarding link: %w", err)
	}
	return link.URL, nil
}

func (s *ProvisioningService) publishAlert(ctx context.Context, routingKey, operation, externalID string, cause error) {
	log.Printf("level=error component=provisioning msg=\"partial failure requires reconciliation\" operation=%s external_id=%s err=%v", operation, externalID, cause)
	if s.alerts == nil {
		return
	}
	alert := rabbitmq.OpsAlert{
		Operation:  operation,
		ExternalID: externalID,
		Detail:     cause.Error(),
	}
	if err := s.alerts.PublishOpsAlert(ctx, routingKey, alert); err != nil {
		log.Printf("level=error component=provisioning msg=\"ops alert publish failed\" operation=%s external_id=%s err=%v", operation, externalID, err)
	}
}
