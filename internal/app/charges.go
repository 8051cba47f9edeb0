/**
 * @description
 * This file contains the charge intent service: it creates a split charge on
 * the gateway (client pays the coach, minus the platform fee) and reserves a
 * pending Payment row in the ledger before the caller observes the result.
 *
 * @notes
 * - Reserved metadata keys always win over caller-supplied keys; the
 *   reconciliation path depends on them being trustworthy.
 * - A ledger-write failure after a successful gateway call does NOT fail the
 *   request. The charge is real and must proceed; the bookkeeping gap is
 *   reported on the ops alert channel instead. This asymmetry is deliberate.
 */
package app

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/google/uuid"

	"github.com/GustavoFBeltra/GoRedShirt-Platform-sub002/internal/domain"
	"github.com/GustavoFBeltra/GoRedShirt-Platform-sub002/internal/store"
	"github.com/GustavoFBeltra/GoRedShirt-Platform-sub002/pkg/rabbitmq"
	"github.com/GustavoFBeltra/GoRedShirt-Platform-sub002/pkg/stripeclient"
)

// Metadata keys the platform reserves on every charge. Caller-supplied
// metadata cannot shadow these.
const (
	metaClientID    = "client_id"
	metaCoachID     = "coach_id"
	metaPlatformFee = "platform_fee_amount"
)

// ChargeService creates split charges and their pending ledger reservations.
type ChargeService struct {
	repo     store.Repository
	gateway  Gateway
	alerts   rabbitmq.Publisher
	currency string
}

// NewChargeService creates a new instance of ChargeService.
func NewChargeService(repo store.Repository, gateway Gateway, alerts rabbitmq.Publisher, currency string) *ChargeService {
	return &ChargeService{
		repo:     repo,
		gateway:  gateway,
		alerts:   alerts,
		currency: currency,
	}
}

// CreateCharge creates a payment intent for the given amount against the
// coach's connected account and writes the pending Payment reservation. The
// returned result carries the client secret the payer needs to complete the
// charge.
func (s *ChargeService) CreateCharge(ctx context.Context, input domain.CreateChargeInput) (*domain.ChargeIntentResult, error) {
	if input.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	exists, err := s.repo.CoachProfileExists(ctx, input.CoachUserID)
	if err != nil {
		return nil, fmt.Errorf("verify coach profile: %w", err)
	}
	if !exists {
		return nil, store.ErrCoachNotFound
	}

	account, err := s.repo.FindConnectedAccountByCoachID(ctx, input.CoachUserID)
	if err != nil {
		return nil, err
	}

	fee := PlatformFee(input.Amount)
	metadata := buildChargeMetadata(input, fee)

	intent, err := s.gateway.CreatePaymentIntent(ctx, stripeclient.CreatePaymentIntentParams{
		Amount:             input.Amount,
		Currency:           s.currency,
		ApplicationFee:     fee,
		DestinationAccount: account.StripeAccountID,
		Description:        input.Description,
		Metadata:           metadata,
	}, uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	payment := &domain.Payment{
		ID:                    uuid.New(),
		StripePaymentIntentID: intent.ID,
		ClientID:              input.ClientUserID,
		CoachID:               input.CoachUserID,
		Amount:                input.Amount,
		PlatformFee:           fee,
		Currency:              s.currency,
		Status:                domain.PaymentStatusPending,
		Description:           input.Description,
		Metadata:              metadata,
	}
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		// The gateway charge is live; never block it on a bookkeeping failure,
		// and never swallow the gap either.
		log.Printf("level=error component=charges msg=\"pending payment reservation failed after gateway success\" payment_intent_id=%s err=%v", intent.ID, err)
		s.publishAlert(ctx, intent.ID, err)
	}

	return &domain.ChargeIntentResult{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Amount:          input.Amount,
		PlatformFee:     fee,
	}, nil
}

// buildChargeMetadata merges caller metadata with the reserved platform keys.
// Reserved keys win on collision.
func buildChargeMetadata(input domain.CreateChargeInput, fee int64) map[string]string {
	metadata := make(map[string]string, len(input.Metadata)+3)
	for key, value := range input.Metadata {
		metadata[key] = value
	}
	metadata[metaClientID] = input.ClientUserID.String()
	metadata[metaCoachID] = input.CoachUserID.String()
	metadata[metaPlatformFee] = strconv.FormatInt(fee, 10)
	return metadata
}

func (s *ChargeService) publishAlert(ctx context.Context, intentID string, cause error) {
	if s.alerts == nil {
		return
	}
	alert := rabbitmq.OpsAlert{
		Operation:  "create_payment_reservation",
		ExternalID: intentID,
		Detail:     cause.Error(),
	}
	if err := s.alerts.PublishOpsAlert(ctx, "payment.reservation.partial_failure", alert); err != nil {
		log.Printf("level=error component=charges msg=\"ops alert publish failed\" payment_intent_id=%s err=%v", intentID, err)
	}
}
