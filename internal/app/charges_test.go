package app

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/google/uuid"

	"github.com/GustavoFBeltra/GoRedShirt-Platform-sub002/internal/domain"
	"github.com/GustavoFBeltra/GoRedShirt-Platform-sub002/internal/store"
	"github.com/GustavoFBeltra/GoRedShirt-Platform-sub002/pkg/rabbitmq"
	"github.com/GustavoFBeltra/GoRedShirt-Platform-sub002/pkg/stripeclient"
)

type chargeRepoStub struct {
	store.Repository

	coachExists      bool
	connectedAccount *domain.ConnectedAccount

	createdPayment   *domain.Payment
	createPaymentErr error
}

func (s *chargeRepoStub) CoachProfileExists(ctx context.Context, coachUserID uuid.UUID) (bool, error) {
	return s.coachExists, nil
}

func (s *chargeRepoStub) FindConnectedAccountByCoachID(ctx context.Context, coachUserID uuid.UUID) (*domain.ConnectedAccount, error) {
	if s.connectedAccount == nil {
		return nil, store.ErrAccountNotFound
	}
	return s.connectedAccount, nil
}

func (s *chargeRepoStub) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	if s.createPaymentErr != nil {
		return s.createPaymentErr
	}
	s.createdPayment = payment
	return nil
}

type gatewayStub struct {
	intent       *domain.StripePaymentIntent
	intentErr    error
	intentParams stripeclient.CreatePaymentIntentParams

	account    *domain.StripeAccount
	accountErr error

	link    *domain.StripeAccountLink
	linkErr error
}

func (g *gatewayStub) CreateAccount(ctx context.Context, params stripeclient.CreateAccountParams, idempotencyKey string) (*domain.StripeAccount, error) {
	return g.account, g.accountErr
}

func (g *gatewayStub) CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (*domain.StripeAccountLink, error) {
	return g.link, g.linkErr
}

func (g *gatewayStub) CreatePaymentIntent(ctx context.Context, params stripeclient.CreatePaymentIntentParams, idempotencyKey string) (*domain.StripePaymentIntent, error) {
	g.intentParams = params
	return g.intent, g.intentErr
}

type alertsStub struct {
	published []rabbitmq.OpsAlert
	keys      []string
}

func (a *alertsStub) PublishOpsAlert(ctx context.Context, routingKey string, alert rabbitmq.OpsAlert) error {
	a.published = append(a.published, alert)
	a.keys = append(a.keys, routingKey)
	return nil
}

func (a *alertsStub) Close() {}

func TestCreateChargeWritesPendingReservation(t *testing.T) {
	clientID := uuid.New()
	coachID := uuid.New()
	repo := &chargeRepoStub{
		coachExists:      true,
		connectedAccount: &domain.ConnectedAccount{CoachUserID: coachID, StripeAccountID: "acct_coach"},
	}
	gateway := &gatewayStub{
		intent: &domain.StripePaymentIntent{ID: "pi_5000", ClientSecret: "pi_5000_secret", Amount: 5000},
	}
	service := NewChargeService(repo, gateway, &alertsStub{}, "usd")

	result, err := service.CreateCharge(context.Background(), domain.CreateChargeInput{
		ClientUserID: clientID,
		CoachUserID:  coachID,
		Amount:       5000,
		Description:  "Session with coach",
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if result.PaymentIntentID != "pi_5000" || result.ClientSecret != "pi_5000_secret" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.PlatformFee != 500 {
		t.Fatalf("expected fee 500 for amount 5000, got %d", result.PlatformFee)
	}

	payment := repo.createdPayment
	if payment == nil {
		t.Fatal("expected a pending payment reservation to be written")
	}
	if payment.Status != domain.PaymentStatusPending {
		t.Fatalf("expected pending status, got %q", payment.Status)
	}
	if payment.StripePaymentIntentID != "pi_5000" {
		t.Fatalf("expected reservation keyed by intent id, got %q", payment.StripePaymentIntentID)
	}
	if payment.Amount != 5000 || payment.PlatformFee != 500 {
		t.Fatalf("unexpected amounts on reservation: amount=%d fee=%d", payment.Amount, payment.PlatformFee)
	}
	if gateway.intentParams.ApplicationFee != 500 || gateway.intentParams.DestinationAccount != "acct_coach" {
		t.Fatalf("unexpected gateway params: %+v", gateway.intentParams)
	}
}

func TestCreateChargeReservedMetadataKeysWin(t *testing.T) {
	clientID := uuid.New()
	coachID := uuid.New()
	repo := &chargeRepoStub{
		coachExists:      true,
		connectedAccount: &domain.ConnectedAccount{CoachUserID: coachID, StripeAccountID: "acct_coach"},
	}
	gateway := &gatewayStub{intent: &domain.StripePaymentIntent{ID: "pi_meta", ClientSecret: "sec"}}
	service := NewChargeService(repo, gateway, &alertsStub{}, "usd")

	_, err := service.CreateCharge(context.Background(), domain.CreateChargeInput{
		ClientUserID: clientID,
		CoachUserID:  coachID,
		Amount:       2500,
		Metadata: map[string]string{
			"client_id":           "spoofed",
			"coach_id":            "spoofed",
			"platform_fee_amount": "0",
			"session_id":          "sess_77",
		},
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	metadata := gateway.intentParams.Metadata
	if metadata["client_id"] != clientID.String() {
		t.Fatalf("expected reserved client_id to win, got %q", metadata["client_id"])
	}
	if metadata["coach_id"] != coachID.String() {
		t.Fatalf("expected reserved coach_id to win, got %q", metadata["coach_id"])
	}
	if metadata["platform_fee_amount"] != strconv.FormatInt(PlatformFee(2500), 10) {
		t.Fatalf("expected reserved platform_fee_amount to win, got %q", metadata["platform_fee_amount"])
	}
	if metadata["session_id"] != "sess_77" {
		t.Fatalf("expected caller metadata to pass through, got %q", metadata["session_id"])
	}
}

func TestCreateChargeLedgerFailureStillSucceeds(t *testing.T) {
	coachID := uuid.New()
	repo := &chargeRepoStub{
		coachExists:      true,
		connectedAccount: &domain.ConnectedAccount{CoachUserID: coachID, StripeAccountID: "acct_coach"},
		createPaymentErr: errors.New("connection refused"),
	}
	gateway := &gatewayStub{intent: &domain.StripePaymentIntent{ID: "pi_orphan", ClientSecret: "sec"}}
	alerts := &alertsStub{}
	service := NewChargeService(repo, gateway, alerts, "usd")

	result, err := service.CreateCharge(context.Background(), domain.CreateChargeInput{
		ClientUserID: uuid.New(),
		CoachUserID:  coachID,
		Amount:       1000,
	})
	if err != nil {
		t.Fatalf("a live gateway charge must not fail on bookkeeping, got %v", err)
	}
	if result.PaymentIntentID != "pi_orphan" {
		t.Fatalf("expected the real intent id back, got %q", result.PaymentIntentID)
	}

	if len(alerts.published) != 1 {
		t.Fatalf("expected exactly one ops alert, got %d", len(alerts.published))
	}
	alert := alerts.published[0]
	if alert.ExternalID != "pi_orphan" || alert.Operation != "create_payment_reservation" {
		t.Fatalf("alert must identify the orphaned intent, got %+v", alert)
	}
}

func TestCreateChargeRejectsNonPositiveAmount(t *testing.T) {
	service := NewChargeService(&chargeRepoStub{}, &gatewayStub{}, &alertsStub{}, "usd")

	for _, amount := range []int64{0, -100} {
		_, err := service.CreateCharge(context.Background(), domain.CreateChargeInput{
			ClientUserID: uuid.New(),
			CoachUserID:  uuid.New(),
			Amount:       amount,
		})
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("amount %d: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestCreateChargeUnknownCoach(t *testing.T) {
	service := NewChargeService(&chargeRepoStub{coachExists: false}, &gatewayStub{}, &alertsStub{}, "usd")

	_, err := service.CreateCharge(context.Background(), domain.CreateChargeInput{
		ClientUserID: uuid.New(),
		CoachUserID:  uuid.New(),
		Amount:       1000,
	})
	if !errors.Is(err, store.ErrCoachNotFound) {
		t.Fatalf("expected ErrCoachNotFound, got %v", err)
	}
}

func TestCreateChargeGatewayUnavailableIsRetryable(t *testing.T) {
	coachID := uuid.New()
	repo := &chargeRepoStub{
		coachExists:      true,
		connectedAccount: &domain.ConnectedAccount{CoachUserID: coachID, StripeAccountID: "acct_coach"},
	}
	gateway := &gatewayStub{intentErr: stripeclient.ErrGatewayUnavailable}
	service := NewChargeService(repo, gateway, &alertsStub{}, "usd")

	_, err := service.CreateCharge(context.Background(), domain.CreateChargeInput{
		ClientUserID: uuid.New(),
		CoachUserID:  coachID,
		Amount:       1000,
	})
	if !errors.Is(err, stripeclient.ErrGatewayUnavailable) {
		t.Fatalf("expected gateway unavailability to propagate, got %v", err)
	}
	if repo.createdPayment != nil {
		t.Fatal("expected no reservation when the gateway call did not succeed")
	}
}
