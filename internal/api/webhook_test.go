package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/GustavoFBeltra/GoRedShirt-Platform-sub002/internal/app"
	"github.com/GustavoFBeltra/GoRedShirt-Platform-sub002/internal/domain"
	"github.com/GustavoFBeltra/GoRedShirt-Platform-sub002/internal/store"
)

const testWebhookSecret = "whsec_test_secret"

type webhookRepoStub struct {
	store.Repository

	payments map[string]*domain.Payment

	transitionAttempts int
	transitionErr      error
}

func newWebhookRepoStub() *webhookRepoStub {
	return &webhookRepoStub{payments: make(map[string]*domain.Payment)}
}

func (s *webhookRepoStub) MarkPaymentTerminal(ctx context.Context, intentID, status string) (store.TerminalTransition, error) {
	s.transitionAttempts++
	if s.transitionErr != nil {
		return 0, s.transitionErr
	}
	payment, ok := s.payments[intentID]
	if !ok {
		return 0, store.ErrPaymentNotFound
	}
	if payment.Status != domain.PaymentStatusPending {
		return store.TransitionAlreadyTerminal, nil
	}
	payment.Status = status
	return store.TransitionApplied, nil
}

// signPayload builds a signature header the way the gateway does: a hex
// HMAC-SHA256 over "{ts}.{payload}".
func signPayload(secret string, payload []byte, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func newTestWebhookHandler(repo store.Repository, now time.Time) *WebhookHandler {
	handler := NewWebhookHandler(app.NewReconciler(repo, nil), testWebhookSecret)
	handler.now = func() time.Time { return now }
	return handler
}

func postWebhook(t *testing.T, handler http.Handler, payload, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", strings.NewReader(payload))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

func TestWebhookAppliesSignedTerminalEvent(t *testing.T) {
	repo := newWebhookRepoStub()
	repo.payments["pi_signed"] = &domain.Payment{
		ID:                    uuid.New(),
		StripePaymentIntentID: "pi_signed",
		Status:                domain.PaymentStatusPending,
	}
	now := time.Now()
	handler := newTestWebhookHandler(repo, now)

	payload := `{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_signed"}}}`
	recorder := postWebhook(t, handler, payload, signPayload(testWebhookSecret, []byte(payload), now))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if got := repo.payments["pi_signed"].Status; got != domain.PaymentStatusSucceeded {
		t.Fatalf("expected succeeded, got %q", got)
	}
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	repo := newWebhookRepoStub()
	repo.payments["pi_forged"] = &domain.Payment{
		ID:                    uuid.New(),
		StripePaymentIntentID: "pi_forged",
		Status:                domain.PaymentStatusPending,
	}
	now := time.Now()
	handler := newTestWebhookHandler(repo, now)

	payload := `{"id":"evt_2","type":"payment_intent.succeeded","data":{"object":{"id":"pi_forged"}}}`
	recorder := postWebhook(t, handler, payload, signPayload("whsec_wrong_secret", []byte(payload), now))

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	if repo.transitionAttempts != 0 {
		t.Fatal("a forged delivery must not touch the store")
	}
	if got := repo.payments["pi_forged"].Status; got != domain.PaymentStatusPending {
		t.Fatalf("expected pending to survive a forged delivery, got %q", got)
	}
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	handler := newTestWebhookHandler(newWebhookRepoStub(), time.Now())

	recorder := postWebhook(t, handler, `{"id":"evt_3"}`, "")
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestWebhookRejectsStaleTimestamp(t *testing.T) {
	repo := newWebhookRepoStub()
	now := time.Now()
	handler := newTestWebhookHandler(repo, now)

	payload := `{"id":"evt_stale","type":"payment_intent.succeeded","data":{"object":{"id":"pi_x"}}}`
	signature := signPayload(testWebhookSecret, []byte(payload), now.Add(-10*time.Minute))

	recorder := postWebhook(t, handler, payload, signature)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a stale timestamp, got %d", recorder.Code)
	}
	if repo.transitionAttempts != 0 {
		t.Fatal("a stale delivery must not touch the store")
	}
}

func TestVerifySignatureZeroTimestampIsOutsideTolerance(t *testing.T) {
	payload := []byte(`{"id":"evt_epoch"}`)
	signature := signPayload(testWebhookSecret, payload, time.Unix(0, 0))

	err := verifySignature(testWebhookSecret, signature, payload, time.Now())
	if err == nil {
		t.Fatal("expected an error for an epoch timestamp")
	}
	if !strings.Contains(err.Error(), "tolerance") {
		t.Fatalf("a present but ancient timestamp must fail the tolerance check, got %v", err)
	}
}

func TestWebhookSignatureCoversExactBytes(t *testing.T) {
	repo := newWebhookRepoStub()
	now := time.Now()
	handler := newTestWebhookHandler(repo, now)

	signed := `{"id":"evt_tamper","type":"payment_intent.succeeded","data":{"object":{"id":"pi_a"}}}`
	tampered := strings.Replace(signed, "pi_a", "pi_b", 1)

	recorder := postWebhook(t, handler, tampered, signPayload(testWebhookSecret, []byte(signed), now))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for tampered payload, got %d", recorder.Code)
	}
}

func TestWebhookAcknowledgesMalformedSignedPayload(t *testing.T) {
	now := time.Now()
	handler := newTestWebhookHandler(newWebhookRepoStub(), now)

	payload := `{"id":"evt_broken","type":` // truncated JSON
	recorder := postWebhook(t, handler, payload, signPayload(testWebhookSecret, []byte(payload), now))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected malformed-but-signed payload to be acknowledged, got %d", recorder.Code)
	}
}

func TestWebhookAcknowledgesUnknownEventType(t *testing.T) {
	now := time.Now()
	handler := newTestWebhookHandler(newWebhookRepoStub(), now)

	payload := `{"id":"evt_odd","type":"charge.refunded","data":{"object":{"id":"ch_1"}}}`
	recorder := postWebhook(t, handler, payload, signPayload(testWebhookSecret, []byte(payload), now))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 for an unhandled event type, got %d", recorder.Code)
	}
}

func TestWebhookRequestsRedeliveryOnStoreOutage(t *testing.T) {
	repo := newWebhookRepoStub()
	repo.transitionErr = fmt.Errorf("mark payment terminal: %w", store.ErrStoreUnavailable)
	now := time.Now()
	handler := newTestWebhookHandler(repo, now)

	payload := `{"id":"evt_outage","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_down"}}}`
	recorder := postWebhook(t, handler, payload, signPayload(testWebhookSecret, []byte(payload), now))

	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 during a store outage, got %d", recorder.Code)
	}
}
