/**
 * @description
 * This file contains the HTTP handler for inbound gateway webhooks. It is the
 * entry point for all asynchronous settlement notifications.
 *
 * Key behaviors:
 * - Security: the HMAC signature is verified over the exact raw bytes
 *   received, with a constant-time comparison and a bounded timestamp
 *   tolerance. A bad signature is a hard 400; nothing is applied.
 * - Acknowledgment discipline: every verified delivery is answered 200
 *   unless the ledger store itself is unavailable, in which case a 503 tells
 *   the gateway to retry later. Business no-ops are successes.
 *
 * @dependencies
 * - crypto/hmac, crypto/sha256, encoding/hex: Signature verification.
 * - internal/app, internal/domain: Reconciler and event envelope.
 */

package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/GustavoFBeltra/GoRedShirt-Platform-sub002/internal/app"
	"github.com/GustavoFBeltra/GoRedShirt-Platform-sub002/internal/domain"
	"github.com/GustavoFBeltra/GoRedShirt-Platform-sub002/internal/store"
)

const (
	signatureHeader = "Stripe-Signature"
	// signatureTolerance bounds how stale a signed timestamp may be. Replays
	// older than this are rejected even with a valid MAC.
	signatureTolerance = 5 * time.Minute
	maxWebhookBodySize = 1 << 20 // 1 MiB
)

// WebhookHandler verifies and dispatches inbound gateway events.
type WebhookHandler struct {
	reconciler *app.Reconciler
	secret     string
	now        func() time.Time
}

// NewWebhookHandler creates a new handler for the webhook endpoint.
func NewWebhookHandler(reconciler *app.Reconciler, secret string) *WebhookHandler {
	return &WebhookHandler{
		reconciler: reconciler,
		secret:     secret,
		now:        time.Now,
	}
}

// ServeHTTP implements the http.Handler interface.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		http.Error(w, "Cannot read request body", http.StatusBadRequest)
		return
	}

	if err := verifySignature(h.secret, r.Header.Get(signatureHeader), body, h.now()); err != nil {
		log.Printf("level=warn component=webhook msg=\"signature verification failed\" err=%v", err)
		http.Error(w, "Invalid signature", http.StatusBadRequest)
		return
	}

	var event domain.StripeEvent
	if err := json.Unmarshal(body, &event); err != nil {
		// Signed but unparseable: acknowledge so the gateway does not retry a
		// payload we will never understand.
		log.Printf("level=warn component=webhook msg=\"malformed event payload acknowledged\" err=%v", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.reconciler.Process(r.Context(), event); err != nil {
		if errors.Is(err, store.ErrStoreUnavailable) {
			log.Printf("level=warn component=webhook msg=\"store unavailable; requesting redelivery\" event_id=%s err=%v", event.ID, err)
			http.Error(w, "Temporarily unavailable", http.StatusServiceUnavailable)
			return
		}
		log.Printf("level=error component=webhook msg=\"event processing failed; requesting redelivery\" event_id=%s type=%s err=%v", event.ID, event.Type, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// verifySignature checks the `t={ts},v1={hex hmac}` signature header against
// the exact payload bytes. The MAC is computed over "{ts}.{payload}" and
// compared in constant time.
func verifySignature(secret, header string, payload []byte, now time.Time) error {
	if secret == "" {
		return errors.New("webhook signing secret is not configured")
	}
	header = strings.TrimSpace(header)
	if header == "" {
		return errors.New("missing signature header")
	}

	var (
		timestamp    int64
		hasTimestamp bool
		candidates   [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		pair := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(pair) != 2 {
			continue
		}
		switch pair[0] {
		case "t":
			ts, err := strconv.ParseInt(pair[1], 10, 64)
			if err != nil {
				return errors.New("malformed signature timestamp")
			}
			timestamp = ts
			hasTimestamp = true
		case "v1":
			sig, err := hex.DecodeString(pair[1])
			if err != nil {
				continue
			}
			candidates = append(candidates, sig)
		}
	}
	if !hasTimestamp || len(candidates) == 0 {
		return errors.New("signature header missing timestamp or v1 signature")
	}

	age := now.Sub(time.Unix(timestamp, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return errors.New("signature timestamp outside tolerance")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, candidate := range candidates {
		if hmac.Equal(candidate, expected) {
			return nil
		}
	}
	return errors.New("no matching v1 signature")
}
