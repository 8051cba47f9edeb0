/**
 * @description
 * This file contains the event reconciler: the small state machine that
 * applies verified gateway webhook events to the ledger. It is the sole
 * writer of confirmed terminal payment state and of connected-account
 * onboarding flags.
 *
 * @notes
 * - Deliveries are at-least-once, unordered, and may arrive concurrently for
 *   the same entity. Correctness rests on two pillars: the dedup window over
 *   gateway event ids, and transitions that are idempotent on their own
 *   (compare-and-set for payments, last-write-wins booleans for accounts).
 * - Business no-ops (unknown type, unknown external id, already-terminal
 *   payment) are successes. Only infrastructure failures propagate, so the
 *   gateway retries exactly the deliveries that might still take effect.
 */
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/GustavoFBeltra/GoRedShirt-Platform-sub002/internal/domain"
	"github.com/GustavoFBeltra/GoRedShirt-Platform-sub002/internal/store"
)

// Deduper collapses repeated deliveries of the same gateway event id.
type Deduper interface {
	// Seen reports whether the event id is already present in the window.
	Seen(ctx context.Context, eventID string) (bool, error)
	// Mark records the event id. Only fully applied events are marked; an
	// event that failed on infrastructure must stay eligible for redelivery.
	Mark(ctx context.Context, eventID string) error
}

// Reconciler applies inbound gateway events to the ledger store.
type Reconciler struct {
	repo    store.Repository
	deduper Deduper
}

// NewReconciler creates a new Reconciler.
func NewReconciler(repo store.Repository, deduper Deduper) *Reconciler {
	return &Reconciler{repo: repo, deduper: deduper}
}

// Process applies one verified event. A nil return means the delivery must be
// acknowledged; a non-nil return means a retryable infrastructure failure.
func (r *Reconciler) Process(ctx context.Context, event domain.StripeEvent) error {
	if event.ID != "" && r.deduper != nil {
		seen, err := r.deduper.Seen(ctx, event.ID)
		if err != nil {
			// Fail open: the downstream transitions are idempotent, so a
			// dedup outage degrades to harmless re-application.
			log.Printf("level=warn component=reconciler msg=\"dedup check failed; processing anyway\" event_id=%s err=%v", event.ID, err)
		} else if seen {
			log.Printf("level=info component=reconciler msg=\"duplicate event ignored\" event_id=%s type=%s", event.ID, event.Type)
			return nil
		}
	}

	if err := r.dispatch(ctx, event); err != nil {
		// Not marked as seen: the failure is answered with a retryable status
		// and the redelivery must be allowed to take effect.
		return err
	}

	if event.ID != "" && r.deduper != nil {
		if err := r.deduper.Mark(ctx, event.ID); err != nil {
			log.Printf("level=warn component=reconciler msg=\"dedup mark failed\" event_id=%s err=%v", event.ID, err)
		}
	}
	return nil
}

func (r *Reconciler) dispatch(ctx context.Context, event domain.StripeEvent) error {
	switch event.Type {
	case domain.EventAccountUpdated:
		return r.applyAccountUpdated(ctx, event)
	case domain.EventPaymentIntentSucceeded:
		return r.applyPaymentTerminal(ctx, event, domain.PaymentStatusSucceeded)
	case domain.EventPaymentIntentFailed:
		return r.applyPaymentTerminal(ctx, event, domain.PaymentStatusFailed)
	case domain.EventAccountAppAuthorized, domain.EventAccountAppDeauthorized:
		// Reserved extension points; acknowledge without side effects.
		return nil
	default:
		log.Printf("level=info component=reconciler msg=\"unhandled event type acknowledged\" event_id=%s type=%s", event.ID, event.Type)
		return nil
	}
}

// applyAccountUpdated mirrors gateway-authoritative onboarding flags onto the
// local connected account. The flags are idempotent booleans, so last write
// wins and no delivery ordering is assumed.
func (r *Reconciler) applyAccountUpdated(ctx context.Context, event domain.StripeEvent) error {
	var object domain.EventAccountObject
	if err := json.Unmarshal(event.Data.Object, &object); err != nil {
		log.Printf("level=warn component=reconciler msg=\"malformed account.updated payload acknowledged\" event_id=%s err=%v", event.ID, err)
		return nil
	}
	if object.ID == "" {
		return nil
	}

	err := r.repo.UpdateConnectedAccountFlags(ctx, object.ID, object.DetailsSubmitted, object.ChargesEnabled)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			// The account may belong to another environment or predate this
			// deployment. Not our row, not a failure.
			log.Printf("level=info component=reconciler msg=\"account.updated for unknown account acknowledged\" stripe_account_id=%s", object.ID)
			return nil
		}
		return fmt.Errorf("apply account.updated: %w", err)
	}

	log.Printf("level=info component=reconciler msg=\"connected account flags updated\" stripe_account_id=%s onboarding_complete=%t charges_enabled=%t",
		object.ID, object.DetailsSubmitted, object.ChargesEnabled)
	return nil
}

// applyPaymentTerminal moves the matched payment to a terminal status. The
// first terminal event to land wins; every later terminal event for the same
// payment is a no-op regardless of outcome or order.
func (r *Reconciler) applyPaymentTerminal(ctx context.Context, event domain.StripeEvent, status string) error {
	var object domain.EventPaymentIntentObject
	if err := json.Unmarshal(event.Data.Object, &object); err != nil {
		log.Printf("level=warn component=reconciler msg=\"malformed payment_intent payload acknowledged\" event_id=%s err=%v", event.ID, err)
		return nil
	}
	if object.ID == "" {
		return nil
	}

	transition, err := r.repo.MarkPaymentTerminal(ctx, object.ID, status)
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			// The charge may have been created outside this flow. Log the
			// anomaly but do not fail the delivery.
			log.Printf("level=warn component=reconciler msg=\"terminal event for unknown payment acknowledged\" payment_intent_id=%s status=%s", object.ID, status)
			return nil
		}
		return fmt.Errorf("apply %s: %w", event.Type, err)
	}

	if transition == store.TransitionAlreadyTerminal {
		log.Printf("level=info component=reconciler msg=\"payment already terminal; event ignored\" payment_intent_id=%s incoming_status=%s", object.ID, status)
		return nil
	}

	log.Printf("level=info component=reconciler msg=\"payment settled\" payment_intent_id=%s status=%s", object.ID, status)
	return nil
}
