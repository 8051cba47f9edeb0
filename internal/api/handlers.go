/**
 * @description
 * This file contains the HTTP handlers for the payment settlement core's
 * synchronous endpoints: connected-account provisioning, onboarding links and
 * charge creation. Handlers parse requests, call the application services and
 * map the error taxonomy onto stable machine-readable kinds.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: Service logic, models and
 *   custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/GustavoFBeltra/GoRedShirt-Platform-sub002/internal/app"
	"github.com/GustavoFBeltra/GoRedShirt-Platform-sub002/internal/domain"
	"github.com/GustavoFBeltra/GoRedShirt-Platform-sub002/internal/store"
	"github.com/GustavoFBeltra/GoRedShirt-Platform-sub002/pkg/stripeclient"
)

// PaymentHandlers holds the application services the handlers delegate to.
type PaymentHandlers struct {
	provisioning *app.ProvisioningService
	charges      *app.ChargeService
}

// NewPaymentHandlers creates a new instance of PaymentHandlers.
func NewPaymentHandlers(provisioning *app.ProvisioningService, charges *app.ChargeService) *PaymentHandlers {
	return &PaymentHandlers{provisioning: provisioning, charges: charges}
}

// Stable machine-readable error kinds surfaced to API clients.
const (
	kindUnauthorized       = "unauthorized"
	kindNotFound           = "not_found"
	kindAlreadyProvisioned = "already_provisioned"
	kindInvalidRequest     = "invalid_request"
	kindPartialFailure     = "partial_failure"
	kindGatewayUnavailable = "gateway_unavailable"
	kindStoreUnavailable   = "store_unavailable"
	kindInternal           = "internal"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// CreateAccountRequest defines the expected JSON body for account provisioning.
type CreateAccountRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

// CreateAccountResponse carries the newly provisioned external account id.
type CreateAccountResponse struct {
	AccountID string `json:"account_id"`
}

// CreateAccountHandler handles connected-account provisioning for a coach.
func (h *PaymentHandlers) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	callerID, ok := GetCallerID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, kindUnauthorized, "Could not resolve caller identity")
		return
	}

	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, kindInvalidRequest, "Invalid request body")
		return
	}

	accountID, err := h.provisioning.CreateAccount(r.Context(), callerID, req.UserID)
	if err != nil {
		h.writeServiceError(w, "create_account", err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateAccountResponse{AccountID: accountID})
}

// OnboardingLinkRequest defines the expected JSON body for onboarding links.
type OnboardingLinkRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

// OnboardingLinkResponse carries the short-lived gateway onboarding URL.
type OnboardingLinkResponse struct {
	OnboardingURL string `json:"onboarding_url"`
}

// OnboardingLinkHandler issues a gateway-hosted onboarding redirect for the
// coach's connected account.
func (h *PaymentHandlers) OnboardingLinkHandler(w http.ResponseWriter, r *http.Request) {
	callerID, ok := GetCallerID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, kindUnauthorized, "Could not resolve caller identity")
		return
	}

	var req OnboardingLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, kindInvalidRequest, "Invalid request body")
		return
	}

	url, err := h.provisioning.CreateOnboardingLink(r.Context(), callerID, req.UserID)
	if err != nil {
		h.writeServiceError(w, "onboarding_link", err)
		return
	}

	writeJSON(w, http.StatusOK, OnboardingLinkResponse{OnboardingURL: url})
}

// CreateChargeRequest defines the expected JSON body for charge creation.
type CreateChargeRequest struct {
	Amount      int64             `json:"amount"` // in cents
	CoachID     uuid.UUID         `json:"coach_id"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// CreateChargeHandler creates a split charge from the authenticated client to
// the given coach.
func (h *PaymentHandlers) CreateChargeHandler(w http.ResponseWriter, r *http.Request) {
	callerID, ok := GetCallerID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, kindUnauthorized, "Could not resolve caller identity")
		return
	}

	var req CreateChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, kindInvalidRequest, "Invalid request body")
		return
	}
	if req.CoachID == uuid.Nil {
		writeError(w, http.StatusBadRequest, kindInvalidRequest, "coach_id is required")
		return
	}

	result, err := h.charges.CreateCharge(r.Context(), domain.CreateChargeInput{
		ClientUserID: callerID,
		CoachUserID:  req.CoachID,
		Amount:       req.Amount,
		Description:  req.Description,
		Metadata:     req.Metadata,
	})
	if err != nil {
		h.writeServiceError(w, "create_charge", err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// writeServiceError maps application and store errors onto HTTP statuses and
// stable error kinds.
func (h *PaymentHandlers) writeServiceError(w http.ResponseWriter, endpoint string, err error) {
	var partial *app.PartialFailureError
	switch {
	case errors.Is(err, app.ErrUnauthorized):
		writeError(w, http.StatusForbidden, kindUnauthorized, "You are not allowed to perform this operation")
	case errors.Is(err, app.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, kindInvalidRequest, err.Error())
	case errors.Is(err, store.ErrCoachNotFound):
		writeError(w, http.StatusNotFound, kindNotFound, "Coach profile not found")
	case errors.Is(err, store.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, kindNotFound, "No connected account on file")
	case errors.Is(err, store.ErrAlreadyProvisioned):
		writeError(w, http.StatusConflict, kindAlreadyProvisioned, "A connected account already exists for this coach")
	case errors.As(err, &partial):
		log.Printf("level=error component=api endpoint=%s outcome=partial_failure external_id=%s err=%v", endpoint, partial.ExternalID, err)
		writeError(w, http.StatusBadGateway, kindPartialFailure, "The gateway operation succeeded but local bookkeeping failed; support has been alerted")
	case errors.Is(err, stripeclient.ErrGatewayUnavailable):
		log.Printf("level=warn component=api endpoint=%s outcome=gateway_unavailable err=%v", endpoint, err)
		writeError(w, http.StatusServiceUnavailable, kindGatewayUnavailable, "Payment gateway unavailable; verify the operation before retrying")
	case errors.Is(err, store.ErrStoreUnavailable):
		log.Printf("level=warn component=api endpoint=%s outcome=store_unavailable err=%v", endpoint, err)
		writeError(w, http.StatusServiceUnavailable, kindStoreUnavailable, "Ledger store unavailable; please retry")
	default:
		log.Printf("level=error component=api endpoint=%s outcome=error err=%v", endpoint, err)
		writeError(w, http.StatusInternalServerError, kindInternal, "Internal server error")
	}
}

// writeJSON is a helper to write JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("level=error component=api msg=\"response encode failed\" err=%v", err)
	}
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Kind: kind, Message: message}})
}
