/**
 * @description
 * This file defines the application-level error taxonomy for the payment
 * settlement core. The API layer maps these to stable machine-readable error
 * kinds and HTTP status codes.
 */
package app

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when the caller is not the owner of the
	// resource the operation targets.
	ErrUnauthorized = errors.New("caller is not authorized for this resource")
	// ErrInvalidAmount is returned when a charge amount is missing or not a
	// positive integer.
	ErrInvalidAmount = errors.New("amount must be a positive integer in minor units")
)

// PartialFailureError reports an operation whose gateway call succeeded while
// the local ledger write failed. The external resource is real and orphaned;
// an operator must reconcile, so the error carries everything needed to find
// it.
type PartialFailureError struct {
	Operation  string
	ExternalID string
	Err        error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("partial failure in %s: gateway resource %s created but ledger write failed: %v", e.Operation, e.ExternalID, e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }
