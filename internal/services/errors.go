// Package services defines the business logic for hirings, deliveries, and
// payments. This file centralizes common service-level error values so that
// they can be consistently returned by service methods and checked by
// callers.
//
// These errors are intended for internal use by the service layer;
// translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"fmt"

	"github.com/tbourn/go-hiring-backend/internal/domain"
	"github.com/tbourn/go-hiring-backend/internal/lifecycle"
)

var (
	// ErrHiringNotFound indicates that the requested hiring does not exist or
	// is not accessible to the current user.
	ErrHiringNotFound = errors.New("hiring not found")

	// ErrDeliverableNotFound indicates that the requested deliverable does
	// not exist within the hiring.
	ErrDeliverableNotFound = errors.New("deliverable not found")

	// ErrSubmissionNotFound indicates that the requested delivery submission
	// does not exist.
	ErrSubmissionNotFound = errors.New("delivery submission not found")

	// ErrPaymentNotFound indicates that the referenced ledger row is missing.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrForbidden is returned when the caller is not the participant the
	// operation belongs to (wrong role or wrong owner).
	ErrForbidden = errors.New("operation not allowed for this user")

	// ErrInvalidTransition is returned when the state machine denies an
	// action, including expiry-gated denials. Use invalidTransition to attach
	// the current status to the message.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrDeliveryConflict is returned when a new submission is attempted
	// while the latest one is still delivered, pending payment, or approved.
	ErrDeliveryConflict = errors.New("an active delivery already exists")

	// ErrEmptyDescription is returned when a hiring is created without a
	// description.
	ErrEmptyDescription = errors.New("description is empty")

	// ErrEmptyRevisionNotes is returned when a revision is requested without
	// notes.
	ErrEmptyRevisionNotes = errors.New("revision notes are required")

	// ErrInvalidQuotation is returned when quotation fields are inconsistent:
	// non-positive price or validity, a missing/empty deliverable set for a
	// by_deliverables quote, or deliverable prices that do not sum to the
	// quoted price.
	ErrInvalidQuotation = errors.New("invalid quotation")

	// ErrUserInactive is returned when the identity collaborator reports a
	// banned or deleted participant.
	ErrUserInactive = errors.New("user is not active")

	// ErrUserNotVerified is returned when the acting user has not completed
	// identity verification.
	ErrUserNotVerified = errors.New("user is not verified")
)

// invalidTransition wraps ErrInvalidTransition naming the denied action and
// the hiring's current status, as required by the error contract.
func invalidTransition(status domain.Status, action lifecycle.Action) error {
	return fmt.Errorf("%w: action %q not allowed in status %q", ErrInvalidTransition, action, status)
}

// invalidTransitionExpired wraps ErrInvalidTransition for expiry-gated
// denials.
func invalidTransitionExpired(action lifecycle.Action) error {
	return fmt.Errorf("%w: action %q not allowed, quotation expired", ErrInvalidTransition, action)
}
