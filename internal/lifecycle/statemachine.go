// Package lifecycle implements the pure decision core of the hiring
// marketplace: the hiring state machine, the quotation expiry policy, the
// aggregate status projector, and the webhook payment resolver.
//
// Nothing in this package touches the database or the network. Every function
// takes an immutable snapshot of domain values plus an explicit clock value
// and returns a decision, which keeps the transition rules independently
// testable and the mutation call sites thin.
package lifecycle

import (
	"time"

	"github.com/tbourn/go-hiring-backend/internal/domain"
)

// Role identifies which side of the engagement is acting.
type Role string

// Roles.
const (
	RoleClient   Role = "client"
	RoleProvider Role = "provider"
)

// Action is a user-initiated operation on a hiring. Viewing is always legal
// and therefore not modeled as an action.
type Action string

// Actions.
const (
	ActionQuote     Action = "quote"
	ActionAccept    Action = "accept"
	ActionReject    Action = "reject"
	ActionCancel    Action = "cancel"
	ActionNegotiate Action = "negotiate"
	ActionEdit      Action = "edit"
	ActionRequote   Action = "requote"
)

// RequoteLimit caps how many times a client may request a fresh quotation on
// the same hiring.
const RequoteLimit = 3

// actionOrder fixes the iteration order of AvailableActions so responses are
// deterministic.
var actionOrder = []Action{
	ActionQuote, ActionAccept, ActionReject, ActionCancel,
	ActionNegotiate, ActionEdit, ActionRequote,
}

// transition declares the resulting status of an action and the role allowed
// to invoke it from a given current status.
type transition struct {
	next domain.Status
	role Role
}

// transitions is the lookup table keyed by current status. Statuses absent
// from the table (work-in-progress and terminal statuses) permit no direct
// user actions: work statuses are driven by the delivery subsystem and the
// reconciliation engine, terminal statuses by nothing.
var transitions = map[domain.Status]map[Action]transition{
	domain.StatusPending: {
		ActionQuote:  {next: domain.StatusQuoted, role: RoleProvider},
		ActionReject: {next: domain.StatusRejected, role: RoleProvider},
		ActionCancel: {next: domain.StatusCancelled, role: RoleClient},
	},
	domain.StatusQuoted: {
		// Accept's resulting status depends on the payment modality; see
		// NextStatus.
		ActionAccept:    {next: domain.StatusPaymentPending, role: RoleClient},
		ActionReject:    {next: domain.StatusRejected, role: RoleClient},
		ActionNegotiate: {next: domain.StatusNegotiating, role: RoleClient},
		ActionCancel:    {next: domain.StatusCancelled, role: RoleClient},
		ActionEdit:      {next: domain.StatusQuoted, role: RoleProvider},
		ActionRequote:   {next: domain.StatusRequoting, role: RoleClient},
	},
	domain.StatusNegotiating: {
		ActionQuote:  {next: domain.StatusQuoted, role: RoleProvider},
		ActionReject: {next: domain.StatusRejected, role: RoleProvider},
		ActionCancel: {next: domain.StatusCancelled, role: RoleClient},
	},
	domain.StatusRequoting: {
		ActionQuote:  {next: domain.StatusQuoted, role: RoleProvider},
		ActionReject: {next: domain.StatusRejected, role: RoleProvider},
		ActionCancel: {next: domain.StatusCancelled, role: RoleClient},
	},
	domain.StatusPaymentPending: {
		ActionCancel: {next: domain.StatusCancelled, role: RoleClient},
	},
	domain.StatusPaymentRejected: {
		ActionCancel: {next: domain.StatusCancelled, role: RoleClient},
	},
}

// expiryGated lists the actions denied outright once the quotation has
// expired, regardless of the current status. Cancel stays legal, and requote
// is only legal when expired (checked separately).
var expiryGated = map[Action]struct{}{
	ActionAccept:    {},
	ActionReject:    {},
	ActionEdit:      {},
	ActionNegotiate: {},
}

// CanPerform reports whether role may perform action on the hiring at the
// given instant. It consults the live expiry predicate rather than the stored
// status, because the expiry sweep cadence is not instantaneous.
//
// Note: the requote preconditions that depend on external collaborators
// (both parties active per the identity service) are enforced by the service
// layer; this function covers status, role, expiry, and the requote ceiling.
func CanPerform(h *domain.Hiring, action Action, role Role, now time.Time) bool {
	status := h.StatusCode()
	if status.Terminal() {
		return false
	}
	if action == ActionRequote {
		return canRequote(h, role, now)
	}
	t, ok := transitions[status][action]
	if !ok || t.role != role {
		return false
	}
	if _, gated := expiryGated[action]; gated && IsQuotationExpired(h, now) {
		return false
	}
	return true
}

// canRequote covers the machine-local requote preconditions: client caller,
// status exactly quoted, quotation expired, and fewer than RequoteLimit
// previous requotes.
func canRequote(h *domain.Hiring, role Role, now time.Time) bool {
	return role == RoleClient &&
		h.StatusCode() == domain.StatusQuoted &&
		IsQuotationExpired(h, now) &&
		h.RequoteCount < RequoteLimit
}

// NextStatus returns the status the hiring would transition to if action were
// applied now. For accept the resulting status depends on the payment
// modality: full-payment hirings move to payment_pending (checkout first),
// by-deliverables hirings move straight to approved since money is collected
// per deliverable.
func NextStatus(h *domain.Hiring, action Action) (domain.Status, bool) {
	t, ok := transitions[h.StatusCode()][action]
	if !ok {
		return "", false
	}
	if action == ActionAccept && h.PaymentModality == domain.ModalityByDeliverables {
		return domain.StatusApproved, true
	}
	return t.next, true
}

// AvailableActions lists the actions role may currently perform, in a stable
// order. Terminal hirings always yield an empty list.
func AvailableActions(h *domain.Hiring, role Role, now time.Time) []Action {
	out := []Action{}
	for _, a := range actionOrder {
		if CanPerform(h, a, role, now) {
			out = append(out, a)
		}
	}
	return out
}
