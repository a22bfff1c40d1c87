package lifecycle

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tbourn/go-hiring-backend/internal/domain"
)

// The webhook payment resolver matches an asynchronous gateway notification
// to a ledger row. The three stages are tried in order by the reconciliation
// engine:
//
//  1. exact match on Payment.ExternalPaymentID (repository lookup);
//  2. the internal payment id embedded in the gateway's external_reference
//     (ParseExternalReference, then repository lookup);
//  3. the recent-pending fallback (MatchRecentPending), needed because
//     checkout-style gateways do not echo external_reference reliably.
//
// Each stage here is a pure function so the matching logic stays unit
// testable without a live gateway.

// referenceSeparator splits the hiring id from the payment id inside an
// external reference of the form "hiring_<id>_payment_<id>".
const referenceSeparator = "_payment_"

// referencePrefix opens every external reference this service emits.
const referencePrefix = "hiring_"

// BuildExternalReference formats the external_reference attached to gateway
// preferences so notifications can be traced back to a ledger row.
func BuildExternalReference(hiringID, paymentID string) string {
	return referencePrefix + hiringID + referenceSeparator + paymentID
}

// ParseExternalReference extracts the hiring and payment ids from an
// external reference previously produced by BuildExternalReference. It
// tolerates arbitrary garbage (gateways may substitute their own values) by
// returning ok=false rather than an error.
func ParseExternalReference(ref string) (hiringID, paymentID string, ok bool) {
	if !strings.HasPrefix(ref, referencePrefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(ref, referencePrefix)
	i := strings.LastIndex(rest, referenceSeparator)
	if i <= 0 {
		return "", "", false
	}
	hiringID, paymentID = rest[:i], rest[i+len(referenceSeparator):]
	if hiringID == "" || paymentID == "" {
		return "", "", false
	}
	return hiringID, paymentID, true
}

// MatchRecentPending picks the fallback candidate among the n most recent
// pending ledger rows (most recent first). A row whose amount matches the
// gateway transaction amount within epsilon wins; otherwise the most recent
// pending row is taken. Returns nil when the list is empty.
//
// Known reconciliation risk: when two pending payments of identical amount
// coexist, this stage can misattribute the notification. The engine logs a
// warning when the amount stage is inconclusive; stricter matching is not
// attempted.
func MatchRecentPending(pending []domain.Payment, amount decimal.Decimal, epsilon decimal.Decimal) (*domain.Payment, bool) {
	if len(pending) == 0 {
		return nil, false
	}
	for i := range pending {
		diff := pending[i].Amount.Sub(amount).Abs()
		if diff.LessThanOrEqual(epsilon) {
			return &pending[i], true
		}
	}
	return &pending[0], false
}
