package lifecycle

import (
	"testing"
	"time"

	"github.com/tbourn/go-hiring-backend/internal/domain"
)

func hiringIn(status domain.Status) *domain.Hiring {
	h := &domain.Hiring{ID: "h1", ClientID: "c1", ProviderID: "p1", PaymentModality: domain.ModalityFullPayment}
	h.SetStatus(status)
	return h
}

func quotedHiring(quotedAt time.Time, validityDays int) *domain.Hiring {
	h := hiringIn(domain.StatusQuoted)
	h.QuotedAt = &quotedAt
	h.QuotationValidityDays = validityDays
	return h
}

func TestCanPerform_TransitionTable(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		status domain.Status
		action Action
		role   Role
		want   bool
	}{
		{"provider quotes pending", domain.StatusPending, ActionQuote, RoleProvider, true},
		{"client cannot quote pending", domain.StatusPending, ActionQuote, RoleClient, false},
		{"provider rejects pending", domain.StatusPending, ActionReject, RoleProvider, true},
		{"client cancels pending", domain.StatusPending, ActionCancel, RoleClient, true},
		{"provider cannot cancel pending", domain.StatusPending, ActionCancel, RoleProvider, false},
		{"client cannot accept pending", domain.StatusPending, ActionAccept, RoleClient, false},

		{"client accepts quoted", domain.StatusQuoted, ActionAccept, RoleClient, true},
		{"provider cannot accept quoted", domain.StatusQuoted, ActionAccept, RoleProvider, false},
		{"client negotiates quoted", domain.StatusQuoted, ActionNegotiate, RoleClient, true},
		{"provider edits quoted", domain.StatusQuoted, ActionEdit, RoleProvider, true},
		{"client cannot edit quoted", domain.StatusQuoted, ActionEdit, RoleClient, false},
		{"client rejects quoted", domain.StatusQuoted, ActionReject, RoleClient, true},

		{"provider quotes negotiating", domain.StatusNegotiating, ActionQuote, RoleProvider, true},
		{"provider rejects negotiating", domain.StatusNegotiating, ActionReject, RoleProvider, true},
		{"client cancels negotiating", domain.StatusNegotiating, ActionCancel, RoleClient, true},
		{"client cannot accept negotiating", domain.StatusNegotiating, ActionAccept, RoleClient, false},

		{"provider quotes requoting", domain.StatusRequoting, ActionQuote, RoleProvider, true},
		{"provider rejects requoting", domain.StatusRequoting, ActionReject, RoleProvider, true},

		{"client cancels payment_pending", domain.StatusPaymentPending, ActionCancel, RoleClient, true},
		{"client cannot accept payment_pending", domain.StatusPaymentPending, ActionAccept, RoleClient, false},
		{"client cancels payment_rejected", domain.StatusPaymentRejected, ActionCancel, RoleClient, true},

		{"no action on in_progress", domain.StatusInProgress, ActionCancel, RoleClient, false},
		{"no action on delivered", domain.StatusDelivered, ActionCancel, RoleClient, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := hiringIn(tc.status)
			if got := CanPerform(h, tc.action, tc.role, now); got != tc.want {
				t.Fatalf("CanPerform(%s, %s, %s) = %v, want %v", tc.status, tc.action, tc.role, got, tc.want)
			}
		})
	}
}

func TestCanPerform_TerminalStatusesDenyEverything(t *testing.T) {
	now := time.Now()
	terminals := []domain.Status{
		domain.StatusCompleted, domain.StatusRejected, domain.StatusCancelled,
		domain.StatusExpired, domain.StatusTerminatedByModeration,
		domain.StatusCancelledByClaim, domain.StatusCompletedByClaim,
		domain.StatusCompletedWithAgreement,
	}
	for _, s := range terminals {
		h := hiringIn(s)
		for _, a := range []Action{ActionQuote, ActionAccept, ActionReject, ActionCancel, ActionNegotiate, ActionEdit, ActionRequote} {
			for _, r := range []Role{RoleClient, RoleProvider} {
				if CanPerform(h, a, r, now) {
					t.Fatalf("terminal %s allowed %s by %s", s, a, r)
				}
			}
		}
	}
}

func TestCanPerform_ExpiryGating(t *testing.T) {
	quotedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	afterExpiry := quotedAt.AddDate(0, 0, 7).Add(time.Hour)
	beforeExpiry := quotedAt.AddDate(0, 0, 7).Add(-time.Hour)

	h := quotedHiring(quotedAt, 7)

	// Before the deadline everything quoted allows still works.
	if !CanPerform(h, ActionAccept, RoleClient, beforeExpiry) {
		t.Fatalf("accept should be allowed before expiry")
	}
	if !CanPerform(h, ActionEdit, RoleProvider, beforeExpiry) {
		t.Fatalf("edit should be allowed before expiry")
	}
	if CanPerform(h, ActionRequote, RoleClient, beforeExpiry) {
		t.Fatalf("requote must be denied before expiry")
	}

	// After the deadline accept/reject/edit/negotiate are denied, cancel and
	// requote remain legal.
	for _, a := range []Action{ActionAccept, ActionReject, ActionEdit, ActionNegotiate} {
		if CanPerform(h, a, RoleClient, afterExpiry) || CanPerform(h, a, RoleProvider, afterExpiry) {
			t.Fatalf("%s must be denied after expiry", a)
		}
	}
	if !CanPerform(h, ActionCancel, RoleClient, afterExpiry) {
		t.Fatalf("cancel must stay legal after expiry")
	}
	if !CanPerform(h, ActionRequote, RoleClient, afterExpiry) {
		t.Fatalf("requote must be allowed after expiry")
	}
	if CanPerform(h, ActionRequote, RoleProvider, afterExpiry) {
		t.Fatalf("provider must not requote")
	}
}

func TestCanPerform_RequoteCeiling(t *testing.T) {
	quotedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := quotedAt.AddDate(0, 0, 10)

	h := quotedHiring(quotedAt, 7)
	h.RequoteCount = RequoteLimit - 1
	if !CanPerform(h, ActionRequote, RoleClient, now) {
		t.Fatalf("requote below ceiling should be allowed")
	}
	h.RequoteCount = RequoteLimit
	if CanPerform(h, ActionRequote, RoleClient, now) {
		t.Fatalf("requote at ceiling must be denied")
	}
}

func TestNextStatus_AcceptDependsOnModality(t *testing.T) {
	h := hiringIn(domain.StatusQuoted)

	next, ok := NextStatus(h, ActionAccept)
	if !ok || next != domain.StatusPaymentPending {
		t.Fatalf("full_payment accept: got %q ok=%v", next, ok)
	}

	h.PaymentModality = domain.ModalityByDeliverables
	next, ok = NextStatus(h, ActionAccept)
	if !ok || next != domain.StatusApproved {
		t.Fatalf("by_deliverables accept: got %q ok=%v", next, ok)
	}

	if _, ok := NextStatus(hiringIn(domain.StatusInProgress), ActionAccept); ok {
		t.Fatalf("accept from in_progress must not resolve")
	}
}

func TestAvailableActions_StableOrderAndRoles(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	quotedAt := now.Add(-24 * time.Hour)
	h := quotedHiring(quotedAt, 7)

	client := AvailableActions(h, RoleClient, now)
	want := []Action{ActionAccept, ActionReject, ActionCancel, ActionNegotiate}
	if len(client) != len(want) {
		t.Fatalf("client actions = %v, want %v", client, want)
	}
	for i := range want {
		if client[i] != want[i] {
			t.Fatalf("client actions = %v, want %v", client, want)
		}
	}

	provider := AvailableActions(h, RoleProvider, now)
	if len(provider) != 1 || provider[0] != ActionEdit {
		t.Fatalf("provider actions = %v, want [edit]", provider)
	}

	if got := AvailableActions(hiringIn(domain.StatusCompleted), RoleClient, now); len(got) != 0 {
		t.Fatalf("terminal hiring yielded actions: %v", got)
	}
}

func TestIsQuotationExpired(t *testing.T) {
	quotedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	deadline := quotedAt.AddDate(0, 0, 7)

	h := quotedHiring(quotedAt, 7)
	if IsQuotationExpired(h, deadline) {
		t.Fatalf("deadline instant itself is not expired")
	}
	if !IsQuotationExpired(h, deadline.Add(time.Nanosecond)) {
		t.Fatalf("past deadline must be expired")
	}

	// Unset fields never expire.
	h2 := hiringIn(domain.StatusQuoted)
	if IsQuotationExpired(h2, deadline.AddDate(1, 0, 0)) {
		t.Fatalf("nil QuotedAt must never expire")
	}
	h3 := quotedHiring(quotedAt, 0)
	if IsQuotationExpired(h3, deadline.AddDate(1, 0, 0)) {
		t.Fatalf("zero validity must never expire")
	}
}
