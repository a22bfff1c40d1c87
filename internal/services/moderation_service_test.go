package services

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-hiring-backend/internal/domain"
	"github.com/tbourn/go-hiring-backend/internal/repo"
)

func TestModeration_BanTerminatesActiveHirings(t *testing.T) {
	hs, _, _, _ := newTestHiringService(t)
	ms := NewModerationService(hs.DB, zerolog.Nop())
	ctx := context.Background()

	quoted := seedQuoted(t, hs, domain.ModalityFullPayment, "100", nil)

	done, _ := hs.Create(ctx, "client-1", "provider-1", "s", "old job", domain.ModalityFullPayment)
	if err := repo.UpdateHiringStatusGuarded(ctx, hs.DB, done.ID,
		domain.StatusPending, domain.StatusCancelled, nil); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	other, _ := hs.Create(ctx, "client-2", "provider-2", "s", "unrelated", domain.ModalityFullPayment)

	n, err := ms.UserBanned(ctx, "provider-1", "terms violation")
	if err != nil {
		t.Fatalf("ban: %v", err)
	}
	if n != 1 {
		t.Fatalf("terminated = %d, want 1", n)
	}

	got := mustStatus(t, hs.DB, quoted.ID, domain.StatusTerminatedByModeration)
	if !got.TerminatedByModeration || got.ModerationReason != "terms violation" || got.ModeratedAt == nil {
		t.Fatalf("moderation trail = %+v", got)
	}
	mustStatus(t, hs.DB, done.ID, domain.StatusCancelled)
	mustStatus(t, hs.DB, other.ID, domain.StatusPending)

	// Reactivation leaves everything as it is.
	if err := ms.UserReactivated(ctx, "provider-1"); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	mustStatus(t, hs.DB, quoted.ID, domain.StatusTerminatedByModeration)
}

func TestModeration_SuspensionBehavesLikeBan(t *testing.T) {
	hs, _, _, _ := newTestHiringService(t)
	ms := NewModerationService(hs.DB, zerolog.Nop())
	ctx := context.Background()

	h := seedQuoted(t, hs, domain.ModalityFullPayment, "100", nil)

	n, err := ms.UserSuspended(ctx, "client-1", "chargeback review")
	if err != nil || n != 1 {
		t.Fatalf("suspend: %v n=%d", err, n)
	}
	got := mustStatus(t, hs.DB, h.ID, domain.StatusTerminatedByModeration)
	if got.ModerationReason != "chargeback review" {
		t.Fatalf("reason = %q", got.ModerationReason)
	}
}
