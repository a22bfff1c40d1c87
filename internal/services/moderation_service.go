// Package services – ModerationService
//
// Moderation events arrive from the trust-and-safety side of the platform
// and override the hiring state machine: every non-terminal hiring of a
// banned or suspended user is terminated administratively, with the reason
// recorded on the row. Terminal hirings are never rewritten, so completed
// history survives moderation.
package services

import (
	"context"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-hiring-backend/internal/domain"
	"github.com/tbourn/go-hiring-backend/internal/repo"
)

// ModerationService applies user moderation events to the user's hirings.
type ModerationService struct {
	DB  *gorm.DB
	Log zerolog.Logger
}

// NewModerationService constructs a ModerationService.
func NewModerationService(db *gorm.DB, log zerolog.Logger) *ModerationService {
	return &ModerationService{DB: db, Log: log}
}

// UserBanned terminates every non-terminal hiring the user participates in.
// Returns the number of hirings overridden.
func (s *ModerationService) UserBanned(ctx context.Context, userID, reason string) (int64, error) {
	return s.terminate(ctx, userID, "banned", reason)
}

// UserSuspended behaves like UserBanned: an ongoing engagement cannot
// continue while one side is suspended, and resuming a half-done negotiation
// after an unbounded suspension is worse than restarting it.
func (s *ModerationService) UserSuspended(ctx context.Context, userID, reason string) (int64, error) {
	return s.terminate(ctx, userID, "suspended", reason)
}

// UserReactivated records the event but touches no hirings: terminated
// rows stay terminated, and nothing else was changed by the ban.
func (s *ModerationService) UserReactivated(ctx context.Context, userID string) error {
	s.Log.Info().
		Str("user_id", userID).
		Msg("user reactivated, hirings left untouched")
	return nil
}

func (s *ModerationService) terminate(ctx context.Context, userID, event, reason string) (int64, error) {
	n, err := repo.OverrideStatusForUser(ctx, s.DB, userID,
		domain.StatusTerminatedByModeration, true, reason)
	if err != nil {
		return 0, err
	}
	s.Log.Info().
		Str("user_id", userID).
		Str("event", event).
		Int64("hirings_terminated", n).
		Msg("moderation override applied")
	return n, nil
}
