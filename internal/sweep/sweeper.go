// Package sweep runs the quotation expiry sweep: a background loop that
// moves quoted hirings whose validity window elapsed to the expired status.
//
// The sweep is a projection of the live expiry predicate onto stored rows,
// not the source of truth: action gating consults the predicate directly, so
// an expired-but-not-yet-swept hiring already denies accept/reject/edit.
// The loop only keeps the stored status eventually consistent for listings
// and projections.
package sweep

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-hiring-backend/internal/domain"
	"github.com/tbourn/go-hiring-backend/internal/repo"
)

// defaultBatch bounds one sweep pass.
const defaultBatch = 200

// Sweeper periodically expires overdue quotations.
type Sweeper struct {
	DB       *gorm.DB
	Log      zerolog.Logger
	Interval time.Duration
	Batch    int
}

// New builds a Sweeper with the given cadence.
func New(db *gorm.DB, log zerolog.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{DB: db, Log: log, Interval: interval, Batch: defaultBatch}
}

// Run blocks until ctx is cancelled, sweeping once immediately and then on
// every tick.
func (s *Sweeper) Run(ctx context.Context) {
	if n, err := s.SweepOnce(ctx); err != nil {
		s.Log.Error().Err(err).Msg("expiry sweep failed")
	} else if n > 0 {
		s.Log.Info().Int("expired", n).Msg("expiry sweep")
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepOnce(ctx)
			if err != nil {
				s.Log.Error().Err(err).Msg("expiry sweep failed")
				continue
			}
			if n > 0 {
				s.Log.Info().Int("expired", n).Msg("expiry sweep")
			}
		}
	}
}

// SweepOnce expires one batch of overdue quoted hirings and returns how many
// rows it moved. A row that changed status between the read and the guarded
// update is skipped silently.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	batch := s.Batch
	if batch <= 0 {
		batch = defaultBatch
	}
	overdue, err := repo.ListQuotedExpiredBefore(ctx, s.DB, time.Now().UTC(), batch)
	if err != nil {
		return 0, err
	}
	expired := 0
	for i := range overdue {
		err := repo.UpdateHiringStatusGuarded(ctx, s.DB, overdue[i].ID,
			domain.StatusQuoted, domain.StatusExpired, nil)
		if errors.Is(err, repo.ErrNotFound) {
			continue
		}
		if err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}
