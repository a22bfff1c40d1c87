package sweep

import (
	"context"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-hiring-backend/internal/domain"
	"github.com/tbourn/go-hiring-backend/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:sweep-" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := repo.SeedStatuses(db); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return db
}

func seedQuoted(t *testing.T, db *gorm.DB, quotedAt time.Time, validity int) *domain.Hiring {
	t.Helper()
	ctx := context.Background()
	h, err := repo.CreateHiring(ctx, db, "c", "p", "s", "work", domain.ModalityFullPayment)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.UpdateHiringStatusGuarded(ctx, db, h.ID, domain.StatusPending, domain.StatusQuoted, map[string]any{
		"quoted_at":               quotedAt,
		"quotation_validity_days": validity,
	}); err != nil {
		t.Fatalf("quote: %v", err)
	}
	return h
}

func TestSweepOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	overdue := seedQuoted(t, db, now.AddDate(0, 0, -10), 7)
	fresh := seedQuoted(t, db, now.AddDate(0, 0, -2), 7)
	open := seedQuoted(t, db, now.AddDate(0, 0, -10), 0) // no validity window

	s := New(db, zerolog.Nop(), time.Hour)
	n, err := s.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired = %d, want 1", n)
	}

	for _, tc := range []struct {
		id   string
		want domain.Status
	}{
		{overdue.ID, domain.StatusExpired},
		{fresh.ID, domain.StatusQuoted},
		{open.ID, domain.StatusQuoted},
	} {
		h, err := repo.GetHiring(ctx, db, tc.id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if h.StatusCode() != tc.want {
			t.Fatalf("hiring %s status = %q, want %q", tc.id, h.StatusCode(), tc.want)
		}
	}

	// Second pass finds nothing left to expire.
	n, err = s.SweepOnce(ctx)
	if err != nil || n != 0 {
		t.Fatalf("second sweep: %v n=%d", err, n)
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	db := newTestDB(t)
	s := New(db, zerolog.Nop(), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop on cancel")
	}
}

func TestNew_DefaultsInterval(t *testing.T) {
	s := New(nil, zerolog.Nop(), 0)
	if s.Interval != time.Hour {
		t.Fatalf("interval = %v", s.Interval)
	}
	if s.Batch != defaultBatch {
		t.Fatalf("batch = %d", s.Batch)
	}
}
