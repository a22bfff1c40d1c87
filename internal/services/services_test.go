package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-hiring-backend/internal/domain"
	"github.com/tbourn/go-hiring-backend/internal/gateway"
	"github.com/tbourn/go-hiring-backend/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:svc-" + uuid.NewString() + "?mode=memory&cache=shared"
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

// fakeIdentity treats every user as active and verified unless listed.
type fakeIdentity struct {
	banned     map[string]bool
	unverified map[string]bool
}

func (f *fakeIdentity) IsUserActive(_ context.Context, userID string) (gateway.UserStanding, error) {
	return gateway.UserStanding{Banned: f.banned[userID]}, nil
}

func (f *fakeIdentity) IsUserVerified(_ context.Context, userID string) (bool, error) {
	return !f.unverified[userID], nil
}

// fakeGateway records created preferences and serves canned payment objects.
type fakeGateway struct {
	prefs      []gateway.PreferenceRequest
	prefErr    error
	getPayment func(externalID string) (*gateway.GatewayPayment, error)
}

func (f *fakeGateway) CreatePreference(_ context.Context, req gateway.PreferenceRequest) (*gateway.Preference, error) {
	if f.prefErr != nil {
		return nil, f.prefErr
	}
	f.prefs = append(f.prefs, req)
	return &gateway.Preference{
		ID:          fmt.Sprintf("pref-%d", len(f.prefs)),
		CheckoutURL: "https://pay.example/checkout",
	}, nil
}

func (f *fakeGateway) GetPayment(_ context.Context, externalID string) (*gateway.GatewayPayment, error) {
	if f.getPayment != nil {
		return f.getPayment(externalID)
	}
	return nil, gateway.ErrPaymentNotFound
}

// notification is one recorded notifier call.
type notification struct {
	kind     string
	userID   string
	hiringID string
	detail   string
}

type fakeNotifier struct {
	events []notification
}

func (f *fakeNotifier) HiringCompleted(_ context.Context, userID, hiringID string) {
	f.events = append(f.events, notification{kind: "completed", userID: userID, hiringID: hiringID})
}

func (f *fakeNotifier) HiringRejected(_ context.Context, userID, hiringID string) {
	f.events = append(f.events, notification{kind: "rejected", userID: userID, hiringID: hiringID})
}

func (f *fakeNotifier) RevisionRequested(_ context.Context, userID, hiringID, notes string) {
	f.events = append(f.events, notification{kind: "revision", userID: userID, hiringID: hiringID, detail: notes})
}

func (f *fakeNotifier) PaymentRejected(_ context.Context, userID, hiringID, reason string) {
	f.events = append(f.events, notification{kind: "payment_rejected", userID: userID, hiringID: hiringID, detail: reason})
}

func (f *fakeNotifier) byKind(kind string) []notification {
	var out []notification
	for _, e := range f.events {
		if e.kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func newTestHiringService(t *testing.T) (*HiringService, *fakeGateway, *fakeIdentity, *fakeNotifier) {
	t.Helper()
	db := newTestDB(t)
	gw := &fakeGateway{}
	id := &fakeIdentity{banned: map[string]bool{}, unverified: map[string]bool{}}
	n := &fakeNotifier{}
	svc := NewHiringService(db, id, gw, n)
	svc.NotificationURL = "https://backend.example/webhooks/payments"
	return svc, gw, id, n
}

// seedQuoted creates a hiring and moves it to quoted with the given price.
func seedQuoted(t *testing.T, svc *HiringService, modality string, price string, deliverables []DeliverableInput) *domain.Hiring {
	t.Helper()
	ctx := context.Background()
	h, err := svc.Create(ctx, "client-1", "provider-1", "svc-1", "build a website", modality)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	h, err = svc.Quote(ctx, "provider-1", h.ID, QuoteInput{
		Price:        decimal.RequireFromString(price),
		ValidityDays: 7,
		Deliverables: deliverables,
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	return h
}

// expireQuotation rewinds quoted_at so the validity window has elapsed.
func expireQuotation(t *testing.T, db *gorm.DB, hiringID string) {
	t.Helper()
	past := time.Now().UTC().AddDate(0, 0, -30)
	if err := db.Model(&domain.Hiring{}).Where("id = ?", hiringID).
		Update("quoted_at", past).Error; err != nil {
		t.Fatalf("rewind quoted_at: %v", err)
	}
}

func mustStatus(t *testing.T, db *gorm.DB, hiringID string, want domain.Status) *domain.Hiring {
	t.Helper()
	h, err := repo.GetHiring(context.Background(), db, hiringID)
	if err != nil {
		t.Fatalf("get hiring: %v", err)
	}
	if h.StatusCode() != want {
		t.Fatalf("hiring status = %q, want %q", h.StatusCode(), want)
	}
	return h
}
