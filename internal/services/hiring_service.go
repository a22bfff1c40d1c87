// Package services – HiringService
//
// This file implements the HiringService, which owns the hiring lifecycle
// from creation through negotiation to a terminal state. Every mutation is
// gated by the pure state machine in internal/lifecycle and applied through
// guarded status updates, so concurrent actions on the same hiring cannot
// both observe a precondition and both win.
//
// Service-level errors (ErrHiringNotFound, ErrForbidden,
// ErrInvalidTransition, …) are returned for predictable cases so handlers
// can map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-hiring-backend/internal/domain"
	"github.com/tbourn/go-hiring-backend/internal/gateway"
	"github.com/tbourn/go-hiring-backend/internal/lifecycle"
	"github.com/tbourn/go-hiring-backend/internal/repo"
)

// PaymentScheme selects how a full_payment hiring collects money when the
// client accepts the quotation.
type PaymentScheme string

// Payment schemes.
const (
	// SchemeSingle collects the whole price after the delivery is approved.
	SchemeSingle PaymentScheme = "single"
	// SchemeSplit collects a deposit at acceptance and the remainder after
	// the delivery is approved.
	SchemeSplit PaymentScheme = "split"
)

// DeliverableInput is one deliverable line of a by_deliverables quotation.
// OrderIndex is assigned from slice position (1-based).
type DeliverableInput struct {
	Title                 string
	Description           string
	Price                 decimal.Decimal
	EstimatedDeliveryDate *time.Time
}

// QuoteInput carries the provider's quotation.
type QuoteInput struct {
	Price             decimal.Decimal
	ValidityDays      int
	EstimatedDuration string
	Notes             string
	Deliverables      []DeliverableInput
}

// CheckoutInfo is returned when an operation created a gateway checkout.
type CheckoutInfo struct {
	PaymentID    string `json:"payment_id"`
	PreferenceID string `json:"preference_id"`
	CheckoutURL  string `json:"checkout_url"`
}

// HiringService implements the use-cases around the hiring aggregate.
type HiringService struct {
	DB       *gorm.DB
	Identity gateway.IdentityService
	Gateway  gateway.PaymentGateway
	Notifier gateway.Notifier

	// DefaultValidityDays applies when a quotation omits its validity window.
	DefaultValidityDays int
	// DepositPercent is the upfront share collected by SchemeSplit.
	DepositPercent decimal.Decimal

	NotificationURL    string
	CheckoutSuccessURL string
	CheckoutFailureURL string

	// IdempotencyTTL bounds how long a stored Idempotency-Key replays the
	// original response. Zero falls back to 24h at the call site.
	IdempotencyTTL time.Duration
}

// NewHiringService constructs a HiringService with the conventional 25/75
// split and a 7-day default validity window.
func NewHiringService(db *gorm.DB, id gateway.IdentityService, gw gateway.PaymentGateway, n gateway.Notifier) *HiringService {
	return &HiringService{
		DB:                  db,
		Identity:            id,
		Gateway:             gw,
		Notifier:            n,
		DefaultValidityDays: 7,
		DepositPercent:      decimal.NewFromInt(25),
	}
}

// RoleOf resolves the caller's role within the hiring, or ErrForbidden when
// the caller is neither participant.
func RoleOf(h *domain.Hiring, userID string) (lifecycle.Role, error) {
	switch userID {
	case h.ClientID:
		return lifecycle.RoleClient, nil
	case h.ProviderID:
		return lifecycle.RoleProvider, nil
	default:
		return "", ErrForbidden
	}
}

// Create opens a new hiring in the pending status on behalf of clientID.
// The client must be verified and the provider active per the identity
// collaborator.
func (s *HiringService) Create(ctx context.Context, clientID, providerID, serviceID, description, modality string) (*domain.Hiring, error) {
	ctx, span := s.span(ctx, "Create", attribute.String("client.id", clientID))
	defer span.End()

	description = strings.TrimSpace(description)
	if description == "" {
		return nil, ErrEmptyDescription
	}
	if modality != domain.ModalityFullPayment && modality != domain.ModalityByDeliverables {
		modality = domain.ModalityFullPayment
	}

	verified, err := s.Identity.IsUserVerified(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if !verified {
		return nil, ErrUserNotVerified
	}
	standing, err := s.Identity.IsUserActive(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if !standing.Active() {
		return nil, ErrUserInactive
	}

	return repo.CreateHiring(ctx, s.DB, clientID, providerID, serviceID, description, modality)
}

// Get returns the hiring together with the actions currently available to
// the caller's role.
func (s *HiringService) Get(ctx context.Context, userID, hiringID string) (*domain.Hiring, []lifecycle.Action, error) {
	h, err := repo.GetHiringForUser(ctx, s.DB, hiringID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrHiringNotFound
		}
		return nil, nil, err
	}
	role, err := RoleOf(h, userID)
	if err != nil {
		return nil, nil, err
	}
	return h, lifecycle.AvailableActions(h, role, time.Now().UTC()), nil
}

// ListPage returns a page of the user's hirings and the total count.
func (s *HiringService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Hiring, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountHirings(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Hiring{}, 0, nil
	}
	items, err := repo.ListHiringsPage(ctx, s.DB, userID, offset, pageSize)
	return items, total, err
}

// Quote records the provider's quotation and moves the hiring to quoted.
// For by_deliverables hirings the deliverable set is validated (non-empty,
// prices summing to the quoted price) and replaced wholesale.
func (s *HiringService) Quote(ctx context.Context, providerID, hiringID string, in QuoteInput) (*domain.Hiring, error) {
	ctx, span := s.span(ctx, "Quote", attribute.String("hiring.id", hiringID))
	defer span.End()

	h, err := s.load(ctx, hiringID, providerID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(h, providerID, lifecycle.ActionQuote); err != nil {
		return nil, err
	}
	if err := validateQuote(h, in); err != nil {
		return nil, err
	}

	validity := in.ValidityDays
	if validity <= 0 {
		validity = s.DefaultValidityDays
	}
	now := time.Now().UTC()
	from := h.StatusCode()

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.UpdateHiringStatusGuarded(ctx, tx, h.ID, from, domain.StatusQuoted, map[string]any{
			"quoted_price":            in.Price,
			"estimated_duration":      in.EstimatedDuration,
			"quotation_notes":         in.Notes,
			"quoted_at":               now,
			"quotation_validity_days": validity,
		}); err != nil {
			return staleAs(err, from, lifecycle.ActionQuote)
		}
		if h.PaymentModality == domain.ModalityByDeliverables {
			return repo.ReplaceDeliverables(ctx, tx, h.ID, buildDeliverables(h.ID, in.Deliverables))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return repo.GetHiring(ctx, s.DB, h.ID)
}

// EditQuote replaces the provider's quotation while the hiring is still
// quoted. The deliverable set, if any, is deleted and recreated.
func (s *HiringService) EditQuote(ctx context.Context, providerID, hiringID string, in QuoteInput) (*domain.Hiring, error) {
	ctx, span := s.span(ctx, "EditQuote", attribute.String("hiring.id", hiringID))
	defer span.End()

	h, err := s.load(ctx, hiringID, providerID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(h, providerID, lifecycle.ActionEdit); err != nil {
		return nil, err
	}
	if err := validateQuote(h, in); err != nil {
		return nil, err
	}

	validity := in.ValidityDays
	if validity <= 0 {
		validity = s.DefaultValidityDays
	}
	now := time.Now().UTC()

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.UpdateHiringStatusGuarded(ctx, tx, h.ID, domain.StatusQuoted, domain.StatusQuoted, map[string]any{
			"quoted_price":            in.Price,
			"estimated_duration":      in.EstimatedDuration,
			"quotation_notes":         in.Notes,
			"quoted_at":               now,
			"quotation_validity_days": validity,
		}); err != nil {
			return staleAs(err, domain.StatusQuoted, lifecycle.ActionEdit)
		}
		if h.PaymentModality == domain.ModalityByDeliverables {
			return repo.ReplaceDeliverables(ctx, tx, h.ID, buildDeliverables(h.ID, in.Deliverables))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return repo.GetHiring(ctx, s.DB, h.ID)
}

// Accept applies the client's acceptance of the quotation.
//
// Resulting status by modality and scheme:
//   - by_deliverables: approved (money is collected per deliverable);
//   - full_payment + SchemeSplit: payment_pending, with an initial deposit
//     attempt and a gateway checkout;
//   - full_payment + SchemeSingle: approved (the full charge is created when
//     the delivery is approved).
//
// The returned CheckoutInfo is non-nil only for SchemeSplit.
func (s *HiringService) Accept(ctx context.Context, clientID, hiringID string, scheme PaymentScheme) (*domain.Hiring, *CheckoutInfo, error) {
	ctx, span := s.span(ctx, "Accept", attribute.String("hiring.id", hiringID))
	defer span.End()

	h, err := s.load(ctx, hiringID, clientID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.authorize(h, clientID, lifecycle.ActionAccept); err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	if h.PaymentModality == domain.ModalityByDeliverables || scheme != SchemeSplit {
		if err := repo.UpdateHiringStatusGuarded(ctx, s.DB, h.ID, domain.StatusQuoted, domain.StatusApproved, map[string]any{
			"responded_at": now,
		}); err != nil {
			return nil, nil, staleAs(err, domain.StatusQuoted, lifecycle.ActionAccept)
		}
		h, err = repo.GetHiring(ctx, s.DB, h.ID)
		return h, nil, err
	}

	// Split scheme: deposit checkout first, work starts after it clears.
	deposit := h.QuotedPrice.Mul(s.DepositPercent).Div(decimal.NewFromInt(100)).Round(2)
	if err := repo.UpdateHiringStatusGuarded(ctx, s.DB, h.ID, domain.StatusQuoted, domain.StatusPaymentPending, map[string]any{
		"responded_at": now,
	}); err != nil {
		return nil, nil, staleAs(err, domain.StatusQuoted, lifecycle.ActionAccept)
	}
	checkout, err := s.CreateCheckout(ctx, h, &domain.Payment{
		HiringID:    h.ID,
		Amount:      deposit,
		TotalAmount: *h.QuotedPrice,
		PaymentType: domain.PaymentTypeInitial,
	}, "Deposit for hiring")
	if err != nil {
		return nil, nil, err
	}
	h, err = repo.GetHiring(ctx, s.DB, h.ID)
	return h, checkout, err
}

// Reject applies a rejection by either participant, where the state machine
// allows it for their role.
func (s *HiringService) Reject(ctx context.Context, userID, hiringID string) (*domain.Hiring, error) {
	return s.applySimple(ctx, userID, hiringID, lifecycle.ActionReject, func(h *domain.Hiring) {
		s.Notifier.HiringRejected(ctx, counterpart(h, userID), h.ID)
	})
}

// Cancel applies the client's cancellation.
func (s *HiringService) Cancel(ctx context.Context, userID, hiringID string) (*domain.Hiring, error) {
	return s.applySimple(ctx, userID, hiringID, lifecycle.ActionCancel, nil)
}

// Negotiate moves a quoted hiring back to negotiation with the client's
// counter-notes appended for the provider.
func (s *HiringService) Negotiate(ctx context.Context, clientID, hiringID, notes string) (*domain.Hiring, error) {
	h, err := s.load(ctx, hiringID, clientID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(h, clientID, lifecycle.ActionNegotiate); err != nil {
		return nil, err
	}
	if err := repo.UpdateHiringStatusGuarded(ctx, s.DB, h.ID, domain.StatusQuoted, domain.StatusNegotiating, map[string]any{
		"quotation_notes": strings.TrimSpace(notes),
		"responded_at":    time.Now().UTC(),
	}); err != nil {
		return nil, staleAs(err, domain.StatusQuoted, lifecycle.ActionNegotiate)
	}
	return repo.GetHiring(ctx, s.DB, h.ID)
}

// Requote handles the client's request for a fresh quotation on an expired
// one. Preconditions beyond the state machine: both parties must still be
// active per the identity collaborator. On success the previous quotation is
// snapshotted, the requote counter incremented, and the hiring moved to
// requoting.
func (s *HiringService) Requote(ctx context.Context, clientID, hiringID string) (*domain.Hiring, error) {
	ctx, span := s.span(ctx, "Requote", attribute.String("hiring.id", hiringID))
	defer span.End()

	h, err := s.load(ctx, hiringID, clientID)
	if err != nil {
		return nil, err
	}
	role, err := RoleOf(h, clientID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if !lifecycle.CanPerform(h, lifecycle.ActionRequote, role, now) {
		return nil, invalidTransition(h.StatusCode(), lifecycle.ActionRequote)
	}

	for _, uid := range []string{h.ClientID, h.ProviderID} {
		standing, err := s.Identity.IsUserActive(ctx, uid)
		if err != nil {
			return nil, err
		}
		if !standing.Active() {
			return nil, ErrUserInactive
		}
	}

	if err := repo.UpdateHiringStatusGuarded(ctx, s.DB, h.ID, domain.StatusQuoted, domain.StatusRequoting, map[string]any{
		"previous_price":         h.QuotedPrice,
		"previous_validity_days": h.QuotationValidityDays,
		"previous_quoted_at":     h.QuotedAt,
		"requote_count":          h.RequoteCount + 1,
	}); err != nil {
		return nil, staleAs(err, domain.StatusQuoted, lifecycle.ActionRequote)
	}
	return repo.GetHiring(ctx, s.DB, h.ID)
}

// RetryPayment creates a fresh initial attempt and checkout after a rejected
// deposit, moving the hiring back to payment_pending. The rejected ledger
// row is retained untouched for audit.
func (s *HiringService) RetryPayment(ctx context.Context, clientID, hiringID string) (*CheckoutInfo, error) {
	ctx, span := s.span(ctx, "RetryPayment", attribute.String("hiring.id", hiringID))
	defer span.End()

	h, err := s.load(ctx, hiringID, clientID)
	if err != nil {
		return nil, err
	}
	if h.ClientID != clientID {
		return nil, ErrForbidden
	}
	if h.StatusCode() != domain.StatusPaymentRejected {
		return nil, invalidTransition(h.StatusCode(), "retry_payment")
	}
	if h.QuotedPrice == nil {
		return nil, ErrInvalidQuotation
	}

	deposit := h.QuotedPrice.Mul(s.DepositPercent).Div(decimal.NewFromInt(100)).Round(2)
	if err := repo.UpdateHiringStatusGuarded(ctx, s.DB, h.ID, domain.StatusPaymentRejected, domain.StatusPaymentPending, map[string]any{
		"retry_count": h.RetryCount + 1,
	}); err != nil {
		return nil, staleAs(err, domain.StatusPaymentRejected, "retry_payment")
	}
	return s.CreateCheckout(ctx, h, &domain.Payment{
		HiringID:    h.ID,
		Amount:      deposit,
		TotalAmount: *h.QuotedPrice,
		PaymentType: domain.PaymentTypeInitial,
	}, "Deposit for hiring (retry)")
}

// CreateCheckout appends a pending attempt to the ledger and registers a
// gateway preference whose external reference embeds the ledger row id. The
// preference call happens after the row is committed so a notification that
// races the response can still be matched.
func (s *HiringService) CreateCheckout(ctx context.Context, h *domain.Hiring, p *domain.Payment, title string) (*CheckoutInfo, error) {
	if err := repo.CreatePayment(ctx, s.DB, p); err != nil {
		return nil, err
	}
	pref, err := s.Gateway.CreatePreference(ctx, gateway.PreferenceRequest{
		Items: []gateway.PreferenceItem{{
			Title:     title,
			Quantity:  1,
			UnitPrice: p.Amount,
		}},
		ExternalReference: lifecycle.BuildExternalReference(h.ID, p.ID),
		NotificationURL:   s.NotificationURL,
		SuccessURL:        s.CheckoutSuccessURL,
		FailureURL:        s.CheckoutFailureURL,
		Metadata: map[string]any{
			"hiring_id":    h.ID,
			"payment_type": p.PaymentType,
		},
	})
	if err != nil {
		return nil, err
	}
	if err := repo.UpdatePayment(ctx, s.DB, p.ID, map[string]any{
		"external_preference_id": pref.ID,
	}); err != nil {
		return nil, err
	}
	return &CheckoutInfo{PaymentID: p.ID, PreferenceID: pref.ID, CheckoutURL: pref.CheckoutURL}, nil
}

// --- helpers ---

// load fetches the hiring scoped to the caller, mapping missing rows to
// ErrHiringNotFound.
func (s *HiringService) load(ctx context.Context, hiringID, userID string) (*domain.Hiring, error) {
	h, err := repo.GetHiringForUser(ctx, s.DB, hiringID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHiringNotFound
		}
		return nil, err
	}
	return h, nil
}

// authorize resolves the caller's role and consults the state machine,
// distinguishing expiry-gated denials in the returned message.
func (s *HiringService) authorize(h *domain.Hiring, userID string, action lifecycle.Action) error {
	role, err := RoleOf(h, userID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if lifecycle.CanPerform(h, action, role, now) {
		return nil
	}
	if lifecycle.IsQuotationExpired(h, now) {
		switch action {
		case lifecycle.ActionAccept, lifecycle.ActionReject, lifecycle.ActionEdit, lifecycle.ActionNegotiate:
			return invalidTransitionExpired(action)
		}
	}
	return invalidTransition(h.StatusCode(), action)
}

// applySimple runs a plain table transition (reject, cancel) with an
// optional post-commit side effect.
func (s *HiringService) applySimple(ctx context.Context, userID, hiringID string, action lifecycle.Action, after func(*domain.Hiring)) (*domain.Hiring, error) {
	h, err := s.load(ctx, hiringID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(h, userID, action); err != nil {
		return nil, err
	}
	next, ok := lifecycle.NextStatus(h, action)
	if !ok {
		return nil, invalidTransition(h.StatusCode(), action)
	}
	from := h.StatusCode()
	if err := repo.UpdateHiringStatusGuarded(ctx, s.DB, h.ID, from, next, map[string]any{
		"responded_at": time.Now().UTC(),
	}); err != nil {
		return nil, staleAs(err, from, action)
	}
	if after != nil {
		after(h)
	}
	return repo.GetHiring(ctx, s.DB, h.ID)
}

// staleAs maps a lost guarded update (zero rows affected) to an invalid
// transition naming the status the caller observed.
func staleAs(err error, status domain.Status, action lifecycle.Action) error {
	if errors.Is(err, repo.ErrNotFound) {
		return invalidTransition(status, action)
	}
	return err
}

// counterpart returns the other participant of the hiring.
func counterpart(h *domain.Hiring, userID string) string {
	if userID == h.ClientID {
		return h.ProviderID
	}
	return h.ClientID
}

// validateQuote checks quotation consistency for both modalities.
func validateQuote(h *domain.Hiring, in QuoteInput) error {
	if !in.Price.IsPositive() {
		return ErrInvalidQuotation
	}
	if h.PaymentModality != domain.ModalityByDeliverables {
		return nil
	}
	if len(in.Deliverables) == 0 {
		return ErrInvalidQuotation
	}
	sum := decimal.Zero
	for _, d := range in.Deliverables {
		if strings.TrimSpace(d.Title) == "" || !d.Price.IsPositive() {
			return ErrInvalidQuotation
		}
		sum = sum.Add(d.Price)
	}
	if !sum.Equal(in.Price) {
		return ErrInvalidQuotation
	}
	return nil
}

// buildDeliverables maps quote inputs to rows with contiguous 1-based order.
func buildDeliverables(hiringID string, in []DeliverableInput) []domain.Deliverable {
	out := make([]domain.Deliverable, 0, len(in))
	for i, d := range in {
		out = append(out, domain.Deliverable{
			HiringID:              hiringID,
			Title:                 strings.TrimSpace(d.Title),
			Description:           d.Description,
			Price:                 d.Price,
			EstimatedDeliveryDate: d.EstimatedDeliveryDate,
			OrderIndex:            i + 1,
		})
	}
	return out
}

// span starts an OTel span for a service method.
func (s *HiringService) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tr := otel.Tracer("services/HiringService")
	return tr.Start(ctx, name, trace.WithAttributes(attrs...))
}
