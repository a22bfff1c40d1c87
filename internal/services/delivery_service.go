// Package services – DeliveryService
//
// This file implements the delivery subsystem: providers submit work against
// a hiring (full delivery) or one of its deliverables (partial delivery),
// clients review it, and the aggregate hiring status is re-derived from the
// full delivery state after every mutation rather than edited in place.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tbourn/go-hiring-backend/internal/domain"
	"github.com/tbourn/go-hiring-backend/internal/gateway"
	"github.com/tbourn/go-hiring-backend/internal/lifecycle"
	"github.com/tbourn/go-hiring-backend/internal/repo"
)

// AttachmentInput is one file reference attached to a submission.
type AttachmentInput struct {
	Path string
	URL  string
	Name string
	Size int64
	Mime string
}

// SubmitInput carries a provider's delivery. DeliverableID is nil for
// hiring-level full deliveries.
type SubmitInput struct {
	DeliverableID *string
	Content       string
	Attachments   []AttachmentInput
}

// DeliverableDetail is the client- or provider-facing view of one
// deliverable. For a client, a locked deliverable exposes only its ordering
// metadata: title, content, and submissions are withheld until the previous
// deliverable has been paid.
type DeliverableDetail struct {
	ID          string                      `json:"id"`
	OrderIndex  int                         `json:"order_index"`
	Status      string                      `json:"status"`
	IsLocked    bool                        `json:"is_locked"`
	Title       string                      `json:"title,omitempty"`
	Description string                      `json:"description,omitempty"`
	Price       *decimal.Decimal            `json:"price,omitempty"`
	Submissions []domain.DeliverySubmission `json:"submissions,omitempty"`
}

// DeliveryService implements submission, review, and visibility of delivered
// work.
type DeliveryService struct {
	DB       *gorm.DB
	Gateway  gateway.PaymentGateway
	Notifier gateway.Notifier
	Hirings  *HiringService
}

// NewDeliveryService constructs a DeliveryService sharing the hiring
// service's checkout plumbing.
func NewDeliveryService(db *gorm.DB, hs *HiringService) *DeliveryService {
	return &DeliveryService{DB: db, Gateway: hs.Gateway, Notifier: hs.Notifier, Hirings: hs}
}

// deliveryActive reports whether the hiring is in a phase where work may be
// submitted or reviewed.
func deliveryActive(s domain.Status) bool {
	switch s {
	case domain.StatusApproved, domain.StatusInProgress, domain.StatusDelivered, domain.StatusRevisionRequested:
		return true
	}
	return false
}

// Submit records a provider delivery against the hiring or one of its
// deliverables.
//
// Sequencing: deliverable k may be submitted only once every earlier
// deliverable has at least one submission. Revision rounds: a new submission
// for the same obligation is allowed only when none exists yet or the latest
// one was sent back for revision; otherwise ErrDeliveryConflict.
func (s *DeliveryService) Submit(ctx context.Context, providerID, hiringID string, in SubmitInput) (*domain.DeliverySubmission, error) {
	ctx, span := s.Hirings.span(ctx, "SubmitDelivery", attribute.String("hiring.id", hiringID))
	defer span.End()

	h, err := s.Hirings.load(ctx, hiringID, providerID)
	if err != nil {
		return nil, err
	}
	if h.ProviderID != providerID {
		return nil, ErrForbidden
	}
	if !deliveryActive(h.StatusCode()) {
		return nil, invalidTransition(h.StatusCode(), "submit_delivery")
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, ErrEmptyDescription
	}

	deliverables, err := repo.ListDeliverables(ctx, s.DB, h.ID)
	if err != nil {
		return nil, err
	}
	subs, err := repo.ListSubmissions(ctx, s.DB, h.ID)
	if err != nil {
		return nil, err
	}

	sub := &domain.DeliverySubmission{
		HiringID:     h.ID,
		DeliveryType: domain.DeliveryTypeFull,
		Content:      in.Content,
		Status:       domain.SubmissionStatusDelivered,
	}
	now := time.Now().UTC()
	sub.DeliveredAt = &now

	var target *domain.Deliverable
	if h.PaymentModality == domain.ModalityByDeliverables {
		if in.DeliverableID == nil {
			return nil, ErrDeliverableNotFound
		}
		target, err = repo.GetDeliverable(ctx, s.DB, *in.DeliverableID, h.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrDeliverableNotFound
			}
			return nil, err
		}
		if !lifecycle.CanSubmitDeliverable(deliverables, subs, target.OrderIndex) {
			return nil, invalidTransition(h.StatusCode(), "submit_delivery")
		}
		if !lifecycle.CanResubmit(subs, in.DeliverableID) {
			return nil, ErrDeliveryConflict
		}
		sub.DeliverableID = in.DeliverableID
		sub.DeliveryType = domain.DeliveryTypeDeliverable
		sub.Price = target.Price
	} else {
		if in.DeliverableID != nil {
			return nil, ErrDeliverableNotFound
		}
		if !lifecycle.CanResubmit(subs, nil) {
			return nil, ErrDeliveryConflict
		}
		if h.QuotedPrice != nil {
			sub.Price = *h.QuotedPrice
		}
	}
	for _, a := range in.Attachments {
		sub.Attachments = append(sub.Attachments, domain.Attachment{
			Path: a.Path, URL: a.URL, Name: a.Name, Size: a.Size, Mime: a.Mime,
		})
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateSubmission(ctx, tx, sub); err != nil {
			return err
		}
		if target != nil {
			if err := repo.UpdateDeliverable(ctx, tx, target.ID, map[string]any{
				"status":       domain.DeliverableStatusDelivered,
				"delivered_at": now,
			}); err != nil {
				return err
			}
		}
		return reprojectHiring(ctx, tx, h)
	})
	if err != nil {
		return nil, err
	}
	return repo.GetSubmission(ctx, s.DB, sub.ID)
}

// ListDeliverables returns the hiring's deliverables with the viewer's
// visibility applied: the provider sees everything; the client sees
// deliverable k's content only once deliverable k-1's latest submission is
// approved.
func (s *DeliveryService) ListDeliverables(ctx context.Context, userID, hiringID string) ([]DeliverableDetail, error) {
	h, err := s.Hirings.load(ctx, hiringID, userID)
	if err != nil {
		return nil, err
	}
	role, err := RoleOf(h, userID)
	if err != nil {
		return nil, err
	}
	deliverables, err := repo.ListDeliverables(ctx, s.DB, h.ID)
	if err != nil {
		return nil, err
	}
	subs, err := repo.ListSubmissions(ctx, s.DB, h.ID)
	if err != nil {
		return nil, err
	}

	out := make([]DeliverableDetail, 0, len(deliverables))
	for i := range deliverables {
		d := &deliverables[i]
		view := lifecycle.ViewGate(deliverables, subs, d.OrderIndex, role)
		detail := DeliverableDetail{
			ID:         d.ID,
			OrderIndex: d.OrderIndex,
			Status:     d.Status,
			IsLocked:   view.IsLocked,
		}
		if view.CanView {
			price := d.Price
			detail.Title = d.Title
			detail.Description = d.Description
			detail.Price = &price
			detail.Submissions = submissionsOf(subs, &d.ID)
		}
		out = append(out, detail)
	}
	return out, nil
}

// ListSubmissions returns the hiring's submission history visible to the
// caller. Clients of a by_deliverables hiring only see submissions of
// unlocked deliverables.
func (s *DeliveryService) ListSubmissions(ctx context.Context, userID, hiringID string) ([]domain.DeliverySubmission, error) {
	h, err := s.Hirings.load(ctx, hiringID, userID)
	if err != nil {
		return nil, err
	}
	role, err := RoleOf(h, userID)
	if err != nil {
		return nil, err
	}
	subs, err := repo.ListSubmissions(ctx, s.DB, h.ID)
	if err != nil {
		return nil, err
	}
	if role == lifecycle.RoleProvider || h.PaymentModality != domain.ModalityByDeliverables {
		return subs, nil
	}
	deliverables, err := repo.ListDeliverables(ctx, s.DB, h.ID)
	if err != nil {
		return nil, err
	}
	visible := make([]domain.DeliverySubmission, 0, len(subs))
	for _, sub := range subs {
		if sub.DeliverableID == nil {
			visible = append(visible, sub)
			continue
		}
		for _, d := range deliverables {
			if d.ID == *sub.DeliverableID && lifecycle.ViewGate(deliverables, subs, d.OrderIndex, role).CanView {
				visible = append(visible, sub)
				break
			}
		}
	}
	return visible, nil
}

// Approve accepts a delivered submission on behalf of the client and creates
// the corresponding charge:
//
//   - by_deliverables: a charge for the deliverable's price;
//   - full_payment with an approved deposit: the final remainder;
//   - full_payment without a deposit: the full quoted price.
//
// The submission moves to pending_payment and is finalized by the
// reconciliation engine once the gateway confirms the charge. Returns the
// checkout the client must complete.
//
// Approve is also legal while the submission is already pending_payment: an
// abandoned or failed checkout leaves the submission there, and re-approving
// issues a fresh charge attempt that supersedes the stale one. The settle
// guard keeps at most one attempt from being applied.
func (s *DeliveryService) Approve(ctx context.Context, clientID, hiringID, submissionID string) (*CheckoutInfo, error) {
	ctx, span := s.Hirings.span(ctx, "ApproveDelivery", attribute.String("submission.id", submissionID))
	defer span.End()

	h, sub, err := s.loadForReview(ctx, clientID, hiringID, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != domain.SubmissionStatusDelivered && sub.Status != domain.SubmissionStatusPendingPayment {
		return nil, ErrDeliveryConflict
	}

	p := &domain.Payment{
		HiringID:      h.ID,
		SubmissionID:  &sub.ID,
		DeliverableID: sub.DeliverableID,
	}
	title := "Payment for delivery"
	switch {
	case h.PaymentModality == domain.ModalityByDeliverables:
		p.PaymentType = domain.PaymentTypeDeliverable
		p.Amount = sub.Price
		p.TotalAmount = sub.Price
		title = "Payment for deliverable"
	default:
		if h.QuotedPrice == nil {
			return nil, ErrInvalidQuotation
		}
		total := *h.QuotedPrice
		hasDeposit, err := repo.HasApprovedPayment(ctx, s.DB, h.ID, domain.PaymentTypeInitial)
		if err != nil {
			return nil, err
		}
		if hasDeposit {
			deposit := total.Mul(s.Hirings.DepositPercent).Div(decimal.NewFromInt(100)).Round(2)
			p.PaymentType = domain.PaymentTypeFinal
			p.Amount = total.Sub(deposit)
			title = "Final payment for hiring"
		} else {
			p.PaymentType = domain.PaymentTypeFull
			p.Amount = total
			title = "Full payment for hiring"
		}
		p.TotalAmount = total
	}

	if sub.Status == domain.SubmissionStatusDelivered {
		now := time.Now().UTC()
		if err := repo.UpdateSubmissionGuarded(ctx, s.DB, sub.ID, domain.SubmissionStatusDelivered, map[string]any{
			"status":      domain.SubmissionStatusPendingPayment,
			"reviewed_at": now,
		}); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, ErrDeliveryConflict
			}
			return nil, err
		}
	}
	checkout, err := s.Hirings.CreateCheckout(ctx, h, p, title)
	if err != nil {
		return nil, err
	}
	if err := repo.UpdateSubmissionGuarded(ctx, s.DB, sub.ID, domain.SubmissionStatusPendingPayment, map[string]any{
		"payment_id": p.ID,
	}); err != nil {
		return nil, err
	}
	return checkout, nil
}

// RequestRevision sends a delivered submission back to the provider with
// mandatory notes. The submission, its deliverable, and the hiring all move
// to revision_requested, and the provider is notified.
func (s *DeliveryService) RequestRevision(ctx context.Context, clientID, hiringID, submissionID, notes string) error {
	ctx, span := s.Hirings.span(ctx, "RequestRevision", attribute.String("submission.id", submissionID))
	defer span.End()

	notes = strings.TrimSpace(notes)
	if notes == "" {
		return ErrEmptyRevisionNotes
	}
	h, sub, err := s.loadForReview(ctx, clientID, hiringID, submissionID)
	if err != nil {
		return err
	}
	if sub.Status != domain.SubmissionStatusDelivered {
		return ErrDeliveryConflict
	}

	now := time.Now().UTC()
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.UpdateSubmissionGuarded(ctx, tx, sub.ID, domain.SubmissionStatusDelivered, map[string]any{
			"status":         domain.SubmissionStatusRevisionRequested,
			"revision_notes": notes,
			"reviewed_at":    now,
		}); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrDeliveryConflict
			}
			return err
		}
		if sub.DeliverableID != nil {
			if err := repo.UpdateDeliverable(ctx, tx, *sub.DeliverableID, map[string]any{
				"status": domain.DeliverableStatusRevisionRequested,
			}); err != nil {
				return err
			}
		}
		return reprojectHiring(ctx, tx, h)
	})
	if err != nil {
		return err
	}
	s.Notifier.RevisionRequested(ctx, h.ProviderID, h.ID, notes)
	return nil
}

// loadForReview fetches the hiring and submission and checks the client may
// review it: the caller must be the client, the hiring in a delivery phase,
// and the submission the latest one for its obligation. Which statuses are
// reviewable is the caller's decision: approve also accepts pending_payment,
// revision requests only delivered.
func (s *DeliveryService) loadForReview(ctx context.Context, clientID, hiringID, submissionID string) (*domain.Hiring, *domain.DeliverySubmission, error) {
	h, err := s.Hirings.load(ctx, hiringID, clientID)
	if err != nil {
		return nil, nil, err
	}
	if h.ClientID != clientID {
		return nil, nil, ErrForbidden
	}
	if !deliveryActive(h.StatusCode()) {
		return nil, nil, invalidTransition(h.StatusCode(), "review_delivery")
	}
	sub, err := repo.GetSubmission(ctx, s.DB, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrSubmissionNotFound
		}
		return nil, nil, err
	}
	if sub.HiringID != h.ID {
		return nil, nil, ErrSubmissionNotFound
	}
	subs, err := repo.ListSubmissions(ctx, s.DB, h.ID)
	if err != nil {
		return nil, nil, err
	}
	if latest := lifecycle.LatestSubmission(subs, sub.DeliverableID); latest == nil || latest.ID != sub.ID {
		return nil, nil, ErrDeliveryConflict
	}
	return h, sub, nil
}

// reprojectHiring re-derives the aggregate hiring status from the current
// delivery state inside the caller's transaction and applies it through the
// status guard. A concurrently moved hiring makes the guard miss, which is
// fine: the winner already projected over fresher state.
func reprojectHiring(ctx context.Context, tx *gorm.DB, h *domain.Hiring) error {
	deliverables, err := repo.ListDeliverables(ctx, tx, h.ID)
	if err != nil {
		return err
	}
	subs, err := repo.ListSubmissions(ctx, tx, h.ID)
	if err != nil {
		return err
	}
	next := lifecycle.ProjectStatus(lifecycle.Snapshot{
		Hiring:       h,
		Deliverables: deliverables,
		Submissions:  subs,
	})
	from := h.StatusCode()
	if next == from {
		return nil
	}
	// Keep the approved baseline until real delivery activity happens.
	if next == domain.StatusInProgress && from == domain.StatusApproved && len(subs) == 0 {
		return nil
	}
	err = repo.UpdateHiringStatusGuarded(ctx, tx, h.ID, from, next, nil)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	return err
}

// submissionsOf filters the submission list down to one deliverable.
func submissionsOf(subs []domain.DeliverySubmission, deliverableID *string) []domain.DeliverySubmission {
	var out []domain.DeliverySubmission
	for _, sub := range subs {
		if sub.DeliverableID != nil && deliverableID != nil && *sub.DeliverableID == *deliverableID {
			out = append(out, sub)
		}
	}
	return out
}
