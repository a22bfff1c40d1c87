// Package services – ReconcileService
//
// This file implements the payment reconciliation engine: the consumer of
// asynchronous gateway notifications. Notifications are at-least-once,
// unordered, and carry only an opaque payment id, so the engine re-fetches
// the authoritative payment object, resolves it to a ledger row in three
// stages, and applies the outcome behind status guards so replays and races
// collapse into no-ops.
//
// Every notification is acknowledged to the gateway; an unprocessable one is
// logged and counted, never failed back, because the gateway's redelivery
// would only replay the same outcome.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
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

// Reconciliation outcomes recorded per processed notification.
const (
	OutcomeApplied     = "applied"
	OutcomeDuplicate   = "duplicate"
	OutcomeStale       = "stale"
	OutcomePhantom     = "phantom"
	OutcomeUnmatched   = "unmatched"
	OutcomeNonFinal    = "non_final"
	OutcomeGatewayFail = "gateway_failure"
)

var reconcileOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "hiring",
	Subsystem: "reconcile",
	Name:      "notifications_total",
	Help:      "Payment notifications processed, by outcome.",
}, []string{"outcome"})

// ReconcileService consumes payment webhook notifications and settles the
// ledger, the submissions, and the hiring status they affect.
type ReconcileService struct {
	DB       *gorm.DB
	Gateway  gateway.PaymentGateway
	Notifier gateway.Notifier
	Log      zerolog.Logger

	// FetchRetries bounds re-fetch attempts for a payment the gateway's read
	// path does not know yet.
	FetchRetries int
	// BackoffBase scales the linear backoff between fetch attempts.
	BackoffBase time.Duration
	// RecentPendingLimit bounds the fallback matcher's candidate window.
	RecentPendingLimit int
	// AmountEpsilon is the tolerance of the fallback amount match.
	AmountEpsilon decimal.Decimal
	// DepositPercent mirrors the hiring service's split for reporting only.
	DepositPercent decimal.Decimal
}

// NewReconcileService constructs the engine with the conventional retry
// budget: three fetches backed off at 2s, 4s, 6s, a ten-row fallback window,
// and a one-cent amount tolerance.
func NewReconcileService(db *gorm.DB, gw gateway.PaymentGateway, n gateway.Notifier, log zerolog.Logger) *ReconcileService {
	return &ReconcileService{
		DB:                 db,
		Gateway:            gw,
		Notifier:           n,
		Log:                log,
		FetchRetries:       3,
		BackoffBase:        2 * time.Second,
		RecentPendingLimit: 10,
		AmountEpsilon:      decimal.New(1, -2),
		DepositPercent:     decimal.NewFromInt(25),
	}
}

// ProcessNotification handles one gateway notification for an opaque
// external payment id. It never returns an error for business-level dead
// ends (phantom, duplicate, unmatched): those are terminal outcomes the
// caller acknowledges. Only infrastructure failures propagate.
func (s *ReconcileService) ProcessNotification(ctx context.Context, externalID string) error {
	tr := otel.Tracer("services/ReconcileService")
	ctx, span := tr.Start(ctx, "ProcessNotification",
		trace.WithAttributes(attribute.String("payment.external_id", externalID)))
	defer span.End()

	log := s.Log.With().Str("external_payment_id", externalID).Logger()

	gp, err := s.fetchWithRetry(ctx, externalID)
	if err != nil {
		if errors.Is(err, gateway.ErrPaymentNotFound) {
			log.Warn().Msg("payment unknown to gateway after retries, dropping notification")
			reconcileOutcomes.WithLabelValues(OutcomePhantom).Inc()
			return nil
		}
		reconcileOutcomes.WithLabelValues(OutcomeGatewayFail).Inc()
		return err
	}

	p, matchedByAmount, err := s.resolve(ctx, gp)
	if err != nil {
		return err
	}
	if p == nil {
		log.Warn().
			Str("gateway_status", gp.Status).
			Str("external_reference", gp.ExternalReference).
			Msg("notification matched no ledger row")
		reconcileOutcomes.WithLabelValues(OutcomeUnmatched).Inc()
		return nil
	}
	if p.Status != domain.PaymentStatusPending {
		log.Info().Str("payment_id", p.ID).Msg("ledger row already settled, replay ignored")
		reconcileOutcomes.WithLabelValues(OutcomeDuplicate).Inc()
		return nil
	}
	if !matchedByAmount {
		log.Warn().
			Str("payment_id", p.ID).
			Str("amount", gp.TransactionAmount.String()).
			Msg("fallback match without amount confirmation, attribution may be wrong")
	}

	switch gp.Status {
	case gateway.GatewayStatusApproved:
		return s.applyApproved(ctx, log, p, gp)
	case gateway.GatewayStatusRejected:
		return s.applyRejected(ctx, log, p, gp)
	default:
		// pending / in_process: refresh the snapshot and wait for the final
		// notification.
		if err := repo.UpdatePayment(ctx, s.DB, p.ID, map[string]any{
			"external_payment_id":   gp.ID,
			"external_raw_response": string(gp.Raw),
		}); err != nil && !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		reconcileOutcomes.WithLabelValues(OutcomeNonFinal).Inc()
		return nil
	}
}

// fetchWithRetry fetches the payment from the gateway, retrying the phantom
// window with linear backoff (base, 2*base, 3*base). Context cancellation
// aborts the wait.
func (s *ReconcileService) fetchWithRetry(ctx context.Context, externalID string) (*gateway.GatewayPayment, error) {
	retries := s.FetchRetries
	if retries < 1 {
		retries = 1
	}
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		gp, err := s.Gateway.GetPayment(ctx, externalID)
		if err == nil {
			return gp, nil
		}
		lastErr = err
		if !errors.Is(err, gateway.ErrPaymentNotFound) || attempt == retries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.BackoffBase * time.Duration(attempt)):
		}
	}
	return nil, lastErr
}

// resolve maps the gateway payment to a ledger row via the three-stage
// resolver: exact external id, external reference, recent-pending fallback.
// The second return value is false when the fallback matched without amount
// confirmation.
func (s *ReconcileService) resolve(ctx context.Context, gp *gateway.GatewayPayment) (*domain.Payment, bool, error) {
	p, err := repo.FindPaymentByExternalID(ctx, s.DB, gp.ID)
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	if _, paymentID, ok := lifecycle.ParseExternalReference(gp.ExternalReference); ok {
		p, err := repo.GetPayment(ctx, s.DB, paymentID)
		if err == nil {
			return p, true, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, err
		}
	}

	pending, err := repo.ListRecentPending(ctx, s.DB, s.RecentPendingLimit)
	if err != nil {
		return nil, false, err
	}
	match, amountOK := lifecycle.MatchRecentPending(pending, gp.TransactionAmount, s.AmountEpsilon)
	if match == nil {
		return nil, false, nil
	}
	return match, amountOK, nil
}

// applyApproved settles an approved charge: the ledger row is finalized
// behind the pending guard and the obligation it collects is advanced.
func (s *ReconcileService) applyApproved(ctx context.Context, log zerolog.Logger, p *domain.Payment, gp *gateway.GatewayPayment) error {
	now := time.Now().UTC()
	var completed *domain.Hiring

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := repo.UpdatePaymentGuarded(ctx, tx, p.ID, map[string]any{
			"status":                domain.PaymentStatusApproved,
			"external_payment_id":   gp.ID,
			"external_raw_response": string(gp.Raw),
			"payment_method":        gp.PaymentMethod,
			"processed_at":          now,
		})
		if errors.Is(err, repo.ErrNotFound) {
			log.Info().Str("payment_id", p.ID).Msg("lost settle race, replay ignored")
			reconcileOutcomes.WithLabelValues(OutcomeStale).Inc()
			return nil
		}
		if err != nil {
			return err
		}

		stamp := map[string]any{
			"payment_id":     gp.ID,
			"payment_status": gp.Status,
			"paid_at":        now,
		}
		if gp.StatusDetail != "" {
			stamp["payment_status_detail"] = gp.StatusDetail
		}
		if err := repo.UpdateHiringColumns(ctx, tx, p.HiringID, stamp); err != nil {
			return err
		}

		switch p.PaymentType {
		case domain.PaymentTypeInitial:
			// Deposit cleared: work may start.
			err := repo.UpdateHiringStatusGuarded(ctx, tx, p.HiringID,
				domain.StatusPaymentPending, domain.StatusInProgress, nil)
			if err != nil && !errors.Is(err, repo.ErrNotFound) {
				return err
			}
			reconcileOutcomes.WithLabelValues(OutcomeApplied).Inc()
			return nil
		default:
			h, err := s.settleObligation(ctx, tx, p, now)
			if err != nil {
				return err
			}
			completed = h
			reconcileOutcomes.WithLabelValues(OutcomeApplied).Inc()
			return nil
		}
	})
	if err != nil {
		return err
	}
	if completed != nil {
		s.Notifier.HiringCompleted(ctx, completed.ClientID, completed.ID)
		s.Notifier.HiringCompleted(ctx, completed.ProviderID, completed.ID)
	}
	return nil
}

// settleObligation finalizes the submission (and deliverable) a non-deposit
// charge collects, then re-derives the hiring status. Returns the hiring
// when the projection reached completed.
func (s *ReconcileService) settleObligation(ctx context.Context, tx *gorm.DB, p *domain.Payment, now time.Time) (*domain.Hiring, error) {
	if p.SubmissionID != nil {
		err := repo.UpdateSubmissionGuarded(ctx, tx, *p.SubmissionID,
			domain.SubmissionStatusPendingPayment, map[string]any{
				"status":      domain.SubmissionStatusApproved,
				"approved_at": now,
			})
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
	}
	if p.DeliverableID != nil {
		if err := repo.UpdateDeliverable(ctx, tx, *p.DeliverableID, map[string]any{
			"status":      domain.DeliverableStatusApproved,
			"approved_at": now,
		}); err != nil && !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
	}

	h, err := repo.GetHiring(ctx, tx, p.HiringID)
	if err != nil {
		return nil, err
	}
	if err := reprojectHiring(ctx, tx, h); err != nil {
		return nil, err
	}
	h, err = repo.GetHiring(ctx, tx, p.HiringID)
	if err != nil {
		return nil, err
	}
	if h.StatusCode() == domain.StatusCompleted {
		return h, nil
	}
	return nil, nil
}

// applyRejected settles a rejected charge. Deposit rejections park the hiring
// in payment_rejected for an explicit client retry; delivery charges drop the
// submission back to delivered so the client can approve again.
func (s *ReconcileService) applyRejected(ctx context.Context, log zerolog.Logger, p *domain.Payment, gp *gateway.GatewayPayment) error {
	now := time.Now().UTC()
	var notifyClient string

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := repo.UpdatePaymentGuarded(ctx, tx, p.ID, map[string]any{
			"status":                domain.PaymentStatusRejected,
			"external_payment_id":   gp.ID,
			"external_raw_response": string(gp.Raw),
			"failure_reason":        gp.StatusDetail,
			"processed_at":          now,
		})
		if errors.Is(err, repo.ErrNotFound) {
			log.Info().Str("payment_id", p.ID).Msg("lost settle race, replay ignored")
			reconcileOutcomes.WithLabelValues(OutcomeStale).Inc()
			return nil
		}
		if err != nil {
			return err
		}

		stamp := map[string]any{
			"payment_id":            gp.ID,
			"payment_status":        gp.Status,
			"payment_status_detail": gp.StatusDetail,
		}
		if err := repo.UpdateHiringColumns(ctx, tx, p.HiringID, stamp); err != nil {
			return err
		}

		if p.PaymentType == domain.PaymentTypeInitial {
			err := repo.UpdateHiringStatusGuarded(ctx, tx, p.HiringID,
				domain.StatusPaymentPending, domain.StatusPaymentRejected, nil)
			if err != nil && !errors.Is(err, repo.ErrNotFound) {
				return err
			}
		} else if p.SubmissionID != nil {
			err := repo.UpdateSubmissionGuarded(ctx, tx, *p.SubmissionID,
				domain.SubmissionStatusPendingPayment, map[string]any{
					"status": domain.SubmissionStatusDelivered,
				})
			if err != nil && !errors.Is(err, repo.ErrNotFound) {
				return err
			}
		}

		h, err := repo.GetHiring(ctx, tx, p.HiringID)
		if err != nil {
			return err
		}
		notifyClient = h.ClientID
		reconcileOutcomes.WithLabelValues(OutcomeApplied).Inc()
		return nil
	})
	if err != nil {
		return err
	}
	if notifyClient != "" {
		s.Notifier.PaymentRejected(ctx, notifyClient, p.HiringID, gp.StatusDetail)
	}
	return nil
}
