// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the payment ledger: an append-mostly
// record of payment attempts per hiring/deliverable.
//
// The "one approved attempt per economic obligation" invariant is enforced
// by the reconciliation engine via UpdatePaymentGuarded's pending-status
// check, not by a database constraint, because multiple pending attempts
// legitimately coexist during retries.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-hiring-backend/internal/domain"
)

// CreatePayment appends a new attempt to the ledger in the pending status.
func CreatePayment(ctx context.Context, db *gorm.DB, p *domain.Payment) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = domain.PaymentStatusPending
	}
	p.CreatedAt = time.Now().UTC()
	return db.WithContext(ctx).Omit("Hiring").Create(p).Error
}

// GetPayment fetches a ledger row by internal id. Returns ErrNotFound when
// missing.
func GetPayment(ctx context.Context, db *gorm.DB, id string) (*domain.Payment, error) {
	var p domain.Payment
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// FindPaymentByExternalID fetches the ledger row already tied to the given
// gateway payment id. Returns ErrNotFound when no row carries it.
func FindPaymentByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*domain.Payment, error) {
	var p domain.Payment
	err := db.WithContext(ctx).
		Where("external_payment_id = ?", externalID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListRecentPending returns the n most recent pending attempts, newest
// first. Input to the reconciliation engine's fallback matcher.
func ListRecentPending(ctx context.Context, db *gorm.DB, n int) ([]domain.Payment, error) {
	var out []domain.Payment
	err := db.WithContext(ctx).
		Where("status = ?", domain.PaymentStatusPending).
		Order("created_at desc, id desc").
		Limit(n).
		Find(&out).Error
	return out, err
}

// HasApprovedPayment reports whether the hiring already has an approved
// attempt of the given payment type.
func HasApprovedPayment(ctx context.Context, db *gorm.DB, hiringID, paymentType string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("hiring_id = ? AND payment_type = ? AND status = ?",
			hiringID, paymentType, domain.PaymentStatusApproved).
		Count(&count).Error
	return count > 0, err
}

// UpdatePayment applies unguarded column updates (gateway snapshot refreshes
// for still-pending notifications).
func UpdatePayment(ctx context.Context, db *gorm.DB, id string, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePaymentGuarded finalizes an attempt only while it is still pending.
// The status precondition lives in the UPDATE's WHERE clause; a duplicate or
// stale notification that lost the race gets ErrNotFound and the engine
// treats it as an idempotent no-op. This is the single mechanism that keeps
// at most one approved attempt per obligation.
func UpdatePaymentGuarded(ctx context.Context, db *gorm.DB, id string, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("id = ? AND status = ?", id, domain.PaymentStatusPending).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
