// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// DeliverySubmission model and its attachments.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-hiring-backend/internal/domain"
)

// CreateSubmission inserts a submission together with its attachments.
// Attachment positions follow the slice order.
func CreateSubmission(ctx context.Context, db *gorm.DB, sub *domain.DeliverySubmission) error {
	now := time.Now().UTC()
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.Status == "" {
		sub.Status = domain.SubmissionStatusDelivered
	}
	sub.CreatedAt = now
	for i := range sub.Attachments {
		if sub.Attachments[i].ID == "" {
			sub.Attachments[i].ID = uuid.NewString()
		}
		sub.Attachments[i].SubmissionID = sub.ID
		sub.Attachments[i].Position = i
		sub.Attachments[i].CreatedAt = now
	}
	return db.WithContext(ctx).Omit("Hiring").Create(sub).Error
}

// ListSubmissions returns every submission of a hiring (all deliverables,
// all revision rounds) with attachments preloaded, oldest first.
func ListSubmissions(ctx context.Context, db *gorm.DB, hiringID string) ([]domain.DeliverySubmission, error) {
	var out []domain.DeliverySubmission
	err := db.WithContext(ctx).
		Preload("Attachments", func(tx *gorm.DB) *gorm.DB { return tx.Order("position asc") }).
		Where("hiring_id = ?", hiringID).
		Order("created_at asc, id asc").
		Find(&out).Error
	return out, err
}

// GetSubmission fetches a submission by id with attachments preloaded.
// Returns ErrNotFound when missing.
func GetSubmission(ctx context.Context, db *gorm.DB, id string) (*domain.DeliverySubmission, error) {
	var s domain.DeliverySubmission
	err := db.WithContext(ctx).
		Preload("Attachments", func(tx *gorm.DB) *gorm.DB { return tx.Order("position asc") }).
		Where("id = ?", id).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateSubmissionGuarded applies column updates to a submission only when
// its current status is `from`; zero rows affected yields ErrNotFound. The
// guard mirrors UpdateHiringStatusGuarded: a webhook and a client action
// racing on the same submission cannot both win.
func UpdateSubmissionGuarded(ctx context.Context, db *gorm.DB, id, from string, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.DeliverySubmission{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
