// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Deliverable model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-hiring-backend/internal/domain"
)

// CreateDeliverables inserts the deliverable set of a by_deliverables
// quotation in bulk. Ids and timestamps are assigned here; OrderIndex is
// taken as given (the service validates contiguity and the price sum).
func CreateDeliverables(ctx context.Context, db *gorm.DB, items []domain.Deliverable) error {
	if len(items) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		if items[i].Status == "" {
			items[i].Status = domain.DeliverableStatusPending
		}
		items[i].CreatedAt = now
	}
	return db.WithContext(ctx).Omit("Hiring").Create(&items).Error
}

// ReplaceDeliverables deletes the existing deliverable set of a hiring and
// creates the new one. Quotation edits replace the set wholesale, so the old
// rows (and their submissions, by cascade) go away together.
func ReplaceDeliverables(ctx context.Context, db *gorm.DB, hiringID string, items []domain.Deliverable) error {
	if err := db.WithContext(ctx).
		Unscoped().
		Where("hiring_id = ?", hiringID).
		Delete(&domain.Deliverable{}).Error; err != nil {
		return err
	}
	return CreateDeliverables(ctx, db, items)
}

// ListDeliverables returns all deliverables of a hiring ordered by
// OrderIndex ascending.
func ListDeliverables(ctx context.Context, db *gorm.DB, hiringID string) ([]domain.Deliverable, error) {
	var out []domain.Deliverable
	err := db.WithContext(ctx).
		Where("hiring_id = ?", hiringID).
		Order("order_index asc").
		Find(&out).Error
	return out, err
}

// GetDeliverable fetches a deliverable by id, scoped to its hiring. Returns
// ErrNotFound when missing.
func GetDeliverable(ctx context.Context, db *gorm.DB, id, hiringID string) (*domain.Deliverable, error) {
	var d domain.Deliverable
	err := db.WithContext(ctx).
		Where("id = ? AND hiring_id = ?", id, hiringID).
		First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// UpdateDeliverable applies the given column updates to a deliverable.
// Returns ErrNotFound when the row does not exist.
func UpdateDeliverable(ctx context.Context, db *gorm.DB, id string, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Deliverable{}).
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
