// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Hiring
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a hiring is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Status transitions go through UpdateHiringStatusGuarded so two racing
// units of work can never both observe the same precondition and both win:
// the guard re-checks the current status inside the UPDATE itself and
// reports zero rows affected on a stale read.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-hiring-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for consistency across the service
// layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateHiring inserts a new Hiring row in the pending status. The id is a
// randomly generated UUID and CreatedAt is set to UTC.
func CreateHiring(ctx context.Context, db *gorm.DB, clientID, providerID, serviceID, description, modality string) (*domain.Hiring, error) {
	h := &domain.Hiring{
		ID:              uuid.NewString(),
		ClientID:        clientID,
		ProviderID:      providerID,
		ServiceID:       serviceID,
		Description:     description,
		PaymentModality: modality,
		StatusID:        domain.StatusPending.ID(),
		CreatedAt:       time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Omit("Status").Create(h).Error; err != nil {
		return nil, err
	}
	return h, nil
}

// GetHiring fetches a hiring by id regardless of the caller. Returns
// ErrNotFound when missing.
func GetHiring(ctx context.Context, db *gorm.DB, id string) (*domain.Hiring, error) {
	var h domain.Hiring
	err := db.WithContext(ctx).Where("id = ?", id).First(&h).Error
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// GetHiringForUser fetches a hiring by id, ensuring userID participates in it
// as either client or provider. Returns ErrNotFound otherwise.
func GetHiringForUser(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Hiring, error) {
	var h domain.Hiring
	err := db.WithContext(ctx).
		Where("id = ? AND (client_id = ? OR provider_id = ?)", id, userID, userID).
		First(&h).Error
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// CountHirings returns the total number of hirings userID participates in.
func CountHirings(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Hiring{}).
		Where("client_id = ? OR provider_id = ?", userID, userID).
		Count(&total).Error
	return total, err
}

// ListHiringsPage returns a paginated slice of hirings userID participates
// in, ordered by creation time descending. The caller computes offset and
// limit.
func ListHiringsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Hiring, error) {
	var out []domain.Hiring
	err := db.WithContext(ctx).
		Where("client_id = ? OR provider_id = ?", userID, userID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// SaveHiring persists all mutable fields of the hiring. Use only inside a
// transaction that already holds the row via a guarded status update, or for
// fields outside the status machine.
func SaveHiring(ctx context.Context, db *gorm.DB, h *domain.Hiring) error {
	h.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).Omit("Status").Save(h).Error
}

// UpdateHiringColumns applies column updates outside the status machine
// (external payment references, counters). Returns ErrNotFound for a missing
// row.
func UpdateHiringColumns(ctx context.Context, db *gorm.DB, id string, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Hiring{}).
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

// UpdateHiringStatusGuarded transitions the hiring from exactly `from` to
// `to`, together with any extra column updates. The status precondition is
// part of the UPDATE's WHERE clause, so a concurrent writer that got there
// first leaves this call with zero rows affected and ErrNotFound — the
// optimistic-locking backbone of the state machine and the reconciliation
// engine.
func UpdateHiringStatusGuarded(ctx context.Context, db *gorm.DB, id string, from, to domain.Status, extra map[string]any) error {
	updates := map[string]any{
		"status_id":  to.ID(),
		"updated_at": time.Now().UTC(),
	}
	for k, v := range extra {
		updates[k] = v
	}
	res := db.WithContext(ctx).
		Model(&domain.Hiring{}).
		Where("id = ? AND status_id = ?", id, from.ID()).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListQuotedExpiredBefore returns up to limit hirings still stored as quoted
// whose validity window elapsed before the cutoff. SQLite date arithmetic is
// done in SQL to keep the sweep a single round-trip.
func ListQuotedExpiredBefore(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]domain.Hiring, error) {
	var out []domain.Hiring
	err := db.WithContext(ctx).
		Where("status_id = ? AND quoted_at IS NOT NULL AND quotation_validity_days > 0", domain.StatusQuoted.ID()).
		Where("datetime(quoted_at, '+' || quotation_validity_days || ' days') < datetime(?)", cutoff.UTC()).
		Order("quoted_at asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// OverrideStatusForUser bulk-rewrites the status of every non-terminal
// hiring in which userID participates. It bypasses the state machine — this
// is the administrative override used by moderation events — and stamps the
// moderation trail when terminated is true.
func OverrideStatusForUser(ctx context.Context, db *gorm.DB, userID string, to domain.Status, terminated bool, reason string) (int64, error) {
	terminalIDs := make([]uint, 0, 8)
	for _, hs := range domain.AllStatuses() {
		if domain.Status(hs.Code).Terminal() {
			terminalIDs = append(terminalIDs, hs.ID)
		}
	}
	now := time.Now().UTC()
	updates := map[string]any{
		"status_id":  to.ID(),
		"updated_at": now,
	}
	if terminated {
		updates["terminated_by_moderation"] = true
		updates["moderation_reason"] = reason
		updates["moderated_at"] = now
	}
	res := db.WithContext(ctx).
		Model(&domain.Hiring{}).
		Where("(client_id = ? OR provider_id = ?) AND status_id NOT IN ?", userID, userID, terminalIDs).
		Updates(updates)
	return res.RowsAffected, res.Error
}
