// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver), schema migrations, and the status registry seed.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-hiring-backend/internal/domain"
)

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// Trace queries through the global tracer provider. Metrics stay with
	// the Prometheus middleware.
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

// AutoMigrate creates or updates the schema for all domain models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.HiringStatus{},
		&domain.Hiring{},
		&domain.Deliverable{},
		&domain.DeliverySubmission{},
		&domain.Attachment{},
		&domain.Payment{},
		&domain.Idempotency{},
	)
}

// SeedStatuses upserts the full status registry into the hiring_statuses
// lookup table and verifies it afterwards. A registry that cannot be made
// complete is a schema-level invariant violation and must abort startup.
func SeedStatuses(db *gorm.DB) error {
	catalog := domain.AllStatuses()
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"code"}),
	}).Create(&catalog).Error; err != nil {
		return fmt.Errorf("seed status registry: %w", err)
	}

	var count int64
	if err := db.Model(&domain.HiringStatus{}).Count(&count).Error; err != nil {
		return fmt.Errorf("verify status registry: %w", err)
	}
	if int(count) < len(catalog) {
		return fmt.Errorf("status registry incomplete: %d of %d rows present", count, len(catalog))
	}
	return nil
}
