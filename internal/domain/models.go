// Package domain defines the persistence models for hirings, deliverables,
// delivery submissions, and payment attempts. These types are mapped with
// GORM and form the core data layer of the hiring marketplace backend.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Payment modalities for a hiring.
const (
	ModalityFullPayment    = "full_payment"
	ModalityByDeliverables = "by_deliverables"
)

// Deliverable status values.
const (
	DeliverableStatusPending           = "pending"
	DeliverableStatusInProgress        = "in_progress"
	DeliverableStatusDelivered         = "delivered"
	DeliverableStatusApproved          = "approved"
	DeliverableStatusRevisionRequested = "revision_requested"
	DeliverableStatusRejected          = "rejected"
)

// DeliverySubmission status values. A submission moves pending → delivered →
// pending_payment → approved, or back to revision_requested from delivered.
const (
	SubmissionStatusPending           = "pending"
	SubmissionStatusDelivered         = "delivered"
	SubmissionStatusPendingPayment    = "pending_payment"
	SubmissionStatusApproved          = "approved"
	SubmissionStatusRevisionRequested = "revision_requested"
)

// Delivery types.
const (
	DeliveryTypeFull        = "full"
	DeliveryTypeDeliverable = "deliverable"
)

// Payment attempt status values.
const (
	PaymentStatusPending  = "pending"
	PaymentStatusApproved = "approved"
	PaymentStatusRejected = "rejected"
)

// Payment types describing which economic obligation an attempt collects.
const (
	PaymentTypeInitial     = "initial"
	PaymentTypeFinal       = "final"
	PaymentTypeFull        = "full"
	PaymentTypeDeliverable = "deliverable"
)

// HiringStatus is a row of the hiring_statuses lookup table. The table is a
// closed catalog seeded from the registry in status.go; hirings reference it
// by foreign key. A missing row at startup is fatal.
type HiringStatus struct {
	ID   uint   `json:"id"   gorm:"primaryKey;autoIncrement:false"`
	Code string `json:"code" gorm:"type:varchar(40);not null;uniqueIndex"`
}

// TableName returns the database table name for HiringStatus.
func (HiringStatus) TableName() string { return "hiring_statuses" }

// Hiring is one client–provider service engagement: a single negotiation
// instance from quotation to terminal state. Hirings are never physically
// deleted; terminal transitions and moderation overrides only mutate status.
//
// Invariants:
//   - StatusID always references a registry row.
//   - QuotedPrice is set exactly when the hiring has passed through "quoted".
//   - RequoteCount never exceeds the configured ceiling (3).
type Hiring struct {
	ID         string `json:"id"          gorm:"type:char(36);primaryKey"`
	ClientID   string `json:"client_id"   gorm:"type:varchar(64);not null;index:idx_client_hirings"`
	ProviderID string `json:"provider_id" gorm:"type:varchar(64);not null;index:idx_provider_hirings"`
	ServiceID  string `json:"service_id"  gorm:"type:varchar(64);not null;index"`

	StatusID uint         `json:"-"      gorm:"not null;index"`
	Status   HiringStatus `json:"status" gorm:"foreignKey:StatusID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`

	Description     string `json:"description"      gorm:"type:text;not null"`
	PaymentModality string `json:"payment_modality" gorm:"type:varchar(20);not null;default:'full_payment';check:payment_modality IN ('full_payment','by_deliverables')"`

	// Quotation fields, populated by the provider.
	QuotedPrice           *decimal.Decimal `json:"quoted_price,omitempty" gorm:"type:decimal(12,2)"`
	EstimatedDuration     string           `json:"estimated_duration"     gorm:"type:varchar(64)"`
	QuotationNotes        string           `json:"quotation_notes"        gorm:"type:text"`
	QuotedAt              *time.Time       `json:"quoted_at,omitempty"`
	QuotationValidityDays int              `json:"quotation_validity_days"`
	RespondedAt           *time.Time       `json:"responded_at,omitempty"`

	// Requote bookkeeping: the previous quotation is snapshotted before the
	// provider is asked to quote again.
	RequoteCount         int              `json:"requote_count"`
	PreviousPrice        *decimal.Decimal `json:"previous_price,omitempty" gorm:"type:decimal(12,2)"`
	PreviousValidityDays *int             `json:"previous_validity_days,omitempty"`
	PreviousQuotedAt     *time.Time       `json:"previous_quoted_at,omitempty"`

	// External payment reference, stamped when a checkout completes.
	RetryCount          int        `json:"retry_count"`
	PaymentID           *string    `json:"payment_id,omitempty"            gorm:"type:varchar(64)"`
	PaymentStatus       *string    `json:"payment_status,omitempty"        gorm:"type:varchar(32)"`
	PaymentStatusDetail *string    `json:"payment_status_detail,omitempty" gorm:"type:varchar(128)"`
	PaidAt              *time.Time `json:"paid_at,omitempty"`

	// Moderation override trail.
	TerminatedByModeration bool       `json:"terminated_by_moderation"    gorm:"not null;default:false"`
	ModerationReason       string     `json:"moderation_reason,omitempty" gorm:"type:text"`
	ModeratedAt            *time.Time `json:"moderated_at,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for Hiring.
func (Hiring) TableName() string { return "hirings" }

// StatusCode resolves the hiring's status row id to its registry code.
func (h *Hiring) StatusCode() Status {
	s, _ := StatusByID(h.StatusID)
	return s
}

// SetStatus points the hiring at the registry row for code.
func (h *Hiring) SetStatus(code Status) {
	h.StatusID = code.ID()
	h.Status = HiringStatus{ID: code.ID(), Code: string(code)}
}

// Deliverable is a priced unit of work within a by_deliverables hiring.
// OrderIndex is 1-based and contiguous per hiring; it defines the required
// delivery sequence. The set is created in bulk with the quotation and
// replaced wholesale when the quotation is edited.
type Deliverable struct {
	ID       string `json:"id"        gorm:"type:char(36);primaryKey"`
	HiringID string `json:"hiring_id" gorm:"type:char(36);not null;index:idx_hiring_deliverables,priority:1"`

	Title                 string          `json:"title"       gorm:"type:varchar(255);not null"`
	Description           string          `json:"description" gorm:"type:text"`
	EstimatedDeliveryDate *time.Time      `json:"estimated_delivery_date,omitempty"`
	Price                 decimal.Decimal `json:"price"       gorm:"type:decimal(12,2);not null"`
	OrderIndex            int             `json:"order_index" gorm:"not null;index:idx_hiring_deliverables,priority:2"`

	Status      string     `json:"status" gorm:"type:varchar(20);not null;default:'pending';check:status IN ('pending','in_progress','delivered','approved','revision_requested','rejected')"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Hiring is the parent engagement. Deliverables are cascade-deleted when
	// the quotation is replaced wholesale.
	Hiring Hiring `json:"-" gorm:"foreignKey:HiringID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Deliverable.
func (Deliverable) TableName() string { return "deliverables" }

// DeliverySubmission is one concrete act of submitting work against a hiring
// (full delivery) or one of its deliverables (partial delivery). Multiple
// rows may exist per obligation across revision rounds; at most one may be in
// delivered/pending_payment at a time, and the full history is preserved.
type DeliverySubmission struct {
	ID            string  `json:"id"                       gorm:"type:char(36);primaryKey"`
	HiringID      string  `json:"hiring_id"                gorm:"type:char(36);not null;index"`
	DeliverableID *string `json:"deliverable_id,omitempty" gorm:"type:char(36);index"`

	DeliveryType string          `json:"delivery_type" gorm:"type:varchar(16);not null;check:delivery_type IN ('full','deliverable')"`
	Content      string          `json:"content"       gorm:"type:text;not null"`
	Price        decimal.Decimal `json:"price"         gorm:"type:decimal(12,2);not null"`

	Status        string     `json:"status" gorm:"type:varchar(20);not null;default:'pending';check:status IN ('pending','delivered','pending_payment','approved','revision_requested')"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	RevisionNotes string     `json:"revision_notes,omitempty" gorm:"type:text"`

	// PaymentID links the submission to the ledger attempt created when the
	// client approved it. Set once, when the charge is created.
	PaymentID *string `json:"payment_id,omitempty" gorm:"type:char(36)"`

	Attachments []Attachment `json:"attachments" gorm:"foreignKey:SubmissionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Hiring Hiring `json:"-" gorm:"foreignKey:HiringID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for DeliverySubmission.
func (DeliverySubmission) TableName() string { return "delivery_submissions" }

// Attachment is one file attached to a delivery submission. Position keeps
// the client-visible ordering stable.
type Attachment struct {
	ID           string `json:"id"            gorm:"type:char(36);primaryKey"`
	SubmissionID string `json:"submission_id" gorm:"type:char(36);not null;index"`
	Path         string `json:"path"          gorm:"type:varchar(512);not null"`
	URL          string `json:"url"           gorm:"type:varchar(512)"`
	Name         string `json:"name"          gorm:"type:varchar(255);not null"`
	Size         int64  `json:"size"`
	Mime         string `json:"mime"          gorm:"type:varchar(128)"`
	Position     int    `json:"position"      gorm:"not null;default:0"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Attachment.
func (Attachment) TableName() string { return "attachments" }

// Payment is one attempt to collect money for an obligation, not one
// successful charge. A hiring or deliverable may accumulate many pending
// attempts across retries; at most one ever reaches approved, and
// ExternalPaymentID is unique across reconciled rows once set.
type Payment struct {
	ID            string  `json:"id"                       gorm:"type:char(36);primaryKey"`
	HiringID      string  `json:"hiring_id"                gorm:"type:char(36);not null;index"`
	DeliverableID *string `json:"deliverable_id,omitempty" gorm:"type:char(36);index"`
	SubmissionID  *string `json:"submission_id,omitempty"  gorm:"type:char(36);index"`

	Amount        decimal.Decimal `json:"amount"         gorm:"type:decimal(12,2);not null"`
	TotalAmount   decimal.Decimal `json:"total_amount"   gorm:"type:decimal(12,2);not null"`
	PaymentMethod string          `json:"payment_method" gorm:"type:varchar(64)"`
	PaymentType   string          `json:"payment_type"   gorm:"type:varchar(16);not null;check:payment_type IN ('initial','final','full','deliverable')"`

	Status string `json:"status" gorm:"type:varchar(16);not null;default:'pending';check:status IN ('pending','approved','rejected')"`

	ExternalPreferenceID string  `json:"external_preference_id,omitempty" gorm:"type:varchar(128)"`
	ExternalPaymentID    *string `json:"external_payment_id,omitempty"    gorm:"type:varchar(128);uniqueIndex"`
	ExternalRawResponse  string  `json:"-"                                gorm:"type:text"`

	FailureReason string     `json:"failure_reason,omitempty" gorm:"type:varchar(255)"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Hiring Hiring `json:"-" gorm:"foreignKey:HiringID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Payment.
func (Payment) TableName() string { return "payments" }
