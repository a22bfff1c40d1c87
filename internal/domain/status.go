// Package domain defines the persistence models for hirings, deliverables,
// delivery submissions, and payment attempts. This file holds the closed
// status catalog: every hiring status is persisted as a foreign key into the
// hiring_statuses lookup table, never as a raw string, so the transition
// tables stay referentially valid.
package domain

// Status is a hiring status code. The set of codes is closed; persisting a
// code outside the registry is a programming error.
type Status string

// Hiring status codes.
const (
	StatusPending           Status = "pending"
	StatusQuoted            Status = "quoted"
	StatusNegotiating       Status = "negotiating"
	StatusRequoting         Status = "requoting"
	StatusPaymentPending    Status = "payment_pending"
	StatusPaymentRejected   Status = "payment_rejected"
	StatusApproved          Status = "approved"
	StatusInProgress        Status = "in_progress"
	StatusDelivered         Status = "delivered"
	StatusRevisionRequested Status = "revision_requested"

	// Terminal codes. Once reached, no user action besides viewing is legal.
	StatusCompleted              Status = "completed"
	StatusRejected               Status = "rejected"
	StatusCancelled              Status = "cancelled"
	StatusExpired                Status = "expired"
	StatusTerminatedByModeration Status = "terminated_by_moderation"
	StatusCancelledByClaim       Status = "cancelled_by_claim"
	StatusCompletedByClaim       Status = "completed_by_claim"
	StatusCompletedWithAgreement Status = "completed_with_agreement"
)

// statusIDs assigns a stable row id to each status code. The ids double as
// primary keys of the hiring_statuses lookup table; they are fixed at compile
// time so foreign keys stay stable across deployments.
var statusIDs = map[Status]uint{
	StatusPending:                1,
	StatusQuoted:                 2,
	StatusNegotiating:            3,
	StatusRequoting:              4,
	StatusPaymentPending:         5,
	StatusPaymentRejected:        6,
	StatusApproved:               7,
	StatusInProgress:             8,
	StatusDelivered:              9,
	StatusRevisionRequested:      10,
	StatusCompleted:              11,
	StatusRejected:               12,
	StatusCancelled:              13,
	StatusExpired:                14,
	StatusTerminatedByModeration: 15,
	StatusCancelledByClaim:       16,
	StatusCompletedByClaim:       17,
	StatusCompletedWithAgreement: 18,
}

// statusByID is the inverse of statusIDs, built once at init.
var statusByID = func() map[uint]Status {
	m := make(map[uint]Status, len(statusIDs))
	for code, id := range statusIDs {
		m[id] = code
	}
	return m
}()

// terminalStatuses marks the codes from which no user action may move a
// hiring (moderation overrides excepted).
var terminalStatuses = map[Status]struct{}{
	StatusCompleted:              {},
	StatusRejected:               {},
	StatusCancelled:              {},
	StatusExpired:                {},
	StatusTerminatedByModeration: {},
	StatusCancelledByClaim:       {},
	StatusCompletedByClaim:       {},
	StatusCompletedWithAgreement: {},
}

// ID returns the registry row id for the status code, or 0 when the code is
// not part of the registry.
func (s Status) ID() uint { return statusIDs[s] }

// Valid reports whether the code belongs to the registry.
func (s Status) Valid() bool { _, ok := statusIDs[s]; return ok }

// Terminal reports whether the code is terminal.
func (s Status) Terminal() bool { _, ok := terminalStatuses[s]; return ok }

// StatusByID resolves a lookup-table row id back to its status code.
func StatusByID(id uint) (Status, bool) {
	s, ok := statusByID[id]
	return s, ok
}

// AllStatuses returns the full registry catalog ordered by row id. Used to
// seed (and verify) the hiring_statuses lookup table at startup.
func AllStatuses() []HiringStatus {
	out := make([]HiringStatus, 0, len(statusIDs))
	for id := uint(1); id <= uint(len(statusIDs)); id++ {
		out = append(out, HiringStatus{ID: id, Code: string(statusByID[id])})
	}
	return out
}
