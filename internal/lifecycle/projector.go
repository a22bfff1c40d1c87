package lifecycle

import (
	"sort"

	"github.com/tbourn/go-hiring-backend/internal/domain"
)

// Snapshot is an immutable view of a hiring and all of its delivery
// sub-records, taken inside the transaction that mutated one of them. The
// projector derives the aggregate hiring status from it without further
// store round-trips.
type Snapshot struct {
	Hiring       *domain.Hiring
	Deliverables []domain.Deliverable
	Submissions  []domain.DeliverySubmission
}

// ProjectStatus recomputes the aggregate hiring status from the snapshot.
//
// Rules, in priority order:
//   - any deliverable (or full-payment submission) in revision_requested
//     yields revision_requested;
//   - a by_deliverables hiring with every deliverable approved, or a
//     full-payment hiring whose latest submission is approved, is completed;
//   - otherwise delivered when any submission has been delivered, in_progress
//     when none has.
//
// For full-payment hirings the deliverable scan collapses to the single
// hiring-level submission chain.
func ProjectStatus(s Snapshot) domain.Status {
	if s.Hiring.PaymentModality == domain.ModalityByDeliverables {
		return projectByDeliverables(s)
	}
	return projectFullPayment(s)
}

func projectByDeliverables(s Snapshot) domain.Status {
	if len(s.Deliverables) == 0 {
		return domain.StatusInProgress
	}
	allApproved := true
	anyDelivered := false
	for _, d := range s.Deliverables {
		switch d.Status {
		case domain.DeliverableStatusRevisionRequested:
			return domain.StatusRevisionRequested
		case domain.DeliverableStatusApproved:
			anyDelivered = true
		case domain.DeliverableStatusDelivered:
			allApproved = false
			anyDelivered = true
		default:
			allApproved = false
		}
	}
	if allApproved {
		return domain.StatusCompleted
	}
	if anyDelivered {
		return domain.StatusDelivered
	}
	return domain.StatusInProgress
}

func projectFullPayment(s Snapshot) domain.Status {
	latest := LatestSubmission(s.Submissions, nil)
	if latest == nil {
		return domain.StatusInProgress
	}
	switch latest.Status {
	case domain.SubmissionStatusRevisionRequested:
		return domain.StatusRevisionRequested
	case domain.SubmissionStatusApproved:
		return domain.StatusCompleted
	case domain.SubmissionStatusDelivered, domain.SubmissionStatusPendingPayment:
		return domain.StatusDelivered
	default:
		return domain.StatusInProgress
	}
}

// LatestSubmission returns the most recently created submission for the
// given deliverable id (nil selects hiring-level full deliveries), or nil
// when none exists. Ordering falls back to submission id for equal
// timestamps so the result is deterministic.
func LatestSubmission(subs []domain.DeliverySubmission, deliverableID *string) *domain.DeliverySubmission {
	var candidates []domain.DeliverySubmission
	for _, sub := range subs {
		switch {
		case deliverableID == nil && sub.DeliverableID == nil:
			candidates = append(candidates, sub)
		case deliverableID != nil && sub.DeliverableID != nil && *sub.DeliverableID == *deliverableID:
			candidates = append(candidates, sub)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].ID < candidates[j].ID
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	return &candidates[len(candidates)-1]
}
