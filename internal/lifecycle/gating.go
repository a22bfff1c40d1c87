package lifecycle

import (
	"github.com/tbourn/go-hiring-backend/internal/domain"
)

// Delivery gating rules for by_deliverables hirings. Provider-side and
// client-side gates are intentionally asymmetric:
//
//   - the provider may submit deliverable k once every earlier deliverable
//     has at least one submission (delivered, paid or not);
//   - the client may view deliverable k's content only once deliverable
//     k-1's latest submission is approved, i.e. paid.
//
// The asymmetry lets providers keep working while a payment settles, without
// ever exposing unpaid work to the client.

// CanSubmitDeliverable reports whether the provider may open a submission
// for the deliverable at orderIndex, given all deliverables and submissions
// of the hiring. Every deliverable with a lower orderIndex must have at
// least one submission; prior payment is not required.
func CanSubmitDeliverable(deliverables []domain.Deliverable, subs []domain.DeliverySubmission, orderIndex int) bool {
	for _, d := range deliverables {
		if d.OrderIndex >= orderIndex {
			continue
		}
		if LatestSubmission(subs, &d.ID) == nil {
			return false
		}
	}
	return true
}

// CanResubmit reports whether a new submission may be created for the given
// deliverable (nil for hiring-level full deliveries): allowed when no
// submission exists yet or the latest one was sent back for revision.
// A latest submission in delivered, pending_payment, or approved blocks a
// new one; the caller surfaces that as a conflict.
func CanResubmit(subs []domain.DeliverySubmission, deliverableID *string) bool {
	latest := LatestSubmission(subs, deliverableID)
	return latest == nil || latest.Status == domain.SubmissionStatusRevisionRequested
}

// DeliverableView is the client-facing visibility verdict for one
// deliverable.
type DeliverableView struct {
	CanView  bool
	IsLocked bool
}

// ViewGate decides whether the viewer may see the content of the deliverable
// at orderIndex. The provider always views their own work. For the client,
// deliverable k is locked until deliverable k-1's latest submission is
// approved — even when the provider has already delivered k.
func ViewGate(deliverables []domain.Deliverable, subs []domain.DeliverySubmission, orderIndex int, role Role) DeliverableView {
	if role == RoleProvider {
		return DeliverableView{CanView: true}
	}
	if orderIndex <= 1 {
		return DeliverableView{CanView: true}
	}
	var prev *domain.Deliverable
	for i := range deliverables {
		if deliverables[i].OrderIndex == orderIndex-1 {
			prev = &deliverables[i]
			break
		}
	}
	if prev == nil {
		// Contiguity invariant broken upstream; fail closed.
		return DeliverableView{IsLocked: true}
	}
	latest := LatestSubmission(subs, &prev.ID)
	if latest == nil || latest.Status != domain.SubmissionStatusApproved {
		return DeliverableView{IsLocked: true}
	}
	return DeliverableView{CanView: true}
}
