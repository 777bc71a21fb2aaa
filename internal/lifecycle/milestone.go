package lifecycle

import "gigmarket/internal/model"

// CanAddMilestone allows milestone creation only while the posting is in
// execution.
func CanAddMilestone(p model.Posting) error {
	if p.Status != model.PostingOngoing {
		return ErrInvalidTransition
	}
	return nil
}

// ToggleMilestoneCompleted flips the freelancer's completion mark. A
// client-approved milestone is frozen.
func ToggleMilestoneCompleted(m model.Milestone) (model.Milestone, error) {
	if m.Approved == model.ApprovalApproved {
		return m, ErrInvalidTransition
	}
	m.Completed = !m.Completed
	return m, nil
}

// ApproveMilestone moves a pending milestone to APPROVED and forces the
// completion mark.
func ApproveMilestone(m model.Milestone) (model.Milestone, error) {
	if m.Approved != model.ApprovalPending {
		return m, ErrInvalidTransition
	}
	m.Approved = model.ApprovalApproved
	m.Completed = true
	return m, nil
}

// DenyMilestone moves a pending or approved milestone to DENIED and clears
// the completion mark. Denying an approved milestone is how the client
// reverts an approval.
func DenyMilestone(m model.Milestone) (model.Milestone, error) {
	if m.Approved == model.ApprovalDenied {
		return m, ErrInvalidTransition
	}
	m.Approved = model.ApprovalDenied
	m.Completed = false
	return m, nil
}

// AttachDeliverable sets the blob reference on a milestone the client has
// not approved yet.
func AttachDeliverable(m model.Milestone, ref string) (model.Milestone, error) {
	if m.Approved == model.ApprovalApproved {
		return m, ErrInvalidTransition
	}
	m.FileRef = &ref
	return m, nil
}
