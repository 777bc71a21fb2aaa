// Package lifecycle is the pure state machine for postings, proposals and
// milestones. Every function takes the current state and returns the next
// state or a guard error; no IO happens here. Callers persist the returned
// values, so the accepting/status pair can never be written inconsistently.
package lifecycle

import "gigmarket/internal/model"

// KickOffPosting moves an open posting to ONGOING as part of the compound
// approve-and-kick-off operation. hasEngagement is the caller's re-read of
// the engagements table; the check stays advisory across processes and the
// worker repairs the losing side of a race.
func KickOffPosting(p model.Posting, hasEngagement bool) (model.Posting, error) {
	if hasEngagement {
		return p, ErrAlreadyEngaged
	}
	if p.Status != model.PostingOpen || !p.Accepting {
		return p, ErrAlreadyEngaged
	}
	p.Accepting = false
	p.Status = model.PostingOngoing
	return p, nil
}

// CompletePosting moves an ongoing posting to COMPLETED once every milestone
// under its engagement is completed and client-approved.
func CompletePosting(p model.Posting, milestones []model.Milestone) (model.Posting, error) {
	if p.Status != model.PostingOngoing {
		return p, ErrInvalidTransition
	}
	for _, m := range milestones {
		if !m.Completed || m.Approved != model.ApprovalApproved {
			return p, ErrMilestonesIncomplete
		}
	}
	p.Status = model.PostingCompleted
	return p, nil
}

// ReopenPosting reverts a completed posting to ONGOING.
func ReopenPosting(p model.Posting) (model.Posting, error) {
	if p.Status != model.PostingCompleted {
		return p, ErrInvalidTransition
	}
	p.Status = model.PostingOngoing
	return p, nil
}

// PublishPosting flips a draft to a published, open, accepting posting.
func PublishPosting(p model.Posting) (model.Posting, error) {
	if p.Published {
		return p, ErrInvalidTransition
	}
	p.Published = true
	p.Accepting = true
	p.Status = model.PostingOpen
	return p, nil
}

// CanDeletePosting reports whether the owner may still delete the posting.
// Only unpublished drafts are deletable.
func CanDeletePosting(p model.Posting) error {
	if p.Published {
		return ErrInvalidTransition
	}
	return nil
}
