package lifecycle

import "gigmarket/internal/model"

// ApproveProposal moves a pending proposal to APPROVED. The posting is the
// caller's fresh read; once its accepting flag dropped, another proposal
// already won and the approval is rejected rather than silently succeeding.
func ApproveProposal(p model.Proposal, posting model.Posting) (model.Proposal, error) {
	if p.Status != model.ProposalPending {
		return p, ErrInvalidTransition
	}
	if !posting.Accepting {
		return p, ErrPostingNotAccepting
	}
	p.Status = model.ProposalApproved
	return p, nil
}

// DenyProposal moves a pending proposal to DENIED. APPROVED and DENIED are
// terminal.
func DenyProposal(p model.Proposal) (model.Proposal, error) {
	if p.Status != model.ProposalPending {
		return p, ErrInvalidTransition
	}
	p.Status = model.ProposalDenied
	return p, nil
}
