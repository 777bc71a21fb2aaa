package model

import (
	"fmt"
	"strings"
	"time"
)

type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "PENDING"
	ProposalApproved ProposalStatus = "APPROVED"
	ProposalDenied   ProposalStatus = "DENIED"
)

// ParseProposalStatus canonicalizes a raw status string to the uppercase
// enumeration at the write boundary.
func ParseProposalStatus(raw string) (ProposalStatus, error) {
	switch s := ProposalStatus(strings.ToUpper(strings.TrimSpace(raw))); s {
	case ProposalPending, ProposalApproved, ProposalDenied:
		return s, nil
	default:
		return "", fmt.Errorf("unknown proposal status %q", raw)
	}
}

// Proposal is a freelancer's bid on a Posting. ClientID is denormalized from
// the posting so the client's proposal list is a single-table query.
type Proposal struct {
	ID           int64          `json:"id"`
	PostingID    int64          `json:"posting_id"`
	FreelancerID string         `json:"freelancer_id"`
	ClientID     string         `json:"client_id"`
	Content      string         `json:"content"`
	Status       ProposalStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
}
