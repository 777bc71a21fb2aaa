package model

import (
	"fmt"
	"strings"
	"time"
)

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalDenied   ApprovalStatus = "DENIED"
)

func ParseApprovalStatus(raw string) (ApprovalStatus, error) {
	switch s := ApprovalStatus(strings.ToUpper(strings.TrimSpace(raw))); s {
	case ApprovalPending, ApprovalApproved, ApprovalDenied:
		return s, nil
	default:
		return "", fmt.Errorf("unknown approval status %q", raw)
	}
}

// Milestone is a deliverable checkpoint under an engagement. Completed is
// toggled by the freelancer, Approved by the client; approving forces
// Completed=true, denying forces Completed=false. FileRef is an opaque blob
// storage reference, never interpreted here.
type Milestone struct {
	ID           int64          `json:"id"`
	EngagementID int64          `json:"engagement_id"`
	PostingID    int64          `json:"posting_id"`
	Description  string         `json:"description"`
	Completed    bool           `json:"completed"`
	Approved     ApprovalStatus `json:"approved"`
	FileRef      *string        `json:"file_ref,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
