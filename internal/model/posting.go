package model

import (
	"fmt"
	"strings"
	"time"
)

type PostingStatus string

const (
	PostingOpen      PostingStatus = "OPEN"
	PostingOngoing   PostingStatus = "ONGOING"
	PostingCompleted PostingStatus = "COMPLETED"
)

// ParsePostingStatus canonicalizes a raw status string to the uppercase
// enumeration. Canonicalization happens once here, at the write boundary,
// never at read sites.
func ParsePostingStatus(raw string) (PostingStatus, error) {
	switch s := PostingStatus(strings.ToUpper(strings.TrimSpace(raw))); s {
	case PostingOpen, PostingOngoing, PostingCompleted:
		return s, nil
	default:
		return "", fmt.Errorf("unknown posting status %q", raw)
	}
}

type Posting struct {
	ID          int64         `json:"id"`
	ClientID    string        `json:"client_id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Budget      int64         `json:"budget"`
	Category    string        `json:"category"`
	Skills      []string      `json:"skills"`
	Published   bool          `json:"published"`
	Accepting   bool          `json:"accepting"`
	Status      PostingStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
}
