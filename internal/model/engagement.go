package model

import "time"

// Engagement links one client, one freelancer and one posting once a proposal
// has been approved and kicked off. It is created at most once per posting;
// a transient duplicate produced by a lost race is repaired by the worker,
// and every read path resolves the pair by lowest id.
type Engagement struct {
	ID           int64     `json:"id"`
	PostingID    int64     `json:"posting_id"`
	ClientID     string    `json:"client_id"`
	FreelancerID string    `json:"freelancer_id"`
	CreatedAt    time.Time `json:"created_at"`
}
