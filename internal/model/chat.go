package model

import "time"

// Conversation is a two-party channel between a client and a freelancer.
// Uniqueness per unordered pair is a reconciled invariant, not a store
// constraint: concurrent creators may both insert, and every lookup resolves
// the pair to the lowest-id row until the worker removes the duplicates.
type Conversation struct {
	ID           int64     `json:"id"`
	ClientID     string    `json:"client_id"`
	FreelancerID string    `json:"freelancer_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Message is append-only. Display order is (created_at, id), never arrival
// order, because feed delivery across tables and clients is unordered.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}
