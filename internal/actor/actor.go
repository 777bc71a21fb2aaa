package actor

import (
	"fmt"

	"github.com/google/uuid"
)

// Actor is a closed two-variant type: every operation narrows it once at its
// authorization boundary instead of branching on role strings in handlers.
type Actor interface {
	ID() string
	Role() string
	sealed()
}

const (
	RoleClient     = "client"
	RoleFreelancer = "freelancer"
)

// Client can publish postings, review proposals, kick off engagements,
// approve milestones and settle posting completion.
type Client struct {
	UserID string
}

func (c Client) ID() string   { return c.UserID }
func (c Client) Role() string { return RoleClient }
func (c Client) sealed()      {}

// Freelancer can submit proposals, manage milestone completion and attach
// deliverables.
type Freelancer struct {
	UserID string
}

func (f Freelancer) ID() string   { return f.UserID }
func (f Freelancer) Role() string { return RoleFreelancer }
func (f Freelancer) sealed()      {}

// FromClaims builds an actor from the session provider's identifier and role
// claim. The identifier must be the auth provider's UUID.
func FromClaims(userID, role string) (Actor, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("invalid actor id %q: %w", userID, err)
	}
	switch role {
	case RoleClient:
		return Client{UserID: userID}, nil
	case RoleFreelancer:
		return Freelancer{UserID: userID}, nil
	default:
		return nil, fmt.Errorf("unknown actor role %q", role)
	}
}
