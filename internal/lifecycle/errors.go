package lifecycle

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is the base of the guard taxonomy: every rejected
// transition matches errors.Is(err, ErrInvalidTransition). The named guards
// below wrap it so callers can also match the specific condition.
var (
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrPostingNotAccepting rejects approving a proposal after another
	// proposal already won the posting.
	ErrPostingNotAccepting = fmt.Errorf("posting is not accepting proposals: %w", ErrInvalidTransition)

	// ErrAlreadyEngaged rejects a second kick-off for the same posting.
	ErrAlreadyEngaged = fmt.Errorf("posting already has an engagement: %w", ErrInvalidTransition)

	// ErrMilestonesIncomplete rejects completing a posting while any
	// milestone is not both completed and client-approved.
	ErrMilestonesIncomplete = fmt.Errorf("milestones incomplete or unapproved: %w", ErrInvalidTransition)
)
