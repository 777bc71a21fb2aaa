package view

import (
	"context"
	"encoding/json"
	"sync"

	"gigmarket/internal/feed"
)

// ProposalCounter is the aggregate slice of the proposal repository.
type ProposalCounter interface {
	CountByPosting(ctx context.Context, postingID int64) (int, error)
}

// ProposalCountView tracks per-posting proposal counts. Counts are never
// incremented from events: at-least-once delivery would double-count a
// redelivery, so every relevant event triggers a recount against the store.
type ProposalCountView struct {
	store ProposalCounter

	mu     sync.RWMutex
	counts map[int64]int
}

func NewProposalCountView(store ProposalCounter) *ProposalCountView {
	return &ProposalCountView{store: store, counts: make(map[int64]int)}
}

// Track registers a posting and loads its initial count.
func (v *ProposalCountView) Track(ctx context.Context, postingID int64) error {
	return v.recount(ctx, postingID)
}

func (v *ProposalCountView) Count(postingID int64) int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.counts[postingID]
}

// Refetch recounts every tracked posting.
func (v *ProposalCountView) Refetch(ctx context.Context) error {
	v.mu.RLock()
	ids := make([]int64, 0, len(v.counts))
	for id := range v.counts {
		ids = append(ids, id)
	}
	v.mu.RUnlock()

	for _, id := range ids {
		if err := v.recount(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Apply recounts the posting an event's proposal belongs to. Deletes carry no
// row, so they recount everything.
func (v *ProposalCountView) Apply(ctx context.Context, ev feed.Event) error {
	var probe struct {
		PostingID int64 `json:"posting_id"`
	}
	if ev.Op != feed.OpDelete {
		if err := json.Unmarshal(ev.Row, &probe); err != nil {
			return err
		}
	}
	if probe.PostingID == 0 {
		return v.Refetch(ctx)
	}

	v.mu.RLock()
	_, tracked := v.counts[probe.PostingID]
	v.mu.RUnlock()
	if !tracked {
		return nil
	}
	return v.recount(ctx, probe.PostingID)
}

func (v *ProposalCountView) recount(ctx context.Context, postingID int64) error {
	n, err := v.store.CountByPosting(ctx, postingID)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.counts[postingID] = n
	v.mu.Unlock()
	return nil
}
