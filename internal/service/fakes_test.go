package service

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"gigmarket/internal/model"
)

// In-memory stores backing the service tests. Writes are mutex-guarded so
// the concurrency tests exercise real interleavings; misses return
// pgx.ErrNoRows the way the pgx-backed repositories do.

type fakePostingStore struct {
	mu       sync.Mutex
	nextID   int64
	postings map[int64]model.Posting
}

func newFakePostingStore() *fakePostingStore {
	return &fakePostingStore{nextID: 1, postings: map[int64]model.Posting{}}
}

func (f *fakePostingStore) Insert(_ context.Context, p *model.Posting) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = f.nextID
	p.CreatedAt = time.Now()
	f.nextID++
	f.postings[p.ID] = *p
	return p.ID, nil
}

func (f *fakePostingStore) FindByID(_ context.Context, id int64) (*model.Posting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.postings[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &p, nil
}

func (f *fakePostingStore) UpdateState(_ context.Context, p *model.Posting) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.postings[p.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	stored.Published = p.Published
	stored.Accepting = p.Accepting
	stored.Status = p.Status
	f.postings[p.ID] = stored
	return nil
}

func (f *fakePostingStore) DeleteDraft(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.postings[id]
	if !ok || p.Published {
		return pgx.ErrNoRows
	}
	delete(f.postings, id)
	return nil
}

func (f *fakePostingStore) ListOpen(context.Context) ([]model.Posting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Posting{}
	for _, p := range f.postings {
		if p.Published && p.Status == model.PostingOpen {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePostingStore) ListByClient(_ context.Context, clientID string) ([]model.Posting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Posting{}
	for _, p := range f.postings {
		if p.ClientID == clientID {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeProposalStore struct {
	mu        sync.Mutex
	nextID    int64
	proposals map[int64]model.Proposal
}

func newFakeProposalStore() *fakeProposalStore {
	return &fakeProposalStore{nextID: 1, proposals: map[int64]model.Proposal{}}
}

func (f *fakeProposalStore) Insert(_ context.Context, p *model.Proposal) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = f.nextID
	p.CreatedAt = time.Now()
	f.nextID++
	f.proposals[p.ID] = *p
	return p.ID, nil
}

func (f *fakeProposalStore) FindByID(_ context.Context, id int64) (*model.Proposal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.proposals[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &p, nil
}

func (f *fakeProposalStore) UpdateStatus(_ context.Context, id int64, status model.ProposalStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.proposals[id]
	if !ok {
		return pgx.ErrNoRows
	}
	p.Status = status
	f.proposals[id] = p
	return nil
}

func (f *fakeProposalStore) ListByPosting(_ context.Context, postingID int64) ([]model.Proposal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Proposal{}
	for _, p := range f.proposals {
		if p.PostingID == postingID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProposalStore) ListByFreelancer(_ context.Context, freelancerID string) ([]model.Proposal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Proposal{}
	for _, p := range f.proposals {
		if p.FreelancerID == freelancerID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProposalStore) ListByClient(_ context.Context, clientID string) ([]model.Proposal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Proposal{}
	for _, p := range f.proposals {
		if p.ClientID == clientID {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeEngagementStore struct {
	mu          sync.Mutex
	nextID      int64
	engagements map[int64]model.Engagement
	postings    *fakePostingStore
}

func newFakeEngagementStore(postings *fakePostingStore) *fakeEngagementStore {
	return &fakeEngagementStore{nextID: 1, engagements: map[int64]model.Engagement{}, postings: postings}
}

func (f *fakeEngagementStore) CreateWithPostingFlip(ctx context.Context, e *model.Engagement, p *model.Posting) error {
	f.mu.Lock()
	e.ID = f.nextID
	e.CreatedAt = time.Now()
	f.nextID++
	f.engagements[e.ID] = *e
	f.mu.Unlock()
	return f.postings.UpdateState(ctx, p)
}

func (f *fakeEngagementStore) FindByID(_ context.Context, id int64) (*model.Engagement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.engagements[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &e, nil
}

func (f *fakeEngagementStore) FindByPosting(_ context.Context, postingID int64) (*model.Engagement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *model.Engagement
	for id, e := range f.engagements {
		if e.PostingID != postingID {
			continue
		}
		if best == nil || id < best.ID {
			copied := e
			best = &copied
		}
	}
	return best, nil
}

func (f *fakeEngagementStore) ListByFreelancer(_ context.Context, freelancerID string) ([]model.Engagement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Engagement{}
	for _, e := range f.engagements {
		if e.FreelancerID == freelancerID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEngagementStore) ListByClient(_ context.Context, clientID string) ([]model.Engagement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Engagement{}
	for _, e := range f.engagements {
		if e.ClientID == clientID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeMilestoneStore struct {
	mu         sync.Mutex
	nextID     int64
	milestones map[int64]model.Milestone
}

func newFakeMilestoneStore() *fakeMilestoneStore {
	return &fakeMilestoneStore{nextID: 1, milestones: map[int64]model.Milestone{}}
}

func (f *fakeMilestoneStore) Insert(_ context.Context, m *model.Milestone) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m.ID = f.nextID
	m.CreatedAt = time.Now()
	f.nextID++
	f.milestones[m.ID] = *m
	return nil
}

func (f *fakeMilestoneStore) FindByID(_ context.Context, id int64) (*model.Milestone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.milestones[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &m, nil
}

func (f *fakeMilestoneStore) Update(_ context.Context, m *model.Milestone) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.milestones[m.ID]; !ok {
		return pgx.ErrNoRows
	}
	f.milestones[m.ID] = *m
	return nil
}

func (f *fakeMilestoneStore) ListByEngagement(_ context.Context, engagementID int64) ([]model.Milestone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Milestone{}
	for _, m := range f.milestones {
		if m.EngagementID == engagementID {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeConversationStore struct {
	mu            sync.Mutex
	nextID        int64
	conversations map[int64]model.Conversation
}

func newFakeConversationStore() *fakeConversationStore {
	return &fakeConversationStore{nextID: 1, conversations: map[int64]model.Conversation{}}
}

func (f *fakeConversationStore) Insert(_ context.Context, c *model.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ID = f.nextID
	c.CreatedAt = time.Now()
	f.nextID++
	f.conversations[c.ID] = *c
	return nil
}

func (f *fakeConversationStore) FindByID(_ context.Context, id int64) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conversations[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &c, nil
}

func (f *fakeConversationStore) FindByPair(_ context.Context, userA, userB string) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *model.Conversation
	for _, c := range f.conversations {
		match := (c.ClientID == userA && c.FreelancerID == userB) ||
			(c.ClientID == userB && c.FreelancerID == userA)
		if !match {
			continue
		}
		if best == nil || c.ID < best.ID {
			copied := c
			best = &copied
		}
	}
	return best, nil
}

func (f *fakeConversationStore) ListByParticipant(_ context.Context, userID string) ([]model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Conversation{}
	for _, c := range f.conversations {
		if c.ClientID == userID || c.FreelancerID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeConversationStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conversations)
}

type fakeMessageStore struct {
	mu       sync.Mutex
	nextID   int64
	messages []model.Message
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{nextID: 1}
}

func (f *fakeMessageStore) Insert(_ context.Context, m *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m.ID = f.nextID
	m.CreatedAt = time.Now()
	f.nextID++
	f.messages = append(f.messages, *m)
	return nil
}

func (f *fakeMessageStore) ListByConversation(_ context.Context, conversationID int64) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Message{}
	for _, m := range f.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out, nil
}
