package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gigmarket/internal/feed"
	"gigmarket/internal/model"
)

type fakeDeduper struct {
	seen map[string]bool
}

func newFakeDeduper() *fakeDeduper { return &fakeDeduper{seen: map[string]bool{}} }

func (d *fakeDeduper) AcquireOnce(_ context.Context, handler string, seq int64) bool {
	key := fmt.Sprintf("%s:%d", handler, seq)
	if d.seen[key] {
		return false
	}
	d.seen[key] = true
	return true
}

func (d *fakeDeduper) Release(_ context.Context, handler string, seq int64) {
	delete(d.seen, fmt.Sprintf("%s:%d", handler, seq))
}

type fakeRetryCounter struct {
	counts map[string]int64
}

func newFakeRetryCounter() *fakeRetryCounter { return &fakeRetryCounter{counts: map[string]int64{}} }

func (r *fakeRetryCounter) IncrementAndGet(_ context.Context, key string) (int64, error) {
	r.counts[key]++
	return r.counts[key], nil
}

func (r *fakeRetryCounter) Reset(_ context.Context, key string) error {
	delete(r.counts, key)
	return nil
}

type fakeDLQ struct {
	parked [][]byte
}

func (d *fakeDLQ) PublishToDLQ(_ string, payload []byte, _ string) error {
	d.parked = append(d.parked, payload)
	return nil
}

type fakeEngagements struct {
	rows    []model.Engagement
	deleted []int64
	listErr error
}

func (f *fakeEngagements) ListByPosting(_ context.Context, postingID int64) ([]model.Engagement, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := []model.Engagement{}
	for _, e := range f.rows {
		if e.PostingID == postingID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEngagements) Delete(_ context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	kept := f.rows[:0]
	for _, e := range f.rows {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	f.rows = kept
	return nil
}

type fakePostings struct {
	rows map[int64]model.Posting
}

func (f *fakePostings) FindByID(_ context.Context, id int64) (*model.Posting, error) {
	p, ok := f.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &p, nil
}

func (f *fakePostings) UpdateState(_ context.Context, p *model.Posting) error {
	f.rows[p.ID] = *p
	return nil
}

type fakeConversations struct {
	rows    []model.Conversation
	deleted []int64
}

func (f *fakeConversations) ListByPair(_ context.Context, userA, userB string) ([]model.Conversation, error) {
	out := []model.Conversation{}
	for _, c := range f.rows {
		if (c.ClientID == userA && c.FreelancerID == userB) ||
			(c.ClientID == userB && c.FreelancerID == userA) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeConversations) Delete(_ context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func engagementEvent(t *testing.T, seq int64, e model.Engagement) json.RawMessage {
	t.Helper()
	row, err := json.Marshal(e)
	require.NoError(t, err)
	ev, err := json.Marshal(feed.Event{Seq: seq, Table: "engagements", Op: feed.OpInsert, RowID: e.ID, Row: row})
	require.NoError(t, err)
	return ev
}

func TestEngagementRepair(t *testing.T) {
	ctx := context.Background()

	t.Run("removes duplicates keeping the lowest id", func(t *testing.T) {
		engagements := &fakeEngagements{rows: []model.Engagement{
			{ID: 1, PostingID: 10},
			{ID: 2, PostingID: 10},
			{ID: 3, PostingID: 10},
		}}
		postings := &fakePostings{rows: map[int64]model.Posting{
			10: {ID: 10, Accepting: false, Status: model.PostingOngoing},
		}}
		h := NewEngagementCreatedHandler(engagements, postings, zap.NewNop(), newFakeDeduper(), newFakeRetryCounter(), &fakeDLQ{})

		err := h.HandleEngagementCreated(ctx, engagementEvent(t, 1, model.Engagement{ID: 2, PostingID: 10}))
		require.NoError(t, err)
		assert.Equal(t, []int64{2, 3}, engagements.deleted)
		require.Len(t, engagements.rows, 1)
		assert.Equal(t, int64(1), engagements.rows[0].ID)
	})

	t.Run("forces the accepting flag down on an engaged posting", func(t *testing.T) {
		engagements := &fakeEngagements{rows: []model.Engagement{{ID: 1, PostingID: 10}}}
		postings := &fakePostings{rows: map[int64]model.Posting{
			10: {ID: 10, Published: true, Accepting: true, Status: model.PostingOpen},
		}}
		h := NewEngagementCreatedHandler(engagements, postings, zap.NewNop(), newFakeDeduper(), newFakeRetryCounter(), &fakeDLQ{})

		err := h.HandleEngagementCreated(ctx, engagementEvent(t, 2, model.Engagement{ID: 1, PostingID: 10}))
		require.NoError(t, err)
		repaired := postings.rows[10]
		assert.False(t, repaired.Accepting)
		assert.Equal(t, model.PostingOngoing, repaired.Status)
	})

	t.Run("redelivery is a no-op", func(t *testing.T) {
		engagements := &fakeEngagements{rows: []model.Engagement{
			{ID: 1, PostingID: 10},
			{ID: 2, PostingID: 10},
		}}
		postings := &fakePostings{rows: map[int64]model.Posting{
			10: {ID: 10, Accepting: false, Status: model.PostingOngoing},
		}}
		h := NewEngagementCreatedHandler(engagements, postings, zap.NewNop(), newFakeDeduper(), newFakeRetryCounter(), &fakeDLQ{})

		ev := engagementEvent(t, 3, model.Engagement{ID: 2, PostingID: 10})
		require.NoError(t, h.HandleEngagementCreated(ctx, ev))
		require.NoError(t, h.HandleEngagementCreated(ctx, ev))
		assert.Equal(t, []int64{2}, engagements.deleted)
	})

	t.Run("ignores updates and malformed payloads", func(t *testing.T) {
		engagements := &fakeEngagements{}
		postings := &fakePostings{rows: map[int64]model.Posting{}}
		h := NewEngagementCreatedHandler(engagements, postings, zap.NewNop(), newFakeDeduper(), newFakeRetryCounter(), &fakeDLQ{})

		update, err := json.Marshal(feed.Event{Seq: 4, Table: "engagements", Op: feed.OpUpdate, RowID: 1})
		require.NoError(t, err)
		assert.NoError(t, h.HandleEngagementCreated(ctx, update))
		assert.NoError(t, h.HandleEngagementCreated(ctx, json.RawMessage(`{broken`)))
		assert.Empty(t, engagements.deleted)
	})

	t.Run("dead-letters after the retry budget runs out", func(t *testing.T) {
		engagements := &fakeEngagements{listErr: errors.New("dial tcp: connection refused")}
		postings := &fakePostings{rows: map[int64]model.Posting{}}
		dlq := &fakeDLQ{}
		h := NewEngagementCreatedHandler(engagements, postings, zap.NewNop(), newFakeDeduper(), newFakeRetryCounter(), dlq)

		ev := engagementEvent(t, 5, model.Engagement{ID: 1, PostingID: 10})
		for i := 0; i < maxRepairRetries; i++ {
			assert.Error(t, h.HandleEngagementCreated(ctx, ev))
		}
		assert.NoError(t, h.HandleEngagementCreated(ctx, ev))
		require.Len(t, dlq.parked, 1)
		assert.JSONEq(t, string(ev), string(dlq.parked[0]))
	})

	t.Run("state errors are dropped without retry", func(t *testing.T) {
		engagements := &fakeEngagements{rows: []model.Engagement{{ID: 1, PostingID: 10}}}
		postings := &fakePostings{rows: map[int64]model.Posting{}}
		dlq := &fakeDLQ{}
		h := NewEngagementCreatedHandler(engagements, postings, zap.NewNop(), newFakeDeduper(), newFakeRetryCounter(), dlq)

		// posting 10 missing, FindByID returns pgx.ErrNoRows
		assert.NoError(t, h.HandleEngagementCreated(ctx, engagementEvent(t, 6, model.Engagement{ID: 1, PostingID: 10})))
		assert.Empty(t, dlq.parked)
	})
}

func TestConversationRepair(t *testing.T) {
	ctx := context.Background()

	conversationEvent := func(t *testing.T, seq int64, c model.Conversation) json.RawMessage {
		t.Helper()
		row, err := json.Marshal(c)
		require.NoError(t, err)
		ev, err := json.Marshal(feed.Event{Seq: seq, Table: "conversations", Op: feed.OpInsert, RowID: c.ID, Row: row})
		require.NoError(t, err)
		return ev
	}

	t.Run("removes duplicate pair rows keeping the lowest id", func(t *testing.T) {
		conversations := &fakeConversations{rows: []model.Conversation{
			{ID: 5, ClientID: "c1", FreelancerID: "f1"},
			{ID: 9, ClientID: "c1", FreelancerID: "f1"},
		}}
		h := NewConversationCreatedHandler(conversations, zap.NewNop(), newFakeDeduper(), newFakeRetryCounter(), &fakeDLQ{})

		err := h.HandleConversationCreated(ctx, conversationEvent(t, 1, model.Conversation{ID: 9, ClientID: "c1", FreelancerID: "f1"}))
		require.NoError(t, err)
		assert.Equal(t, []int64{9}, conversations.deleted)
	})

	t.Run("a unique conversation is left alone", func(t *testing.T) {
		conversations := &fakeConversations{rows: []model.Conversation{
			{ID: 5, ClientID: "c1", FreelancerID: "f1"},
		}}
		h := NewConversationCreatedHandler(conversations, zap.NewNop(), newFakeDeduper(), newFakeRetryCounter(), &fakeDLQ{})

		err := h.HandleConversationCreated(ctx, conversationEvent(t, 2, model.Conversation{ID: 5, ClientID: "c1", FreelancerID: "f1"}))
		require.NoError(t, err)
		assert.Empty(t, conversations.deleted)
	})
}
