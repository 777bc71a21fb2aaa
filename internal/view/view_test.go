package view

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gigmarket/internal/feed"
	"gigmarket/internal/model"
)

type fakeMessageLister struct {
	msgs []model.Message
}

func (f *fakeMessageLister) ListByConversation(_ context.Context, conversationID int64) ([]model.Message, error) {
	out := []model.Message{}
	for _, m := range f.msgs {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out, nil
}

func msgEvent(t *testing.T, op string, m model.Message) feed.Event {
	t.Helper()
	row, err := json.Marshal(m)
	require.NoError(t, err)
	if op == feed.OpDelete {
		row = json.RawMessage(`null`)
	}
	return feed.Event{Table: "messages", Op: op, RowID: m.ID, Row: row}
}

func TestMessageViewOrdering(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := NewMessageView(1, &fakeMessageLister{})

	// events arrive out of transcript order
	m3 := model.Message{ID: 3, ConversationID: 1, SenderID: "a", Body: "third", CreatedAt: base.Add(2 * time.Second)}
	m1 := model.Message{ID: 1, ConversationID: 1, SenderID: "b", Body: "first", CreatedAt: base}
	m2 := model.Message{ID: 2, ConversationID: 1, SenderID: "a", Body: "second", CreatedAt: base.Add(time.Second)}

	for _, m := range []model.Message{m3, m1, m2} {
		require.NoError(t, v.Apply(ctx, msgEvent(t, feed.OpInsert, m)))
	}

	ordered := v.Ordered()
	require.Len(t, ordered, 3)
	assert.Equal(t, "first", ordered[0].Body)
	assert.Equal(t, "second", ordered[1].Body)
	assert.Equal(t, "third", ordered[2].Body)
}

func TestMessageViewTiesBreakOnID(t *testing.T) {
	ctx := context.Background()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := NewMessageView(1, &fakeMessageLister{})

	// identical timestamps sort by id
	a := model.Message{ID: 8, ConversationID: 1, Body: "later id", CreatedAt: ts}
	b := model.Message{ID: 5, ConversationID: 1, Body: "earlier id", CreatedAt: ts}
	require.NoError(t, v.Apply(ctx, msgEvent(t, feed.OpInsert, a)))
	require.NoError(t, v.Apply(ctx, msgEvent(t, feed.OpInsert, b)))

	ordered := v.Ordered()
	require.Len(t, ordered, 2)
	assert.Equal(t, int64(5), ordered[0].ID)
	assert.Equal(t, int64(8), ordered[1].ID)
}

func TestMessageViewAbsorbsRedelivery(t *testing.T) {
	ctx := context.Background()
	v := NewMessageView(1, &fakeMessageLister{})

	m := model.Message{ID: 1, ConversationID: 1, Body: "once", CreatedAt: time.Now()}
	ev := msgEvent(t, feed.OpInsert, m)
	require.NoError(t, v.Apply(ctx, ev))
	require.NoError(t, v.Apply(ctx, ev))

	assert.Len(t, v.Ordered(), 1)
}

func TestMessageViewFilter(t *testing.T) {
	v := NewMessageView(1, &fakeMessageLister{})

	mine := model.Message{ID: 1, ConversationID: 1}
	other := model.Message{ID: 2, ConversationID: 9}
	assert.True(t, v.Filter(msgEvent(t, feed.OpInsert, mine)))
	assert.False(t, v.Filter(msgEvent(t, feed.OpInsert, other)))
	assert.True(t, v.Filter(msgEvent(t, feed.OpDelete, other)))
}

func TestMessageViewRefetchReplacesState(t *testing.T) {
	ctx := context.Background()
	store := &fakeMessageLister{}
	v := NewMessageView(1, store)

	stale := model.Message{ID: 99, ConversationID: 1, Body: "phantom", CreatedAt: time.Now()}
	require.NoError(t, v.Apply(ctx, msgEvent(t, feed.OpInsert, stale)))

	store.msgs = []model.Message{
		{ID: 1, ConversationID: 1, Body: "truth", CreatedAt: time.Now()},
	}
	require.NoError(t, v.Refetch(ctx))

	ordered := v.Ordered()
	require.Len(t, ordered, 1)
	assert.Equal(t, "truth", ordered[0].Body)
}

func postingEvent(t *testing.T, seq int64, p model.Posting) feed.Event {
	t.Helper()
	row, err := json.Marshal(p)
	require.NoError(t, err)
	return feed.Event{Seq: seq, Table: "postings", Op: feed.OpUpdate, RowID: p.ID, Row: row}
}

func TestProjectionDropsDelayedOlderEvents(t *testing.T) {
	p := NewProjection[model.Posting]()

	// the newer state arrives first, the older one straggles in afterwards
	require.NoError(t, p.Apply(postingEvent(t, 2, model.Posting{ID: 1, Accepting: false, Status: model.PostingOngoing})))
	require.NoError(t, p.Apply(postingEvent(t, 1, model.Posting{ID: 1, Accepting: true, Status: model.PostingOpen})))

	row, ok := p.Get(1)
	require.True(t, ok)
	assert.Equal(t, model.PostingOngoing, row.Status)
	assert.False(t, row.Accepting)
}

func TestProjectionDropsStragglersAfterRefetch(t *testing.T) {
	p := NewProjection[model.Posting]()

	require.NoError(t, p.Apply(postingEvent(t, 5, model.Posting{ID: 1, Status: model.PostingOngoing})))
	p.Replace([]model.Posting{{ID: 1, Status: model.PostingCompleted}}, func(r model.Posting) int64 { return r.ID })

	// an event older than what the fetch already saw must not resurrect
	require.NoError(t, p.Apply(postingEvent(t, 3, model.Posting{ID: 1, Status: model.PostingOpen})))

	row, ok := p.Get(1)
	require.True(t, ok)
	assert.Equal(t, model.PostingCompleted, row.Status)
}

func TestProjectionDeleteWinsOverDelayedUpdate(t *testing.T) {
	p := NewProjection[model.Posting]()

	require.NoError(t, p.Apply(postingEvent(t, 1, model.Posting{ID: 1, Status: model.PostingOpen})))
	require.NoError(t, p.Apply(feed.Event{Seq: 3, Table: "postings", Op: feed.OpDelete, RowID: 1, Row: json.RawMessage(`null`)}))
	require.NoError(t, p.Apply(postingEvent(t, 2, model.Posting{ID: 1, Status: model.PostingOpen})))

	_, ok := p.Get(1)
	assert.False(t, ok)
	assert.Equal(t, 0, p.Len())
}

type fakeProposalCounter struct {
	counts map[int64]int
	calls  int
}

func (f *fakeProposalCounter) CountByPosting(_ context.Context, postingID int64) (int, error) {
	f.calls++
	return f.counts[postingID], nil
}

func TestProposalCountViewRecountsInsteadOfIncrementing(t *testing.T) {
	ctx := context.Background()
	store := &fakeProposalCounter{counts: map[int64]int{10: 2}}
	v := NewProposalCountView(store)
	require.NoError(t, v.Track(ctx, 10))
	assert.Equal(t, 2, v.Count(10))

	// a redelivered insert does not double-count: the store is re-asked
	store.counts[10] = 3
	row, err := json.Marshal(model.Proposal{ID: 7, PostingID: 10})
	require.NoError(t, err)
	ev := feed.Event{Table: "proposals", Op: feed.OpInsert, RowID: 7, Row: row}
	require.NoError(t, v.Apply(ctx, ev))
	require.NoError(t, v.Apply(ctx, ev))
	assert.Equal(t, 3, v.Count(10))
}

func TestProposalCountViewIgnoresUntrackedPostings(t *testing.T) {
	ctx := context.Background()
	store := &fakeProposalCounter{counts: map[int64]int{10: 1}}
	v := NewProposalCountView(store)
	require.NoError(t, v.Track(ctx, 10))
	before := store.calls

	row, err := json.Marshal(model.Proposal{ID: 4, PostingID: 55})
	require.NoError(t, err)
	require.NoError(t, v.Apply(ctx, feed.Event{Table: "proposals", Op: feed.OpInsert, RowID: 4, Row: row}))
	assert.Equal(t, before, store.calls)
}

// Reconciler wiring: resync triggers a wholesale refetch.
func TestReconcilerResyncRefetches(t *testing.T) {
	ctx := context.Background()
	store := &fakeMessageLister{msgs: []model.Message{
		{ID: 1, ConversationID: 1, Body: "kept", CreatedAt: time.Now()},
	}}
	v := NewMessageView(1, store)
	r := NewReconciler(nil, "messages", v.Filter, v, zap.NewNop())

	r.OnResync(ctx)
	ordered := v.Ordered()
	require.Len(t, ordered, 1)
	assert.Equal(t, "kept", ordered[0].Body)
}
