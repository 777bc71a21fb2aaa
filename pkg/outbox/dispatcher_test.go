package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeEventStore struct {
	pending []*Event
	sent    []int64
	failed  []int64
}

func (s *fakeEventStore) GetPendingEvents(context.Context, int) ([]*Event, error) {
	return s.pending, nil
}

func (s *fakeEventStore) MarkAsSent(_ context.Context, eventID int64) error {
	s.sent = append(s.sent, eventID)
	return nil
}

func (s *fakeEventStore) MarkAsFailed(_ context.Context, eventID int64, _ int) error {
	s.failed = append(s.failed, eventID)
	return nil
}

type fakePublisher struct {
	published []envelope
	failSeq   int64
}

func (p *fakePublisher) PublishWithContext(_ context.Context, _ string, payload any) error {
	env, ok := payload.(envelope)
	if !ok {
		return errors.New("unexpected payload type")
	}
	if env.Seq == p.failSeq {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, env)
	return nil
}

func pendingEvent(id int64, table string) *Event {
	return &Event{ID: id, Table: table, Op: OpUpdate, RowID: 1, Payload: json.RawMessage(`{}`), Status: "pending"}
}

func TestDispatcherStallsTableAfterFailedPublish(t *testing.T) {
	store := &fakeEventStore{pending: []*Event{
		pendingEvent(1, "postings"),
		pendingEvent(2, "postings"),
		pendingEvent(3, "messages"),
	}}
	pub := &fakePublisher{failSeq: 1}
	d := NewDispatcher(store, pub, zap.NewNop())

	d.processPendingEvents(context.Background())

	// event 2 must wait for event 1's retry; the messages feed is unaffected
	require.Len(t, pub.published, 1)
	assert.Equal(t, int64(3), pub.published[0].Seq)
	assert.Equal(t, []int64{3}, store.sent)
	assert.Equal(t, []int64{1}, store.failed)
}

func TestDispatcherPublishesBatchInCommitOrder(t *testing.T) {
	store := &fakeEventStore{pending: []*Event{
		pendingEvent(1, "postings"),
		pendingEvent(2, "postings"),
		pendingEvent(3, "postings"),
	}}
	pub := &fakePublisher{}
	d := NewDispatcher(store, pub, zap.NewNop())

	d.processPendingEvents(context.Background())

	require.Len(t, pub.published, 3)
	for i, env := range pub.published {
		assert.Equal(t, int64(i+1), env.Seq)
	}
	assert.Equal(t, []int64{1, 2, 3}, store.sent)
	assert.Empty(t, store.failed)
}
