package view

import (
	"context"
	"encoding/json"
	"sort"

	"gigmarket/internal/feed"
	"gigmarket/internal/model"
)

// MessageLister is the read slice of the message repository the view fetches
// from.
type MessageLister interface {
	ListByConversation(ctx context.Context, conversationID int64) ([]model.Message, error)
}

// MessageView is the live transcript of one conversation. Events arrive in
// publish order, not transcript order, so Ordered always re-sorts by
// (created_at, id); duplicates collapse on the message id.
type MessageView struct {
	conversationID int64
	store          MessageLister
	rows           *Projection[model.Message]
}

func NewMessageView(conversationID int64, store MessageLister) *MessageView {
	return &MessageView{
		conversationID: conversationID,
		store:          store,
		rows:           NewProjection[model.Message](),
	}
}

// Filter narrows the messages feed to this conversation. DELETE events carry
// no row body, so they pass through and the fold drops them by id, which is a
// no-op for other conversations.
func (v *MessageView) Filter(ev feed.Event) bool {
	if ev.Op == feed.OpDelete {
		return true
	}
	var probe struct {
		ConversationID int64 `json:"conversation_id"`
	}
	if err := json.Unmarshal(ev.Row, &probe); err != nil {
		return false
	}
	return probe.ConversationID == v.conversationID
}

func (v *MessageView) Refetch(ctx context.Context) error {
	msgs, err := v.store.ListByConversation(ctx, v.conversationID)
	if err != nil {
		return err
	}
	v.rows.Replace(msgs, func(m model.Message) int64 { return m.ID })
	return nil
}

func (v *MessageView) Apply(_ context.Context, ev feed.Event) error {
	return v.rows.Apply(ev)
}

// Ordered returns the transcript in canonical display order.
func (v *MessageView) Ordered() []model.Message {
	msgs := v.rows.Snapshot()
	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
	return msgs
}
