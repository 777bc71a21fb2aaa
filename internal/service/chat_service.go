package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"gigmarket/internal/actor"
	"gigmarket/internal/model"
	"gigmarket/pkg/logger"
)

// ConversationStore is the slice of the conversation repository this service
// uses.
type ConversationStore interface {
	Insert(ctx context.Context, c *model.Conversation) error
	FindByID(ctx context.Context, id int64) (*model.Conversation, error)
	FindByPair(ctx context.Context, userA, userB string) (*model.Conversation, error)
	ListByParticipant(ctx context.Context, userID string) ([]model.Conversation, error)
}

// MessageStore is the slice of the message repository this service uses.
type MessageStore interface {
	Insert(ctx context.Context, m *model.Message) error
	ListByConversation(ctx context.Context, conversationID int64) ([]model.Message, error)
}

type ChatService struct {
	conversations ConversationStore
	messages      MessageStore
	logger        *zap.Logger
}

func NewChatService(conversations ConversationStore, messages MessageStore, logger *zap.Logger) *ChatService {
	return &ChatService{conversations: conversations, messages: messages, logger: logger}
}

// GetOrCreate resolves the conversation between the caller and the other
// party, creating it when none exists. The operation is idempotent without a
// store constraint: after an insert the pair is re-resolved, so two
// concurrent creators both end up on the lowest-id row and the worker removes
// the loser.
func (s *ChatService) GetOrCreate(ctx context.Context, who actor.Actor, otherID string) (*model.Conversation, error) {
	if otherID == "" || otherID == who.ID() {
		return nil, validationf("invalid conversation counterpart")
	}

	existing, err := s.conversations.FindByPair(ctx, who.ID(), otherID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	c := &model.Conversation{}
	switch who.(type) {
	case actor.Client:
		c.ClientID = who.ID()
		c.FreelancerID = otherID
	case actor.Freelancer:
		c.ClientID = otherID
		c.FreelancerID = who.ID()
	default:
		return nil, authorizationf("unknown actor")
	}
	if err := s.conversations.Insert(ctx, c); err != nil {
		return nil, err
	}
	logger.WithTrace(ctx, s.logger).Info("Conversation created",
		zap.Int64("conversation_id", c.ID),
		zap.String("client_id", c.ClientID),
		zap.String("freelancer_id", c.FreelancerID))

	// Re-resolve so a concurrent creator and this caller converge on the
	// same row.
	winner, err := s.conversations.FindByPair(ctx, who.ID(), otherID)
	if err != nil {
		return nil, err
	}
	if winner == nil {
		return c, nil
	}
	return winner, nil
}

// SendMessage appends to the transcript. Only the two participants may write.
func (s *ChatService) SendMessage(ctx context.Context, who actor.Actor, conversationID int64, body string) (*model.Message, error) {
	if body == "" {
		return nil, validationf("message body is required")
	}
	if _, err := s.participantConversation(ctx, who, conversationID); err != nil {
		return nil, err
	}

	m := &model.Message{
		ConversationID: conversationID,
		SenderID:       who.ID(),
		Body:           body,
	}
	if err := s.messages.Insert(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListMessages returns the transcript in canonical (created_at, id) order.
func (s *ChatService) ListMessages(ctx context.Context, who actor.Actor, conversationID int64) ([]model.Message, error) {
	if _, err := s.participantConversation(ctx, who, conversationID); err != nil {
		return nil, err
	}
	return s.messages.ListByConversation(ctx, conversationID)
}

func (s *ChatService) ListConversations(ctx context.Context, who actor.Actor) ([]model.Conversation, error) {
	return s.conversations.ListByParticipant(ctx, who.ID())
}

func (s *ChatService) participantConversation(ctx context.Context, who actor.Actor, conversationID int64) (*model.Conversation, error) {
	c, err := s.conversations.FindByID(ctx, conversationID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if c.ClientID != who.ID() && c.FreelancerID != who.ID() {
		return nil, authorizationf("conversation %d does not involve this actor", conversationID)
	}
	return c, nil
}
