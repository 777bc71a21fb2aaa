package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"gigmarket/internal/model"
	"gigmarket/pkg/outbox"
)

const TableMessages = "messages"

type MessageRepository struct {
	db     *pgxpool.Pool
	events *outbox.Repository
	logger *zap.Logger
}

func NewMessageRepository(db *pgxpool.Pool, events *outbox.Repository, logger *zap.Logger) *MessageRepository {
	return &MessageRepository{db: db, events: events, logger: logger}
}

func (r *MessageRepository) Insert(ctx context.Context, m *model.Message) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
        INSERT INTO messages (conversation_id, sender_id, body, created_at)
        VALUES ($1, $2, $3, NOW())
        RETURNING id, created_at
    `
	err = tx.QueryRow(ctx, query, m.ConversationID, m.SenderID, m.Body).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to insert message", zap.Int64("conversation_id", m.ConversationID), zap.Error(err))
		return err
	}

	if err := outbox.RecordChange(ctx, tx, r.events, TableMessages, outbox.OpInsert, m.ID, m); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ListByConversation returns the transcript in (created_at, id) order, the
// only order clients are allowed to render.
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID int64) ([]model.Message, error) {
	query := `
        SELECT id, conversation_id, sender_id, body, created_at
        FROM messages
        WHERE conversation_id = $1
        ORDER BY created_at ASC, id ASC
    `
	rows, err := r.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []model.Message{}
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}
