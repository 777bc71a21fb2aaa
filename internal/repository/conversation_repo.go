package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"gigmarket/internal/model"
	"gigmarket/pkg/outbox"
)

const TableConversations = "conversations"

type ConversationRepository struct {
	db     *pgxpool.Pool
	events *outbox.Repository
	logger *zap.Logger
}

func NewConversationRepository(db *pgxpool.Pool, events *outbox.Repository, logger *zap.Logger) *ConversationRepository {
	return &ConversationRepository{db: db, events: events, logger: logger}
}

func (r *ConversationRepository) Insert(ctx context.Context, c *model.Conversation) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
        INSERT INTO conversations (client_id, freelancer_id, created_at)
        VALUES ($1, $2, NOW())
        RETURNING id, created_at
    `
	err = tx.QueryRow(ctx, query, c.ClientID, c.FreelancerID).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to insert conversation",
			zap.String("client_id", c.ClientID),
			zap.String("freelancer_id", c.FreelancerID),
			zap.Error(err))
		return err
	}

	if err := outbox.RecordChange(ctx, tx, r.events, TableConversations, outbox.OpInsert, c.ID, c); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *ConversationRepository) FindByID(ctx context.Context, id int64) (*model.Conversation, error) {
	query := `
        SELECT id, client_id, freelancer_id, created_at
        FROM conversations
        WHERE id = $1
    `
	var c model.Conversation
	err := r.db.QueryRow(ctx, query, id).Scan(&c.ID, &c.ClientID, &c.FreelancerID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// FindByPair resolves the unordered participant pair to at most one
// conversation. Both column orderings are matched so a row inserted with the
// ids swapped still resolves, and the lowest id wins when duplicates exist.
func (r *ConversationRepository) FindByPair(ctx context.Context, userA, userB string) (*model.Conversation, error) {
	query := `
        SELECT id, client_id, freelancer_id, created_at
        FROM conversations
        WHERE (client_id = $1 AND freelancer_id = $2)
           OR (client_id = $2 AND freelancer_id = $1)
        ORDER BY id ASC
        LIMIT 1
    `
	var c model.Conversation
	err := r.db.QueryRow(ctx, query, userA, userB).Scan(&c.ID, &c.ClientID, &c.FreelancerID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListByPair returns every row for the unordered pair in id order; the worker
// uses it to find and remove duplicates.
func (r *ConversationRepository) ListByPair(ctx context.Context, userA, userB string) ([]model.Conversation, error) {
	query := `
        SELECT id, client_id, freelancer_id, created_at
        FROM conversations
        WHERE (client_id = $1 AND freelancer_id = $2)
           OR (client_id = $2 AND freelancer_id = $1)
        ORDER BY id ASC
    `
	return r.list(ctx, query, userA, userB)
}

func (r *ConversationRepository) ListByParticipant(ctx context.Context, userID string) ([]model.Conversation, error) {
	query := `
        SELECT id, client_id, freelancer_id, created_at
        FROM conversations
        WHERE client_id = $1 OR freelancer_id = $1
        ORDER BY created_at DESC
    `
	return r.list(ctx, query, userID)
}

func (r *ConversationRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	if err := outbox.RecordChange(ctx, tx, r.events, TableConversations, outbox.OpDelete, id, nil); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *ConversationRepository) list(ctx context.Context, query string, args ...any) ([]model.Conversation, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conversations := []model.Conversation{}
	for rows.Next() {
		var c model.Conversation
		if err := rows.Scan(&c.ID, &c.ClientID, &c.FreelancerID, &c.CreatedAt); err != nil {
			return nil, err
		}
		conversations = append(conversations, c)
	}

	return conversations, rows.Err()
}
