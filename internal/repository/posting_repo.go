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

const TablePostings = "postings"

type PostingRepository struct {
	db     *pgxpool.Pool
	events *outbox.Repository
	logger *zap.Logger
}

func NewPostingRepository(db *pgxpool.Pool, events *outbox.Repository, logger *zap.Logger) *PostingRepository {
	return &PostingRepository{db: db, events: events, logger: logger}
}

// Insert creates a posting draft.
func (r *PostingRepository) Insert(ctx context.Context, p *model.Posting) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	query := `
        INSERT INTO postings (client_id, title, description, budget, category, skills, published, accepting, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
        RETURNING id, created_at
    `
	err = tx.QueryRow(ctx, query,
		p.ClientID,
		p.Title,
		p.Description,
		p.Budget,
		p.Category,
		p.Skills,
		p.Published,
		p.Accepting,
		p.Status,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to insert posting", zap.Error(err))
		return 0, err
	}

	if err := outbox.RecordChange(ctx, tx, r.events, TablePostings, outbox.OpInsert, p.ID, p); err != nil {
		return 0, err
	}

	return p.ID, tx.Commit(ctx)
}

func (r *PostingRepository) FindByID(ctx context.Context, id int64) (*model.Posting, error) {
	query := `
        SELECT id, client_id, title, description, budget, category, skills, published, accepting, status, created_at
        FROM postings
        WHERE id = $1
    `
	var p model.Posting
	err := r.db.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.ClientID,
		&p.Title,
		&p.Description,
		&p.Budget,
		&p.Category,
		&p.Skills,
		&p.Published,
		&p.Accepting,
		&p.Status,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateState writes the lifecycle fields as one row update so accepting and
// status can never be persisted inconsistently.
func (r *PostingRepository) UpdateState(ctx context.Context, p *model.Posting) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
        UPDATE postings
        SET published = $1, accepting = $2, status = $3
        WHERE id = $4
    `
	tag, err := tx.Exec(ctx, query, p.Published, p.Accepting, p.Status, p.ID)
	if err != nil {
		r.logger.Error("Failed to update posting state", zap.Int64("id", p.ID), zap.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	if err := outbox.RecordChange(ctx, tx, r.events, TablePostings, outbox.OpUpdate, p.ID, p); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// DeleteDraft removes an unpublished posting. Published postings are never
// deleted.
func (r *PostingRepository) DeleteDraft(ctx context.Context, id int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM postings WHERE id = $1 AND published = FALSE`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("draft not found or already published")
	}

	if err := outbox.RecordChange(ctx, tx, r.events, TablePostings, outbox.OpDelete, id, nil); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ListOpen returns published postings still accepting proposals.
func (r *PostingRepository) ListOpen(ctx context.Context) ([]model.Posting, error) {
	query := `
        SELECT id, client_id, title, description, budget, category, skills, published, accepting, status, created_at
        FROM postings
        WHERE published = TRUE AND status = 'OPEN'
        ORDER BY created_at DESC
    `
	return r.list(ctx, query)
}

// ListByClient returns all postings owned by a client, drafts included.
func (r *PostingRepository) ListByClient(ctx context.Context, clientID string) ([]model.Posting, error) {
	query := `
        SELECT id, client_id, title, description, budget, category, skills, published, accepting, status, created_at
        FROM postings
        WHERE client_id = $1
        ORDER BY created_at DESC
    `
	return r.list(ctx, query, clientID)
}

func (r *PostingRepository) list(ctx context.Context, query string, args ...any) ([]model.Posting, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	postings := []model.Posting{}
	for rows.Next() {
		var p model.Posting
		if err := rows.Scan(
			&p.ID,
			&p.ClientID,
			&p.Title,
			&p.Description,
			&p.Budget,
			&p.Category,
			&p.Skills,
			&p.Published,
			&p.Accepting,
			&p.Status,
			&p.CreatedAt,
		); err != nil {
			return nil, err
		}
		postings = append(postings, p)
	}

	return postings, rows.Err()
}
