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

const TableEngagements = "engagements"

type EngagementRepository struct {
	db     *pgxpool.Pool
	events *outbox.Repository
	logger *zap.Logger
}

func NewEngagementRepository(db *pgxpool.Pool, events *outbox.Repository, logger *zap.Logger) *EngagementRepository {
	return &EngagementRepository{db: db, events: events, logger: logger}
}

// CreateWithPostingFlip inserts the engagement and flips the posting out of
// accepting in one transaction, recording both change events. Within one
// store this removes the write-side race window; the advisory check in the
// coordinator and the worker repair cover races across stores.
func (r *EngagementRepository) CreateWithPostingFlip(ctx context.Context, e *model.Engagement, p *model.Posting) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
        INSERT INTO engagements (posting_id, client_id, freelancer_id, created_at)
        VALUES ($1, $2, $3, NOW())
        RETURNING id, created_at
    `
	err = tx.QueryRow(ctx, query,
		e.PostingID,
		e.ClientID,
		e.FreelancerID,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to insert engagement", zap.Int64("posting_id", e.PostingID), zap.Error(err))
		return err
	}

	tag, err := tx.Exec(ctx, `
        UPDATE postings
        SET accepting = $1, status = $2
        WHERE id = $3
    `, p.Accepting, p.Status, p.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	if err := outbox.RecordChange(ctx, tx, r.events, TableEngagements, outbox.OpInsert, e.ID, e); err != nil {
		return err
	}
	if err := outbox.RecordChange(ctx, tx, r.events, TablePostings, outbox.OpUpdate, p.ID, p); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// FindByPosting returns the engagement for a posting, or nil when none
// exists. If duplicates exist the lowest id wins.
func (r *EngagementRepository) FindByPosting(ctx context.Context, postingID int64) (*model.Engagement, error) {
	query := `
        SELECT id, posting_id, client_id, freelancer_id, created_at
        FROM engagements
        WHERE posting_id = $1
        ORDER BY id ASC
        LIMIT 1
    `
	var e model.Engagement
	err := r.db.QueryRow(ctx, query, postingID).Scan(
		&e.ID,
		&e.PostingID,
		&e.ClientID,
		&e.FreelancerID,
		&e.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EngagementRepository) FindByID(ctx context.Context, id int64) (*model.Engagement, error) {
	query := `
        SELECT id, posting_id, client_id, freelancer_id, created_at
        FROM engagements
        WHERE id = $1
    `
	var e model.Engagement
	err := r.db.QueryRow(ctx, query, id).Scan(
		&e.ID,
		&e.PostingID,
		&e.ClientID,
		&e.FreelancerID,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListByPosting returns every engagement row for a posting in id order; more
// than one means a kick-off race leaked through and the worker repairs it.
func (r *EngagementRepository) ListByPosting(ctx context.Context, postingID int64) ([]model.Engagement, error) {
	query := `
        SELECT id, posting_id, client_id, freelancer_id, created_at
        FROM engagements
        WHERE posting_id = $1
        ORDER BY id ASC
    `
	return r.list(ctx, query, postingID)
}

func (r *EngagementRepository) ListByFreelancer(ctx context.Context, freelancerID string) ([]model.Engagement, error) {
	query := `
        SELECT id, posting_id, client_id, freelancer_id, created_at
        FROM engagements
        WHERE freelancer_id = $1
        ORDER BY created_at DESC
    `
	return r.list(ctx, query, freelancerID)
}

func (r *EngagementRepository) ListByClient(ctx context.Context, clientID string) ([]model.Engagement, error) {
	query := `
        SELECT id, posting_id, client_id, freelancer_id, created_at
        FROM engagements
        WHERE client_id = $1
        ORDER BY created_at DESC
    `
	return r.list(ctx, query, clientID)
}

// Delete removes a duplicate engagement during worker repair.
func (r *EngagementRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM engagements WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	if err := outbox.RecordChange(ctx, tx, r.events, TableEngagements, outbox.OpDelete, id, nil); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *EngagementRepository) list(ctx context.Context, query string, args ...any) ([]model.Engagement, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	engagements := []model.Engagement{}
	for rows.Next() {
		var e model.Engagement
		if err := rows.Scan(
			&e.ID,
			&e.PostingID,
			&e.ClientID,
			&e.FreelancerID,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		engagements = append(engagements, e)
	}

	return engagements, rows.Err()
}
