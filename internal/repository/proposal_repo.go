package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"gigmarket/internal/model"
	"gigmarket/pkg/outbox"
)

const TableProposals = "proposals"

type ProposalRepository struct {
	db     *pgxpool.Pool
	events *outbox.Repository
	logger *zap.Logger
}

func NewProposalRepository(db *pgxpool.Pool, events *outbox.Repository, logger *zap.Logger) *ProposalRepository {
	return &ProposalRepository{db: db, events: events, logger: logger}
}

func (r *ProposalRepository) Insert(ctx context.Context, p *model.Proposal) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	query := `
        INSERT INTO proposals (posting_id, freelancer_id, client_id, content, status, created_at)
        VALUES ($1, $2, $3, $4, $5, NOW())
        RETURNING id, created_at
    `
	err = tx.QueryRow(ctx, query,
		p.PostingID,
		p.FreelancerID,
		p.ClientID,
		p.Content,
		p.Status,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to insert proposal", zap.Int64("posting_id", p.PostingID), zap.Error(err))
		return 0, err
	}

	if err := outbox.RecordChange(ctx, tx, r.events, TableProposals, outbox.OpInsert, p.ID, p); err != nil {
		return 0, err
	}

	return p.ID, tx.Commit(ctx)
}

func (r *ProposalRepository) FindByID(ctx context.Context, id int64) (*model.Proposal, error) {
	query := `
        SELECT id, posting_id, freelancer_id, client_id, content, status, created_at
        FROM proposals
        WHERE id = $1
    `
	var p model.Proposal
	err := r.db.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.PostingID,
		&p.FreelancerID,
		&p.ClientID,
		&p.Content,
		&p.Status,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateStatus persists a status transition decided by the state machine.
func (r *ProposalRepository) UpdateStatus(ctx context.Context, id int64, status model.ProposalStatus) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
        UPDATE proposals
        SET status = $1
        WHERE id = $2
        RETURNING id, posting_id, freelancer_id, client_id, content, status, created_at
    `
	var p model.Proposal
	err = tx.QueryRow(ctx, query, status, id).Scan(
		&p.ID,
		&p.PostingID,
		&p.FreelancerID,
		&p.ClientID,
		&p.Content,
		&p.Status,
		&p.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to update proposal status", zap.Int64("id", id), zap.Error(err))
		return err
	}

	if err := outbox.RecordChange(ctx, tx, r.events, TableProposals, outbox.OpUpdate, p.ID, p); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *ProposalRepository) ListByPosting(ctx context.Context, postingID int64) ([]model.Proposal, error) {
	query := `
        SELECT id, posting_id, freelancer_id, client_id, content, status, created_at
        FROM proposals
        WHERE posting_id = $1
        ORDER BY created_at DESC
    `
	return r.list(ctx, query, postingID)
}

func (r *ProposalRepository) ListByFreelancer(ctx context.Context, freelancerID string) ([]model.Proposal, error) {
	query := `
        SELECT id, posting_id, freelancer_id, client_id, content, status, created_at
        FROM proposals
        WHERE freelancer_id = $1
        ORDER BY created_at DESC
    `
	return r.list(ctx, query, freelancerID)
}

func (r *ProposalRepository) ListByClient(ctx context.Context, clientID string) ([]model.Proposal, error) {
	query := `
        SELECT id, posting_id, freelancer_id, client_id, content, status, created_at
        FROM proposals
        WHERE client_id = $1
        ORDER BY created_at DESC
    `
	return r.list(ctx, query, clientID)
}

// CountByPosting supports the aggregate recount on the client's posting
// list; the count is a cross-table aggregate not carried by feed events.
func (r *ProposalRepository) CountByPosting(ctx context.Context, postingID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM proposals WHERE posting_id = $1`, postingID).Scan(&count)
	return count, err
}

func (r *ProposalRepository) list(ctx context.Context, query string, args ...any) ([]model.Proposal, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	proposals := []model.Proposal{}
	for rows.Next() {
		var p model.Proposal
		if err := rows.Scan(
			&p.ID,
			&p.PostingID,
			&p.FreelancerID,
			&p.ClientID,
			&p.Content,
			&p.Status,
			&p.CreatedAt,
		); err != nil {
			return nil, err
		}
		proposals = append(proposals, p)
	}

	return proposals, rows.Err()
}
