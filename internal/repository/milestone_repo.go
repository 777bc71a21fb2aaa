package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"gigmarket/internal/model"
	"gigmarket/pkg/outbox"
)

const TableMilestones = "milestones"

type MilestoneRepository struct {
	db     *pgxpool.Pool
	events *outbox.Repository
	logger *zap.Logger
}

func NewMilestoneRepository(db *pgxpool.Pool, events *outbox.Repository, logger *zap.Logger) *MilestoneRepository {
	return &MilestoneRepository{db: db, events: events, logger: logger}
}

func (r *MilestoneRepository) Insert(ctx context.Context, m *model.Milestone) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
        INSERT INTO milestones (engagement_id, posting_id, description, completed, approved, file_ref, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, NOW())
        RETURNING id, created_at
    `
	err = tx.QueryRow(ctx, query,
		m.EngagementID,
		m.PostingID,
		m.Description,
		m.Completed,
		m.Approved,
		m.FileRef,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to insert milestone", zap.Int64("engagement_id", m.EngagementID), zap.Error(err))
		return err
	}

	if err := outbox.RecordChange(ctx, tx, r.events, TableMilestones, outbox.OpInsert, m.ID, m); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *MilestoneRepository) FindByID(ctx context.Context, id int64) (*model.Milestone, error) {
	query := `
        SELECT id, engagement_id, posting_id, description, completed, approved, file_ref, created_at
        FROM milestones
        WHERE id = $1
    `
	var m model.Milestone
	err := r.db.QueryRow(ctx, query, id).Scan(
		&m.ID,
		&m.EngagementID,
		&m.PostingID,
		&m.Description,
		&m.Completed,
		&m.Approved,
		&m.FileRef,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Update writes the mutable columns and records an UPDATE event carrying the
// row as stored.
func (r *MilestoneRepository) Update(ctx context.Context, m *model.Milestone) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
        UPDATE milestones
        SET description = $1, completed = $2, approved = $3, file_ref = $4
        WHERE id = $5
        RETURNING id, engagement_id, posting_id, description, completed, approved, file_ref, created_at
    `
	err = tx.QueryRow(ctx, query,
		m.Description,
		m.Completed,
		m.Approved,
		m.FileRef,
		m.ID,
	).Scan(
		&m.ID,
		&m.EngagementID,
		&m.PostingID,
		&m.Description,
		&m.Completed,
		&m.Approved,
		&m.FileRef,
		&m.CreatedAt,
	)
	if err != nil {
		return err
	}

	if err := outbox.RecordChange(ctx, tx, r.events, TableMilestones, outbox.OpUpdate, m.ID, m); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *MilestoneRepository) ListByEngagement(ctx context.Context, engagementID int64) ([]model.Milestone, error) {
	query := `
        SELECT id, engagement_id, posting_id, description, completed, approved, file_ref, created_at
        FROM milestones
        WHERE engagement_id = $1
        ORDER BY id ASC
    `
	return r.list(ctx, query, engagementID)
}

func (r *MilestoneRepository) ListByPosting(ctx context.Context, postingID int64) ([]model.Milestone, error) {
	query := `
        SELECT id, engagement_id, posting_id, description, completed, approved, file_ref, created_at
        FROM milestones
        WHERE posting_id = $1
        ORDER BY id ASC
    `
	return r.list(ctx, query, postingID)
}

func (r *MilestoneRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM milestones WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	if err := outbox.RecordChange(ctx, tx, r.events, TableMilestones, outbox.OpDelete, id, nil); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *MilestoneRepository) list(ctx context.Context, query string, args ...any) ([]model.Milestone, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	milestones := []model.Milestone{}
	for rows.Next() {
		var m model.Milestone
		if err := rows.Scan(
			&m.ID,
			&m.EngagementID,
			&m.PostingID,
			&m.Description,
			&m.Completed,
			&m.Approved,
			&m.FileRef,
			&m.CreatedAt,
		); err != nil {
			return nil, err
		}
		milestones = append(milestones, m)
	}

	return milestones, rows.Err()
}
