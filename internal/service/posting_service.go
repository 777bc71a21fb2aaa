package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"gigmarket/internal/actor"
	"gigmarket/internal/lifecycle"
	"gigmarket/internal/model"
	"gigmarket/pkg/logger"
)

// PostingStore is the slice of the posting repository this service depends
// on; tests substitute a fake.
type PostingStore interface {
	Insert(ctx context.Context, p *model.Posting) (int64, error)
	FindByID(ctx context.Context, id int64) (*model.Posting, error)
	UpdateState(ctx context.Context, p *model.Posting) error
	DeleteDraft(ctx context.Context, id int64) error
	ListOpen(ctx context.Context) ([]model.Posting, error)
	ListByClient(ctx context.Context, clientID string) ([]model.Posting, error)
}

type PostingService struct {
	postings PostingStore
	logger   *zap.Logger
}

func NewPostingService(postings PostingStore, logger *zap.Logger) *PostingService {
	return &PostingService{postings: postings, logger: logger}
}

type CreatePostingInput struct {
	Title       string
	Description string
	Budget      int64
	Category    string
	Skills      []string
}

// Create stores a new draft posting. Drafts are unpublished and not
// accepting until Publish flips them open.
func (s *PostingService) Create(ctx context.Context, who actor.Actor, in CreatePostingInput) (*model.Posting, error) {
	client, ok := who.(actor.Client)
	if !ok {
		return nil, authorizationf("only clients create postings")
	}
	if in.Title == "" {
		return nil, validationf("posting title is required")
	}
	if in.Budget < 0 {
		return nil, validationf("posting budget must be non-negative")
	}

	p := &model.Posting{
		ClientID:    client.ID(),
		Title:       in.Title,
		Description: in.Description,
		Budget:      in.Budget,
		Category:    in.Category,
		Skills:      in.Skills,
		Published:   false,
		Accepting:   false,
		Status:      model.PostingOpen,
	}
	if _, err := s.postings.Insert(ctx, p); err != nil {
		return nil, err
	}
	logger.WithTrace(ctx, s.logger).Info("Posting created", zap.Int64("posting_id", p.ID), zap.String("client_id", client.ID()))
	return p, nil
}

// Publish flips a draft to a published, open, accepting posting.
func (s *PostingService) Publish(ctx context.Context, who actor.Actor, postingID int64) (*model.Posting, error) {
	p, err := s.ownedPosting(ctx, who, postingID)
	if err != nil {
		return nil, err
	}

	next, err := lifecycle.PublishPosting(*p)
	if err != nil {
		return nil, err
	}
	if err := s.postings.UpdateState(ctx, &next); err != nil {
		return nil, err
	}
	logger.WithTrace(ctx, s.logger).Info("Posting published", zap.Int64("posting_id", next.ID))
	return &next, nil
}

// Delete removes an unpublished draft. Published postings are never deleted.
func (s *PostingService) Delete(ctx context.Context, who actor.Actor, postingID int64) error {
	p, err := s.ownedPosting(ctx, who, postingID)
	if err != nil {
		return err
	}
	if err := lifecycle.CanDeletePosting(*p); err != nil {
		return err
	}
	return s.postings.DeleteDraft(ctx, p.ID)
}

func (s *PostingService) Get(ctx context.Context, postingID int64) (*model.Posting, error) {
	p, err := s.postings.FindByID(ctx, postingID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// ListOpen returns published postings still open for proposals.
func (s *PostingService) ListOpen(ctx context.Context) ([]model.Posting, error) {
	return s.postings.ListOpen(ctx)
}

func (s *PostingService) ListMine(ctx context.Context, who actor.Actor) ([]model.Posting, error) {
	if _, ok := who.(actor.Client); !ok {
		return nil, authorizationf("only clients own postings")
	}
	return s.postings.ListByClient(ctx, who.ID())
}

func (s *PostingService) ownedPosting(ctx context.Context, who actor.Actor, postingID int64) (*model.Posting, error) {
	if _, ok := who.(actor.Client); !ok {
		return nil, authorizationf("only clients manage postings")
	}
	p, err := s.postings.FindByID(ctx, postingID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.ClientID != who.ID() {
		return nil, authorizationf("posting %d belongs to another client", postingID)
	}
	return p, nil
}
