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

// ProposalStore is the slice of the proposal repository this service uses.
type ProposalStore interface {
	Insert(ctx context.Context, p *model.Proposal) (int64, error)
	FindByID(ctx context.Context, id int64) (*model.Proposal, error)
	UpdateStatus(ctx context.Context, id int64, status model.ProposalStatus) error
	ListByPosting(ctx context.Context, postingID int64) ([]model.Proposal, error)
	ListByFreelancer(ctx context.Context, freelancerID string) ([]model.Proposal, error)
	ListByClient(ctx context.Context, clientID string) ([]model.Proposal, error)
}

type ProposalService struct {
	proposals ProposalStore
	postings  PostingStore
	logger    *zap.Logger
}

func NewProposalService(proposals ProposalStore, postings PostingStore, logger *zap.Logger) *ProposalService {
	return &ProposalService{proposals: proposals, postings: postings, logger: logger}
}

// Submit files a freelancer's bid on an open posting.
func (s *ProposalService) Submit(ctx context.Context, who actor.Actor, postingID int64, content string) (*model.Proposal, error) {
	freelancer, ok := who.(actor.Freelancer)
	if !ok {
		return nil, authorizationf("only freelancers submit proposals")
	}
	if content == "" {
		return nil, validationf("proposal content is required")
	}

	posting, err := s.postings.FindByID(ctx, postingID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !posting.Published || !posting.Accepting || posting.Status != model.PostingOpen {
		return nil, lifecycle.ErrPostingNotAccepting
	}

	p := &model.Proposal{
		PostingID:    posting.ID,
		FreelancerID: freelancer.ID(),
		ClientID:     posting.ClientID,
		Content:      content,
		Status:       model.ProposalPending,
	}
	if _, err := s.proposals.Insert(ctx, p); err != nil {
		return nil, err
	}
	logger.WithTrace(ctx, s.logger).Info("Proposal submitted",
		zap.Int64("proposal_id", p.ID),
		zap.Int64("posting_id", posting.ID),
		zap.String("freelancer_id", freelancer.ID()))
	return p, nil
}

// Deny moves a pending proposal to its terminal DENIED state. Approval is a
// compound operation and lives on the engagement coordinator.
func (s *ProposalService) Deny(ctx context.Context, who actor.Actor, proposalID int64) (*model.Proposal, error) {
	p, err := s.ownedProposal(ctx, who, proposalID)
	if err != nil {
		return nil, err
	}

	next, err := lifecycle.DenyProposal(*p)
	if err != nil {
		return nil, err
	}
	if err := s.proposals.UpdateStatus(ctx, next.ID, next.Status); err != nil {
		return nil, err
	}
	return &next, nil
}

func (s *ProposalService) ListByPosting(ctx context.Context, who actor.Actor, postingID int64) ([]model.Proposal, error) {
	posting, err := s.postings.FindByID(ctx, postingID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if posting.ClientID != who.ID() {
		return nil, authorizationf("posting %d belongs to another client", postingID)
	}
	return s.proposals.ListByPosting(ctx, postingID)
}

func (s *ProposalService) ListMine(ctx context.Context, who actor.Actor) ([]model.Proposal, error) {
	switch who.(type) {
	case actor.Freelancer:
		return s.proposals.ListByFreelancer(ctx, who.ID())
	case actor.Client:
		return s.proposals.ListByClient(ctx, who.ID())
	default:
		return nil, authorizationf("unknown actor")
	}
}

func (s *ProposalService) ownedProposal(ctx context.Context, who actor.Actor, proposalID int64) (*model.Proposal, error) {
	if _, ok := who.(actor.Client); !ok {
		return nil, authorizationf("only clients review proposals")
	}
	p, err := s.proposals.FindByID(ctx, proposalID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.ClientID != who.ID() {
		return nil, authorizationf("proposal %d belongs to another client", proposalID)
	}
	return p, nil
}
