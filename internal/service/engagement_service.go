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
	"gigmarket/pkg/metrics"
)

// EngagementStore is the slice of the engagement repository the coordinator
// uses.
type EngagementStore interface {
	CreateWithPostingFlip(ctx context.Context, e *model.Engagement, p *model.Posting) error
	FindByID(ctx context.Context, id int64) (*model.Engagement, error)
	FindByPosting(ctx context.Context, postingID int64) (*model.Engagement, error)
	ListByFreelancer(ctx context.Context, freelancerID string) ([]model.Engagement, error)
	ListByClient(ctx context.Context, clientID string) ([]model.Engagement, error)
}

// MilestoneLister is the read slice of the milestone repository the
// coordinator needs for completion checks.
type MilestoneLister interface {
	ListByEngagement(ctx context.Context, engagementID int64) ([]model.Milestone, error)
}

// EngagementService coordinates the compound kick-off write and the
// completion transitions that depend on milestone state.
type EngagementService struct {
	engagements EngagementStore
	proposals   ProposalStore
	postings    PostingStore
	milestones  MilestoneLister
	logger      *zap.Logger
}

func NewEngagementService(
	engagements EngagementStore,
	proposals ProposalStore,
	postings PostingStore,
	milestones MilestoneLister,
	logger *zap.Logger,
) *EngagementService {
	return &EngagementService{
		engagements: engagements,
		proposals:   proposals,
		postings:    postings,
		milestones:  milestones,
		logger:      logger,
	}
}

// KickOff approves a pending proposal and starts the engagement: the proposal
// becomes APPROVED, an engagement row is created, and the posting stops
// accepting and moves to ONGOING. The existing-engagement check is a fresh
// advisory re-read; a race that slips past it produces a duplicate the worker
// repairs by keeping the lowest id.
func (s *EngagementService) KickOff(ctx context.Context, who actor.Actor, proposalID int64) (*model.Engagement, error) {
	client, ok := who.(actor.Client)
	if !ok {
		return nil, authorizationf("only clients kick off engagements")
	}

	proposal, err := s.proposals.FindByID(ctx, proposalID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if proposal.ClientID != client.ID() {
		return nil, authorizationf("proposal %d belongs to another client", proposalID)
	}

	posting, err := s.postings.FindByID(ctx, proposal.PostingID)
	if err != nil {
		return nil, err
	}

	existing, err := s.engagements.FindByPosting(ctx, proposal.PostingID)
	if err != nil {
		return nil, err
	}

	approved, err := lifecycle.ApproveProposal(*proposal, *posting)
	if err != nil {
		metrics.IncrementTransitionRejected("proposal.approve")
		return nil, err
	}
	flipped, err := lifecycle.KickOffPosting(*posting, existing != nil)
	if err != nil {
		metrics.IncrementTransitionRejected("posting.kickoff")
		return nil, err
	}

	if err := s.proposals.UpdateStatus(ctx, approved.ID, approved.Status); err != nil {
		return nil, err
	}

	engagement := &model.Engagement{
		PostingID:    flipped.ID,
		ClientID:     flipped.ClientID,
		FreelancerID: proposal.FreelancerID,
	}
	if err := s.engagements.CreateWithPostingFlip(ctx, engagement, &flipped); err != nil {
		return nil, err
	}

	logger.WithTrace(ctx, s.logger).Info("Engagement kicked off",
		zap.Int64("engagement_id", engagement.ID),
		zap.Int64("posting_id", flipped.ID),
		zap.Int64("proposal_id", approved.ID),
		zap.String("freelancer_id", engagement.FreelancerID))
	return engagement, nil
}

// Complete moves an ongoing posting to COMPLETED once every milestone under
// its engagement is completed and approved.
func (s *EngagementService) Complete(ctx context.Context, who actor.Actor, postingID int64) (*model.Posting, error) {
	posting, engagement, err := s.ownedEngagedPosting(ctx, who, postingID)
	if err != nil {
		return nil, err
	}

	milestones, err := s.milestones.ListByEngagement(ctx, engagement.ID)
	if err != nil {
		return nil, err
	}

	next, err := lifecycle.CompletePosting(*posting, milestones)
	if err != nil {
		metrics.IncrementTransitionRejected("posting.complete")
		return nil, err
	}
	if err := s.postings.UpdateState(ctx, &next); err != nil {
		return nil, err
	}
	logger.WithTrace(ctx, s.logger).Info("Posting completed", zap.Int64("posting_id", next.ID))
	return &next, nil
}

// Reopen reverts a completed posting to ONGOING.
func (s *EngagementService) Reopen(ctx context.Context, who actor.Actor, postingID int64) (*model.Posting, error) {
	posting, _, err := s.ownedEngagedPosting(ctx, who, postingID)
	if err != nil {
		return nil, err
	}

	next, err := lifecycle.ReopenPosting(*posting)
	if err != nil {
		metrics.IncrementTransitionRejected("posting.reopen")
		return nil, err
	}
	if err := s.postings.UpdateState(ctx, &next); err != nil {
		return nil, err
	}
	logger.WithTrace(ctx, s.logger).Info("Posting reopened", zap.Int64("posting_id", next.ID))
	return &next, nil
}

// GetByPosting resolves the posting's engagement for either participant.
func (s *EngagementService) GetByPosting(ctx context.Context, who actor.Actor, postingID int64) (*model.Engagement, error) {
	engagement, err := s.engagements.FindByPosting(ctx, postingID)
	if err != nil {
		return nil, err
	}
	if engagement == nil {
		return nil, ErrNotFound
	}
	if engagement.ClientID != who.ID() && engagement.FreelancerID != who.ID() {
		return nil, authorizationf("engagement %d does not involve this actor", engagement.ID)
	}
	return engagement, nil
}

func (s *EngagementService) ListMine(ctx context.Context, who actor.Actor) ([]model.Engagement, error) {
	switch who.(type) {
	case actor.Freelancer:
		return s.engagements.ListByFreelancer(ctx, who.ID())
	case actor.Client:
		return s.engagements.ListByClient(ctx, who.ID())
	default:
		return nil, authorizationf("unknown actor")
	}
}

func (s *EngagementService) ownedEngagedPosting(ctx context.Context, who actor.Actor, postingID int64) (*model.Posting, *model.Engagement, error) {
	if _, ok := who.(actor.Client); !ok {
		return nil, nil, authorizationf("only clients settle postings")
	}
	posting, err := s.postings.FindByID(ctx, postingID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	if posting.ClientID != who.ID() {
		return nil, nil, authorizationf("posting %d belongs to another client", postingID)
	}
	engagement, err := s.engagements.FindByPosting(ctx, postingID)
	if err != nil {
		return nil, nil, err
	}
	if engagement == nil {
		return nil, nil, ErrNotFound
	}
	return posting, engagement, nil
}
