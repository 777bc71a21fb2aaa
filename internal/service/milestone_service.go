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

// MilestoneStore is the slice of the milestone repository this service uses.
type MilestoneStore interface {
	Insert(ctx context.Context, m *model.Milestone) error
	FindByID(ctx context.Context, id int64) (*model.Milestone, error)
	Update(ctx context.Context, m *model.Milestone) error
	ListByEngagement(ctx context.Context, engagementID int64) ([]model.Milestone, error)
}

type MilestoneService struct {
	milestones  MilestoneStore
	engagements EngagementStore
	postings    PostingStore
	logger      *zap.Logger
}

func NewMilestoneService(
	milestones MilestoneStore,
	engagements EngagementStore,
	postings PostingStore,
	logger *zap.Logger,
) *MilestoneService {
	return &MilestoneService{
		milestones:  milestones,
		engagements: engagements,
		postings:    postings,
		logger:      logger,
	}
}

// Add creates a milestone under an ongoing engagement. Either participant
// may add checkpoints.
func (s *MilestoneService) Add(ctx context.Context, who actor.Actor, engagementID int64, description string) (*model.Milestone, error) {
	if description == "" {
		return nil, validationf("milestone description is required")
	}
	engagement, err := s.participantEngagement(ctx, who, engagementID)
	if err != nil {
		return nil, err
	}
	posting, err := s.postings.FindByID(ctx, engagement.PostingID)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.CanAddMilestone(*posting); err != nil {
		metrics.IncrementTransitionRejected("milestone.add")
		return nil, err
	}

	m := &model.Milestone{
		EngagementID: engagement.ID,
		PostingID:    engagement.PostingID,
		Description:  description,
		Completed:    false,
		Approved:     model.ApprovalPending,
	}
	if err := s.milestones.Insert(ctx, m); err != nil {
		return nil, err
	}
	logger.WithTrace(ctx, s.logger).Info("Milestone added", zap.Int64("milestone_id", m.ID), zap.Int64("engagement_id", engagement.ID))
	return m, nil
}

// ToggleCompleted flips the freelancer's completion mark on a milestone the
// client has not approved.
func (s *MilestoneService) ToggleCompleted(ctx context.Context, who actor.Actor, milestoneID int64) (*model.Milestone, error) {
	if _, ok := who.(actor.Freelancer); !ok {
		return nil, authorizationf("only freelancers mark milestones complete")
	}
	m, engagement, err := s.milestoneWithEngagement(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	if engagement.FreelancerID != who.ID() {
		return nil, authorizationf("milestone %d belongs to another engagement", milestoneID)
	}

	next, err := lifecycle.ToggleMilestoneCompleted(*m)
	if err != nil {
		metrics.IncrementTransitionRejected("milestone.toggle")
		return nil, err
	}
	if err := s.milestones.Update(ctx, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

// Approve is the client's review verdict; it forces the completion mark on.
func (s *MilestoneService) Approve(ctx context.Context, who actor.Actor, milestoneID int64) (*model.Milestone, error) {
	return s.review(ctx, who, milestoneID, lifecycle.ApproveMilestone, "milestone.approve")
}

// Deny rejects a pending or previously approved milestone and clears the
// completion mark.
func (s *MilestoneService) Deny(ctx context.Context, who actor.Actor, milestoneID int64) (*model.Milestone, error) {
	return s.review(ctx, who, milestoneID, lifecycle.DenyMilestone, "milestone.deny")
}

// AttachDeliverable sets the blob reference on an unapproved milestone.
func (s *MilestoneService) AttachDeliverable(ctx context.Context, who actor.Actor, milestoneID int64, ref string) (*model.Milestone, error) {
	if _, ok := who.(actor.Freelancer); !ok {
		return nil, authorizationf("only freelancers attach deliverables")
	}
	if ref == "" {
		return nil, validationf("deliverable reference is required")
	}
	m, engagement, err := s.milestoneWithEngagement(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	if engagement.FreelancerID != who.ID() {
		return nil, authorizationf("milestone %d belongs to another engagement", milestoneID)
	}

	next, err := lifecycle.AttachDeliverable(*m, ref)
	if err != nil {
		metrics.IncrementTransitionRejected("milestone.attach")
		return nil, err
	}
	if err := s.milestones.Update(ctx, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

func (s *MilestoneService) ListByEngagement(ctx context.Context, who actor.Actor, engagementID int64) ([]model.Milestone, error) {
	engagement, err := s.participantEngagement(ctx, who, engagementID)
	if err != nil {
		return nil, err
	}
	return s.milestones.ListByEngagement(ctx, engagement.ID)
}

func (s *MilestoneService) review(
	ctx context.Context,
	who actor.Actor,
	milestoneID int64,
	transition func(model.Milestone) (model.Milestone, error),
	guard string,
) (*model.Milestone, error) {
	if _, ok := who.(actor.Client); !ok {
		return nil, authorizationf("only clients review milestones")
	}
	m, engagement, err := s.milestoneWithEngagement(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	if engagement.ClientID != who.ID() {
		return nil, authorizationf("milestone %d belongs to another engagement", milestoneID)
	}

	next, err := transition(*m)
	if err != nil {
		metrics.IncrementTransitionRejected(guard)
		return nil, err
	}
	if err := s.milestones.Update(ctx, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

func (s *MilestoneService) participantEngagement(ctx context.Context, who actor.Actor, engagementID int64) (*model.Engagement, error) {
	engagement, err := s.engagements.FindByID(ctx, engagementID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if engagement.ClientID != who.ID() && engagement.FreelancerID != who.ID() {
		return nil, authorizationf("engagement %d does not involve this actor", engagementID)
	}
	return engagement, nil
}

func (s *MilestoneService) milestoneWithEngagement(ctx context.Context, milestoneID int64) (*model.Milestone, *model.Engagement, error) {
	m, err := s.milestones.FindByID(ctx, milestoneID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	engagement, err := s.engagements.FindByID(ctx, m.EngagementID)
	if err != nil {
		return nil, nil, err
	}
	return m, engagement, nil
}
