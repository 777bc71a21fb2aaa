package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigmarket/internal/actor"
	"gigmarket/internal/lifecycle"
	"gigmarket/internal/model"
)

func seedMilestone(t *testing.T) (*fixture, model.Milestone) {
	t.Helper()
	ctx := context.Background()
	f := newFixture()
	_, proposal := f.seedOpenPosting(t)
	engagement, err := f.engagementSvc.KickOff(ctx, actor.Client{UserID: clientID}, proposal.ID)
	require.NoError(t, err)
	m, err := f.milestoneSvc.Add(ctx, actor.Freelancer{UserID: freelancerID}, engagement.ID, "first checkpoint")
	require.NoError(t, err)
	return f, *m
}

func TestMilestoneReview(t *testing.T) {
	ctx := context.Background()
	client := actor.Client{UserID: clientID}
	freelancer := actor.Freelancer{UserID: freelancerID}

	t.Run("approve forces the completion mark on", func(t *testing.T) {
		f, m := seedMilestone(t)
		approved, err := f.milestoneSvc.Approve(ctx, client, m.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ApprovalApproved, approved.Approved)
		assert.True(t, approved.Completed)
	})

	t.Run("deny clears the completion mark", func(t *testing.T) {
		f, m := seedMilestone(t)
		_, err := f.milestoneSvc.ToggleCompleted(ctx, freelancer, m.ID)
		require.NoError(t, err)

		denied, err := f.milestoneSvc.Deny(ctx, client, m.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ApprovalDenied, denied.Approved)
		assert.False(t, denied.Completed)
	})

	t.Run("deny reverts an earlier approval", func(t *testing.T) {
		f, m := seedMilestone(t)
		_, err := f.milestoneSvc.Approve(ctx, client, m.ID)
		require.NoError(t, err)

		denied, err := f.milestoneSvc.Deny(ctx, client, m.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ApprovalDenied, denied.Approved)
		assert.False(t, denied.Completed)
	})

	t.Run("approved milestone is frozen for the freelancer", func(t *testing.T) {
		f, m := seedMilestone(t)
		_, err := f.milestoneSvc.Approve(ctx, client, m.ID)
		require.NoError(t, err)

		_, err = f.milestoneSvc.ToggleCompleted(ctx, freelancer, m.ID)
		assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
		_, err = f.milestoneSvc.AttachDeliverable(ctx, freelancer, m.ID, "blob://deliverable-1")
		assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
	})

	t.Run("freelancer attaches a deliverable before approval", func(t *testing.T) {
		f, m := seedMilestone(t)
		updated, err := f.milestoneSvc.AttachDeliverable(ctx, freelancer, m.ID, "blob://deliverable-1")
		require.NoError(t, err)
		require.NotNil(t, updated.FileRef)
		assert.Equal(t, "blob://deliverable-1", *updated.FileRef)
	})

	t.Run("review is client-only, completion is freelancer-only", func(t *testing.T) {
		f, m := seedMilestone(t)
		var authErr *AuthorizationError

		_, err := f.milestoneSvc.Approve(ctx, freelancer, m.ID)
		assert.ErrorAs(t, err, &authErr)
		_, err = f.milestoneSvc.Deny(ctx, freelancer, m.ID)
		assert.ErrorAs(t, err, &authErr)
		_, err = f.milestoneSvc.ToggleCompleted(ctx, client, m.ID)
		assert.ErrorAs(t, err, &authErr)
		_, err = f.milestoneSvc.AttachDeliverable(ctx, client, m.ID, "blob://x")
		assert.ErrorAs(t, err, &authErr)
	})

	t.Run("outsider cannot touch the milestone", func(t *testing.T) {
		f, m := seedMilestone(t)
		var authErr *AuthorizationError

		_, err := f.milestoneSvc.Approve(ctx, actor.Client{UserID: strangerID}, m.ID)
		assert.ErrorAs(t, err, &authErr)
		_, err = f.milestoneSvc.ToggleCompleted(ctx, actor.Freelancer{UserID: strangerID}, m.ID)
		assert.ErrorAs(t, err, &authErr)
	})
}
