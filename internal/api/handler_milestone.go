package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"gigmarket/internal/actor"
	"gigmarket/internal/model"
	"gigmarket/internal/service"
)

type MilestoneHandler struct {
	milestoneService *service.MilestoneService
}

func NewMilestoneHandler(milestoneService *service.MilestoneService) *MilestoneHandler {
	return &MilestoneHandler{milestoneService: milestoneService}
}

// Add handles POST /engagements/:id/milestones
func (h *MilestoneHandler) Add(c *gin.Context) {
	var req struct {
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	who, ok := currentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	engagementID, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	m, err := h.milestoneService.Add(c.Request.Context(), who, engagementID, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// ToggleCompleted handles POST /milestones/:id/toggle
func (h *MilestoneHandler) ToggleCompleted(c *gin.Context) {
	h.transition(c, h.milestoneService.ToggleCompleted)
}

// Approve handles POST /milestones/:id/approve
func (h *MilestoneHandler) Approve(c *gin.Context) {
	h.transition(c, h.milestoneService.Approve)
}

// Deny handles POST /milestones/:id/deny
func (h *MilestoneHandler) Deny(c *gin.Context) {
	h.transition(c, h.milestoneService.Deny)
}

// AttachDeliverable handles POST /milestones/:id/deliverable
func (h *MilestoneHandler) AttachDeliverable(c *gin.Context) {
	var req struct {
		FileRef string `json:"file_ref"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	who, ok := currentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	milestoneID, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	m, err := h.milestoneService.AttachDeliverable(c.Request.Context(), who, milestoneID, req.FileRef)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// ListByEngagement handles GET /engagements/:id/milestones
func (h *MilestoneHandler) ListByEngagement(c *gin.Context) {
	who, ok := currentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	engagementID, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	milestones, err := h.milestoneService.ListByEngagement(c.Request.Context(), who, engagementID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, milestones)
}

func (h *MilestoneHandler) transition(c *gin.Context, do func(ctx context.Context, who actor.Actor, id int64) (*model.Milestone, error)) {
	who, ok := currentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	m, err := do(c.Request.Context(), who, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}
