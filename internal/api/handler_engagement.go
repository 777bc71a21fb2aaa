package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gigmarket/internal/service"
)

type EngagementHandler struct {
	engagementService *service.EngagementService
}

func NewEngagementHandler(engagementService *service.EngagementService) *EngagementHandler {
	return &EngagementHandler{engagementService: engagementService}
}

// KickOff handles POST /proposals/:id/kickoff, the compound approval that
// starts the engagement.
func (h *EngagementHandler) KickOff(c *gin.Context) {
	who, ok := currentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	proposalID, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	engagement, err := h.engagementService.KickOff(c.Request.Context(), who, proposalID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, engagement)
}

// GetByPosting handles GET /postings/:id/engagement
func (h *EngagementHandler) GetByPosting(c *gin.Context) {
	who, ok := currentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	postingID, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	engagement, err := h.engagementService.GetByPosting(c.Request.Context(), who, postingID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, engagement)
}

// ListMine handles GET /engagements
func (h *EngagementHandler) ListMine(c *gin.Context) {
	who, ok := currentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	engagements, err := h.engagementService.ListMine(c.Request.Context(), who)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, engagements)
}
