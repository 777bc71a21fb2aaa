package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gigmarket/internal/service"
)

type ProposalHandler struct {
	proposalService *service.ProposalService
}

func NewProposalHandler(proposalService *service.ProposalService) *ProposalHandler {
	return &ProposalHandler{proposalService: proposalService}
}

// Submit handles POST /postings/:id/proposals
func (h *ProposalHandler) Submit(c *gin.Context) {
	var req struct {
		Content string `json:"content"`
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
	postingID, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	proposal, err := h.proposalService.Submit(c.Request.Context(), who, postingID, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, proposal)
}

// Deny handles POST /proposals/:id/deny
func (h *ProposalHandler) Deny(c *gin.Context) {
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

	proposal, err := h.proposalService.Deny(c.Request.Context(), who, proposalID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, proposal)
}

// ListByPosting handles GET /postings/:id/proposals
func (h *ProposalHandler) ListByPosting(c *gin.Context) {
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

	proposals, err := h.proposalService.ListByPosting(c.Request.Context(), who, postingID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, proposals)
}

// ListMine handles GET /my/proposals
func (h *ProposalHandler) ListMine(c *gin.Context) {
	who, ok := currentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	proposals, err := h.proposalService.ListMine(c.Request.Context(), who)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, proposals)
}
