package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gigmarket/internal/actor"
	"gigmarket/internal/model"
	"gigmarket/internal/service"
)

type PostingHandler struct {
	postingService    *service.PostingService
	engagementService *service.EngagementService
}

func NewPostingHandler(postingService *service.PostingService, engagementService *service.EngagementService) *PostingHandler {
	return &PostingHandler{
		postingService:    postingService,
		engagementService: engagementService,
	}
}

// Create handles POST /postings
func (h *PostingHandler) Create(c *gin.Context) {
	var req struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Budget      int64    `json:"budget"`
		Category    string   `json:"category"`
		Skills      []string `json:"skills"`
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

	posting, err := h.postingService.Create(c.Request.Context(), who, service.CreatePostingInput{
		Title:       req.Title,
		Description: req.Description,
		Budget:      req.Budget,
		Category:    req.Category,
		Skills:      req.Skills,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, posting)
}

// Publish handles POST /postings/:id/publish
func (h *PostingHandler) Publish(c *gin.Context) {
	h.transition(c, h.postingService.Publish)
}

// Complete handles POST /postings/:id/complete
func (h *PostingHandler) Complete(c *gin.Context) {
	h.transition(c, h.engagementService.Complete)
}

// Reopen handles POST /postings/:id/reopen
func (h *PostingHandler) Reopen(c *gin.Context) {
	h.transition(c, h.engagementService.Reopen)
}

// Delete handles DELETE /postings/:id
func (h *PostingHandler) Delete(c *gin.Context) {
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

	if err := h.postingService.Delete(c.Request.Context(), who, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Get handles GET /postings/:id
func (h *PostingHandler) Get(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	posting, err := h.postingService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, posting)
}

// ListOpen handles GET /postings
func (h *PostingHandler) ListOpen(c *gin.Context) {
	postings, err := h.postingService.ListOpen(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, postings)
}

// ListMine handles GET /my/postings
func (h *PostingHandler) ListMine(c *gin.Context) {
	who, ok := currentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	postings, err := h.postingService.ListMine(c.Request.Context(), who)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, postings)
}

// transition runs one owner-gated posting state change.
func (h *PostingHandler) transition(c *gin.Context, do func(ctx context.Context, who actor.Actor, id int64) (*model.Posting, error)) {
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

	posting, err := do(c.Request.Context(), who, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, posting)
}

func pathID(c *gin.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}
