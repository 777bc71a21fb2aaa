package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gigmarket/internal/service"
)

type ChatHandler struct {
	chatService *service.ChatService
}

func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// GetOrCreate handles POST /conversations
func (h *ChatHandler) GetOrCreate(c *gin.Context) {
	var req struct {
		OtherID string `json:"other_id"`
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

	conversation, err := h.chatService.GetOrCreate(c.Request.Context(), who, req.OtherID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conversation)
}

// List handles GET /conversations
func (h *ChatHandler) List(c *gin.Context) {
	who, ok := currentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	conversations, err := h.chatService.ListConversations(c.Request.Context(), who)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conversations)
}

// SendMessage handles POST /conversations/:id/messages
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req struct {
		Body string `json:"body"`
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
	conversationID, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	message, err := h.chatService.SendMessage(c.Request.Context(), who, conversationID, req.Body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, message)
}

// ListMessages handles GET /conversations/:id/messages
func (h *ChatHandler) ListMessages(c *gin.Context) {
	who, ok := currentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	conversationID, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	messages, err := h.chatService.ListMessages(c.Request.Context(), who, conversationID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}
