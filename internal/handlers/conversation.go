package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/service"
	"messaging-service/internal/telemetry"
)

// ConversationHandler serves conversation listing and creation.
type ConversationHandler struct {
	svc   *service.MessagingService
	audit *telemetry.AuditEmitter
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(svc *service.MessagingService, audit *telemetry.AuditEmitter) *ConversationHandler {
	return &ConversationHandler{svc: svc, audit: audit}
}

// List returns the caller's conversations with participants and messages
// expanded, most recent activity first.
func (h *ConversationHandler) List(c *gin.Context) {
	userID := c.GetInt("userID")

	views, err := h.svc.Conversations(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": views})
}

// Start ensures a conversation with the recipient exists and returns it.
// Calling it again for the same pair returns the same conversation.
func (h *ConversationHandler) Start(c *gin.Context) {
	var req struct {
		RecipientID int `json:"recipient_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	conv, err := h.svc.EnsureConversation(c.Request.Context(), userID, req.RecipientID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrSelfConversation) || errors.Is(err, service.ErrMissingParticipant) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	h.audit.Emit(c.Request.Context(), requestIDFromContext(c), &userID, telemetry.AuditPayload{
		Action:         "conversation_started",
		ConversationID: conv.ID,
	})

	c.JSON(http.StatusOK, gin.H{"conversation_id": conv.ID})
}
