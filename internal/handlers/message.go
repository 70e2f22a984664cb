package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/models"
	"messaging-service/internal/service"
	"messaging-service/internal/telemetry"
)

const defaultHistoryLimit = 50

// MessageHandler serves the send and history endpoints.
type MessageHandler struct {
	svc   *service.MessagingService
	audit *telemetry.AuditEmitter
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(svc *service.MessagingService, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{svc: svc, audit: audit}
}

// Send persists a message to the recipient in the path and pushes it to
// the recipient's live connection when present. The response reflects
// persistence only; push delivery is best effort.
func (h *MessageHandler) Send(c *gin.Context) {
	recipientID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid recipient id"})
		return
	}
	senderID := c.GetInt("userID")

	var req struct {
		Message string `json:"message" binding:"required"`
		Kind    string `json:"kind"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.svc.Send(c.Request.Context(), senderID, recipientID, req.Message, models.MessageKind(req.Kind))
	if err != nil {
		c.JSON(sendStatus(err), gin.H{"error": err.Error()})
		return
	}

	h.audit.Emit(c.Request.Context(), requestIDFromContext(c), &senderID, telemetry.AuditPayload{
		Action:         "message_sent",
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
	})

	resp := gin.H{"message": msg}
	if view, err := h.svc.View(c.Request.Context(), msg.ConversationID); err == nil {
		resp["conversation"] = view
	} else {
		// message is persisted; respond without the expanded conversation
		log.Printf("conversation expansion failed: %v", err)
	}
	c.JSON(http.StatusCreated, resp)
}

// History returns the caller's messages with the user in the path,
// oldest first. No conversation yet yields an empty list.
func (h *MessageHandler) History(c *gin.Context) {
	otherID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	userID := c.GetInt("userID")

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	msgs, err := h.svc.History(c.Request.Context(), userID, otherID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func sendStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrEmptyBody),
		errors.Is(err, service.ErrInvalidKind),
		errors.Is(err, service.ErrSelfConversation),
		errors.Is(err, service.ErrMissingParticipant):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
