package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dm-service/internal/middleware"
	"dm-service/internal/models"
	"dm-service/internal/observability"
	"dm-service/internal/services"
	"dm-service/internal/telemetry"
)

// MessageService is the durable messaging surface the handler needs.
type MessageService interface {
	Send(ctx context.Context, senderID, recipientID, content string) (models.Message, error)
	Conversation(ctx context.Context, callerID, otherID string) ([]models.Message, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	Roster(ctx context.Context, userID string) ([]models.User, error)
}

type MessageHandler struct {
	messages MessageService
	audit    *telemetry.AuditEmitter
}

func NewMessageHandler(messages MessageService, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{messages: messages, audit: audit}
}

type rosterEntry struct {
	ID       string    `json:"id"`
	LegacyID string    `json:"_id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}

// ListUsers returns everyone except the caller with live presence.
func (h *MessageHandler) ListUsers(c *gin.Context) {
	users, err := h.messages.Roster(c.Request.Context(), c.GetString(middleware.UserIDKey))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}

	entries := make([]rosterEntry, 0, len(users))
	for _, u := range users {
		entries = append(entries, rosterEntry{
			ID:       u.ID,
			LegacyID: u.ID,
			Username: u.Username,
			Email:    u.Email,
			IsOnline: u.IsOnline,
			LastSeen: u.LastSeen,
		})
	}
	c.JSON(http.StatusOK, gin.H{"users": entries})
}

// Conversation returns the history with :recipientId and marks incoming
// messages read.
func (h *MessageHandler) Conversation(c *gin.Context) {
	msgs, err := h.messages.Conversation(c.Request.Context(), c.GetString(middleware.UserIDKey), c.Param("recipientId"))
	if errors.Is(err, services.ErrInvalidRecipientID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid recipient ID"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *MessageHandler) Send(c *gin.Context) {
	var req struct {
		RecipientID models.UserRef `json:"recipientId"`
		Content     string         `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.RecipientID.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Recipient ID is required"})
		return
	}

	senderID := c.GetString(middleware.UserIDKey)
	msg, err := h.messages.Send(c.Request.Context(), senderID, req.RecipientID.ID(), req.Content)
	switch {
	case errors.Is(err, services.ErrInvalidContent):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Content must be a non-empty string of at most 1000 characters"})
		return
	case errors.Is(err, services.ErrSelfMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot send a message to yourself"})
		return
	case errors.Is(err, services.ErrRecipientNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Recipient not found"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}

	observability.IncMessageSent("http")
	h.audit.Emit(c.Request.Context(), "INFO", "message sent", requestIDFromContext(c), &senderID, map[string]any{
		"message_id":   msg.ID,
		"recipient_id": msg.RecipientID,
	})
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *MessageHandler) UnreadCount(c *gin.Context) {
	count, err := h.messages.UnreadCount(c.Request.Context(), c.GetString(middleware.UserIDKey))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}
