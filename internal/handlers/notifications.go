package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dm-service/internal/middleware"
	"dm-service/internal/models"
	"dm-service/internal/push"
	"dm-service/internal/repositories"
)

// NotificationHandler manages the caller's Web Push subscription.
type NotificationHandler struct {
	users     repositories.UserRepository
	notifier  push.Notifier
	publicKey string
}

func NewNotificationHandler(users repositories.UserRepository, notifier push.Notifier, publicKey string) *NotificationHandler {
	return &NotificationHandler{users: users, notifier: notifier, publicKey: publicKey}
}

func (h *NotificationHandler) VAPIDPublicKey(c *gin.Context) {
	if h.publicKey == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Push notifications not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"publicKey": h.publicKey})
}

func (h *NotificationHandler) Subscribe(c *gin.Context) {
	var req struct {
		Subscription *models.PushSubscription `json:"subscription"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Subscription == nil || !req.Subscription.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Subscription data required"})
		return
	}

	err := h.users.SetPushSubscription(c.Request.Context(), c.GetString(middleware.UserIDKey), *req.Subscription)
	if errors.Is(err, repositories.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *NotificationHandler) Unsubscribe(c *gin.Context) {
	if err := h.users.ClearPushSubscription(c.Request.Context(), c.GetString(middleware.UserIDKey), ""); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SendTest pushes a fixed notification to the caller and waits for the result.
func (h *NotificationHandler) SendTest(c *gin.Context) {
	sent := h.notifier.Notify(c.Request.Context(), c.GetString(middleware.UserIDKey), push.Notification{
		Title: "Test Notification",
		Body:  "Push notifications are working",
		Tag:   "dm-test",
		Data:  map[string]any{"url": "/"},
	})
	c.JSON(http.StatusOK, gin.H{"success": sent})
}
