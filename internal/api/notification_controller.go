package api

import (
	"github.com/gin-gonic/gin"

	"progitek/server/internal/services"
)

// NotificationController exposes the in-app notifications of the caller.
type NotificationController struct {
	notifications *services.NotificationService
}

// NewNotificationController creates a NotificationController.
func NewNotificationController(notifications *services.NotificationService) *NotificationController {
	return &NotificationController{notifications: notifications}
}

// GetNotifications lists the caller's notifications with the unread count.
// GET /api/v1/notifications?unread=1&limit=
func (nc *NotificationController) GetNotifications(c *gin.Context) {
	actor := actorFrom(c)
	ctx := c.Request.Context()

	list, err := nc.notifications.List(ctx, actor.UserID, queryBool(c, "unread"), queryInt(c, "limit"))
	if err != nil {
		respondError(c, err)
		return
	}
	unread, err := nc.notifications.UnreadCount(ctx, actor.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"items": list, "unread": unread})
}

// MarkRead marks one notification as read.
// POST /api/v1/notifications/:id/read
func (nc *NotificationController) MarkRead(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := nc.notifications.MarkRead(c.Request.Context(), actorFrom(c).UserID, id); err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "Notification lue")
}

// MarkAllRead marks every notification of the caller as read.
// POST /api/v1/notifications/read-all
func (nc *NotificationController) MarkAllRead(c *gin.Context) {
	n, err := nc.notifications.MarkAllRead(c.Request.Context(), actorFrom(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"updated": n})
}
