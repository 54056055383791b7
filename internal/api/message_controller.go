package api

import (
	"github.com/gin-gonic/gin"

	"progitek/server/internal/services"
)

// MessageController exposes the internal messaging of the caller.
type MessageController struct {
	messages *services.MessageService
}

// NewMessageController creates a MessageController.
func NewMessageController(messages *services.MessageService) *MessageController {
	return &MessageController{messages: messages}
}

// GetMessages lists the inbox, or the sent box, with the unread count.
// GET /api/v1/messages?box=sent&unread=1&limit=&offset=
func (mc *MessageController) GetMessages(c *gin.Context) {
	actor := actorFrom(c)
	ctx := c.Request.Context()
	f := services.MessageFilter{
		Sent:       c.Query("box") == "sent",
		UnreadOnly: queryBool(c, "unread"),
		Limit:      queryInt(c, "limit"),
		Offset:     queryInt(c, "offset"),
	}

	list, total, err := mc.messages.List(ctx, actor, f)
	if err != nil {
		respondError(c, err)
		return
	}
	unread, err := mc.messages.UnreadCount(ctx, actor)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"items": list, "total": total, "unread": unread})
}

// GetMessage returns a message the caller sent or received.
// GET /api/v1/messages/:id
func (mc *MessageController) GetMessage(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	msg, err := mc.messages.Get(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, msg)
}

// SendMessage sends a message to another user.
// POST /api/v1/messages
func (mc *MessageController) SendMessage(c *gin.Context) {
	var req services.MessageInput
	if !bindJSON(c, &req) {
		return
	}
	msg, err := mc.messages.Send(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, msg)
}

// MarkRead marks a received message as read.
// POST /api/v1/messages/:id/read
func (mc *MessageController) MarkRead(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	msg, err := mc.messages.MarkRead(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, msg)
}
