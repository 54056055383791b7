package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"progitek/server/internal/authz"
	"progitek/server/internal/models"
	"progitek/server/internal/workflow"
)

const (
	maxSubjectLength = 255
	maxBodyLength    = 10000
)

// MessageService handles internal messages between users.
type MessageService struct {
	db       *gorm.DB
	audit    Auditor
	notifier Notifier
	now      func() time.Time
}

// NewMessageService creates a MessageService.
func NewMessageService(db *gorm.DB, audit Auditor, notifier Notifier) *MessageService {
	return &MessageService{db: db, audit: audit, notifier: notifier, now: time.Now}
}

// MessageInput is the content of a new message.
type MessageInput struct {
	RecipientID uint   `json:"recipient_id"`
	MissionID   *uint  `json:"mission_id"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
}

// MessageFilter selects messages of one mailbox.
type MessageFilter struct {
	Sent       bool // outbox instead of inbox
	UnreadOnly bool
	Limit      int
	Offset     int
}

func (s *MessageService) validate(ctx context.Context, actor Actor, in *MessageInput) error {
	in.Subject = strings.TrimSpace(in.Subject)
	in.Body = strings.TrimSpace(in.Body)
	if in.Body == "" {
		return fmt.Errorf("%w: body is required", workflow.ErrValidation)
	}
	if utf8.RuneCountInString(in.Subject) > maxSubjectLength {
		return fmt.Errorf("%w: subject exceeds %d characters", workflow.ErrValidation, maxSubjectLength)
	}
	if utf8.RuneCountInString(in.Body) > maxBodyLength {
		return fmt.Errorf("%w: body exceeds %d characters", workflow.ErrValidation, maxBodyLength)
	}
	if in.RecipientID == 0 {
		return fmt.Errorf("%w: recipient_id is required", workflow.ErrValidation)
	}
	if in.RecipientID == actor.UserID {
		return fmt.Errorf("%w: cannot send a message to yourself", workflow.ErrValidation)
	}

	var recipient models.User
	if err := s.db.WithContext(ctx).Select("id", "is_active").First(&recipient, in.RecipientID).Error; err != nil {
		return notFound(err, "user", in.RecipientID)
	}
	if !recipient.IsActive {
		return fmt.Errorf("%w: user %d is deactivated", workflow.ErrValidation, in.RecipientID)
	}
	if in.MissionID != nil {
		var mission models.Mission
		if err := s.db.WithContext(ctx).Select("id").First(&mission, *in.MissionID).Error; err != nil {
			return notFound(err, "mission", *in.MissionID)
		}
	}
	return nil
}

// Send stores a message and notifies its recipient.
func (s *MessageService) Send(ctx context.Context, actor Actor, in MessageInput) (*models.Message, error) {
	if err := actor.require(authz.MessageSend); err != nil {
		return nil, err
	}
	if err := s.validate(ctx, actor, &in); err != nil {
		return nil, err
	}

	msg := models.Message{
		SenderID:    actor.UserID,
		RecipientID: in.RecipientID,
		MissionID:   in.MissionID,
		Subject:     in.Subject,
		Body:        in.Body,
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	log.Printf("✉️ Message %d sent: user %d -> user %d", msg.ID, msg.SenderID, msg.RecipientID)
	s.audit.LogAction(ctx, auditEntry(actor, AuditCreate, "message", msg.ID, map[string]interface{}{
		"recipient_id": msg.RecipientID,
		"mission_id":   msg.MissionID,
	}))

	title := "Nouveau message"
	if msg.Subject != "" {
		title = "Nouveau message : " + msg.Subject
	}
	note := NotificationInput{
		Type:    models.NotificationMessage,
		Title:   title,
		Message: fmt.Sprintf("%s vous a envoyé un message.", actor.Email),
		Link:    fmt.Sprintf("/messages/%d", msg.ID),
	}
	if _, err := s.notifier.Notify(ctx, msg.RecipientID, note); err != nil {
		log.Printf("⚠️ Notification for message %d failed: %v", msg.ID, err)
	}
	return s.Get(ctx, actor, msg.ID)
}

// List returns the actor's inbox, or outbox when f.Sent, newest first.
func (s *MessageService) List(ctx context.Context, actor Actor, f MessageFilter) ([]models.Message, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Message{})
	if f.Sent {
		query = query.Where("sender_id = ?", actor.UserID)
	} else {
		query = query.Where("recipient_id = ?", actor.UserID)
	}
	if f.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}
	var messages []models.Message
	err := query.Preload("Sender").Preload("Recipient").
		Order("created_at DESC").Order("id DESC").
		Limit(pageLimit(f.Limit)).Offset(f.Offset).
		Find(&messages).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}
	return messages, total, nil
}

// Get loads a message the actor sent or received. Anybody else gets
// ErrNotFound so message ids do not leak.
func (s *MessageService) Get(ctx context.Context, actor Actor, id uint) (*models.Message, error) {
	var msg models.Message
	err := s.db.WithContext(ctx).Preload("Sender").Preload("Recipient").
		Where("sender_id = ? OR recipient_id = ?", actor.UserID, actor.UserID).
		First(&msg, id).Error
	if err != nil {
		return nil, notFound(err, "message", id)
	}
	return &msg, nil
}

// MarkRead flags a received message as read. Marking twice keeps the first
// read time.
func (s *MessageService) MarkRead(ctx context.Context, actor Actor, id uint) (*models.Message, error) {
	msg, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if msg.RecipientID != actor.UserID {
		return nil, fmt.Errorf("%w: only the recipient can mark message %d as read", workflow.ErrForbidden, id)
	}
	if msg.IsRead {
		return msg, nil
	}

	readAt := s.now().UTC()
	err = s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND is_read = ?", id, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": readAt}).Error
	if err != nil {
		return nil, fmt.Errorf("mark message %d read: %w", id, err)
	}
	return s.Get(ctx, actor, id)
}

// UnreadCount counts the actor's unread received messages.
func (s *MessageService) UnreadCount(ctx context.Context, actor Actor) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("recipient_id = ? AND is_read = ?", actor.UserID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count unread messages: %w", err)
	}
	return count, nil
}
