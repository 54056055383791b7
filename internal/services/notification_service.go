package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"progitek/server/internal/models"
	"progitek/server/internal/utils"
	"progitek/server/internal/workflow"
)

// NotificationChannel is the Redis Pub/Sub channel used to fan notifications
// out to every API instance.
const NotificationChannel = "progitek:notifications"

// UserPusher delivers a realtime message to the sockets of one user.
type UserPusher interface {
	SendToUser(userID uint, message []byte)
}

// PushMessage is the JSON written on the websocket.
type PushMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type fanoutEnvelope struct {
	UserID       uint                `json:"user_id"`
	Notification models.Notification `json:"notification"`
}

// NotificationService stores in-app notifications and pushes them to the
// connected users. Redis and the mailer are optional.
type NotificationService struct {
	db     *gorm.DB
	pusher UserPusher
	redis  *utils.RedisClient
	mailer Mailer
}

// NewNotificationService creates a NotificationService. pusher, redis and
// mailer may be nil.
func NewNotificationService(db *gorm.DB, pusher UserPusher, redis *utils.RedisClient, mailer Mailer) *NotificationService {
	return &NotificationService{
		db:     db,
		pusher: pusher,
		redis:  redis,
		mailer: mailer,
	}
}

// NotificationInput is the content of a notification.
type NotificationInput struct {
	Type    models.NotificationType
	Title   string
	Message string
	Link    string
	Email   bool // also send it by mail
}

// Notify stores a notification for userID and delivers it.
func (s *NotificationService) Notify(ctx context.Context, userID uint, in NotificationInput) (*models.Notification, error) {
	if in.Type == "" {
		in.Type = models.NotificationGeneric
	}
	n := models.Notification{
		UserID:  userID,
		Type:    in.Type,
		Title:   in.Title,
		Message: in.Message,
		Link:    in.Link,
	}
	if err := s.db.WithContext(ctx).Create(&n).Error; err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	s.deliver(ctx, n)

	if in.Email && s.mailer != nil {
		var user models.User
		if err := s.db.WithContext(ctx).Select("id", "email").First(&user, userID).Error; err == nil && user.Email != "" {
			go func(to string) {
				if err := s.mailer.SendNotification(to, in.Title, in.Message); err != nil {
					log.Printf("⚠️ Notification mail to %s failed: %v", to, err)
				}
			}(user.Email)
		}
	}

	return &n, nil
}

// NotifyRoles notifies every active user holding one of roles, except skipUserID.
func (s *NotificationService) NotifyRoles(ctx context.Context, roles []models.UserRole, skipUserID uint, in NotificationInput) int {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("role IN ? AND is_active = ?", roles, true).
		Pluck("id", &ids).Error
	if err != nil {
		log.Printf("⚠️ Notification recipients lookup failed: %v", err)
		return 0
	}

	sent := 0
	for _, id := range ids {
		if id == skipUserID {
			continue
		}
		if _, err := s.Notify(ctx, id, in); err != nil {
			log.Printf("⚠️ Notification to user %d failed: %v", id, err)
			continue
		}
		sent++
	}
	return sent
}

// deliver publishes on Redis when available (every instance, including this
// one, then pushes to its local sockets), otherwise pushes directly.
func (s *NotificationService) deliver(ctx context.Context, n models.Notification) {
	if s.redis != nil {
		payload, err := json.Marshal(fanoutEnvelope{UserID: n.UserID, Notification: n})
		if err == nil {
			if err = s.redis.Publish(ctx, NotificationChannel, payload); err == nil {
				return
			}
		}
		log.Printf("⚠️ Notification fan-out failed, pushing locally: %v", err)
	}
	s.pushLocal(n)
}

func (s *NotificationService) pushLocal(n models.Notification) {
	if s.pusher == nil {
		return
	}
	msg, err := json.Marshal(PushMessage{Type: "notification", Data: n})
	if err != nil {
		log.Printf("⚠️ Notification %d not encoded: %v", n.ID, err)
		return
	}
	s.pusher.SendToUser(n.UserID, msg)
}

// RunFanout relays notifications published by any instance to the local
// sockets until ctx is cancelled. It returns immediately without Redis.
func (s *NotificationService) RunFanout(ctx context.Context) {
	if s.redis == nil {
		return
	}
	messages, closeSub := s.redis.Subscribe(ctx, NotificationChannel)
	defer func() {
		if err := closeSub(); err != nil {
			log.Printf("⚠️ Notification subscription close: %v", err)
		}
	}()
	log.Printf("✅ Notification fan-out subscribed to %s", NotificationChannel)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var env fanoutEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("⚠️ Bad notification payload: %v", err)
				continue
			}
			s.pushLocal(env.Notification)
		}
	}
}

// List returns the notifications of userID, newest first.
func (s *NotificationService) List(ctx context.Context, userID uint, unreadOnly bool, limit int) ([]models.Notification, error) {
	query := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(pageLimit(limit))
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var list []models.Notification
	if err := query.Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return list, nil
}

// UnreadCount returns how many notifications userID has not read.
func (s *NotificationService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return count, nil
}

// MarkRead marks one notification of userID as read.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id uint) error {
	var n models.Notification
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&n, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: notification %d", workflow.ErrNotFound, id)
		}
		return fmt.Errorf("load notification: %w", err)
	}
	if n.IsRead {
		return nil
	}
	if err := s.db.WithContext(ctx).Model(&n).Update("is_read", true).Error; err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// MarkAllRead marks every notification of userID as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, fmt.Errorf("mark notifications read: %w", res.Error)
	}
	return res.RowsAffected, nil
}
