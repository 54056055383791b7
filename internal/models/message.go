package models

import "time"

// Message is an internal message from one user to another, optionally about
// a mission.
type Message struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	SenderID    uint       `json:"sender_id" gorm:"not null;index"`
	Sender      *User      `json:"sender,omitempty" gorm:"foreignKey:SenderID"`
	RecipientID uint       `json:"recipient_id" gorm:"not null;index:idx_messages_recipient_read"`
	Recipient   *User      `json:"recipient,omitempty" gorm:"foreignKey:RecipientID"`
	MissionID   *uint      `json:"mission_id,omitempty" gorm:"index"`
	Subject     string     `json:"subject" gorm:"type:varchar(255)"`
	Body        string     `json:"body" gorm:"type:text;not null"`
	IsRead      bool       `json:"is_read" gorm:"not null;default:false;index:idx_messages_recipient_read"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime;index"`
}

func (Message) TableName() string {
	return "messages"
}
