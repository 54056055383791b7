package models

import "time"

// NotificationType groups notifications for the UI.
type NotificationType string

const (
	NotificationQuoteSubmitted NotificationType = "devis_soumis"
	NotificationQuoteValidated NotificationType = "devis_valide"
	NotificationQuoteRejected  NotificationType = "devis_refuse"
	NotificationQuoteAnswered  NotificationType = "devis_reponse_client"
	NotificationInvoiceCreated NotificationType = "facture_creee"
	NotificationInvoicePaid    NotificationType = "facture_payee"
	NotificationInvoiceOverdue NotificationType = "facture_en_retard"
	NotificationMessage        NotificationType = "message"
	NotificationDocumentAdded  NotificationType = "document_ajoute"
	NotificationGeneric        NotificationType = "info"
)

// Notification is an in-app message for one user.
type Notification struct {
	ID        uint             `json:"id" gorm:"primaryKey"`
	UserID    uint             `json:"user_id" gorm:"not null;index:idx_notifications_user_read"`
	Type      NotificationType `json:"type" gorm:"type:varchar(40);not null"`
	Title     string           `json:"title" gorm:"type:varchar(255);not null"`
	Message   string           `json:"message" gorm:"type:text"`
	Link      string           `json:"link,omitempty" gorm:"type:varchar(255)"`
	IsRead    bool             `json:"is_read" gorm:"not null;default:false;index:idx_notifications_user_read"`
	CreatedAt time.Time        `json:"created_at" gorm:"autoCreateTime;index"`
}

func (Notification) TableName() string {
	return "notifications"
}
