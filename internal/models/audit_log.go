package models

import "time"

// AuditLog is one append-only record of a mutating operation.
type AuditLog struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	UserID     *uint     `json:"user_id,omitempty" gorm:"index"`
	ActionType string    `json:"action_type" gorm:"type:varchar(50);not null;index"` // create, update, submit, ...
	EntityType string    `json:"entity_type" gorm:"type:varchar(50);not null;index:idx_audit_entity"`
	EntityID   uint      `json:"entity_id" gorm:"index:idx_audit_entity"`
	Details    string    `json:"details" gorm:"type:text"`
	IPAddress  string    `json:"ip_address" gorm:"type:varchar(64)"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime;index"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
