package models

import (
	"time"

	"gorm.io/gorm"
)

// Client is a customer company or person the services are sold to.
type Client struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	Name      string         `json:"name" gorm:"type:varchar(255);not null;index"`
	Email     string         `json:"email" gorm:"type:varchar(255);index"`
	Phone     string         `json:"phone" gorm:"type:varchar(30)"`
	Address   string         `json:"address" gorm:"type:text"`
	City      string         `json:"city" gorm:"type:varchar(120)"`
	Notes     string         `json:"notes" gorm:"type:text"`
	IsActive  bool           `json:"is_active" gorm:"not null;default:true"`
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Client) TableName() string {
	return "clients"
}
