package models

import "time"

// Document number prefixes.
const (
	PrefixQuote   = "DEV"
	PrefixInvoice = "FAC"
)

// DocumentSequence holds the last number issued for a prefix in a calendar year.
type DocumentSequence struct {
	Prefix    string    `json:"prefix" gorm:"type:varchar(10);primaryKey"`
	Year      int       `json:"year" gorm:"primaryKey;autoIncrement:false"`
	LastValue int64     `json:"last_value" gorm:"not null;default:0"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (DocumentSequence) TableName() string {
	return "document_sequences"
}
