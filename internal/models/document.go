package models

import (
	"time"

	"gorm.io/gorm"
)

// DocumentEntity is the kind of record a document is attached to.
type DocumentEntity string

const (
	DocumentEntityClient  DocumentEntity = "client"
	DocumentEntityMission DocumentEntity = "mission"
	DocumentEntityQuote   DocumentEntity = "quote"
	DocumentEntityInvoice DocumentEntity = "invoice"
)

// Valid reports whether e is a known entity kind.
func (e DocumentEntity) Valid() bool {
	switch e {
	case DocumentEntityClient, DocumentEntityMission, DocumentEntityQuote, DocumentEntityInvoice:
		return true
	}
	return false
}

// DocumentCategory classifies a file for the UI.
type DocumentCategory string

const (
	DocumentContract  DocumentCategory = "contrat"
	DocumentWorkOrder DocumentCategory = "bon_intervention"
	DocumentReceipt   DocumentCategory = "justificatif"
	DocumentPhoto     DocumentCategory = "photo"
	DocumentOther     DocumentCategory = "autre"
)

// Valid reports whether c is a known category.
func (c DocumentCategory) Valid() bool {
	switch c {
	case DocumentContract, DocumentWorkOrder, DocumentReceipt, DocumentPhoto, DocumentOther:
		return true
	}
	return false
}

// Document is the metadata of a file kept in external storage. The file
// itself never goes through the API; StorageURL points at it.
type Document struct {
	ID           uint             `json:"id" gorm:"primaryKey"`
	EntityType   DocumentEntity   `json:"entity_type" gorm:"type:varchar(20);not null;index:idx_documents_entity"`
	EntityID     uint             `json:"entity_id" gorm:"not null;index:idx_documents_entity"`
	Category     DocumentCategory `json:"category" gorm:"type:varchar(30);not null;default:'autre'"`
	FileName     string           `json:"file_name" gorm:"type:varchar(255);not null"`
	StorageURL   string           `json:"storage_url" gorm:"type:varchar(1000);not null"`
	MimeType     string           `json:"mime_type,omitempty" gorm:"type:varchar(100)"`
	SizeBytes    int64            `json:"size_bytes"`
	UploadedByID uint             `json:"uploaded_by_id" gorm:"not null;index"`
	UploadedBy   *User            `json:"uploaded_by,omitempty" gorm:"foreignKey:UploadedByID"`
	CreatedAt    time.Time        `json:"created_at" gorm:"autoCreateTime"`
}

func (Document) TableName() string {
	return "documents"
}

// BeforeCreate applies defaults.
func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.Category == "" {
		d.Category = DocumentOther
	}
	return nil
}
