package services

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"path"
	"strings"

	"gorm.io/gorm"

	"progitek/server/internal/authz"
	"progitek/server/internal/models"
	"progitek/server/internal/workflow"
)

const maxDocumentSize = 50 << 20

// DocumentService keeps file references attached to clients, missions,
// quotes and invoices. Files live in external storage.
type DocumentService struct {
	db       *gorm.DB
	audit    Auditor
	notifier Notifier
}

// NewDocumentService creates a DocumentService. A nil notifier skips owner
// notifications.
func NewDocumentService(db *gorm.DB, audit Auditor, notifier Notifier) *DocumentService {
	return &DocumentService{db: db, audit: audit, notifier: notifier}
}

// DocumentInput describes a file to attach.
type DocumentInput struct {
	EntityType models.DocumentEntity   `json:"entity_type"`
	EntityID   uint                    `json:"entity_id"`
	Category   models.DocumentCategory `json:"category"`
	FileName   string                  `json:"file_name"`
	StorageURL string                  `json:"storage_url"`
	MimeType   string                  `json:"mime_type"`
	SizeBytes  int64                   `json:"size_bytes"`
}

func (in *DocumentInput) normalize() error {
	in.FileName = strings.TrimSpace(in.FileName)
	in.StorageURL = strings.TrimSpace(in.StorageURL)
	in.MimeType = strings.ToLower(strings.TrimSpace(in.MimeType))

	if !in.EntityType.Valid() {
		return fmt.Errorf("%w: unknown entity_type %q", workflow.ErrValidation, in.EntityType)
	}
	if in.EntityID == 0 {
		return fmt.Errorf("%w: entity_id is required", workflow.ErrValidation)
	}
	if in.Category == "" {
		in.Category = models.DocumentOther
	}
	if !in.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", workflow.ErrValidation, in.Category)
	}
	if in.FileName == "" || len(in.FileName) > 255 {
		return fmt.Errorf("%w: file_name is required (max 255 characters)", workflow.ErrValidation)
	}
	if path.Base(in.FileName) != in.FileName || strings.ContainsAny(in.FileName, `\`) {
		return fmt.Errorf("%w: file_name %q must not contain a path", workflow.ErrValidation, in.FileName)
	}
	u, err := url.Parse(in.StorageURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http" && u.Scheme != "s3") || u.Host == "" {
		return fmt.Errorf("%w: storage_url must be an absolute http(s) or s3 URL", workflow.ErrValidation)
	}
	if len(in.StorageURL) > 1000 {
		return fmt.Errorf("%w: storage_url exceeds 1000 characters", workflow.ErrValidation)
	}
	if in.SizeBytes < 0 || in.SizeBytes > maxDocumentSize {
		return fmt.Errorf("%w: size_bytes must be between 0 and %d", workflow.ErrValidation, maxDocumentSize)
	}
	return nil
}

// owner loads the entity a document points at and returns the user to
// notify, if any.
func (s *DocumentService) owner(ctx context.Context, entity models.DocumentEntity, id uint) (uint, error) {
	db := s.db.WithContext(ctx)
	switch entity {
	case models.DocumentEntityClient:
		var client models.Client
		if err := db.Select("id").First(&client, id).Error; err != nil {
			return 0, notFound(err, "client", id)
		}
	case models.DocumentEntityMission:
		var mission models.Mission
		if err := db.Select("id").First(&mission, id).Error; err != nil {
			return 0, notFound(err, "mission", id)
		}
	case models.DocumentEntityQuote:
		var quote models.Quote
		if err := db.Select("id", "created_by_id").First(&quote, id).Error; err != nil {
			return 0, notFound(err, "quote", id)
		}
		return quote.CreatedByID, nil
	case models.DocumentEntityInvoice:
		var invoice models.Invoice
		if err := db.Select("id", "created_by_id").First(&invoice, id).Error; err != nil {
			return 0, notFound(err, "invoice", id)
		}
		return invoice.CreatedByID, nil
	}
	return 0, nil
}

// Attach records a file reference on an existing entity.
func (s *DocumentService) Attach(ctx context.Context, actor Actor, in DocumentInput) (*models.Document, error) {
	if err := actor.require(authz.DocumentManage); err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}
	ownerID, err := s.owner(ctx, in.EntityType, in.EntityID)
	if err != nil {
		return nil, err
	}

	doc := models.Document{
		EntityType:   in.EntityType,
		EntityID:     in.EntityID,
		Category:     in.Category,
		FileName:     in.FileName,
		StorageURL:   in.StorageURL,
		MimeType:     in.MimeType,
		SizeBytes:    in.SizeBytes,
		UploadedByID: actor.UserID,
	}
	if err := s.db.WithContext(ctx).Create(&doc).Error; err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	log.Printf("📎 Document %q attached to %s %d (ID: %d)", doc.FileName, doc.EntityType, doc.EntityID, doc.ID)
	s.audit.LogAction(ctx, auditEntry(actor, AuditCreate, "document", doc.ID, map[string]interface{}{
		"entity_type": doc.EntityType,
		"entity_id":   doc.EntityID,
		"file_name":   doc.FileName,
	}))

	if s.notifier != nil && ownerID != 0 && ownerID != actor.UserID {
		note := NotificationInput{
			Type:    models.NotificationDocumentAdded,
			Title:   "Nouveau document",
			Message: fmt.Sprintf("%s a ajouté %q.", actor.Email, doc.FileName),
			Link:    documentLink(doc.EntityType, doc.EntityID),
		}
		if _, err := s.notifier.Notify(ctx, ownerID, note); err != nil {
			log.Printf("⚠️ Notification for document %d failed: %v", doc.ID, err)
		}
	}
	return s.Get(ctx, doc.ID)
}

func documentLink(entity models.DocumentEntity, id uint) string {
	switch entity {
	case models.DocumentEntityQuote:
		return fmt.Sprintf("/devis/%d", id)
	case models.DocumentEntityInvoice:
		return fmt.Sprintf("/factures/%d", id)
	case models.DocumentEntityMission:
		return fmt.Sprintf("/missions/%d", id)
	}
	return fmt.Sprintf("/clients/%d", id)
}

// List returns the documents of one entity, newest first.
func (s *DocumentService) List(ctx context.Context, entity models.DocumentEntity, entityID uint) ([]models.Document, error) {
	if !entity.Valid() {
		return nil, fmt.Errorf("%w: unknown entity_type %q", workflow.ErrValidation, entity)
	}
	var docs []models.Document
	err := s.db.WithContext(ctx).Preload("UploadedBy").
		Where("entity_type = ? AND entity_id = ?", entity, entityID).
		Order("created_at DESC").Order("id DESC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// Get loads a document.
func (s *DocumentService) Get(ctx context.Context, id uint) (*models.Document, error) {
	var doc models.Document
	if err := s.db.WithContext(ctx).Preload("UploadedBy").First(&doc, id).Error; err != nil {
		return nil, notFound(err, "document", id)
	}
	return &doc, nil
}

// Delete removes a document reference. Only its uploader or an
// administrator may do it; the stored file is left to the storage policy.
func (s *DocumentService) Delete(ctx context.Context, actor Actor, id uint) error {
	if err := actor.require(authz.DocumentManage); err != nil {
		return err
	}
	doc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if doc.UploadedByID != actor.UserID && actor.Role != models.RoleAdmin {
		return fmt.Errorf("%w: only the uploader or an administrator can delete document %d", workflow.ErrForbidden, id)
	}

	if err := s.db.WithContext(ctx).Delete(&models.Document{}, id).Error; err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	s.audit.LogAction(ctx, auditEntry(actor, AuditDelete, "document", id, map[string]interface{}{
		"entity_type": doc.EntityType,
		"entity_id":   doc.EntityID,
		"file_name":   doc.FileName,
	}))
	return nil
}
