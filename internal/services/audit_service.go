package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"gorm.io/gorm"

	"progitek/server/internal/models"
)

// Audit action types.
const (
	AuditCreate         = "create"
	AuditUpdate         = "update"
	AuditDelete         = "delete"
	AuditSubmit         = "submit"
	AuditValidate       = "validate"
	AuditClientResponse = "client_response"
	AuditInvoice        = "invoice"
	AuditStatusChange   = "status_change"
	AuditPayment        = "payment"
	AuditLogin          = "login"
)

// AuditEntry is one record for the audit sink. Details may be a string or
// any JSON-encodable value.
type AuditEntry struct {
	UserID     *uint
	ActionType string
	EntityType string
	EntityID   uint
	Details    interface{}
	IPAddress  string
}

// Auditor is the audit sink consumed by the business services.
type Auditor interface {
	LogAction(ctx context.Context, entry AuditEntry)
}

// AuditService appends audit rows.
type AuditService struct {
	db *gorm.DB
}

// NewAuditService creates an AuditService.
func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db}
}

// LogAction inserts one audit row. Failures are logged and swallowed; the
// operation being audited has already succeeded.
func (s *AuditService) LogAction(ctx context.Context, entry AuditEntry) {
	row := models.AuditLog{
		UserID:     entry.UserID,
		ActionType: entry.ActionType,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Details:    detailsString(entry.Details),
		IPAddress:  entry.IPAddress,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		log.Printf("⚠️ Audit log failed (%s %s #%d): %v", entry.ActionType, entry.EntityType, entry.EntityID, err)
	}
}

func detailsString(details interface{}) string {
	switch d := details.(type) {
	case nil:
		return ""
	case string:
		return d
	default:
		b, err := json.Marshal(d)
		if err != nil {
			return fmt.Sprintf("%v", d)
		}
		return string(b)
	}
}

// AuditFilter narrows List.
type AuditFilter struct {
	EntityType string
	EntityID   uint
	UserID     uint
	ActionType string
	Limit      int
	Offset     int
}

// List returns audit rows, newest first.
func (s *AuditService) List(ctx context.Context, f AuditFilter) ([]models.AuditLog, error) {
	query := s.db.WithContext(ctx).Model(&models.AuditLog{}).
		Order("created_at DESC, id DESC").
		Limit(pageLimit(f.Limit)).
		Offset(f.Offset)

	if f.EntityType != "" {
		query = query.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID != 0 {
		query = query.Where("entity_id = ?", f.EntityID)
	}
	if f.UserID != 0 {
		query = query.Where("user_id = ?", f.UserID)
	}
	if f.ActionType != "" {
		query = query.Where("action_type = ?", f.ActionType)
	}

	var logs []models.AuditLog
	if err := query.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return logs, nil
}

func auditEntry(actor Actor, action, entity string, id uint, details interface{}) AuditEntry {
	return AuditEntry{
		UserID:     actor.userIDPtr(),
		ActionType: action,
		EntityType: entity,
		EntityID:   id,
		Details:    details,
		IPAddress:  actor.IP,
	}
}
