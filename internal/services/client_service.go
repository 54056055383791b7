package services

import (
	"context"
	"fmt"
	"log"
	"net/mail"
	"strings"

	"gorm.io/gorm"

	"progitek/server/internal/authz"
	"progitek/server/internal/models"
	"progitek/server/internal/workflow"
)

// ClientService manages customers.
type ClientService struct {
	db    *gorm.DB
	audit Auditor
}

// NewClientService creates a ClientService.
func NewClientService(db *gorm.DB, audit Auditor) *ClientService {
	return &ClientService{db: db, audit: audit}
}

// ClientInput is the editable content of a client.
type ClientInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	City     string `json:"city"`
	Notes    string `json:"notes"`
	IsActive *bool  `json:"is_active"`
}

func (in *ClientInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	if in.Name == "" {
		return fmt.Errorf("%w: name is required", workflow.ErrValidation)
	}
	if in.Email != "" {
		if _, err := mail.ParseAddress(in.Email); err != nil {
			return fmt.Errorf("%w: invalid email %q", workflow.ErrValidation, in.Email)
		}
	}
	return nil
}

// List returns clients ordered by name. search matches name, email or city.
func (s *ClientService) List(ctx context.Context, search string, activeOnly bool, limit, offset int) ([]models.Client, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Client{})
	if search = strings.TrimSpace(search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ? OR LOWER(city) LIKE ?", like, like, like)
	}
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count clients: %w", err)
	}
	var clients []models.Client
	if err := query.Order("name ASC").Limit(pageLimit(limit)).Offset(offset).Find(&clients).Error; err != nil {
		return nil, 0, fmt.Errorf("list clients: %w", err)
	}
	return clients, total, nil
}

// Get loads a client.
func (s *ClientService) Get(ctx context.Context, id uint) (*models.Client, error) {
	var client models.Client
	if err := s.db.WithContext(ctx).First(&client, id).Error; err != nil {
		return nil, notFound(err, "client", id)
	}
	return &client, nil
}

// Create stores a new client.
func (s *ClientService) Create(ctx context.Context, actor Actor, in ClientInput) (*models.Client, error) {
	if err := actor.require(authz.ClientManage); err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}

	client := models.Client{
		Name:     in.Name,
		Email:    in.Email,
		Phone:    in.Phone,
		Address:  in.Address,
		City:     in.City,
		Notes:    in.Notes,
		IsActive: true,
	}
	if err := s.db.WithContext(ctx).Create(&client).Error; err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	if in.IsActive != nil && !*in.IsActive {
		if err := s.db.WithContext(ctx).Model(&client).Update("is_active", false).Error; err != nil {
			return nil, fmt.Errorf("deactivate client: %w", err)
		}
		client.IsActive = false
	}

	log.Printf("✅ Client created: %s (ID: %d)", client.Name, client.ID)
	s.audit.LogAction(ctx, auditEntry(actor, AuditCreate, "client", client.ID, map[string]interface{}{"name": client.Name}))
	return &client, nil
}

// Update replaces the content of a client.
func (s *ClientService) Update(ctx context.Context, actor Actor, id uint, in ClientInput) (*models.Client, error) {
	if err := actor.require(authz.ClientManage); err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}
	client, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"name":    in.Name,
		"email":   in.Email,
		"phone":   in.Phone,
		"address": in.Address,
		"city":    in.City,
		"notes":   in.Notes,
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}
	if err := s.db.WithContext(ctx).Model(client).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update client: %w", err)
	}

	s.audit.LogAction(ctx, auditEntry(actor, AuditUpdate, "client", id, updates))
	return s.Get(ctx, id)
}

// Delete removes a client without quotes or missions; otherwise it is
// deactivated so the documents keep their reference.
func (s *ClientService) Delete(ctx context.Context, actor Actor, id uint) error {
	if err := actor.require(authz.ClientManage); err != nil {
		return err
	}
	client, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	var quotes, missions int64
	if err := s.db.WithContext(ctx).Model(&models.Quote{}).Where("client_id = ?", id).Count(&quotes).Error; err != nil {
		return fmt.Errorf("count client quotes: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&models.Mission{}).Where("client_id = ?", id).Count(&missions).Error; err != nil {
		return fmt.Errorf("count client missions: %w", err)
	}
	if quotes > 0 || missions > 0 {
		return fmt.Errorf("%w: client %d has %d quote(s) and %d mission(s); deactivate it instead", workflow.ErrConflict, id, quotes, missions)
	}

	if err := s.db.WithContext(ctx).Delete(client).Error; err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	s.audit.LogAction(ctx, auditEntry(actor, AuditDelete, "client", id, map[string]interface{}{"name": client.Name}))
	return nil
}
