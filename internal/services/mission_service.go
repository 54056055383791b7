package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"progitek/server/internal/authz"
	"progitek/server/internal/models"
	"progitek/server/internal/workflow"
)

// MissionService manages missions and their interventions.
type MissionService struct {
	db       *gorm.DB
	audit    Auditor
	notifier Notifier
}

// NewMissionService creates a MissionService.
func NewMissionService(db *gorm.DB, audit Auditor, notifier Notifier) *MissionService {
	return &MissionService{db: db, audit: audit, notifier: notifier}
}

// MissionInput is the editable content of a mission.
type MissionInput struct {
	ClientID    uint                 `json:"client_id"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Status      models.MissionStatus `json:"status"`
	StartDate   *time.Time           `json:"start_date"`
	EndDate     *time.Time           `json:"end_date"`
}

// InterventionInput is the editable content of an intervention.
type InterventionInput struct {
	TechnicianID    uint                      `json:"technician_id"`
	ScheduledAt     time.Time                 `json:"scheduled_at"`
	DurationMinutes int                       `json:"duration_minutes"`
	Report          string                    `json:"report"`
	Status          models.InterventionStatus `json:"status"`
}

// MissionFilter narrows List.
type MissionFilter struct {
	ClientID uint
	Status   models.MissionStatus
	Limit    int
	Offset   int
}

func (s *MissionService) validateMission(ctx context.Context, in *MissionInput) error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return fmt.Errorf("%w: title is required", workflow.ErrValidation)
	}
	if in.Status != "" && !in.Status.Valid() {
		return fmt.Errorf("%w: unknown mission status %q", workflow.ErrValidation, in.Status)
	}
	if in.StartDate != nil && in.EndDate != nil && in.EndDate.Before(*in.StartDate) {
		return fmt.Errorf("%w: end_date is before start_date", workflow.ErrValidation)
	}
	var client models.Client
	if err := s.db.WithContext(ctx).Select("id").First(&client, in.ClientID).Error; err != nil {
		return notFound(err, "client", in.ClientID)
	}
	return nil
}

// List returns missions, most recent first.
func (s *MissionService) List(ctx context.Context, f MissionFilter) ([]models.Mission, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Mission{})
	if f.ClientID != 0 {
		query = query.Where("client_id = ?", f.ClientID)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count missions: %w", err)
	}
	var missions []models.Mission
	err := query.Preload("Client").
		Order("created_at DESC, id DESC").
		Limit(pageLimit(f.Limit)).
		Offset(f.Offset).
		Find(&missions).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list missions: %w", err)
	}
	return missions, total, nil
}

// Get loads a mission with its client and interventions.
func (s *MissionService) Get(ctx context.Context, id uint) (*models.Mission, error) {
	var mission models.Mission
	err := s.db.WithContext(ctx).
		Preload("Client").
		Preload("Interventions", func(db *gorm.DB) *gorm.DB { return db.Order("scheduled_at ASC") }).
		Preload("Interventions.Technician").
		First(&mission, id).Error
	if err != nil {
		return nil, notFound(err, "mission", id)
	}
	return &mission, nil
}

// Create stores a new mission.
func (s *MissionService) Create(ctx context.Context, actor Actor, in MissionInput) (*models.Mission, error) {
	if err := actor.require(authz.MissionManage); err != nil {
		return nil, err
	}
	if err := s.validateMission(ctx, &in); err != nil {
		return nil, err
	}

	mission := models.Mission{
		ClientID:    in.ClientID,
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
	}
	if err := s.db.WithContext(ctx).Create(&mission).Error; err != nil {
		return nil, fmt.Errorf("create mission: %w", err)
	}

	log.Printf("✅ Mission created: %s (ID: %d)", mission.Title, mission.ID)
	s.audit.LogAction(ctx, auditEntry(actor, AuditCreate, "mission", mission.ID, map[string]interface{}{"title": mission.Title}))
	return s.Get(ctx, mission.ID)
}

// Update replaces the content of a mission.
func (s *MissionService) Update(ctx context.Context, actor Actor, id uint, in MissionInput) (*models.Mission, error) {
	if err := actor.require(authz.MissionManage); err != nil {
		return nil, err
	}
	var mission models.Mission
	if err := s.db.WithContext(ctx).First(&mission, id).Error; err != nil {
		return nil, notFound(err, "mission", id)
	}
	if err := s.validateMission(ctx, &in); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"client_id":   in.ClientID,
		"title":       in.Title,
		"description": in.Description,
		"start_date":  in.StartDate,
		"end_date":    in.EndDate,
	}
	if in.Status != "" {
		updates["status"] = in.Status
	}
	if err := s.db.WithContext(ctx).Model(&mission).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update mission: %w", err)
	}

	s.audit.LogAction(ctx, auditEntry(actor, AuditUpdate, "mission", id, updates))
	return s.Get(ctx, id)
}

func (s *MissionService) validateIntervention(ctx context.Context, in *InterventionInput) error {
	if in.ScheduledAt.IsZero() {
		return fmt.Errorf("%w: scheduled_at is required", workflow.ErrValidation)
	}
	if in.DurationMinutes < 0 {
		return fmt.Errorf("%w: duration_minutes must be positive", workflow.ErrValidation)
	}
	if in.Status != "" && !in.Status.Valid() {
		return fmt.Errorf("%w: unknown intervention status %q", workflow.ErrValidation, in.Status)
	}

	var tech models.User
	if err := s.db.WithContext(ctx).First(&tech, in.TechnicianID).Error; err != nil {
		return notFound(err, "technician", in.TechnicianID)
	}
	if !tech.IsTechnician() || !tech.IsActive {
		return fmt.Errorf("%w: user %d is not an active technician", workflow.ErrValidation, in.TechnicianID)
	}
	return nil
}

// ListInterventions returns the interventions of a mission by date.
func (s *MissionService) ListInterventions(ctx context.Context, missionID uint) ([]models.Intervention, error) {
	var mission models.Mission
	if err := s.db.WithContext(ctx).Select("id").First(&mission, missionID).Error; err != nil {
		return nil, notFound(err, "mission", missionID)
	}
	var list []models.Intervention
	err := s.db.WithContext(ctx).
		Preload("Technician").
		Where("mission_id = ?", missionID).
		Order("scheduled_at ASC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("list interventions: %w", err)
	}
	return list, nil
}

// AddIntervention schedules a technician visit on a mission and notifies the technician.
func (s *MissionService) AddIntervention(ctx context.Context, actor Actor, missionID uint, in InterventionInput) (*models.Intervention, error) {
	if err := actor.require(authz.InterventionManage); err != nil {
		return nil, err
	}
	var mission models.Mission
	if err := s.db.WithContext(ctx).First(&mission, missionID).Error; err != nil {
		return nil, notFound(err, "mission", missionID)
	}
	if mission.Status == models.MissionStatusDone || mission.Status == models.MissionStatusCancelled {
		return nil, fmt.Errorf("%w: mission %d is %s", workflow.ErrInvalidTransition, missionID, mission.Status)
	}
	if err := s.validateIntervention(ctx, &in); err != nil {
		return nil, err
	}

	intervention := models.Intervention{
		MissionID:       missionID,
		TechnicianID:    in.TechnicianID,
		ScheduledAt:     in.ScheduledAt,
		DurationMinutes: in.DurationMinutes,
		Report:          in.Report,
		Status:          in.Status,
	}
	if err := s.db.WithContext(ctx).Create(&intervention).Error; err != nil {
		return nil, fmt.Errorf("create intervention: %w", err)
	}

	s.audit.LogAction(ctx, auditEntry(actor, AuditCreate, "intervention", intervention.ID, map[string]interface{}{
		"mission_id":    missionID,
		"technician_id": in.TechnicianID,
	}))
	if in.TechnicianID != actor.UserID {
		if _, err := s.notifier.Notify(ctx, in.TechnicianID, NotificationInput{
			Title:   "Nouvelle intervention",
			Message: fmt.Sprintf("Intervention planifiée le %s pour la mission « %s ».", in.ScheduledAt.Format("02/01/2006 15:04"), mission.Title),
			Link:    fmt.Sprintf("/missions/%d", missionID),
			Email:   true,
		}); err != nil {
			log.Printf("⚠️ Intervention notification failed: %v", err)
		}
	}
	return &intervention, nil
}

// UpdateIntervention replaces the content of an intervention.
func (s *MissionService) UpdateIntervention(ctx context.Context, actor Actor, id uint, in InterventionInput) (*models.Intervention, error) {
	if err := actor.require(authz.InterventionManage); err != nil {
		return nil, err
	}
	var intervention models.Intervention
	if err := s.db.WithContext(ctx).First(&intervention, id).Error; err != nil {
		return nil, notFound(err, "intervention", id)
	}
	if err := s.validateIntervention(ctx, &in); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"technician_id": in.TechnicianID,
		"scheduled_at":  in.ScheduledAt,
		"report":        in.Report,
	}
	if in.DurationMinutes > 0 {
		updates["duration_minutes"] = in.DurationMinutes
	}
	if in.Status != "" {
		updates["status"] = in.Status
	}
	if err := s.db.WithContext(ctx).Model(&intervention).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update intervention: %w", err)
	}

	s.audit.LogAction(ctx, auditEntry(actor, AuditUpdate, "intervention", id, updates))
	if err := s.db.WithContext(ctx).Preload("Technician").First(&intervention, id).Error; err != nil {
		return nil, fmt.Errorf("reload intervention: %w", err)
	}
	return &intervention, nil
}
