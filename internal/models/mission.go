package models

import (
	"time"

	"gorm.io/gorm"
)

// MissionStatus is the progress of a mission.
type MissionStatus string

const (
	MissionStatusPlanned    MissionStatus = "planifiee"
	MissionStatusInProgress MissionStatus = "en_cours"
	MissionStatusDone       MissionStatus = "terminee"
	MissionStatusCancelled  MissionStatus = "annulee"
)

// Valid reports whether s is a known mission status.
func (s MissionStatus) Valid() bool {
	switch s {
	case MissionStatusPlanned, MissionStatusInProgress, MissionStatusDone, MissionStatusCancelled:
		return true
	}
	return false
}

// Mission is a unit of contracted work for a client. Quotes and
// interventions may be attached to it.
type Mission struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	ClientID    uint           `json:"client_id" gorm:"not null;index"`
	Client      *Client        `json:"client,omitempty" gorm:"foreignKey:ClientID"`
	Title       string         `json:"title" gorm:"type:varchar(255);not null"`
	Description string         `json:"description" gorm:"type:text"`
	Status      MissionStatus  `json:"status" gorm:"type:varchar(20);not null;default:'planifiee';index"`
	StartDate   *time.Time     `json:"start_date,omitempty"`
	EndDate     *time.Time     `json:"end_date,omitempty"`
	CreatedAt   time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`

	Interventions []Intervention `json:"interventions,omitempty" gorm:"foreignKey:MissionID"`
}

func (Mission) TableName() string {
	return "missions"
}

// BeforeCreate sets the default status.
func (m *Mission) BeforeCreate(tx *gorm.DB) error {
	if m.Status == "" {
		m.Status = MissionStatusPlanned
	}
	return nil
}

// InterventionStatus is the state of one technician visit.
type InterventionStatus string

const (
	InterventionStatusScheduled InterventionStatus = "planifiee"
	InterventionStatusDone      InterventionStatus = "realisee"
	InterventionStatusCancelled InterventionStatus = "annulee"
)

// Valid reports whether s is a known intervention status.
func (s InterventionStatus) Valid() bool {
	switch s {
	case InterventionStatusScheduled, InterventionStatusDone, InterventionStatusCancelled:
		return true
	}
	return false
}

// Intervention is a single technician visit tied to a mission.
type Intervention struct {
	ID              uint               `json:"id" gorm:"primaryKey"`
	MissionID       uint               `json:"mission_id" gorm:"not null;index"`
	TechnicianID    uint               `json:"technician_id" gorm:"not null;index"`
	Technician      *User              `json:"technician,omitempty" gorm:"foreignKey:TechnicianID"`
	ScheduledAt     time.Time          `json:"scheduled_at" gorm:"not null;index"`
	DurationMinutes int                `json:"duration_minutes" gorm:"not null;default:60"`
	Report          string             `json:"report" gorm:"type:text"`
	Status          InterventionStatus `json:"status" gorm:"type:varchar(20);not null;default:'planifiee'"`
	CreatedAt       time.Time          `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time          `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Intervention) TableName() string {
	return "interventions"
}

// BeforeCreate sets defaults.
func (i *Intervention) BeforeCreate(tx *gorm.DB) error {
	if i.Status == "" {
		i.Status = InterventionStatusScheduled
	}
	if i.DurationMinutes <= 0 {
		i.DurationMinutes = 60
	}
	return nil
}
