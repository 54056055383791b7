package models

import (
	"time"

	"gorm.io/gorm"
)

// UserRole is the account role. Capabilities per role live in package authz;
// handlers never compare role strings directly.
type UserRole string

const (
	RoleAdmin      UserRole = "admin"      // full access
	RoleDG         UserRole = "dg"         // Direction Générale, validates quotes
	RoleCommercial UserRole = "commercial" // prepares quotes, follows clients
	RoleComptable  UserRole = "comptable"  // invoices and payments
	RoleTechnicien UserRole = "technicien" // field interventions
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleDG, RoleCommercial, RoleComptable, RoleTechnicien:
		return true
	}
	return false
}

// User is an account able to log into the back office.
type User struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	Email        string         `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	Name         string         `json:"name" gorm:"type:varchar(255);not null"`
	Phone        string         `json:"phone" gorm:"type:varchar(30)"`
	PasswordHash string         `json:"-" gorm:"type:varchar(255);not null"`
	Role         UserRole       `json:"role" gorm:"type:varchar(30);not null;default:'commercial';index"`
	Specialty    string         `json:"specialty,omitempty" gorm:"type:varchar(100)"` // technicians only
	IsActive     bool           `json:"is_active" gorm:"not null;default:true"`
	LastLoginAt  *time.Time     `json:"last_login_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
}

func (User) TableName() string {
	return "users"
}

// IsTechnician reports whether the user can be assigned to interventions.
func (u *User) IsTechnician() bool {
	return u.Role == RoleTechnicien
}
