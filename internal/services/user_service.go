package services

import (
	"context"
	"fmt"
	"log"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"progitek/server/internal/authz"
	"progitek/server/internal/models"
	"progitek/server/internal/workflow"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// UserService manages back office accounts.
type UserService struct {
	db     *gorm.DB
	audit  Auditor
	mailer Mailer
}

// NewUserService creates a UserService. mailer may be nil.
func NewUserService(db *gorm.DB, audit Auditor, mailer Mailer) *UserService {
	return &UserService{db: db, audit: audit, mailer: mailer}
}

// CreateUserInput is the payload of an account creation.
type CreateUserInput struct {
	Email     string          `json:"email"`
	Name      string          `json:"name"`
	Phone     string          `json:"phone"`
	Password  string          `json:"password"`
	Role      models.UserRole `json:"role"`
	Specialty string          `json:"specialty"`
}

// UpdateUserInput holds the fields an admin may change. Nil means unchanged.
type UpdateUserInput struct {
	Name      *string          `json:"name"`
	Phone     *string          `json:"phone"`
	Role      *models.UserRole `json:"role"`
	Specialty *string          `json:"specialty"`
	IsActive  *bool            `json:"is_active"`
	Password  *string          `json:"password"`
}

// HashPassword hashes a clear text password with bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("%w: password must be at least %d characters", workflow.ErrValidation, MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// List returns users ordered by name, optionally restricted to one role.
func (s *UserService) List(ctx context.Context, role models.UserRole, activeOnly bool) ([]models.User, error) {
	query := s.db.WithContext(ctx).Order("name ASC")
	if role != "" {
		query = query.Where("role = ?", role)
	}
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// Technicians returns the active technicians, optionally by specialty.
func (s *UserService) Technicians(ctx context.Context, specialty string) ([]models.User, error) {
	query := s.db.WithContext(ctx).
		Where("role = ? AND is_active = ?", models.RoleTechnicien, true).
		Order("name ASC")
	if specialty = strings.TrimSpace(specialty); specialty != "" {
		query = query.Where("LOWER(specialty) = ?", strings.ToLower(specialty))
	}
	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list technicians: %w", err)
	}
	return users, nil
}

// Get loads a user.
func (s *UserService) Get(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err, "user", id)
	}
	return &user, nil
}

// Create registers an account and sends the welcome mail best-effort.
func (s *UserService) Create(ctx context.Context, actor Actor, in CreateUserInput) (*models.User, error) {
	if err := actor.require(authz.UserManage); err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, fmt.Errorf("%w: invalid email %q", workflow.ErrValidation, in.Email)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", workflow.ErrValidation)
	}
	if in.Role == "" {
		in.Role = models.RoleCommercial
	}
	if !in.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", workflow.ErrValidation, in.Role)
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	var existing int64
	if err := s.db.WithContext(ctx).Unscoped().Model(&models.User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if existing > 0 {
		return nil, fmt.Errorf("%w: email %s already registered", workflow.ErrConflict, email)
	}

	user := models.User{
		Email:        email,
		Name:         name,
		Phone:        strings.TrimSpace(in.Phone),
		PasswordHash: hash,
		Role:         in.Role,
		Specialty:    strings.TrimSpace(in.Specialty),
		IsActive:     true,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: email %s already registered", workflow.ErrConflict, email)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	log.Printf("✅ User created: %s (%s)", user.Email, user.Role)
	s.audit.LogAction(ctx, auditEntry(actor, AuditCreate, "user", user.ID, map[string]interface{}{
		"email": user.Email,
		"role":  user.Role,
	}))

	if s.mailer != nil {
		go func(to, name string) {
			if err := s.mailer.SendWelcome(to, name); err != nil {
				log.Printf("⚠️ Welcome mail to %s failed: %v", to, err)
			}
		}(user.Email, user.Name)
	}

	return &user, nil
}

// Update changes an account. An admin cannot demote or deactivate itself.
func (s *UserService) Update(ctx context.Context, actor Actor, id uint, in UpdateUserInput) (*models.User, error) {
	if err := actor.require(authz.UserManage); err != nil {
		return nil, err
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", workflow.ErrValidation)
		}
		updates["name"] = name
	}
	if in.Phone != nil {
		updates["phone"] = strings.TrimSpace(*in.Phone)
	}
	if in.Specialty != nil {
		updates["specialty"] = strings.TrimSpace(*in.Specialty)
	}
	if in.Role != nil {
		if !in.Role.Valid() {
			return nil, fmt.Errorf("%w: unknown role %q", workflow.ErrValidation, *in.Role)
		}
		if id == actor.UserID && *in.Role != user.Role {
			return nil, fmt.Errorf("%w: you cannot change your own role", workflow.ErrForbidden)
		}
		updates["role"] = *in.Role
	}
	if in.IsActive != nil {
		if id == actor.UserID && !*in.IsActive {
			return nil, fmt.Errorf("%w: you cannot deactivate your own account", workflow.ErrForbidden)
		}
		updates["is_active"] = *in.IsActive
	}
	if in.Password != nil {
		hash, err := HashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		updates["password_hash"] = hash
	}
	if len(updates) == 0 {
		return user, nil
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	delete(updates, "password_hash")
	if in.Password != nil {
		updates["password"] = "changed"
	}
	s.audit.LogAction(ctx, auditEntry(actor, AuditUpdate, "user", id, updates))
	return s.Get(ctx, id)
}

// Delete soft deletes an account. Admins cannot delete themselves.
func (s *UserService) Delete(ctx context.Context, actor Actor, id uint) error {
	if err := actor.require(authz.UserManage); err != nil {
		return err
	}
	if id == actor.UserID {
		return fmt.Errorf("%w: you cannot delete your own account", workflow.ErrForbidden)
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(user).Error; err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	s.audit.LogAction(ctx, auditEntry(actor, AuditDelete, "user", id, map[string]interface{}{"email": user.Email}))
	return nil
}
