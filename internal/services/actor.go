package services

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"progitek/server/internal/authz"
	"progitek/server/internal/models"
	"progitek/server/internal/workflow"
)

// Actor is the authenticated user performing an operation.
type Actor struct {
	UserID uint
	Email  string
	Role   models.UserRole
	IP     string
}

// Can reports whether the actor holds capability.
func (a Actor) Can(c authz.Capability) bool {
	return authz.Allowed(a.Role, c)
}

func (a Actor) require(c authz.Capability) error {
	if !a.Can(c) {
		return fmt.Errorf("%w: role %q lacks %s", workflow.ErrForbidden, a.Role, c)
	}
	return nil
}

func (a Actor) userIDPtr() *uint {
	if a.UserID == 0 {
		return nil
	}
	id := a.UserID
	return &id
}

// notFound maps gorm.ErrRecordNotFound to workflow.ErrNotFound and wraps
// everything else as a storage error.
func notFound(err error, what string, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %d", workflow.ErrNotFound, what, id)
	}
	return fmt.Errorf("load %s %d: %w", what, id, err)
}

// isUniqueViolation recognises duplicate key errors from postgres and sqlite.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "SQLSTATE 23505")
}

// pageLimit clamps a list limit the way every List endpoint does.
func pageLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
