package api

import (
	"github.com/gin-gonic/gin"

	"progitek/server/internal/models"
	"progitek/server/internal/services"
)

// UserController manages back office accounts.
type UserController struct {
	users *services.UserService
}

// NewUserController creates a UserController.
func NewUserController(users *services.UserService) *UserController {
	return &UserController{users: users}
}

// GetUsers lists accounts, filtered by ?role= and ?active=1.
// GET /api/v1/users
func (uc *UserController) GetUsers(c *gin.Context) {
	users, err := uc.users.List(c.Request.Context(), models.UserRole(c.Query("role")), queryBool(c, "active"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, users)
}

// GetTechnicians lists the active technicians, filtered by ?specialty=.
// GET /api/v1/technicians
func (uc *UserController) GetTechnicians(c *gin.Context) {
	users, err := uc.users.Technicians(c.Request.Context(), c.Query("specialty"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, users)
}

// CreateUser registers an account.
// POST /api/v1/users
func (uc *UserController) CreateUser(c *gin.Context) {
	var req services.CreateUserInput
	if !bindJSON(c, &req) {
		return
	}
	user, err := uc.users.Create(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, user)
}

// UpdateUser changes an account.
// PUT /api/v1/users/:id
func (uc *UserController) UpdateUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req services.UpdateUserInput
	if !bindJSON(c, &req) {
		return
	}
	user, err := uc.users.Update(c.Request.Context(), actorFrom(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, user)
}

// DeleteUser soft deletes an account.
// DELETE /api/v1/users/:id
func (uc *UserController) DeleteUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := uc.users.Delete(c.Request.Context(), actorFrom(c), id); err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "Utilisateur supprimé")
}
