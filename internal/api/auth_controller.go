package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"progitek/server/internal/authz"
	"progitek/server/internal/models"
	"progitek/server/internal/services"
)

// AuthController handles login, logout and the current session.
type AuthController struct {
	auth         *services.AuthService
	users        *services.UserService
	secureCookie bool
}

// NewAuthController creates an AuthController.
func NewAuthController(auth *services.AuthService, users *services.UserService, secureCookie bool) *AuthController {
	return &AuthController{auth: auth, users: users, secureCookie: secureCookie}
}

// LoginRequest is the login payload.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse is returned on successful login.
type LoginResponse struct {
	Token        string             `json:"token"`
	ExpiresAt    int64              `json:"expires_at"`
	User         *models.User       `json:"user"`
	Capabilities []authz.Capability `json:"capabilities"`
}

// Login checks the credentials, sets the token cookie and returns the token.
// POST /api/v1/auth/login
func (ac *AuthController) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	token, user, err := ac.auth.Login(c.Request.Context(), req.Email, req.Password, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}

	ttl := ac.auth.TTL()
	ac.setTokenCookie(c, token, int(ttl.Seconds()))
	respondOK(c, LoginResponse{
		Token:        token,
		ExpiresAt:    time.Now().Add(ttl).Unix(),
		User:         user,
		Capabilities: authz.Capabilities(user.Role),
	})
}

// Logout clears the token cookie. Tokens are stateless and simply expire.
// POST /api/v1/auth/logout
func (ac *AuthController) Logout(c *gin.Context) {
	ac.setTokenCookie(c, "", -1)
	respondMessage(c, "Déconnecté")
}

// Me returns the authenticated user and its capabilities.
// GET /api/v1/auth/me
func (ac *AuthController) Me(c *gin.Context) {
	actor := actorFrom(c)
	user, err := ac.users.Get(c.Request.Context(), actor.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{
		"user":         user,
		"capabilities": authz.Capabilities(user.Role),
	})
}

// ChangePasswordRequest is the payload of PUT /auth/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// ChangePassword replaces the password of the caller.
// PUT /api/v1/auth/password
func (ac *AuthController) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := ac.auth.ChangePassword(c.Request.Context(), actorFrom(c), req.CurrentPassword, req.NewPassword); err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "Mot de passe modifié")
}

func (ac *AuthController) setTokenCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(tokenCookie, token, maxAge, "/", "", ac.secureCookie, true)
}
