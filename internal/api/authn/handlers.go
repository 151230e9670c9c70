// Package authn implements the password login endpoint. It is the write-side
// entry point of the login audit trail: every attempt, successful or not,
// produces exactly one login record.
package authn

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/bastionhq/bastion-audit/internal/audit"
	"github.com/bastionhq/bastion-audit/internal/auth"
	"github.com/bastionhq/bastion-audit/internal/db/repositories"
)

// Handlers handles authentication endpoints
type Handlers struct {
	userRepo *repositories.UserRepository
	logins   *audit.LoginRecorder
	tokenTTL time.Duration
}

// NewHandlers creates a new authentication Handlers instance
func NewHandlers(userRepo *repositories.UserRepository, logins *audit.LoginRecorder, tokenTTL time.Duration) *Handlers {
	if tokenTTL == 0 {
		tokenTTL = time.Hour
	}
	return &Handlers{userRepo: userRepo, logins: logins, tokenTTL: tokenTTL}
}

// LoginRequest is the password login payload
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginHandler authenticates a user by password and issues a JWT.
// POST /api/v1/auth/login
func (h *Handlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		user, err := h.userRepo.GetUserByUsername(c.Request.Context(), req.Username)
		if err != nil {
			// The failure record carries the attempted username even when
			// no such account exists.
			_ = h.logins.OnAuthFailed(c.Request.Context(), req.Username, c.Request, "Invalid credentials")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}

		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
			_ = h.logins.OnAuthFailed(c.Request.Context(), req.Username, c.Request, "Invalid credentials")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}

		if err := h.logins.OnAuthSuccess(c.Request.Context(), user, c.Request, ""); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record login"})
			return
		}

		// Touch the login timestamp; the generic mutation path suppresses
		// this save, so only the login record above is produced.
		actor := &audit.Actor{ID: user.ID, Name: user.String(), Authenticated: true}
		op := audit.ContextFromRequest(c.Request, actor, user.OrgID)
		if err := h.userRepo.UpdateLastLogin(c.Request.Context(), op, user, time.Now()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update login timestamp"})
			return
		}

		token, err := auth.GenerateJWT(user.ID, user.String(), user.OrgID, h.tokenTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":      token,
			"expires_in": int(h.tokenTTL.Seconds()),
		})
	}
}
