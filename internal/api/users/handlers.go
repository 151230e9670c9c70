// Package users implements the user and group management endpoints. Every
// mutation here flows through the hook-wired repository, so each handler call
// leaves a matching audit trail without any handler-side audit code.
package users

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bastionhq/bastion-audit/internal/db/models"
	"github.com/bastionhq/bastion-audit/internal/db/repositories"
	"github.com/bastionhq/bastion-audit/internal/middleware"
)

// Handlers handles user management endpoints
type Handlers struct {
	userRepo *repositories.UserRepository
}

// NewHandlers creates a new user management Handlers instance
func NewHandlers(userRepo *repositories.UserRepository) *Handlers {
	return &Handlers{userRepo: userRepo}
}

// CreateUserRequest is the payload for creating a user
type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Source   string `json:"source"`
	Password string `json:"password"`
	OrgID    string `json:"org_id"`
}

// CreateUserHandler creates a new user
// POST /api/v1/users
func (h *Handlers) CreateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		if req.Source == "" {
			req.Source = "local"
		}

		user := &models.User{
			Username: req.Username,
			Name:     req.Name,
			Email:    req.Email,
			Source:   req.Source,
			OrgID:    req.OrgID,
		}

		op := middleware.OperationContext(c)
		if err := h.userRepo.CreateUser(c.Request.Context(), op, user); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
			return
		}

		if req.Password != "" {
			if err := h.userRepo.UpdatePassword(c.Request.Context(), &op, user, req.Password); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to set password"})
				return
			}
		}

		c.JSON(http.StatusCreated, gin.H{"user": user})
	}
}

// UpdateUserRequest is the payload for updating a user profile
type UpdateUserRequest struct {
	Name       *string `json:"name"`
	Email      *string `json:"email"`
	MFAEnabled *bool   `json:"mfa_enabled"`
}

// UpdateUserHandler updates a user's profile fields
// PATCH /api/v1/users/:id
func (h *Handlers) UpdateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := h.userRepo.GetUser(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}

		var req UpdateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		var changed []string
		if req.Name != nil {
			user.Name = *req.Name
			changed = append(changed, "name")
		}
		if req.Email != nil {
			user.Email = *req.Email
			changed = append(changed, "email")
		}
		if req.MFAEnabled != nil {
			user.MFAEnabled = *req.MFAEnabled
			changed = append(changed, "mfa_enabled")
		}
		if len(changed) == 0 {
			c.JSON(http.StatusOK, gin.H{"user": user})
			return
		}

		op := middleware.OperationContext(c)
		if err := h.userRepo.UpdateUser(c.Request.Context(), op, user, changed); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"user": user})
	}
}

// ChangePasswordRequest is the payload for changing a user's password
type ChangePasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

// ChangePasswordHandler sets a new password for a user
// PUT /api/v1/users/:id/password
func (h *Handlers) ChangePasswordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := h.userRepo.GetUser(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}

		var req ChangePasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		op := middleware.OperationContext(c)
		if err := h.userRepo.UpdatePassword(c.Request.Context(), &op, user, req.Password); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to change password"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "password changed"})
	}
}

// DeleteUserHandler deletes a user
// DELETE /api/v1/users/:id
func (h *Handlers) DeleteUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		op := middleware.OperationContext(c)
		if err := h.userRepo.DeleteUser(c.Request.Context(), op, c.Param("id")); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete user"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "deleted"})
	}
}

// GroupMembershipRequest is the payload for membership changes
type GroupMembershipRequest struct {
	GroupIDs []string `json:"group_ids" binding:"required"`
}

// AddToGroupsHandler adds a user to one or more groups
// POST /api/v1/users/:id/groups
func (h *Handlers) AddToGroupsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := h.userRepo.GetUser(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}

		var req GroupMembershipRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		op := middleware.OperationContext(c)
		if err := h.userRepo.AddUserToGroups(c.Request.Context(), op, user, req.GroupIDs); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update group membership"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "groups added"})
	}
}

// RemoveFromGroupsHandler removes a user from one or more groups
// DELETE /api/v1/users/:id/groups
func (h *Handlers) RemoveFromGroupsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := h.userRepo.GetUser(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}

		var req GroupMembershipRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		op := middleware.OperationContext(c)
		if err := h.userRepo.RemoveUserFromGroups(c.Request.Context(), op, user, req.GroupIDs); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update group membership"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "groups removed"})
	}
}

// CreateGroupRequest is the payload for creating a user group
type CreateGroupRequest struct {
	Name    string `json:"name" binding:"required"`
	Comment string `json:"comment"`
	OrgID   string `json:"org_id"`
}

// CreateGroupHandler creates a new user group
// POST /api/v1/groups
func (h *Handlers) CreateGroupHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateGroupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		group := &models.UserGroup{
			Name:    req.Name,
			Comment: req.Comment,
			OrgID:   req.OrgID,
		}

		op := middleware.OperationContext(c)
		if err := h.userRepo.CreateGroup(c.Request.Context(), op, group); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create group"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"group": group})
	}
}
