package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fleetward/fleetward/internal/models"
	"github.com/fleetward/fleetward/pkg/auth"
)

func (h *Handlers) listUsers(c *gin.Context) {
	if !requirePermission(c, "user.list") {
		return
	}
	users, err := h.Store.ListUsers(c.Request.Context(), pageFromQuery(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handlers) getUser(c *gin.Context) {
	if !requirePermission(c, "user.list") {
		return
	}
	user, err := h.Store.GetUserByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if user == nil {
		fail(c, models.NewAPIError(models.KindNotFound, "user not found"))
		return
	}
	c.JSON(http.StatusOK, user)
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

func (h *Handlers) createUser(c *gin.Context) {
	if !requirePermission(c, "user.create") {
		return
	}
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
		invalid(c, "invalid user payload")
		return
	}

	if existing, err := h.Store.GetUserByUsername(c.Request.Context(), req.Username); err != nil {
		fail(c, err)
		return
	} else if existing != nil {
		fail(c, models.NewAPIError(models.KindInvalidRequest, "username already taken"))
		return
	}

	hasher := auth.NewPasswordHasher(h.Config.Auth.BCryptCost)
	hash, err := hasher.HashPassword(req.Password)
	if err != nil {
		fail(c, err)
		return
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		PasswordHash: hash,
		Email:        req.Email,
		Perms:        "[]",
	}
	if err := h.Store.CreateUser(c.Request.Context(), user); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

type updateUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handlers) updateUser(c *gin.Context) {
	if !requirePermission(c, "user.update") {
		return
	}
	user, err := h.Store.GetUserByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if user == nil {
		fail(c, models.NewAPIError(models.KindNotFound, "user not found"))
		return
	}

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalid(c, "invalid user payload")
		return
	}
	if req.Email != "" {
		user.Email = req.Email
	}
	if req.Password != "" {
		hasher := auth.NewPasswordHasher(h.Config.Auth.BCryptCost)
		hash, err := hasher.HashPassword(req.Password)
		if err != nil {
			fail(c, err)
			return
		}
		user.PasswordHash = hash
	}

	if err := h.Store.UpdateUser(c.Request.Context(), user); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handlers) deleteUser(c *gin.Context) {
	if !requirePermission(c, "user.delete") {
		return
	}
	if err := h.Store.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
