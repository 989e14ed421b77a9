package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"posbackend/internal/models"
	"posbackend/internal/pos"
	"posbackend/internal/session"
	"posbackend/internal/store"
)

type UserCreateRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=6"`
	DisplayName string `json:"displayName" binding:"required"`
	Role        string `json:"role" binding:"required,oneof=admin manager cashier user"`
}

type UserUpdateRequest struct {
	Email       *string `json:"email" binding:"omitempty,email"`
	DisplayName *string `json:"displayName"`
	Role        *string `json:"role" binding:"omitempty,oneof=admin manager cashier user"`
}

/*
GET /api/users
*/
func ListUsers(svc *pos.Service, users store.Users) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/users"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if !ensureOnline(ctx, c, svc, route) {
			return
		}

		list, err := users.ListUsers(ctx)
		if err != nil {
			respondWithError(c, http.StatusBadGateway, route, "db error")
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": list})
	}
}

/*
POST /api/users
- admin-created accounts carry the role chosen by the admin
*/
func CreateUser(svc *pos.Service, users store.Users) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/users"
		defer handlePanic(c, route)

		var req UserCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if !ensureOnline(ctx, c, svc, route) {
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "password hashing failed")
			return
		}

		user, err := users.CreateUser(ctx, models.User{
			Email:        req.Email,
			PasswordHash: string(hash),
			DisplayName:  strings.TrimSpace(req.DisplayName),
			Role:         req.Role,
		})
		if errors.Is(err, store.ErrDuplicate) {
			respondWithError(c, http.StatusConflict, route, "email already registered")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusBadGateway, route, "db error")
			return
		}

		c.JSON(http.StatusCreated, user)
	}
}

/*
PATCH /api/users/:id
- editing the signed-in user refreshes the session's role right away
*/
func UpdateUser(svc *pos.Service, users store.Users, sessions *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PATCH /api/users/:id"
		defer handlePanic(c, route)

		id, ok := paramObjectID(c, "id", route)
		if !ok {
			return
		}

		var req UserUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}
		if req.Email == nil && req.DisplayName == nil && req.Role == nil {
			respondWithError(c, http.StatusBadRequest, route, "no fields to update")
			return
		}
		if req.DisplayName != nil && strings.TrimSpace(*req.DisplayName) == "" {
			respondWithError(c, http.StatusBadRequest, route, "displayName cannot be empty")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if !ensureOnline(ctx, c, svc, route) {
			return
		}

		updated, err := users.UpdateUser(ctx, id, models.UserUpdate{
			Email:       req.Email,
			DisplayName: req.DisplayName,
			Role:        req.Role,
		})
		switch {
		case errors.Is(err, store.ErrNotFound):
			respondWithError(c, http.StatusNotFound, route, "user not found")
			return
		case errors.Is(err, store.ErrDuplicate):
			respondWithError(c, http.StatusConflict, route, "email already registered")
			return
		case err != nil:
			respondWithError(c, http.StatusBadGateway, route, "db error")
			return
		}

		if current, ok := sessions.Current(); ok && current.UID == updated.ID.Hex() {
			if err := sessions.Reconcile(ctx, users); err != nil {
				zap.L().Warn("session reconcile after user update failed", zap.Error(err))
			}
		}

		c.JSON(http.StatusOK, updated)
	}
}
