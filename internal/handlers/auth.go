package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"posbackend/internal/middleware"
	"posbackend/internal/models"
	"posbackend/internal/pos"
	"posbackend/internal/session"
	"posbackend/internal/store"
)

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type SignupRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=6"`
	DisplayName string `json:"displayName" binding:"required"`
}

type authResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expiresAt"`
	User      session.Identity `json:"user"`
}

func respondValidationError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		details := make([]string, 0, len(validationErrors))
		for _, fieldError := range validationErrors {
			field := lowerCamel(fieldError.Field())
			switch fieldError.Tag() {
			case "required":
				details = append(details, fmt.Sprintf("%s is required", field))
			case "email":
				details = append(details, fmt.Sprintf("%s must be an email address", field))
			case "min":
				details = append(details, fmt.Sprintf("%s must be at least %s", field, fieldError.Param()))
			default:
				details = append(details, fmt.Sprintf("%s is invalid", field))
			}
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":   "validation failed",
			"details": details,
		})
		return
	}

	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid body", "details": err.Error()})
}

func lowerCamel(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

func startSession(c *gin.Context, sessions *session.Manager, user models.User, status int) {
	identity := session.IdentityFromUser(user)
	token, expires, err := sessions.Begin(identity)
	if err != nil {
		zap.L().Error("begin session failed", zap.String("uid", identity.UID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session could not be started"})
		return
	}

	maxAge := int(time.Until(expires).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.CookieName, token, maxAge, "/", "", false, true)

	zap.L().Info("session started", zap.String("uid", identity.UID), zap.String("role", identity.Role))
	c.JSON(status, authResponse{Token: token, ExpiresAt: expires, User: identity})
}

/*
POST /api/auth/login
*/
func Login(svc *pos.Service, users store.Users, sessions *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/auth/login"
		defer handlePanic(c, route)

		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if !ensureOnline(ctx, c, svc, route) {
			return
		}

		user, err := users.UserByEmail(ctx, req.Email)
		if errors.Is(err, store.ErrNotFound) {
			respondWithError(c, http.StatusUnauthorized, route, "invalid credentials")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusBadGateway, route, "user lookup failed")
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
			respondWithError(c, http.StatusUnauthorized, route, "invalid credentials")
			return
		}

		startSession(c, sessions, user, http.StatusOK)
	}
}

/*
POST /api/auth/signup
- New accounts get the "user" role; an admin promotes them later.
*/
func Signup(svc *pos.Service, users store.Users, sessions *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/auth/signup"
		defer handlePanic(c, route)

		var req SignupRequest
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
			Role:         models.RoleUser,
		})
		if err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				respondWithError(c, http.StatusConflict, route, "email already registered")
				return
			}
			respondWithError(c, http.StatusBadGateway, route, "user could not be created")
			return
		}

		startSession(c, sessions, user, http.StatusCreated)
	}
}

/*
POST /api/auth/logout
*/
func Logout(sessions *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/auth/logout"
		defer handlePanic(c, route)

		if err := sessions.End(); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "session could not be cleared")
			return
		}
		c.SetCookie(middleware.CookieName, "", -1, "/", "", false, true)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

/*
GET /api/auth/me
*/
func Me() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, currentIdentity(c))
	}
}
