package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"posbackend/internal/middleware"
	"posbackend/internal/pos"
	"posbackend/internal/session"
	"posbackend/internal/store"
)

func handlePanic(c *gin.Context, route string) {
	if r := recover(); r != nil {
		zap.L().Error("panic recovered", zap.String("route", route), zap.Any("panic", r))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// ensureOnline answers 503 when the remote store cannot be reached.
func ensureOnline(ctx context.Context, c *gin.Context, svc *pos.Service, route string) bool {
	if svc.Online(ctx) {
		return true
	}
	respondWithError(c, http.StatusServiceUnavailable, route, "remote store unavailable")
	return false
}

func respondWithError(c *gin.Context, status int, route string, message string) {
	if status >= http.StatusInternalServerError {
		zap.L().Warn("request failed", zap.String("route", route), zap.Int("status", status), zap.String("error", message))
	} else {
		zap.L().Debug("request rejected", zap.String("route", route), zap.Int("status", status), zap.String("error", message))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// respondServiceError maps the till's error taxonomy to HTTP statuses.
func respondServiceError(c *gin.Context, route string, err error) {
	var shortage store.InsufficientStockError
	if errors.As(err, &shortage) {
		zap.L().Debug("insufficient stock", zap.String("route", route), zap.String("product", shortage.Name))
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error":     "insufficient stock",
			"productId": shortage.ProductID.Hex(),
			"product":   shortage.Name,
			"available": shortage.Available,
			"requested": shortage.Requested,
		})
		return
	}

	respondWithError(c, statusFor(err), route, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pos.ErrOffline):
		return http.StatusServiceUnavailable
	case errors.Is(err, pos.ErrRemote):
		return http.StatusBadGateway
	case errors.Is(err, store.ErrNotFound), errors.Is(err, pos.ErrNotInBill):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicate),
		errors.Is(err, store.ErrAlreadyCancelled),
		errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, pos.ErrOutOfStock),
		errors.Is(err, pos.ErrCheckoutBusy):
		return http.StatusConflict
	case errors.Is(err, pos.ErrEmptyBill),
		errors.Is(err, pos.ErrNoCustomer),
		errors.Is(err, pos.ErrInvalidQuantity),
		errors.Is(err, pos.ErrInvalidPayment),
		errors.Is(err, pos.ErrInvalidProduct),
		errors.Is(err, pos.ErrInvalidCustomer),
		errors.Is(err, store.ErrInvalidPurchase):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// currentIdentity is only called behind APIAuth or RequireAuth.
func currentIdentity(c *gin.Context) session.Identity {
	identity, _ := middleware.IdentityFrom(c)
	return identity
}

func paramObjectID(c *gin.Context, name, route string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		respondWithError(c, http.StatusBadRequest, route, "invalid "+name)
		return primitive.NilObjectID, false
	}
	return id, true
}
