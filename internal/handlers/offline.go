package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"posbackend/internal/pos"
)

/*
GET /api/offline-purchases
*/
func ListPendingPurchases(svc *pos.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/offline-purchases"
		defer handlePanic(c, route)

		pending, err := svc.Queue().List()
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "offline queue unreadable")
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": pending, "total": len(pending)})
	}
}

/*
POST /api/offline-purchases/replay
*/
func ReplayPendingPurchases(svc *pos.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/offline-purchases/replay"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Minute)
		defer cancel()

		report, err := svc.ReplayPending(ctx)
		if err != nil {
			c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error(), "report": report})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

/*
POST /api/offline-purchases/:key/requeue
- puts a conflicting entry back in line after the stock was fixed
*/
func RequeuePendingPurchase(svc *pos.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/offline-purchases/:key/requeue"
		defer handlePanic(c, route)

		if err := svc.Requeue(c.Param("key")); err != nil {
			respondServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

/*
DELETE /api/offline-purchases/:key
*/
func DiscardPendingPurchase(svc *pos.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /api/offline-purchases/:key"
		defer handlePanic(c, route)

		if err := svc.Discard(c.Param("key")); err != nil {
			respondServiceError(c, route, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

