package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"posbackend/internal/pos"
)

/*
GET /api/purchases
- newest first, paginated
*/
func ListPurchases(svc *pos.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/purchases"
		defer handlePanic(c, route)

		page, limit, err := parsePaginationParams(c.Query("page"), c.Query("limit"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		purchases, total, err := svc.Purchases(ctx, page, limit)
		if err != nil {
			respondServiceError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"data":  purchases,
			"page":  page,
			"limit": limit,
			"total": total,
		})
	}
}

/*
POST /api/purchases/:id/cancel
- items go back to stock, customer stats are reverted
*/
func CancelPurchase(svc *pos.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/purchases/:id/cancel"
		defer handlePanic(c, route)

		id, ok := paramObjectID(c, "id", route)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		purchase, err := svc.CancelPurchase(ctx, id, currentIdentity(c).UID)
		if err != nil {
			respondServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, purchase)
	}
}
