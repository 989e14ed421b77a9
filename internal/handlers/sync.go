package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"

	"posbackend/internal/cache"
	"posbackend/internal/pos"
)

func outcomeBody(out cache.RefreshOutcome) gin.H {
	body := gin.H{"ok": out.Err == nil}
	if out.Err != nil {
		body["warning"] = out.Err.Error()
	}
	return body
}

/*
GET /api/sync
- returns the cached catalog immediately and refreshes it in the background
- ?wait=true holds the response until the refresh settles and returns the fresh data
*/
func LoadWithCache(svc *pos.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/sync"
		defer handlePanic(c, route)

		result := svc.Cache().LoadWithCache(c.Request.Context())
		if !cast.ToBool(c.Query("wait")) {
			c.JSON(http.StatusOK, gin.H{
				"products":   result.Products,
				"customers":  result.Customers,
				"fromCache":  result.FromCache,
				"refreshing": true,
			})
			return
		}

		select {
		case out := <-result.Refresh:
			products, customers := result.Products, result.Customers
			if out.Err == nil {
				products, customers = out.Products, out.Customers
			}
			c.JSON(http.StatusOK, gin.H{
				"products":  products,
				"customers": customers,
				"fromCache": out.Err != nil,
				"refresh":   outcomeBody(out),
			})
		case <-c.Request.Context().Done():
			respondWithError(c, http.StatusGatewayTimeout, route, "refresh did not finish")
		}
	}
}

/*
POST /api/sync/refresh
- full reload from the remote store; the cache is untouched on failure
*/
func RefreshCache(svc *pos.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/sync/refresh"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()

		products, customers, err := svc.Cache().Refresh(ctx)
		if err != nil {
			respondWithError(c, http.StatusBadGateway, route, err.Error())
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"products":  len(products),
			"customers": len(customers),
		})
	}
}
