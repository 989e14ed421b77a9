package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"posbackend/internal/pos"
)

/*
GET /healthz
- always 200; the till keeps selling offline, so "offline" is a state, not a failure
*/
func Health(svc *pos.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := "online"
		if !svc.Online(ctx) {
			status = "offline"
		}
		body := gin.H{"status": status}
		if pending, err := svc.Queue().Len(); err == nil {
			body["pendingPurchases"] = pending
		}
		c.JSON(http.StatusOK, body)
	}
}
