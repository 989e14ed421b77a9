package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"posbackend/internal/pos"
)

type CustomerCreateRequest struct {
	Name string `json:"name" binding:"required"`
}

/*
GET /api/customers/search?q=
- cache first, remote only when nothing cached matches
*/
func SearchCustomers(svc *pos.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/customers/search"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		customers, err := svc.SearchCustomers(ctx, c.Query("q"))
		if err != nil {
			respondServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": customers})
	}
}

/*
POST /api/customers
*/
func CreateCustomer(svc *pos.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/customers"
		defer handlePanic(c, route)

		var req CustomerCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		customer, err := svc.CreateCustomer(ctx, req.Name)
		if err != nil {
			respondServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusCreated, customer)
	}
}
