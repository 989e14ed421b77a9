package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"posbackend/internal/models"
	"posbackend/internal/pos"
	"posbackend/internal/store"
)

type SupplierCreateRequest struct {
	Name          string `json:"name" binding:"required"`
	ContactPerson string `json:"contactPerson"`
	Email         string `json:"email" binding:"omitempty,email"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
}

/*
GET /api/suppliers
*/
func ListSuppliers(svc *pos.Service, suppliers store.Suppliers) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/suppliers"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if !ensureOnline(ctx, c, svc, route) {
			return
		}

		list, err := suppliers.ListSuppliers(ctx)
		if err != nil {
			respondWithError(c, http.StatusBadGateway, route, "db error")
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": list})
	}
}

/*
POST /api/suppliers
- two suppliers cannot share a name
*/
func CreateSupplier(svc *pos.Service, suppliers store.Suppliers) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/suppliers"
		defer handlePanic(c, route)

		var req SupplierCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		name := strings.TrimSpace(req.Name)
		if name == "" {
			respondWithError(c, http.StatusBadRequest, route, "name required")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if !ensureOnline(ctx, c, svc, route) {
			return
		}

		supplier, err := suppliers.CreateSupplier(ctx, models.Supplier{
			Name:          name,
			ContactPerson: strings.TrimSpace(req.ContactPerson),
			Email:         strings.TrimSpace(req.Email),
			Phone:         strings.TrimSpace(req.Phone),
			Address:       strings.TrimSpace(req.Address),
		})
		if errors.Is(err, store.ErrDuplicate) {
			respondWithError(c, http.StatusConflict, route, "supplier already exists")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusBadGateway, route, "db error")
			return
		}

		c.JSON(http.StatusCreated, supplier)
	}
}
