package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"posbackend/internal/pos"
)

/* =========================
   REQUEST DTOs
========================= */

type scanRequest struct {
	Barcode string `json:"barcode" binding:"required"`
}

type addItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
}

type quantityRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

type checkoutRequest struct {
	CustomerID    string `json:"customerId" binding:"required"`
	PaymentMethod string `json:"paymentMethod" binding:"required,oneof=cash card"`
	TaxEnabled    bool   `json:"taxEnabled"`
}

func taxEnabled(c *gin.Context) bool {
	return cast.ToBool(c.Query("tax"))
}

// billResponse answers with the bill even when the operation was refused, so
// the till can redraw it next to the error.
func billResponse(c *gin.Context, svc *pos.Service, route string, view pos.BillView, err error) {
	if err == nil {
		c.JSON(http.StatusOK, view)
		return
	}
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		respondServiceError(c, route, err)
		return
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error": err.Error(),
		"bill":  svc.Bill(currentIdentity(c).UID, taxEnabled(c)),
	})
}

/*
GET /api/bill?tax=true
*/
func GetBill(svc *pos.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.Bill(currentIdentity(c).UID, taxEnabled(c)))
	}
}

/*
POST /api/bill/scan
*/
func ScanBarcode(svc *pos.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/bill/scan"
		defer handlePanic(c, route)

		var req scanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		view, err := svc.Scan(ctx, currentIdentity(c).UID, strings.TrimSpace(req.Barcode), taxEnabled(c))
		billResponse(c, svc, route, view, err)
	}
}

/*
POST /api/bill/items
*/
func AddBillItem(svc *pos.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/bill/items"
		defer handlePanic(c, route)

		var req addItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}
		id, err := primitive.ObjectIDFromHex(req.ProductID)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid productId")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		view, err := svc.AddItem(ctx, currentIdentity(c).UID, id, taxEnabled(c))
		billResponse(c, svc, route, view, err)
	}
}

/*
PATCH /api/bill/items/:productId
*/
func SetBillQuantity(svc *pos.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PATCH /api/bill/items/:productId"
		defer handlePanic(c, route)

		id, ok := paramObjectID(c, "productId", route)
		if !ok {
			return
		}

		var req quantityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		view, err := svc.SetQuantity(currentIdentity(c).UID, id, req.Quantity, taxEnabled(c))
		billResponse(c, svc, route, view, err)
	}
}

/*
DELETE /api/bill/items/:productId
*/
func RemoveBillItem(svc *pos.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /api/bill/items/:productId"
		defer handlePanic(c, route)

		id, ok := paramObjectID(c, "productId", route)
		if !ok {
			return
		}

		view, err := svc.RemoveItem(currentIdentity(c).UID, id, taxEnabled(c))
		billResponse(c, svc, route, view, err)
	}
}

/*
DELETE /api/bill
*/
func ClearBill(svc *pos.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /api/bill"
		defer handlePanic(c, route)

		uid := currentIdentity(c).UID
		err := svc.ClearBill(uid)
		billResponse(c, svc, route, svc.Bill(uid, taxEnabled(c)), err)
	}
}

/*
POST /api/bill/checkout
- 201 when committed online, 202 when queued for replay
*/
func Checkout(svc *pos.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/bill/checkout"
		defer handlePanic(c, route)

		var req checkoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}
		customerID, err := primitive.ObjectIDFromHex(req.CustomerID)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid customerId")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
		defer cancel()

		identity := currentIdentity(c)
		receipt, err := svc.Checkout(ctx, identity.UID, pos.CheckoutRequest{
			CustomerID:    customerID,
			PaymentMethod: req.PaymentMethod,
			TaxEnabled:    req.TaxEnabled,
			UserID:        identity.UID,
			UserName:      identity.DisplayName,
		})
		if err != nil {
			respondServiceError(c, route, err)
			return
		}

		status := http.StatusCreated
		if receipt.Queued {
			status = http.StatusAccepted
		}
		c.JSON(status, receipt)
	}
}
