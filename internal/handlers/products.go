package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"posbackend/internal/models"
	"posbackend/internal/pos"
)

/* =======================
   REQUEST MODELS
======================= */

type ProductCreateRequest struct {
	Barcode     string   `json:"barcode" binding:"required"`
	Name        string   `json:"name" binding:"required"`
	Price       *float64 `json:"price" binding:"required,gte=0"`
	Stock       int      `json:"stock" binding:"gte=0"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	MinStock    *int     `json:"minStock" binding:"omitempty,gte=0"`
}

type StockAdjustRequest struct {
	Change int `json:"change" binding:"required"`
}

type RestockRequest struct {
	Quantity int `json:"quantity" binding:"required,gt=0"`
}

/*
GET /api/products
- Served from the cache: ?search=&lowStock=true&sort=name|stock|price&order=asc|desc
*/
func ListProducts(svc *pos.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/products"
		defer handlePanic(c, route)

		sortBy := strings.ToLower(strings.TrimSpace(c.DefaultQuery("sort", "name")))
		switch sortBy {
		case "name", "stock", "price":
		default:
			respondWithError(c, http.StatusBadRequest, route, "sort must be name, stock or price")
			return
		}

		products := svc.Inventory(pos.InventoryQuery{
			Search:   c.Query("search"),
			LowStock: cast.ToBool(c.Query("lowStock")),
			SortBy:   sortBy,
			Desc:     strings.EqualFold(c.Query("order"), "desc"),
		})

		c.JSON(http.StatusOK, gin.H{
			"data":  products,
			"total": len(products),
		})
	}
}

/*
GET /api/products/search?q=
*/
func SearchProducts(svc *pos.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := cast.ToInt(c.DefaultQuery("limit", "10"))
		if limit <= 0 {
			limit = 10
		}
		c.JSON(http.StatusOK, gin.H{"data": svc.Cache().SearchProducts(c.Query("q"), limit)})
	}
}

/*
GET /api/products/barcode/:barcode
*/
func ProductByBarcode(svc *pos.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/products/barcode/:barcode"
		defer handlePanic(c, route)

		product, err := svc.LookupBarcode(c.Request.Context(), strings.TrimSpace(c.Param("barcode")))
		if err != nil {
			respondServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, product)
	}
}

/*
POST /api/products
*/
func CreateProduct(svc *pos.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/products"
		defer handlePanic(c, route)

		var req ProductCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()

		product, err := svc.CreateProduct(ctx, models.Product{
			Barcode:     req.Barcode,
			Name:        req.Name,
			Price:       *req.Price,
			Stock:       req.Stock,
			Category:    req.Category,
			Description: strings.TrimSpace(req.Description),
			MinStock:    req.MinStock,
		})
		if err != nil {
			respondServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusCreated, product)
	}
}

/*
POST /api/products/:id/adjust
- change may be negative; stock never drops below zero
*/
func AdjustStock(svc *pos.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/products/:id/adjust"
		defer handlePanic(c, route)

		id, ok := paramObjectID(c, "id", route)
		if !ok {
			return
		}

		var req StockAdjustRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		product, err := svc.AdjustStock(ctx, id, req.Change, currentIdentity(c).UID)
		if err != nil {
			respondServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, product)
	}
}

/*
POST /api/products/:id/restock
*/
func Restock(svc *pos.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/products/:id/restock"
		defer handlePanic(c, route)

		id, ok := paramObjectID(c, "id", route)
		if !ok {
			return
		}

		var req RestockRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		product, err := svc.Restock(ctx, id, req.Quantity, currentIdentity(c).UID)
		if err != nil {
			respondServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, product)
	}
}

/*
GET /api/products/low-stock
*/
func LowStock(svc *pos.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/products/low-stock"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		products, err := svc.LowStock(ctx)
		if err != nil {
			respondServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": products, "threshold": svc.Options().LowStockDefault})
	}
}

type productRow struct {
	Barcode       string `csv:"barcode"`
	Name          string `csv:"name"`
	Category      string `csv:"category"`
	Price         string `csv:"price"`
	Stock         int    `csv:"stock"`
	MinStock      int    `csv:"min_stock"`
	LowStock      bool   `csv:"low_stock"`
	LastRestocked string `csv:"last_restocked"`
}

func productRows(products []models.Product, fallbackMin int) []productRow {
	rows := make([]productRow, 0, len(products))
	for _, p := range products {
		row := productRow{
			Barcode:  p.Barcode,
			Name:     p.Name,
			Category: p.Category,
			Price:    decimal.NewFromFloat(p.Price).StringFixed(2),
			Stock:    p.Stock,
			MinStock: p.LowStockThreshold(fallbackMin),
			LowStock: p.IsLowStock(fallbackMin),
		}
		if p.LastRestocked != nil {
			row.LastRestocked = p.LastRestocked.UTC().Format(time.RFC3339)
		}
		rows = append(rows, row)
	}
	return rows
}

/*
GET /api/products/export
- CSV of the cached catalog, same filters as the list
*/
func ExportProducts(svc *pos.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/products/export"
		defer handlePanic(c, route)

		products := svc.Inventory(pos.InventoryQuery{
			Search:   c.Query("search"),
			LowStock: cast.ToBool(c.Query("lowStock")),
			SortBy:   c.DefaultQuery("sort", "name"),
			Desc:     strings.EqualFold(c.Query("order"), "desc"),
		})

		body, err := gocsv.MarshalBytes(productRows(products, svc.Options().LowStockDefault))
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "export failed")
			return
		}

		filename := "products-" + time.Now().Format("20060102") + ".csv"
		c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
		c.Data(http.StatusOK, "text/csv; charset=utf-8", body)
	}
}
