package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"posbackend/internal/models"
	"posbackend/internal/pos"
)

func parseDateParam(value string, endOfDay bool) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	day, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		day = day.Add(24*time.Hour - time.Nanosecond)
	}
	return day, nil
}

/*
GET /api/inventory/transactions
- ?productId=&from=&to=&page=&limit=
- from/to accept RFC 3339 or YYYY-MM-DD (to is inclusive of the whole day)
*/
func ListTransactions(svc *pos.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/inventory/transactions"
		defer handlePanic(c, route)

		page, limit, err := parsePaginationParams(c.Query("page"), c.Query("limit"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		filter := models.TransactionFilter{Page: page, Limit: limit}
		if raw := strings.TrimSpace(c.Query("productId")); raw != "" {
			id, err := primitive.ObjectIDFromHex(raw)
			if err != nil {
				respondWithError(c, http.StatusBadRequest, route, "invalid productId")
				return
			}
			filter.ProductID = id
		}
		if filter.From, err = parseDateParam(c.Query("from"), false); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid from date")
			return
		}
		if filter.To, err = parseDateParam(c.Query("to"), true); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid to date")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		movements, total, err := svc.Transactions(ctx, filter)
		if err != nil {
			respondServiceError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"data":  movements,
			"page":  page,
			"limit": limit,
			"total": total,
		})
	}
}
