package store

import (
	"context"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"posbackend/internal/models"
)

// normalizeProductDocument tolerates documents written by older clients:
// numeric fields stored with a different BSON type and categories stored as arrays.
func normalizeProductDocument(raw bson.M) (models.Product, error) {
	switch cat := raw["category"].(type) {
	case string:
		raw["category"] = strings.TrimSpace(cat)
	case bson.A:
		raw["category"] = firstString(cat)
	case []interface{}:
		raw["category"] = firstString(cat)
	default:
		raw["category"] = ""
	}

	raw["stock"] = clampStock(toInt(raw["stock"]))
	if val, ok := raw["minStock"]; ok && val != nil {
		raw["minStock"] = toInt(val)
	}
	raw["price"] = toFloat(raw["price"])

	data, err := bson.Marshal(raw)
	if err != nil {
		return models.Product{}, err
	}

	var p models.Product
	if err := bson.Unmarshal(data, &p); err != nil {
		return models.Product{}, err
	}
	return p, nil
}

func toInt(val interface{}) int {
	switch typed := val.(type) {
	case int32:
		return int(typed)
	case int64:
		return int(typed)
	case float64:
		return int(typed)
	case int:
		return typed
	default:
		return 0
	}
}

func toFloat(val interface{}) float64 {
	switch typed := val.(type) {
	case int32:
		return float64(typed)
	case int64:
		return float64(typed)
	case int:
		return float64(typed)
	case float64:
		return typed
	case primitive.Decimal128:
		f, err := strconv.ParseFloat(typed.String(), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func firstString(values []interface{}) string {
	for _, v := range values {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func clampStock(stock int) int {
	if stock < 0 {
		return 0
	}
	return stock
}

func decodeProducts(ctx context.Context, cursor *mongo.Cursor) ([]models.Product, error) {
	products := make([]models.Product, 0)

	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, err
		}

		product, err := normalizeProductDocument(raw)
		if err != nil {
			return nil, err
		}

		products = append(products, product)
	}

	if err := cursor.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func decodeProduct(res *mongo.SingleResult) (models.Product, error) {
	var raw bson.M
	if err := res.Decode(&raw); err != nil {
		return models.Product{}, err
	}
	return normalizeProductDocument(raw)
}
