package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestNormalizeProductDocumentLegacyTypes(t *testing.T) {
	id := primitive.NewObjectID()
	product, err := normalizeProductDocument(bson.M{
		"_id":      id,
		"barcode":  "123",
		"name":     "Milk",
		"price":    int32(2),
		"stock":    float64(7),
		"minStock": int64(3),
		"category": bson.A{"", "Dairy"},
	})
	require.NoError(t, err)

	assert.Equal(t, id, product.ID)
	assert.Equal(t, 7, product.Stock)
	assert.Equal(t, 2.0, product.Price)
	assert.Equal(t, "Dairy", product.Category)
	require.NotNil(t, product.MinStock)
	assert.Equal(t, 3, *product.MinStock)
}

func TestNormalizeProductDocumentMissingStock(t *testing.T) {
	product, err := normalizeProductDocument(bson.M{"name": "Bread", "category": "Bakery"})
	require.NoError(t, err)

	assert.Equal(t, 0, product.Stock)
	assert.Nil(t, product.MinStock)
	assert.Equal(t, "Bakery", product.Category)
}

func TestNormalizeProductDocumentClampsNegativeStock(t *testing.T) {
	product, err := normalizeProductDocument(bson.M{"name": "Eggs", "stock": int32(-4)})
	require.NoError(t, err)
	assert.Equal(t, 0, product.Stock)
}
