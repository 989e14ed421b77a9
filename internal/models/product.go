package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Product is the catalog record. Barcode is the lookup key used at the till,
// ID is the storage key.
type Product struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Barcode       string             `bson:"barcode" json:"barcode"`
	Name          string             `bson:"name" json:"name"`
	Price         float64            `bson:"price" json:"price"`
	Stock         int                `bson:"stock" json:"stock"`
	Category      string             `bson:"category" json:"category"`
	Description   string             `bson:"description,omitempty" json:"description,omitempty"`
	MinStock      *int               `bson:"minStock,omitempty" json:"minStock,omitempty"`
	LastRestocked *time.Time         `bson:"lastRestocked,omitempty" json:"lastRestocked,omitempty"`
}

// LowStockThreshold returns MinStock when set, otherwise fallback.
func (p Product) LowStockThreshold(fallback int) int {
	if p.MinStock != nil {
		return *p.MinStock
	}
	return fallback
}

func (p Product) IsLowStock(fallback int) bool {
	return p.Stock <= p.LowStockThreshold(fallback)
}
