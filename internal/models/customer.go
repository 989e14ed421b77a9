package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Customer struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name             string             `bson:"name" json:"name"`
	Phone            string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Email            string             `bson:"email,omitempty" json:"email,omitempty"`
	TotalPurchases   int                `bson:"totalPurchases" json:"totalPurchases"`
	TotalSpent       float64            `bson:"totalSpent" json:"totalSpent"`
	LastPurchaseDate *time.Time         `bson:"lastPurchaseDate,omitempty" json:"lastPurchaseDate,omitempty"`
	CreatedAt        time.Time          `bson:"createdAt" json:"createdAt"`
}

// RecordPurchase applies the stats change of one completed purchase.
func (c *Customer) RecordPurchase(total float64, at time.Time) {
	c.TotalPurchases++
	c.TotalSpent += total
	c.LastPurchaseDate = &at
}
