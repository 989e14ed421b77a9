package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	MovementIn  = "in"
	MovementOut = "out"

	ReasonSale       = "sale"
	ReasonRestock    = "restock"
	ReasonReturn     = "return"
	ReasonAdjustment = "adjustment"
)

// InventoryTransaction records a single stock movement.
type InventoryTransaction struct {
	ID        primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	ProductID primitive.ObjectID  `bson:"productId" json:"productId"`
	Type      string              `bson:"type" json:"type"`
	Quantity  int                 `bson:"quantity" json:"quantity"`
	Reason    string              `bson:"reason" json:"reason"`
	Date      time.Time           `bson:"date" json:"date"`
	UserID    string              `bson:"userId" json:"userId"`
	BillID    *primitive.ObjectID `bson:"billId,omitempty" json:"billId,omitempty"`
}

// TransactionFilter narrows an inventory history query. Zero values mean "any".
type TransactionFilter struct {
	ProductID primitive.ObjectID
	From      time.Time
	To        time.Time
	Page      int64
	Limit     int64
}

// Matches reports whether t satisfies the filter, ignoring pagination.
func (f TransactionFilter) Matches(t InventoryTransaction) bool {
	if !f.ProductID.IsZero() && t.ProductID != f.ProductID {
		return false
	}
	if !f.From.IsZero() && t.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && t.Date.After(f.To) {
		return false
	}
	return true
}
