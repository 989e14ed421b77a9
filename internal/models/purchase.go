package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	PaymentCash = "cash"
	PaymentCard = "card"

	PurchaseCompleted = "completed"
	PurchaseCancelled = "cancelled"
)

// BillItem captures a product line at the time it was rung up.
type BillItem struct {
	ProductID primitive.ObjectID `bson:"productId" json:"productId"`
	Barcode   string             `bson:"barcode" json:"barcode"`
	Name      string             `bson:"name" json:"name"`
	Price     float64            `bson:"price" json:"price"`
	Quantity  int                `bson:"quantity" json:"quantity"`
	Subtotal  float64            `bson:"subtotal" json:"subtotal"`
}

// Purchase is a completed checkout, stored in the bills collection.
type Purchase struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CustomerID    primitive.ObjectID `bson:"customerId" json:"customerId"`
	CustomerName  string             `bson:"customerName" json:"customerName"`
	Items         []BillItem         `bson:"items" json:"items"`
	Subtotal      float64            `bson:"subtotal" json:"subtotal"`
	Tax           float64            `bson:"tax" json:"tax"`
	Total         float64            `bson:"total" json:"total"`
	PaymentMethod string             `bson:"paymentMethod" json:"paymentMethod"`
	Status        string             `bson:"status" json:"status"`
	Date          time.Time          `bson:"date" json:"date"`
	UserID        string             `bson:"userId" json:"userId"`
	UserName      string             `bson:"userName" json:"userName"`
	ReplayKey     string             `bson:"replayKey,omitempty" json:"replayKey,omitempty"`
}

func ValidPaymentMethod(method string) bool {
	return method == PaymentCash || method == PaymentCard
}
