package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"posbackend/internal/models"
)

var ErrInvalidPurchase = errors.New("invalid purchase")

// preparePurchase checks the shape of a purchase before any write and fills
// the fields the store owns.
func preparePurchase(p models.Purchase, now time.Time) (models.Purchase, error) {
	if len(p.Items) == 0 {
		return p, fmt.Errorf("%w: no items", ErrInvalidPurchase)
	}
	if p.CustomerID.IsZero() {
		return p, fmt.Errorf("%w: no customer", ErrInvalidPurchase)
	}
	for _, item := range p.Items {
		if item.Quantity <= 0 {
			return p, fmt.Errorf("%w: quantity %d for %s", ErrInvalidPurchase, item.Quantity, item.Name)
		}
	}
	if p.Date.IsZero() {
		p.Date = now
	}
	p.Status = models.PurchaseCompleted
	p.ID = primitive.NewObjectID()
	return p, nil
}

func saleMovement(p models.Purchase, item models.BillItem) models.InventoryTransaction {
	billID := p.ID
	return models.InventoryTransaction{
		ProductID: item.ProductID,
		Type:      models.MovementOut,
		Quantity:  item.Quantity,
		Reason:    models.ReasonSale,
		Date:      p.Date,
		UserID:    p.UserID,
		BillID:    &billID,
	}
}

func returnMovement(p models.Purchase, item models.BillItem, userID string, at time.Time) models.InventoryTransaction {
	billID := p.ID
	return models.InventoryTransaction{
		ProductID: item.ProductID,
		Type:      models.MovementIn,
		Quantity:  item.Quantity,
		Reason:    models.ReasonReturn,
		Date:      at,
		UserID:    userID,
		BillID:    &billID,
	}
}

func normalizeCustomerName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func newCustomer(name string, now time.Time) (models.Customer, error) {
	name = normalizeCustomerName(name)
	if name == "" {
		return models.Customer{}, errors.New("customer name is required")
	}
	return models.Customer{Name: name, CreatedAt: now}, nil
}
