package pos

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"posbackend/internal/models"
	"posbackend/internal/store"
)

const moneyPlaces = 3

// Bill is the in-progress sale of one cashier. Quantities never exceed the
// stock known when the line was last touched.
type Bill struct {
	Items []models.BillItem `json:"items"`
	stock map[primitive.ObjectID]int

	// checkingOut freezes the lines while their purchase is with the store.
	checkingOut bool
}

func NewBill() *Bill {
	return &Bill{Items: []models.BillItem{}, stock: make(map[primitive.ObjectID]int)}
}

// Add puts one unit of p on the bill, or increments its line.
func (b *Bill) Add(p models.Product) error {
	if b.checkingOut {
		return ErrCheckoutBusy
	}
	if p.Stock <= 0 {
		return fmt.Errorf("%s: %w", p.Name, ErrOutOfStock)
	}
	b.stock[p.ID] = p.Stock

	for i := range b.Items {
		if b.Items[i].ProductID != p.ID {
			continue
		}
		if b.Items[i].Quantity+1 > p.Stock {
			return store.InsufficientStockError{
				ProductID: p.ID,
				Name:      p.Name,
				Available: p.Stock,
				Requested: b.Items[i].Quantity + 1,
			}
		}
		b.Items[i].Quantity++
		b.Items[i].Subtotal = lineSubtotal(b.Items[i].Price, b.Items[i].Quantity)
		return nil
	}

	b.Items = append(b.Items, models.BillItem{
		ProductID: p.ID,
		Barcode:   p.Barcode,
		Name:      p.Name,
		Price:     p.Price,
		Quantity:  1,
		Subtotal:  lineSubtotal(p.Price, 1),
	})
	return nil
}

// SetQuantity sets a line to quantity, which must be within 1..stock.
func (b *Bill) SetQuantity(id primitive.ObjectID, quantity int) error {
	if b.checkingOut {
		return ErrCheckoutBusy
	}
	i := b.index(id)
	if i < 0 {
		return ErrNotInBill
	}
	if quantity < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	if available := b.stock[id]; quantity > available {
		return store.InsufficientStockError{
			ProductID: id,
			Name:      b.Items[i].Name,
			Available: available,
			Requested: quantity,
		}
	}

	b.Items[i].Quantity = quantity
	b.Items[i].Subtotal = lineSubtotal(b.Items[i].Price, quantity)
	return nil
}

// Refresh records newer stock for a product already on the bill.
func (b *Bill) Refresh(p models.Product) {
	if b.index(p.ID) >= 0 {
		b.stock[p.ID] = p.Stock
	}
}

func (b *Bill) Remove(id primitive.ObjectID) error {
	if b.checkingOut {
		return ErrCheckoutBusy
	}
	i := b.index(id)
	if i < 0 {
		return ErrNotInBill
	}
	b.Items = append(b.Items[:i], b.Items[i+1:]...)
	delete(b.stock, id)
	return nil
}

func (b *Bill) Clear() {
	b.Items = []models.BillItem{}
	b.stock = make(map[primitive.ObjectID]int)
}

func (b *Bill) Empty() bool {
	return len(b.Items) == 0
}

func (b *Bill) Quantity(id primitive.ObjectID) int {
	if i := b.index(id); i >= 0 {
		return b.Items[i].Quantity
	}
	return 0
}

// Snapshot returns a copy of the lines safe to hand out.
func (b *Bill) Snapshot() []models.BillItem {
	items := make([]models.BillItem, len(b.Items))
	copy(items, b.Items)
	return items
}

func (b *Bill) index(id primitive.ObjectID) int {
	for i := range b.Items {
		if b.Items[i].ProductID == id {
			return i
		}
	}
	return -1
}

type Totals struct {
	Subtotal float64 `json:"subtotal"`
	Tax      float64 `json:"tax"`
	Total    float64 `json:"total"`
}

// ComputeTotals sums the lines; tax is subtotal times rate when enabled.
func ComputeTotals(items []models.BillItem, taxEnabled bool, rate float64) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	tax := decimal.Zero
	if taxEnabled {
		tax = subtotal.Mul(decimal.NewFromFloat(rate))
	}

	return Totals{
		Subtotal: subtotal.Round(moneyPlaces).InexactFloat64(),
		Tax:      tax.Round(moneyPlaces).InexactFloat64(),
		Total:    subtotal.Add(tax).Round(moneyPlaces).InexactFloat64(),
	}
}

func lineSubtotal(price float64, quantity int) float64 {
	return decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(quantity))).Round(moneyPlaces).InexactFloat64()
}
