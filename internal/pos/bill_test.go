package pos

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"posbackend/internal/models"
	"posbackend/internal/store"
)

func stocked(name string, price float64, stock int) models.Product {
	return models.Product{ID: primitive.NewObjectID(), Barcode: name + "-code", Name: name, Price: price, Stock: stock}
}

func TestBillAddIncrementsUpToStock(t *testing.T) {
	b := NewBill()
	p := stocked("Soap", 1.25, 2)

	require.NoError(t, b.Add(p))
	require.NoError(t, b.Add(p))

	err := b.Add(p)
	var shortage store.InsufficientStockError
	require.True(t, errors.As(err, &shortage))
	assert.Equal(t, 2, shortage.Available)
	assert.Equal(t, 3, shortage.Requested)
	assert.Equal(t, 2, b.Quantity(p.ID))
	assert.InDelta(t, 2.5, b.Items[0].Subtotal, 1e-9)
}

func TestBillAddRejectsOutOfStock(t *testing.T) {
	b := NewBill()
	err := b.Add(stocked("Soap", 1, 0))
	assert.ErrorIs(t, err, ErrOutOfStock)
	assert.True(t, b.Empty())
}

func TestBillSetQuantityBounds(t *testing.T) {
	b := NewBill()
	p := stocked("Soap", 2, 4)
	require.NoError(t, b.Add(p))

	assert.ErrorIs(t, b.SetQuantity(p.ID, 0), ErrInvalidQuantity)
	assert.ErrorIs(t, b.SetQuantity(p.ID, 5), store.ErrInsufficientStock)
	assert.Equal(t, 1, b.Quantity(p.ID))

	require.NoError(t, b.SetQuantity(p.ID, 4))
	assert.Equal(t, 4, b.Quantity(p.ID))

	assert.ErrorIs(t, b.SetQuantity(primitive.NewObjectID(), 1), ErrNotInBill)
}

func TestBillRemoveAndClear(t *testing.T) {
	b := NewBill()
	a, c := stocked("A", 1, 1), stocked("C", 1, 1)
	require.NoError(t, b.Add(a))
	require.NoError(t, b.Add(c))

	require.NoError(t, b.Remove(a.ID))
	require.Len(t, b.Items, 1)
	assert.Equal(t, c.ID, b.Items[0].ProductID)
	assert.ErrorIs(t, b.Remove(a.ID), ErrNotInBill)

	b.Clear()
	assert.True(t, b.Empty())
}

func TestComputeTotals(t *testing.T) {
	items := []models.BillItem{
		{Price: 0.1, Quantity: 3},
		{Price: 2.345, Quantity: 2},
	}

	plain := ComputeTotals(items, false, 0.05)
	assert.Equal(t, 4.99, plain.Subtotal)
	assert.Equal(t, 0.0, plain.Tax)
	assert.Equal(t, 4.99, plain.Total)

	taxed := ComputeTotals(items, true, 0.05)
	assert.Equal(t, 4.99, taxed.Subtotal)
	assert.Equal(t, 0.25, taxed.Tax)
	assert.Equal(t, 5.24, taxed.Total)
}
