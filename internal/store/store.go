// Package store is the client side of the remote document store. Mongo is the
// production implementation; Memory mirrors its semantics for demos and tests.
package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"posbackend/internal/models"
)

const (
	ProductsCollection     = "products"
	CustomersCollection    = "customers"
	BillsCollection        = "bills"
	TransactionsCollection = "inventory_transactions"
	SuppliersCollection    = "suppliers"
	UsersCollection        = "users"
)

// CheckoutResult is what a committed checkout changed.
type CheckoutResult struct {
	Purchase models.Purchase
	Products []models.Product
	Customer models.Customer
}

// CancelResult is what a purchase cancellation changed.
type CancelResult struct {
	Purchase models.Purchase
	Products []models.Product
	Customer *models.Customer
}

type Catalog interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	ProductByBarcode(ctx context.Context, barcode string) (models.Product, error)
	ProductByID(ctx context.Context, id primitive.ObjectID) (models.Product, error)
	CreateProduct(ctx context.Context, p models.Product) (models.Product, error)
	AdjustStock(ctx context.Context, id primitive.ObjectID, change int, userID string) (models.Product, error)
	Restock(ctx context.Context, id primitive.ObjectID, quantity int, userID string) (models.Product, error)
	LowStockProducts(ctx context.Context, fallbackMin int) ([]models.Product, error)
	InventoryTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.InventoryTransaction, int64, error)
}

type Sales interface {
	// Checkout decrements stock for every item, records the purchase and its
	// inventory movements and updates the customer's stats as one atomic unit.
	Checkout(ctx context.Context, purchase models.Purchase) (CheckoutResult, error)
	CancelPurchase(ctx context.Context, id primitive.ObjectID, userID string) (CancelResult, error)
	ListPurchases(ctx context.Context, page, limit int64) ([]models.Purchase, int64, error)
}

type Customers interface {
	ListCustomers(ctx context.Context) ([]models.Customer, error)
	CustomerByID(ctx context.Context, id primitive.ObjectID) (models.Customer, error)
	SearchCustomers(ctx context.Context, term string, limit int64) ([]models.Customer, error)
	CreateCustomer(ctx context.Context, name string) (models.Customer, error)
}

type Suppliers interface {
	ListSuppliers(ctx context.Context) ([]models.Supplier, error)
	CreateSupplier(ctx context.Context, s models.Supplier) (models.Supplier, error)
}

type Users interface {
	UserByEmail(ctx context.Context, email string) (models.User, error)
	UserByID(ctx context.Context, id primitive.ObjectID) (models.User, error)
	CreateUser(ctx context.Context, u models.User) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, id primitive.ObjectID, update models.UserUpdate) (models.User, error)
}

// Store is everything the till needs from the remote side.
type Store interface {
	Ping(ctx context.Context) error
	Catalog
	Sales
	Customers
	Suppliers
	Users
}
