package pos

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"posbackend/internal/models"
)

type InventoryQuery struct {
	Search   string
	LowStock bool
	SortBy   string // name, stock or price
	Desc     bool
}

// Inventory filters and sorts the cached catalog.
func (s *Service) Inventory(q InventoryQuery) []models.Product {
	products := s.cache.SearchProducts(q.Search, 0)
	if q.LowStock {
		low := products[:0]
		for _, p := range products {
			if p.IsLowStock(s.opts.LowStockDefault) {
				low = append(low, p)
			}
		}
		products = low
	}

	less := func(i, j int) bool { return strings.ToLower(products[i].Name) < strings.ToLower(products[j].Name) }
	switch q.SortBy {
	case "stock":
		less = func(i, j int) bool { return products[i].Stock < products[j].Stock }
	case "price":
		less = func(i, j int) bool { return products[i].Price < products[j].Price }
	}
	if q.Desc {
		asc := less
		less = func(i, j int) bool { return asc(j, i) }
	}
	sort.SliceStable(products, less)
	return products
}

// LowStock asks the remote store when reachable and falls back to the cache.
func (s *Service) LowStock(ctx context.Context) ([]models.Product, error) {
	if !s.Online(ctx) {
		return s.Inventory(InventoryQuery{LowStock: true, SortBy: "stock"}), nil
	}
	products, err := s.remote.LowStockProducts(ctx, s.opts.LowStockDefault)
	if err != nil {
		return nil, remoteError("low stock", err)
	}
	return products, nil
}

func (s *Service) AdjustStock(ctx context.Context, id primitive.ObjectID, change int, userID string) (models.Product, error) {
	if err := s.requireOnline(ctx); err != nil {
		return models.Product{}, err
	}
	if change == 0 {
		return models.Product{}, fmt.Errorf("%w: change must not be zero", ErrInvalidQuantity)
	}

	p, err := s.remote.AdjustStock(ctx, id, change, userID)
	if err != nil {
		return models.Product{}, s.classify("adjust stock", err)
	}
	s.cache.PatchProduct(p)
	return p, nil
}

func (s *Service) Restock(ctx context.Context, id primitive.ObjectID, quantity int, userID string) (models.Product, error) {
	if quantity <= 0 {
		return models.Product{}, fmt.Errorf("%w: restock quantity must be positive", ErrInvalidQuantity)
	}
	if err := s.requireOnline(ctx); err != nil {
		return models.Product{}, err
	}

	p, err := s.remote.Restock(ctx, id, quantity, userID)
	if err != nil {
		return models.Product{}, s.classify("restock", err)
	}
	s.cache.PatchProduct(p)
	return p, nil
}

// CreateProduct adds a catalog entry and then reloads the whole cache.
func (s *Service) CreateProduct(ctx context.Context, p models.Product) (models.Product, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Barcode = strings.TrimSpace(p.Barcode)
	p.Category = strings.TrimSpace(p.Category)
	switch {
	case p.Name == "":
		return models.Product{}, fmt.Errorf("%w: name is required", ErrInvalidProduct)
	case p.Barcode == "":
		return models.Product{}, fmt.Errorf("%w: barcode is required", ErrInvalidProduct)
	case p.Price < 0:
		return models.Product{}, fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	case p.Stock < 0:
		return models.Product{}, fmt.Errorf("%w: stock must not be negative", ErrInvalidProduct)
	case p.MinStock != nil && *p.MinStock < 0:
		return models.Product{}, fmt.Errorf("%w: minimum stock must not be negative", ErrInvalidProduct)
	}
	if err := s.requireOnline(ctx); err != nil {
		return models.Product{}, err
	}

	created, err := s.remote.CreateProduct(ctx, p)
	if err != nil {
		return models.Product{}, s.classify("create product", err)
	}

	if _, _, err := s.cache.Refresh(ctx); err != nil {
		zap.L().Warn("refresh after product create failed", zap.Error(err))
		s.cache.PatchProduct(created)
	}
	return created, nil
}

func (s *Service) Transactions(ctx context.Context, filter models.TransactionFilter) ([]models.InventoryTransaction, int64, error) {
	if err := s.requireOnline(ctx); err != nil {
		return nil, 0, err
	}
	movements, total, err := s.remote.InventoryTransactions(ctx, filter)
	if err != nil {
		return nil, 0, remoteError("inventory transactions", err)
	}
	return movements, total, nil
}

func (s *Service) Purchases(ctx context.Context, page, limit int64) ([]models.Purchase, int64, error) {
	if err := s.requireOnline(ctx); err != nil {
		return nil, 0, err
	}
	purchases, total, err := s.remote.ListPurchases(ctx, page, limit)
	if err != nil {
		return nil, 0, remoteError("list purchases", err)
	}
	return purchases, total, nil
}

// CancelPurchase returns a completed purchase's items to stock.
func (s *Service) CancelPurchase(ctx context.Context, id primitive.ObjectID, userID string) (models.Purchase, error) {
	if err := s.requireOnline(ctx); err != nil {
		return models.Purchase{}, err
	}

	result, err := s.remote.CancelPurchase(ctx, id, userID)
	if err != nil {
		return models.Purchase{}, s.classify("cancel purchase", err)
	}
	for _, p := range result.Products {
		s.cache.PatchProduct(p)
	}
	if result.Customer != nil {
		s.cache.PatchCustomer(*result.Customer)
	}
	return result.Purchase, nil
}

/* =======================
   CUSTOMERS
======================= */

// SearchCustomers looks in the cache first and only asks the remote store
// when nothing cached matched.
func (s *Service) SearchCustomers(ctx context.Context, term string) ([]models.Customer, error) {
	if found := s.cache.SearchCustomers(term, customerSearchLimit); len(found) > 0 {
		return found, nil
	}
	if !s.Online(ctx) {
		return []models.Customer{}, nil
	}

	found, err := s.remote.SearchCustomers(ctx, term, customerSearchLimit)
	if err != nil {
		return nil, remoteError("search customers", err)
	}
	for _, c := range found {
		s.cache.PatchCustomer(c)
	}
	return found, nil
}

func (s *Service) CreateCustomer(ctx context.Context, name string) (models.Customer, error) {
	if strings.TrimSpace(name) == "" {
		return models.Customer{}, fmt.Errorf("%w: name is required", ErrInvalidCustomer)
	}
	if err := s.requireOnline(ctx); err != nil {
		return models.Customer{}, err
	}

	c, err := s.remote.CreateCustomer(ctx, name)
	if err != nil {
		return models.Customer{}, s.classify("create customer", err)
	}
	s.cache.PatchCustomer(c)
	return c, nil
}

func (s *Service) classify(op string, err error) error {
	if isRejection(err) {
		return err
	}
	return remoteError(op, err)
}
