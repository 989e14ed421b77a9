package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"posbackend/internal/models"
)

// ErrUnreachable is returned by every Memory call while it is set offline.
var ErrUnreachable = errors.New("store unreachable")

// Memory is an in-process Store with the same transactional semantics as
// Mongo. Every multi-document operation validates before it writes.
type Memory struct {
	mu           sync.RWMutex
	offline      bool
	now          func() time.Time
	products     map[primitive.ObjectID]models.Product
	customers    map[primitive.ObjectID]models.Customer
	purchases    map[primitive.ObjectID]models.Purchase
	replayKeys   map[string]primitive.ObjectID
	transactions []models.InventoryTransaction
	suppliers    map[primitive.ObjectID]models.Supplier
	users        map[primitive.ObjectID]models.User
}

func NewMemory() *Memory {
	return &Memory{
		now:        time.Now,
		products:   make(map[primitive.ObjectID]models.Product),
		customers:  make(map[primitive.ObjectID]models.Customer),
		purchases:  make(map[primitive.ObjectID]models.Purchase),
		replayKeys: make(map[string]primitive.ObjectID),
		suppliers:  make(map[primitive.ObjectID]models.Supplier),
		users:      make(map[primitive.ObjectID]models.User),
	}
}

var _ Store = (*Memory)(nil)

// SetOffline makes the store behave as if the network were down.
func (m *Memory) SetOffline(offline bool) {
	m.mu.Lock()
	m.offline = offline
	m.mu.Unlock()
}

func (m *Memory) reachable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.offline {
		return ErrUnreachable
	}
	return nil
}

func (m *Memory) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reachable(ctx)
}

/* =======================
   PRODUCTS
======================= */

func (m *Memory) ListProducts(ctx context.Context) ([]models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.reachable(ctx); err != nil {
		return nil, err
	}

	products := make([]models.Product, 0, len(m.products))
	for _, p := range m.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products, nil
}

func (m *Memory) ProductByBarcode(ctx context.Context, barcode string) (models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.reachable(ctx); err != nil {
		return models.Product{}, err
	}

	for _, p := range m.products {
		if p.Barcode == barcode {
			return p, nil
		}
	}
	return models.Product{}, NotFoundError{Kind: "product", Key: barcode}
}

func (m *Memory) ProductByID(ctx context.Context, id primitive.ObjectID) (models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.reachable(ctx); err != nil {
		return models.Product{}, err
	}

	p, ok := m.products[id]
	if !ok {
		return models.Product{}, productNotFound(id)
	}
	return p, nil
}

func (m *Memory) CreateProduct(ctx context.Context, p models.Product) (models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.reachable(ctx); err != nil {
		return models.Product{}, err
	}

	for _, existing := range m.products {
		if p.Barcode != "" && existing.Barcode == p.Barcode {
			return models.Product{}, fmt.Errorf("barcode %s: %w", p.Barcode, ErrDuplicate)
		}
	}

	now := m.now()
	p.ID = primitive.NewObjectID()
	p.Stock = clampStock(p.Stock)
	p.LastRestocked = &now
	m.products[p.ID] = p
	return p, nil
}

func (m *Memory) AdjustStock(ctx context.Context, id primitive.ObjectID, change int, userID string) (models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.reachable(ctx); err != nil {
		return models.Product{}, err
	}

	p, ok := m.products[id]
	if !ok {
		return models.Product{}, productNotFound(id)
	}

	movement, newStock := stockAdjustment(p, change, userID, m.now())
	p.Stock = newStock
	m.products[id] = p
	if movement != nil {
		m.record(*movement)
	}
	return p, nil
}

func (m *Memory) Restock(ctx context.Context, id primitive.ObjectID, quantity int, userID string) (models.Product, error) {
	if quantity <= 0 {
		return models.Product{}, fmt.Errorf("restock quantity must be positive, got %d", quantity)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.reachable(ctx); err != nil {
		return models.Product{}, err
	}

	p, ok := m.products[id]
	if !ok {
		return models.Product{}, productNotFound(id)
	}

	now := m.now()
	p.Stock += quantity
	p.LastRestocked = &now
	m.products[id] = p
	m.record(models.InventoryTransaction{
		ProductID: id,
		Type:      models.MovementIn,
		Quantity:  quantity,
		Reason:    models.ReasonRestock,
		Date:      now,
		UserID:    userID,
	})
	return p, nil
}

func (m *Memory) LowStockProducts(ctx context.Context, fallbackMin int) ([]models.Product, error) {
	all, err := m.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	low := make([]models.Product, 0)
	for _, p := range all {
		if p.IsLowStock(fallbackMin) {
			low = append(low, p)
		}
	}
	sort.SliceStable(low, func(i, j int) bool { return low[i].Stock < low[j].Stock })
	return low, nil
}

func (m *Memory) InventoryTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.InventoryTransaction, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.reachable(ctx); err != nil {
		return nil, 0, err
	}

	matched := make([]models.InventoryTransaction, 0)
	for i := len(m.transactions) - 1; i >= 0; i-- {
		if filter.Matches(m.transactions[i]) {
			matched = append(matched, m.transactions[i])
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Date.After(matched[j].Date) })

	total := int64(len(matched))
	return paginate(matched, filter.Page, filter.Limit), total, nil
}

func (m *Memory) record(t models.InventoryTransaction) {
	t.ID = primitive.NewObjectID()
	m.transactions = append(m.transactions, t)
}

/* =======================
   SALES
======================= */

func (m *Memory) Checkout(ctx context.Context, purchase models.Purchase) (CheckoutResult, error) {
	purchase, err := preparePurchase(purchase, m.now())
	if err != nil {
		return CheckoutResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.reachable(ctx); err != nil {
		return CheckoutResult{}, err
	}

	if purchase.ReplayKey != "" {
		if _, seen := m.replayKeys[purchase.ReplayKey]; seen {
			return CheckoutResult{}, ErrAlreadyApplied
		}
	}

	customer, ok := m.customers[purchase.CustomerID]
	if !ok {
		return CheckoutResult{}, NotFoundError{Kind: "customer", Key: purchase.CustomerID.Hex()}
	}

	// Validate every line against the running balance before touching anything.
	balance := make(map[primitive.ObjectID]int, len(purchase.Items))
	for _, item := range purchase.Items {
		p, ok := m.products[item.ProductID]
		if !ok {
			return CheckoutResult{}, productNotFound(item.ProductID)
		}
		available, seen := balance[item.ProductID]
		if !seen {
			available = p.Stock
		}
		if available < item.Quantity {
			return CheckoutResult{}, InsufficientStockError{
				ProductID: p.ID,
				Name:      p.Name,
				Available: available,
				Requested: item.Quantity,
			}
		}
		balance[item.ProductID] = available - item.Quantity
	}

	products := make([]models.Product, 0, len(purchase.Items))
	for _, item := range purchase.Items {
		p := m.products[item.ProductID]
		p.Stock -= item.Quantity
		m.products[item.ProductID] = p
		products = append(products, p)
		m.record(saleMovement(purchase, item))
	}

	m.purchases[purchase.ID] = purchase
	if purchase.ReplayKey != "" {
		m.replayKeys[purchase.ReplayKey] = purchase.ID
	}

	customer.RecordPurchase(purchase.Total, purchase.Date)
	m.customers[customer.ID] = customer

	return CheckoutResult{Purchase: purchase, Products: products, Customer: customer}, nil
}

func (m *Memory) CancelPurchase(ctx context.Context, id primitive.ObjectID, userID string) (CancelResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.reachable(ctx); err != nil {
		return CancelResult{}, err
	}

	purchase, ok := m.purchases[id]
	if !ok {
		return CancelResult{}, NotFoundError{Kind: "purchase", Key: id.Hex()}
	}
	if purchase.Status == models.PurchaseCancelled {
		return CancelResult{}, ErrAlreadyCancelled
	}
	for _, item := range purchase.Items {
		if _, ok := m.products[item.ProductID]; !ok {
			return CancelResult{}, productNotFound(item.ProductID)
		}
	}

	now := m.now()
	products := make([]models.Product, 0, len(purchase.Items))
	for _, item := range purchase.Items {
		p := m.products[item.ProductID]
		p.Stock += item.Quantity
		m.products[item.ProductID] = p
		products = append(products, p)
		m.record(returnMovement(purchase, item, userID, now))
	}

	purchase.Status = models.PurchaseCancelled
	m.purchases[id] = purchase

	result := CancelResult{Purchase: purchase, Products: products}
	if customer, ok := m.customers[purchase.CustomerID]; ok {
		customer.TotalPurchases--
		customer.TotalSpent -= purchase.Total
		m.customers[customer.ID] = customer
		result.Customer = &customer
	}
	return result, nil
}

func (m *Memory) ListPurchases(ctx context.Context, page, limit int64) ([]models.Purchase, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.reachable(ctx); err != nil {
		return nil, 0, err
	}

	purchases := make([]models.Purchase, 0, len(m.purchases))
	for _, p := range m.purchases {
		purchases = append(purchases, p)
	}
	sort.Slice(purchases, func(i, j int) bool { return purchases[i].Date.After(purchases[j].Date) })

	return paginate(purchases, page, limit), int64(len(purchases)), nil
}

/* =======================
   CUSTOMERS
======================= */

func (m *Memory) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	return m.SearchCustomers(ctx, "", 0)
}

func (m *Memory) CustomerByID(ctx context.Context, id primitive.ObjectID) (models.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.reachable(ctx); err != nil {
		return models.Customer{}, err
	}

	c, ok := m.customers[id]
	if !ok {
		return models.Customer{}, NotFoundError{Kind: "customer", Key: id.Hex()}
	}
	return c, nil
}

func (m *Memory) SearchCustomers(ctx context.Context, term string, limit int64) ([]models.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.reachable(ctx); err != nil {
		return nil, err
	}

	term = normalizeCustomerName(term)
	customers := make([]models.Customer, 0)
	for _, c := range m.customers {
		if strings.HasPrefix(c.Name, term) {
			customers = append(customers, c)
		}
	}
	sort.Slice(customers, func(i, j int) bool { return customers[i].Name < customers[j].Name })

	if limit > 0 && int64(len(customers)) > limit {
		customers = customers[:limit]
	}
	return customers, nil
}

func (m *Memory) CreateCustomer(ctx context.Context, name string) (models.Customer, error) {
	customer, err := newCustomer(name, m.now())
	if err != nil {
		return models.Customer{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.reachable(ctx); err != nil {
		return models.Customer{}, err
	}

	customer.ID = primitive.NewObjectID()
	m.customers[customer.ID] = customer
	return customer, nil
}

/* =======================
   SUPPLIERS
======================= */

func (m *Memory) ListSuppliers(ctx context.Context) ([]models.Supplier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.reachable(ctx); err != nil {
		return nil, err
	}

	suppliers := make([]models.Supplier, 0, len(m.suppliers))
	for _, s := range m.suppliers {
		suppliers = append(suppliers, s)
	}
	sort.Slice(suppliers, func(i, j int) bool { return suppliers[i].Name < suppliers[j].Name })
	return suppliers, nil
}

func (m *Memory) CreateSupplier(ctx context.Context, s models.Supplier) (models.Supplier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.reachable(ctx); err != nil {
		return models.Supplier{}, err
	}

	s.Name = strings.TrimSpace(s.Name)
	for _, existing := range m.suppliers {
		if existing.Name == s.Name {
			return models.Supplier{}, fmt.Errorf("supplier %s: %w", s.Name, ErrDuplicate)
		}
	}

	s.ID = primitive.NewObjectID()
	s.CreatedAt = m.now()
	m.suppliers[s.ID] = s
	return s, nil
}

/* =======================
   USERS
======================= */

func (m *Memory) UserByEmail(ctx context.Context, email string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.reachable(ctx); err != nil {
		return models.User{}, err
	}

	email = normalizeEmail(email)
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, NotFoundError{Kind: "user", Key: email}
}

func (m *Memory) UserByID(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.reachable(ctx); err != nil {
		return models.User{}, err
	}

	u, ok := m.users[id]
	if !ok {
		return models.User{}, NotFoundError{Kind: "user", Key: id.Hex()}
	}
	return u, nil
}

func (m *Memory) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.reachable(ctx); err != nil {
		return models.User{}, err
	}

	u.Email = normalizeEmail(u.Email)
	if m.emailTaken(u.Email, primitive.NilObjectID) {
		return models.User{}, fmt.Errorf("user %s: %w", u.Email, ErrDuplicate)
	}

	now := m.now()
	u.ID = primitive.NewObjectID()
	u.CreatedAt = now
	u.UpdatedAt = now
	m.users[u.ID] = u
	return u, nil
}

func (m *Memory) ListUsers(ctx context.Context) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.reachable(ctx); err != nil {
		return nil, err
	}

	users := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

func (m *Memory) UpdateUser(ctx context.Context, id primitive.ObjectID, update models.UserUpdate) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.reachable(ctx); err != nil {
		return models.User{}, err
	}

	u, ok := m.users[id]
	if !ok {
		return models.User{}, NotFoundError{Kind: "user", Key: id.Hex()}
	}
	if update.Email != nil {
		email := normalizeEmail(*update.Email)
		if m.emailTaken(email, id) {
			return models.User{}, fmt.Errorf("email %s: %w", email, ErrDuplicate)
		}
		u.Email = email
	}
	if update.DisplayName != nil {
		u.DisplayName = strings.TrimSpace(*update.DisplayName)
	}
	if update.Role != nil {
		u.Role = *update.Role
	}
	u.UpdatedAt = m.now()
	m.users[id] = u
	return u, nil
}

func (m *Memory) emailTaken(email string, except primitive.ObjectID) bool {
	for _, u := range m.users {
		if u.Email == email && u.ID != except {
			return true
		}
	}
	return false
}

func paginate[T any](items []T, page, limit int64) []T {
	if limit <= 0 {
		return items
	}
	start := (max(page, 1) - 1) * limit
	if start >= int64(len(items)) {
		return []T{}
	}
	end := min(start+limit, int64(len(items)))
	return items[start:end]
}
